// Package config loads the engine's YAML configuration file, with
// environment-variable overrides for deployment-time tuning, and
// projects it into the concrete configuration structs consumed by the
// synchronization and hashing packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mrsimpson/piddie-sub002/synchronization"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

// Config is the on-disk (YAML) shape of the engine's configuration.
type Config struct {
	// MaxBatchSize bounds how many changes are applied to a destination
	// per batch. Zero means use the package default.
	MaxBatchSize int `yaml:"maxBatchSize"`
	// LockTimeoutSeconds is the auto-release timeout for a target's
	// sync lock. Zero means use the package default.
	LockTimeoutSeconds int `yaml:"lockTimeoutSeconds"`
	// HashAlgorithm selects the content-hashing algorithm ("sha256" or
	// "xxh3"). Empty means use the package default.
	HashAlgorithm string `yaml:"hashAlgorithm"`
	// LogLevel selects the root logger's minimum level ("disabled",
	// "error", "warn", "info", "debug").
	LogLevel string `yaml:"logLevel"`
	// IgnorePatterns are the initial user-supplied ignore patterns, in
	// addition to the engine's always-on protected patterns.
	IgnorePatterns []string `yaml:"ignorePatterns"`
}

// envPrefix namespaces the environment-variable overrides this package
// recognizes, so they don't collide with unrelated variables in the
// process environment.
const envPrefix = "PIDDIE_SYNC_"

// Load reads a YAML configuration file at path (if it exists; a
// missing file is not an error, and yields defaults), then applies any
// PIDDIE_SYNC_*-prefixed environment variables on top, loading a
// ".env" file from the current working directory first if present.
func Load(path string) (Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("reading configuration file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("parsing configuration file %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	config.applyEnvOverrides()

	return config, nil
}

func (c *Config) applyEnvOverrides() {
	if value, ok := os.LookupEnv(envPrefix + "MAX_BATCH_SIZE"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			c.MaxBatchSize = parsed
		}
	}
	if value, ok := os.LookupEnv(envPrefix + "LOCK_TIMEOUT_SECONDS"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			c.LockTimeoutSeconds = parsed
		}
	}
	if value, ok := os.LookupEnv(envPrefix + "HASH_ALGORITHM"); ok {
		c.HashAlgorithm = value
	}
	if value, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		c.LogLevel = value
	}
}

// ManagerConfig projects the loaded configuration into a
// synchronization.ManagerConfig.
func (c Config) ManagerConfig() synchronization.ManagerConfig {
	return synchronization.ManagerConfig{
		MaxBatchSize: c.MaxBatchSize,
		LockTimeout:  time.Duration(c.LockTimeoutSeconds) * time.Second,
	}
}

// Algorithm resolves the configured hash algorithm, falling back to
// the package default if unset or unrecognized.
func (c Config) Algorithm() hashing.Algorithm {
	if c.HashAlgorithm == "" {
		return hashing.AlgorithmSHA256
	}
	algorithm, err := hashing.ParseAlgorithm(c.HashAlgorithm)
	if err != nil {
		return hashing.AlgorithmSHA256
	}
	return algorithm
}
