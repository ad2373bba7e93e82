package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.MaxBatchSize != 0 || config.LockTimeoutSeconds != 0 || config.HashAlgorithm != "" {
		t.Errorf("expected zero-value defaults, got %+v", config)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "maxBatchSize: 25\nlockTimeoutSeconds: 45\nhashAlgorithm: xxh3\nlogLevel: debug\nignorePatterns:\n  - \"*.tmp\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.MaxBatchSize != 25 {
		t.Errorf("MaxBatchSize = %d, want 25", config.MaxBatchSize)
	}
	if config.LockTimeoutSeconds != 45 {
		t.Errorf("LockTimeoutSeconds = %d, want 45", config.LockTimeoutSeconds)
	}
	if config.HashAlgorithm != "xxh3" {
		t.Errorf("HashAlgorithm = %q, want xxh3", config.HashAlgorithm)
	}
	if config.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", config.LogLevel)
	}
	if len(config.IgnorePatterns) != 1 || config.IgnorePatterns[0] != "*.tmp" {
		t.Errorf("IgnorePatterns = %v, want [*.tmp]", config.IgnorePatterns)
	}
}

func TestLoadEnvOverridesFileValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("maxBatchSize: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("PIDDIE_SYNC_MAX_BATCH_SIZE", "40")
	t.Setenv("PIDDIE_SYNC_HASH_ALGORITHM", "xxh3")

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.MaxBatchSize != 40 {
		t.Errorf("MaxBatchSize = %d, want env override 40", config.MaxBatchSize)
	}
	if config.HashAlgorithm != "xxh3" {
		t.Errorf("HashAlgorithm = %q, want env override xxh3", config.HashAlgorithm)
	}
}

func TestLoadEnvIgnoresUnparsableInt(t *testing.T) {
	t.Setenv("PIDDIE_SYNC_MAX_BATCH_SIZE", "not-a-number")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.MaxBatchSize != 0 {
		t.Errorf("MaxBatchSize = %d, want 0 (unparsable override should be dropped)", config.MaxBatchSize)
	}
}

func TestAlgorithmDefaultsToSHA256(t *testing.T) {
	config := Config{}
	if config.Algorithm() != hashing.AlgorithmSHA256 {
		t.Errorf("Algorithm() = %v, want SHA256 default", config.Algorithm())
	}
}

func TestAlgorithmFallsBackOnUnrecognizedValue(t *testing.T) {
	config := Config{HashAlgorithm: "not-a-real-algorithm"}
	if config.Algorithm() != hashing.AlgorithmSHA256 {
		t.Errorf("Algorithm() = %v, want SHA256 fallback", config.Algorithm())
	}
}

func TestAlgorithmParsesConfiguredValue(t *testing.T) {
	config := Config{HashAlgorithm: "xxh3"}
	if config.Algorithm() != hashing.AlgorithmXXH3 {
		t.Errorf("Algorithm() = %v, want XXH3", config.Algorithm())
	}
}

func TestManagerConfigProjectsFields(t *testing.T) {
	config := Config{MaxBatchSize: 15, LockTimeoutSeconds: 10}
	managerConfig := config.ManagerConfig()
	if managerConfig.MaxBatchSize != 15 {
		t.Errorf("MaxBatchSize = %d, want 15", managerConfig.MaxBatchSize)
	}
	if managerConfig.LockTimeout.Seconds() != 10 {
		t.Errorf("LockTimeout = %v, want 10s", managerConfig.LockTimeout)
	}
}
