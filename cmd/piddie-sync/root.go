package main

import (
	"github.com/spf13/cobra"

	"github.com/mrsimpson/piddie-sub002/internal/cli"
	"github.com/mrsimpson/piddie-sub002/internal/logging"
)

var rootConfiguration struct {
	configPath string
	logLevel   string
}

var rootCommand = &cobra.Command{
	Use:   "piddie-sync",
	Short: "Replicate a primary directory onto one or more secondary directories",
}

func init() {
	flags := rootCommand.PersistentFlags()
	flags.StringVar(&rootConfiguration.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&rootConfiguration.logLevel, "log-level", "", "log level (disabled, error, warn, info, debug)")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		syncCommand,
	)
}

// Execute runs the root command, exiting the process on failure.
func Execute() {
	if err := rootCommand.Execute(); err != nil {
		cli.Fatal(err)
	}
}

func applyLogLevel(level string) {
	if level == "" {
		return
	}
	if parsed, ok := logging.NameToLevel(level); ok {
		logging.RootLogger.SetLevel(parsed)
	}
}
