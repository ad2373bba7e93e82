package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/filesystem/nativefs"
	"github.com/mrsimpson/piddie-sub002/ignore"
	"github.com/mrsimpson/piddie-sub002/internal/cli"
	"github.com/mrsimpson/piddie-sub002/internal/config"
	"github.com/mrsimpson/piddie-sub002/internal/logging"
	"github.com/mrsimpson/piddie-sub002/synchronization"
	"github.com/mrsimpson/piddie-sub002/synchronization/hashing"
)

var syncConfiguration struct {
	primary     string
	secondaries []string
	ignore      []string
}

var syncCommand = &cobra.Command{
	Use:   "sync",
	Short: "Replicate --primary onto every --secondary until interrupted",
	Args:  cobra.NoArgs,
	Run:   cli.Mainify(runSync),
}

func init() {
	flags := syncCommand.Flags()
	flags.StringVar(&syncConfiguration.primary, "primary", "", "path to the primary directory (required)")
	flags.StringSliceVar(&syncConfiguration.secondaries, "secondary", nil, "path to a secondary directory (repeatable)")
	flags.StringSliceVar(&syncConfiguration.ignore, "ignore", nil, "an ignore pattern, in addition to any in the config file (repeatable)")
}

func runSync(command *cobra.Command, arguments []string) error {
	if syncConfiguration.primary == "" {
		return fmt.Errorf("--primary is required")
	}

	loaded, err := config.Load(rootConfiguration.configPath)
	if err != nil {
		return err
	}
	applyLogLevel(loaded.LogLevel)
	applyLogLevel(rootConfiguration.logLevel)
	logger := logging.RootLogger.Sublogger("sync")
	algorithm := loaded.Algorithm()

	patterns := append(append([]string{}, loaded.IgnorePatterns...), syncConfiguration.ignore...)
	matcher := ignore.New(logger.Sublogger("ignore"))
	matcher.SetPatterns(patterns)

	manager := synchronization.NewManager(loaded.ManagerConfig(), logger)
	unregisterProgress := manager.OnProgress(printProgress)
	defer unregisterProgress()

	primaryTarget, err := buildTarget("primary", syncConfiguration.primary, matcher, algorithm, logger, true)
	if err != nil {
		return err
	}
	if err := manager.RegisterTarget(primaryTarget, synchronization.RolePrimary); err != nil {
		return fmt.Errorf("registering primary: %w", err)
	}

	for i, path := range syncConfiguration.secondaries {
		id := fmt.Sprintf("secondary-%d", i)
		secondaryTarget, err := buildTarget(id, path, matcher, algorithm, logger, false)
		if err != nil {
			return err
		}
		if err := manager.RegisterTarget(secondaryTarget, synchronization.RoleSecondary); err != nil {
			return fmt.Errorf("registering %s: %w", id, err)
		}
	}

	if err := manager.Initialize(); err != nil {
		return fmt.Errorf("initializing manager: %w", err)
	}
	fmt.Printf("watching %s -> %d secondaries (type \"help\" for commands)\n",
		filepath.Clean(syncConfiguration.primary), len(syncConfiguration.secondaries))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	commands := make(chan string)
	go readCommands(commands)

	for {
		select {
		case <-signals:
			manager.Dispose()
			return nil
		case line, ok := <-commands:
			if !ok {
				manager.Dispose()
				return nil
			}
			handleCommand(manager, line)
		}
	}
}

func buildTarget(id, path string, matcher *ignore.Matcher, algorithm hashing.Algorithm, logger *logging.Logger, isPrimary bool) (*synchronization.SyncTarget, error) {
	fs, err := nativefs.New(path, algorithm)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	var role synchronization.Role = synchronization.RoleSecondary
	if isPrimary {
		role = synchronization.RolePrimary
	}
	target := synchronization.NewTarget(id, role, filesystem.SubstrateKindNative, matcher, logger.Sublogger(id))
	if err := target.Initialize(fs, isPrimary); err != nil {
		return nil, fmt.Errorf("initializing %s: %w", id, err)
	}
	return target, nil
}

func readCommands(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func handleCommand(manager *synchronization.FileSyncManager, line string) {
	switch line {
	case "":
		return
	case "help":
		fmt.Println("commands: status, pending, confirm, reject, quit")
	case "status":
		fmt.Printf("manager state: %s\n", manager.GetState())
	case "pending":
		pending := manager.GetPendingSync()
		if pending == nil {
			fmt.Println("no pending sync")
			return
		}
		fmt.Printf("pending sync %s from %s:\n", pending.ID, pending.SourceTargetID)
		for _, change := range manager.GetPendingChanges() {
			fmt.Printf("  %s %s\n", change.ChangeType, change.Path)
		}
	case "confirm":
		if err := manager.ConfirmPrimarySync(); err != nil {
			cli.Error(err)
		}
	case "reject":
		if err := manager.RejectPendingSync(); err != nil {
			cli.Error(err)
		}
	case "quit":
		manager.Dispose()
		os.Exit(0)
	default:
		cli.Warning(fmt.Sprintf("unrecognized command %q", line))
	}
}

func printProgress(event synchronization.ProgressEvent) {
	switch event.Kind {
	case synchronization.ProgressSyncing:
		fmt.Printf("[%s->%s] %d/%d %s\n", event.SourceTargetID, event.TargetID, event.SyncedFiles, event.TotalFiles, event.CurrentFile)
	case synchronization.ProgressStreaming:
		fmt.Printf("[%s->%s] %s %s/%s\n", event.SourceTargetID, event.TargetID, event.CurrentFile,
			humanize.Bytes(uint64(event.ProcessedBytes)), humanize.Bytes(uint64(event.TotalBytes)))
	case synchronization.ProgressCompleting:
		fmt.Printf("[%s->%s] complete: %d ok, %d failed\n", event.SourceTargetID, event.TargetID, event.SuccessfulFiles, event.FailedFiles)
	case synchronization.ProgressError:
		color.Red("[%s->%s] error during %v on %s: %v", event.SourceTargetID, event.TargetID, event.Phase, event.CurrentFile, event.Err)
	}
}
