package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-plugin-backup/cmd"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// run encapsulates the main application logic and returns an error if something
// goes wrong, allowing the main function to handle exit codes.
func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if command != flagparse.None && command != flagparse.Version {
		// Apply the log level flag early so config loading honors it.
		if lvl, ok := flagMap["log-level"].(string); ok {
			plog.SetLevel(plog.LevelFromString(lvl))
		}
		plog.Info("Starting "+buildinfo.Name, "version", buildinfo.Version, "command", command, "pid", os.Getpid())
	}

	switch command {
	case flagparse.None:
		return nil // Usage was printed.
	case flagparse.Run:
		return cmd.RunBackup(ctx, flagMap)
	case flagparse.Daemon:
		return cmd.RunDaemon(ctx, flagMap)
	case flagparse.Prune:
		return cmd.RunPrune(ctx, flagMap)
	case flagparse.Restore:
		return cmd.RunRestore(ctx, flagMap)
	case flagparse.List:
		return cmd.RunList(ctx, flagMap)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	case flagparse.Version:
		return cmd.RunVersion(os.Stdout)
	default:
		return fmt.Errorf("internal error: unknown command %s", command)
	}
}

func main() {
	// Set up a context that is canceled when an interrupt or termination signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for signals in a separate goroutine.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		plog.Info("Received shutdown signal")
		cancel()
	}()

	if err := run(ctx, os.Args[1:]); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
