package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/preflight"
)

// RunBackup handles the logic for the run command: one backup run followed by retention.
func RunBackup(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Run, flagMap)
	if err != nil {
		return err
	}

	if err := preflight.CheckBackupRootWritable(runConfig.BackupFolder); err != nil {
		return fmt.Errorf("backup folder preflight failed: %w", err)
	}

	runner := newRunner(runConfig)

	startTime := time.Now()
	err = runner.Run(ctx)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}
