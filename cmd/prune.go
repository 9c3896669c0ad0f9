package cmd

import (
	"context"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// RunPrune handles the logic for the prune command. Today's folder is never removed.
func RunPrune(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Prune, flagMap)
	if err != nil {
		return err
	}

	runner := newRunner(runConfig)

	startTime := time.Now()
	err = runner.Prune(ctx)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" prune finished successfully.", "duration", duration)
	return nil
}
