package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/bucket"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/preflight"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/servicedir"
)

// RunRestore handles the logic for the restore command. It extracts one unit archive
// from a backup folder into an empty or missing target directory.
func RunRestore(ctx context.Context, flagMap map[string]any) error {
	// Define mandatory flags
	unit, ok := flagMap["unit"].(string)
	if !ok || unit == "" {
		return fmt.Errorf("the -unit flag is required to run a restore")
	}
	if !servicedir.ValidName(unit) {
		return fmt.Errorf("invalid unit name %q", unit)
	}
	target, ok := flagMap["target"].(string)
	if !ok || target == "" {
		return fmt.Errorf("the -target flag is required to run a restore")
	}
	date, _ := flagMap["date"].(string)

	// Validate Target
	absTargetPath, err := absPath(target)
	if err != nil {
		return fmt.Errorf("target path invalid: %w", err)
	}
	if err := preflight.CheckRestoreTarget(absTargetPath); err != nil {
		return err
	}

	runConfig, err := loadRunConfig(flagparse.Restore, flagMap)
	if err != nil {
		return err
	}

	// Without -date, restore from today's folder. Dates are normalized to the folder
	// naming, so 03-05-2024 finds 3-5-2024.
	now := time.Now()
	restoreDate := now
	if date != "" {
		if restoreDate, err = bucket.ParseDate(date, now.Location()); err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
	}
	date = bucket.FormatDate(restoreDate)

	bucketPath := filepath.Join(runConfig.BackupFolder, date)
	if !bucket.HasArchive(bucketPath, unit) {
		return fmt.Errorf("no archive for %s in backup folder %s", unit, bucketPath)
	}
	archivePath := bucket.ArchivePath(bucketPath, unit)

	plog.Info("Restoring", "unit", unit, "archive", archivePath, "target", absTargetPath)

	startTime := time.Now()
	compressor := pathcompression.NewPathCompressor(runConfig.BufferSizeKB)
	err = compressor.Extract(ctx, archivePath, absTargetPath)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err
	}
	plog.Info(buildinfo.Name+" restore finished successfully.", "duration", duration)
	return nil
}
