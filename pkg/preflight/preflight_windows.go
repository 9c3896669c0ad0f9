//go:build windows

package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// checkWritable creates and removes a probe file. ACLs make mode bits meaningless on Windows.
func checkWritable(path string) error {
	f, err := os.CreateTemp(path, ".pgl-plugin-backup-writetest-*.tmp")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to close probe file: %w", err)
	}
	return os.Remove(name)
}

// isUnsafeRoot checks if the given path is the current directory or a bare drive letter (e.g., "C:").
func isUnsafeRoot(path string) bool {
	if path == "." || path == string(filepath.Separator) {
		return true
	}

	// filepath.Clean("C:") produces "C:.", so we must also check for that pattern.
	// A UNC path like `\\server\share` is safe because its volume name contains a separator.
	vol := filepath.VolumeName(path)
	isBareDrive := vol != "" && path == vol && !strings.Contains(vol, string(filepath.Separator))
	isCleanedBareDrive := vol != "" && path == vol+"."
	isDriveRoot := vol != "" && path == vol+string(filepath.Separator)
	return isBareDrive || isCleanedBareDrive || isDriveRoot
}
