// Package preflight provides checks that run once before any bucket operation begins,
// so that misconfiguration surfaces at startup instead of as a failure on every unit.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

// CheckBackupRootWritable ensures the backup root exists, is a directory and is writable.
// A missing root is created with all missing parents.
func CheckBackupRootWritable(root string) error {
	if root == "" {
		return fmt.Errorf("backup root is not configured")
	}
	clean := filepath.Clean(root)
	if isUnsafeRoot(clean) {
		return fmt.Errorf("refusing to use %q as backup root", root)
	}

	if err := os.MkdirAll(clean, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create backup root %s: %w", clean, err)
	}

	info, err := os.Stat(clean)
	if err != nil {
		return fmt.Errorf("cannot access backup root %s: %w", clean, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup root exists but is not a directory: %s", clean)
	}

	if err := checkWritable(clean); err != nil {
		return fmt.Errorf("backup root %s is not writable: %w", clean, err)
	}
	return nil
}

// CheckRestoreTarget ensures a restore will not mix extracted files into existing data.
// The target must either not exist or be an empty directory.
func CheckRestoreTarget(target string) error {
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access restore target %s: %w", target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("restore target exists but is not a directory: %s", target)
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return fmt.Errorf("cannot read restore target %s: %w", target, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("restore target %s is not empty", target)
	}
	return nil
}
