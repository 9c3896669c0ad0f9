//go:build !windows

package preflight

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// checkWritable asks the kernel whether the current user may create entries in path.
func checkWritable(path string) error {
	return unix.Access(path, unix.W_OK|unix.X_OK)
}

// isUnsafeRoot reports whether path is the filesystem root or the working directory.
func isUnsafeRoot(path string) bool {
	return path == "." || path == string(filepath.Separator)
}
