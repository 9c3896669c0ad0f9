//go:build !windows

package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckBackupRootWritable_Unix(t *testing.T) {
	t.Run("Error - read-only root", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("Skipping test: root bypasses permission checks.")
		}
		root := filepath.Join(t.TempDir(), "readonly")
		if err := os.Mkdir(root, 0555); err != nil {
			t.Fatalf("failed to create read-only dir: %v", err)
		}
		t.Cleanup(func() { os.Chmod(root, 0755) })

		err := CheckBackupRootWritable(root)
		if err == nil {
			t.Fatal("expected an error for a read-only root")
		}
		if !strings.Contains(err.Error(), "is not writable") {
			t.Errorf("expected 'is not writable' error, got %v", err)
		}
	})

	t.Run("Error - filesystem root", func(t *testing.T) {
		if err := CheckBackupRootWritable("/"); err == nil {
			t.Error("expected an error for the filesystem root")
		}
	})
}
