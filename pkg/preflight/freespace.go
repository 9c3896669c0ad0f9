package preflight

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

const bytesPerMB = 1024 * 1024

// UsageFunc reports the free bytes on the filesystem holding path.
type UsageFunc func(path string) (uint64, error)

// FreeBytes reads the free space of the filesystem holding path.
func FreeBytes(path string) (uint64, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return stat.Free, nil
}

// FreeSpaceHook checks the filesystem holding the backup root before every run.
type FreeSpaceHook struct {
	root      string
	minFreeMB int
	usage     UsageFunc
}

// NewFreeSpaceHook creates a hook that requires at least minFreeMB MiB free under root.
func NewFreeSpaceHook(root string, minFreeMB int) *FreeSpaceHook {
	return &FreeSpaceHook{root: root, minFreeMB: minFreeMB, usage: FreeBytes}
}

// WithUsage replaces the function used to read free space.
func (h *FreeSpaceHook) WithUsage(usage UsageFunc) *FreeSpaceHook {
	h.usage = usage
	return h
}

func (h *FreeSpaceHook) Name() string { return "free-space" }

// BeforeRun returns an error when less than the configured space is free.
func (h *FreeSpaceHook) BeforeRun(ctx context.Context) error {
	if h.minFreeMB <= 0 {
		return nil
	}
	free, err := h.usage(h.root)
	if err != nil {
		return fmt.Errorf("failed to read free space of %s: %w", h.root, err)
	}
	if free < uint64(h.minFreeMB)*bytesPerMB {
		return fmt.Errorf("only %d MiB free on backup root %s, below the %d MiB minimum", free/bytesPerMB, h.root, h.minFreeMB)
	}
	return nil
}

func (h *FreeSpaceHook) AfterRun(ctx context.Context) error { return nil }
