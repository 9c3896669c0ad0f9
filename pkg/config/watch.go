package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/providers/file"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// Watch calls onChange after the configuration file at path has been written or replaced,
// until ctx is cancelled. Changes closer together than debounce are reported once.
// Watching ends if the file is removed.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	provider := file.Provider(path)

	var (
		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
	)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			plog.Warn("Stopped watching configuration file", "path", path, "error", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, onChange)
	})
	if err != nil {
		return fmt.Errorf("failed to watch configuration file %s: %w", path, err)
	}

	go func() {
		<-ctx.Done()
		mu.Lock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		provider.Unwatch()
	}()
	return nil
}
