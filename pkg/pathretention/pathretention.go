// --- ARCHITECTURAL OVERVIEW: Retention Strategy ---
//
// Date buckets carry their calendar day in their directory name (<month>-<day>-<year>).
// The scanner looks only at the direct children of the backup root and evaluates a fixed
// weekly heuristic against each bucket's parsed date:
//
//   - Anchor: a bucket whose day-of-year is congruent to 2 (mod 7) is always kept. This
//     yields one long-term snapshot per week that is never pruned.
//   - Age: a bucket is old enough when dayOfYear(now) - dayOfWeek(bucket) > 7, with
//     dayOfWeek counted Sunday=1 through Saturday=7. The measure is deliberately coarse and
//     is kept as is so that existing backup roots are pruned exactly as before.
//
// A bucket is deleted only when it is not an anchor and is old enough.

// Package pathretention removes expired date buckets from a backup root.
package pathretention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/bucket"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// anchorRemainder is the day-of-year remainder (mod 7) of buckets that are never pruned.
const anchorRemainder = 2

// minAge is the threshold the coarse age measure must exceed.
const minAge = 7

// RetentionManager defines the interface for a component that prunes a backup root.
type RetentionManager interface {
	Prune(ctx context.Context, backupRoot string, now time.Time, excludeDir string, m metrics.Metrics) error
}

// Statically assert that *Pruner implements the RetentionManager interface.
var _ RetentionManager = (*Pruner)(nil)

// Pruner applies the weekly retention heuristic to the buckets under a backup root.
type Pruner struct {
	dryRun bool
}

// NewPruner creates a new Pruner. In dry-run mode expired buckets are only logged.
func NewPruner(dryRun bool) *Pruner {
	return &Pruner{dryRun: dryRun}
}

// Expired reports whether the bucket dated d should be deleted at time now.
func Expired(d, now time.Time) bool {
	if d.YearDay()%7 == anchorRemainder {
		return false
	}
	return now.YearDay()-dayOfWeek(d) > minAge
}

// BucketDate returns the date the bucket named name is judged by. A name that is not a
// date is judged as if dated now, and the parse error is returned with it.
func BucketDate(name string, now time.Time) (time.Time, error) {
	d, err := bucket.ParseDate(name, now.Location())
	if err != nil {
		return now, err
	}
	return d, nil
}

// dayOfWeek numbers weekdays Sunday=1 through Saturday=7.
func dayOfWeek(t time.Time) int {
	return int(t.Weekday()) + 1
}

// Prune scans the direct children of backupRoot and deletes every expired bucket.
// The directory named excludeDir is never considered. Failures on individual buckets
// are logged and counted; only cancellation or an unreadable backup root is returned.
func (p *Pruner) Prune(ctx context.Context, backupRoot string, now time.Time, excludeDir string, m metrics.Metrics) error {
	if m == nil {
		m = &metrics.NoopMetrics{}
	}

	entries, err := os.ReadDir(backupRoot)
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("Backup root does not exist yet, nothing to prune.", "path", backupRoot)
			return nil
		}
		return fmt.Errorf("failed to read backup root %s: %w", backupRoot, err)
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dirName := entry.Name()
		if !entry.IsDir() || dirName == excludeDir {
			continue
		}

		d, err := BucketDate(dirName, now)
		if err != nil {
			plog.Warn("Could not parse bucket date", "directory", dirName, "reason", err)
		}

		if !Expired(d, now) {
			plog.Debug("Keeping bucket", "directory", dirName)
			continue
		}

		dirToDelete := filepath.Join(backupRoot, dirName)
		if p.dryRun {
			plog.Notice("[DRY RUN] DELETE", "path", dirToDelete)
			continue
		}

		plog.Notice("DELETE", "path", dirToDelete)
		if err := DeleteTree(dirToDelete); err != nil {
			m.AddBucketsFailed(1)
			plog.Warn("Failed to delete expired bucket", "path", dirToDelete, "error", err)
			continue
		}
		m.AddBucketsDeleted(1)
		plog.Notice("DELETED", "path", dirToDelete)
	}
	return nil
}

// DeleteTree removes path and everything below it, children before parents.
// Pending directories are kept on an explicit stack, so depth is bounded by memory
// rather than the call stack. Entries that vanish while the tree is being removed
// are not errors, and deleting a path that does not exist succeeds.
func DeleteTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return removeIfExists(path)
	}

	type pendingDir struct {
		path     string
		expanded bool
	}
	stack := []pendingDir{{path: path}}

	for len(stack) > 0 {
		top := len(stack) - 1
		dir := stack[top].path

		// Second visit: all children are gone, remove the directory itself.
		if stack[top].expanded {
			stack = stack[:top]
			if err := removeIfExists(dir); err != nil {
				return err
			}
			continue
		}
		stack[top].expanded = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stack = stack[:top]
				continue
			}
			return fmt.Errorf("failed to read directory %s: %w", dir, err)
		}

		for _, e := range entries {
			child := filepath.Join(dir, e.Name())
			if e.IsDir() {
				stack = append(stack, pendingDir{path: child})
				continue
			}
			if err := removeIfExists(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
