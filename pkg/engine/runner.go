package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/bucket"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/servicedir"
)

// --- ARCHITECTURAL OVERVIEW: Backup Run ---
//
// A run walks the configured units in order. Each unit is resolved through the service
// directory, checked against today's bucket and archived only when no <unit>.zip exists
// yet. Every per-unit fault is logged and the run moves on, so one broken unit never
// costs the others their backup. Once all units are handled, retention prunes the backup
// root a single time.
//
// Today's bucket is always excluded from retention. From mid-January on, the weekly
// heuristic judges it expired like almost every other bucket.

// Logger is the sink the runner reports progress and per-unit faults to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Compressor writes a unit's data directory into an archive.
type Compressor interface {
	Compress(ctx context.Context, absSourceDir, absArchivePath string, m metrics.Metrics) error
}

// Retainer prunes expired buckets from the backup root.
type Retainer interface {
	Prune(ctx context.Context, backupRoot string, now time.Time, excludeDir string, m metrics.Metrics) error
}

// Hook is notified around every backup run. Hook errors are logged and never stop the run.
// AfterRun is called for every hook whose BeforeRun was called, in reverse order, even
// when the run is cancelled.
type Hook interface {
	Name() string
	BeforeRun(ctx context.Context) error
	AfterRun(ctx context.Context) error
}

// Runner performs backup runs for a fixed, ordered list of units.
type Runner struct {
	units      []string
	directory  servicedir.Directory
	buckets    *bucket.Manager
	compressor Compressor
	retainer   Retainer
	log        Logger
	newMetrics func() metrics.Metrics
	hooks      []Hook
}

// NewRunner creates a new Runner. Metrics are disabled until WithMetrics is called.
func NewRunner(units []string, directory servicedir.Directory, buckets *bucket.Manager, compressor Compressor, retainer Retainer, log Logger) *Runner {
	return &Runner{
		units:      append([]string(nil), units...),
		directory:  directory,
		buckets:    buckets,
		compressor: compressor,
		retainer:   retainer,
		log:        log,
		newMetrics: func() metrics.Metrics { return &metrics.NoopMetrics{} },
	}
}

// WithMetrics sets the factory that provides a fresh metrics sink for every run.
func (r *Runner) WithMetrics(newMetrics func() metrics.Metrics) *Runner {
	r.newMetrics = newMetrics
	return r
}

// WithHooks adds hooks that run before and after every backup run.
func (r *Runner) WithHooks(hooks ...Hook) *Runner {
	r.hooks = append(r.hooks, hooks...)
	return r
}

// Run performs one backup run. Unit and retention faults are logged, not returned;
// the only error is a cancelled context, which is checked between units.
func (r *Runner) Run(ctx context.Context) error {
	// Check for cancellation at the very beginning.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	runID := uuid.NewString()
	m := r.newMetrics()
	r.log.Info("Starting backup run", "run_id", runID, "units", len(r.units), "backup_root", r.buckets.Root())

	for i, h := range r.hooks {
		if err := h.BeforeRun(ctx); err != nil {
			r.log.Warn("Pre-run hook failed", "run_id", runID, "hook", h.Name(), "error", err)
		}
		defer r.afterRun(ctx, runID, r.hooks[i])
	}

	for _, name := range r.units {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		r.backupUnit(ctx, name, m)
	}

	now := r.buckets.Now()
	if err := r.retainer.Prune(ctx, r.buckets.Root(), now, bucket.FormatDate(now), m); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.log.Warn("Failed to apply retention", "backup_root", r.buckets.Root(), "error", err)
	}

	m.LogSummary("Backup run finished")
	r.log.Debug("Backup run complete", "run_id", runID)
	return nil
}

func (r *Runner) afterRun(ctx context.Context, runID string, h Hook) {
	// Cleanup must happen even when the run itself was cancelled.
	if err := h.AfterRun(context.WithoutCancel(ctx)); err != nil {
		r.log.Warn("Post-run hook failed", "run_id", runID, "hook", h.Name(), "error", err)
	}
}

// Prune applies retention to the backup root on its own.
func (r *Runner) Prune(ctx context.Context) error {
	m := r.newMetrics()
	now := r.buckets.Now()
	r.log.Info("Starting prune", "backup_root", r.buckets.Root())
	if err := r.retainer.Prune(ctx, r.buckets.Root(), now, bucket.FormatDate(now), m); err != nil {
		return err
	}
	m.LogSummary("Prune finished")
	return nil
}

func (r *Runner) backupUnit(ctx context.Context, name string, m metrics.Metrics) {
	unit, ok := r.directory.FindByName(name)
	if !ok {
		r.log.Info("Plugin not found, skipping", "unit", name)
		m.AddUnitsMissing(1)
		return
	}

	bucketPath, err := r.buckets.CurrentBucketPath()
	if err != nil {
		r.log.Warn("Failed to back up", "unit", name, "error", err)
		m.AddArchivesFailed(1)
		return
	}

	if bucket.HasArchive(bucketPath, name) {
		r.log.Debug("Archive already exists for today, skipping", "unit", name, "bucket", bucketPath)
		m.AddArchivesSkipped(1)
		return
	}

	archivePath := bucket.ArchivePath(bucketPath, name)
	r.log.Info("Backing up", "unit", name, "source", unit.DataDir, "archive", archivePath)
	if err := r.compressor.Compress(ctx, unit.DataDir, archivePath, m); err != nil {
		r.log.Warn("Failed to back up", "unit", name, "error", err)
		m.AddArchivesFailed(1)
		return
	}
	m.AddArchivesWritten(1)
}
