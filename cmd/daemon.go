package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/config"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/engine"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/preflight"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// reloadDebounce groups the burst of file events an editor produces on save.
const reloadDebounce = time.Second

// swappableRunner runs whichever runner was stored last, so a configuration reload
// takes effect at the next run without touching the scheduler.
type swappableRunner struct {
	current atomic.Pointer[engine.Runner]
}

func (s *swappableRunner) Run(ctx context.Context) error {
	return s.current.Load().Run(ctx)
}

// RunDaemon handles the logic for the daemon command. It runs one backup right away,
// then keeps running backups on the configured schedule until ctx is cancelled.
// Changes to the configuration file are picked up before the next run.
func RunDaemon(ctx context.Context, flagMap map[string]any) error {
	runConfig, err := loadRunConfig(flagparse.Daemon, flagMap)
	if err != nil {
		return err
	}

	if err := preflight.CheckBackupRootWritable(runConfig.BackupFolder); err != nil {
		return fmt.Errorf("backup folder preflight failed: %w", err)
	}

	var runCollectors *metrics.Collectors
	var reg *prometheus.Registry
	if runConfig.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		runCollectors = metrics.NewCollectors(reg)
	}
	buildRunner := func(cfg config.Config) *engine.Runner {
		runner := newRunner(cfg)
		if runCollectors != nil {
			runner.WithMetrics(func() metrics.Metrics { return runCollectors.NewRun() })
		}
		return runner
	}

	job := &swappableRunner{}
	job.current.Store(buildRunner(runConfig))

	sched := scheduler.New(job, runConfig.Schedule)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if reg != nil {
		backupFolder := runConfig.BackupFolder
		health := metrics.NewHealth(
			func() error {
				if !sched.IsRunning() {
					return errors.New("scheduler is not running")
				}
				return nil
			},
			func() error { return preflight.CheckBackupRootWritable(backupFolder) },
		)
		srv, err := metrics.Listen(ctx, runConfig.Metrics.Address, reg, health)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Close()
	}

	err = config.Watch(ctx, runConfig.ConfigPath, reloadDebounce, func() {
		reloadRunner(flagMap, runConfig, job, buildRunner)
	})
	if err != nil {
		plog.Warn("Configuration changes will not be picked up until restart", "error", err)
	}

	// Catch up right away instead of waiting for the first tick.
	if _, err := sched.Trigger(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		plog.Warn("Initial backup run failed", "error", err)
	}

	if next := sched.NextRun(); next != nil {
		plog.Info("Waiting for next scheduled backup run", "at", next.Format(time.RFC3339))
	}

	<-ctx.Done()
	plog.Info(buildinfo.Name + " daemon stopping.")
	return nil
}

// reloadRunner rebuilds the runner from the configuration file. An invalid file keeps
// the previous runner. Settings that belong to the daemon itself need a restart.
func reloadRunner(flagMap map[string]any, started config.Config, job *swappableRunner, build func(config.Config) *engine.Runner) {
	plog.Info("Configuration file changed, reloading")
	reloaded, err := loadRunConfig(flagparse.Daemon, flagMap)
	if err != nil {
		plog.Warn("Keeping previous configuration", "error", err)
		return
	}
	if err := preflight.CheckBackupRootWritable(reloaded.BackupFolder); err != nil {
		plog.Warn("Keeping previous configuration", "error", err)
		return
	}

	if reloaded.Schedule != started.Schedule {
		plog.Warn("Schedule changes take effect after a restart", "running", started.Schedule, "configured", reloaded.Schedule)
	}
	if reloaded.Metrics != started.Metrics {
		plog.Warn("Metrics changes take effect after a restart")
	}

	job.current.Store(build(reloaded))
	plog.Info("Configuration reloaded", "plugins", reloaded.BackupPlugins)
}
