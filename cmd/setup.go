package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/bucket"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/config"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/console"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/engine"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/pathretention"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/preflight"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/servicedir"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

// configPathFromFlags returns the absolute configuration file path named by -config.
func configPathFromFlags(flagMap map[string]any) (string, error) {
	configPath, _ := flagMap["config"].(string)
	if configPath == "" {
		configPath = flagparse.DefaultConfigPath
	}
	return absPath(configPath)
}

// absPath expands a leading tilde and makes path absolute.
func absPath(path string) (string, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("could not determine absolute path for %s: %w", path, err)
	}
	return util.DenormalizePath(abs), nil
}

// loadRunConfig loads and seeds the configuration file, overlays the flags the user set
// and validates the result. It also applies the configured log level.
func loadRunConfig(command flagparse.Command, flagMap map[string]any) (config.Config, error) {
	configPath, err := configPathFromFlags(flagMap)
	if err != nil {
		return config.Config{}, fmt.Errorf("config path invalid: %w", err)
	}

	_, loadedConfig, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Merge the flag values over the loaded config.
	runConfig := config.MergeConfigWithFlags(command, loadedConfig, flagMap)
	runConfig.ConfigPath = configPath

	if runConfig.BackupFolder, err = absPath(runConfig.BackupFolder); err != nil {
		return config.Config{}, fmt.Errorf("backup folder invalid: %w", err)
	}
	if runConfig.PluginsFolder, err = absPath(runConfig.PluginsFolder); err != nil {
		return config.Config{}, fmt.Errorf("plugins folder invalid: %w", err)
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return config.Config{}, err
	}

	// Set the global log level.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	// Log the Summary
	runConfig.LogSummary()
	return runConfig, nil
}

// newRunner wires the backup runner for runConfig. Metrics are collected per run when
// enabled; the daemon replaces the factory to report into Prometheus.
func newRunner(runConfig config.Config) *engine.Runner {
	runner := engine.NewRunner(
		runConfig.BackupPlugins,
		servicedir.NewPluginFolder(runConfig.PluginsFolder),
		bucket.NewManager(runConfig.BackupFolder, time.Now),
		pathcompression.NewPathCompressor(runConfig.BufferSizeKB),
		pathretention.NewPruner(runConfig.DryRun),
		plog.Default(),
	)
	if runConfig.Metrics.Enabled {
		runner.WithMetrics(func() metrics.Metrics { return &metrics.Counters{} })
	}
	runner.WithHooks(runHooks(runConfig)...)
	return runner
}

// runHooks returns the hooks configured for runConfig. The free space check runs first
// so a full disk is reported before the server is told to stop saving.
func runHooks(runConfig config.Config) []engine.Hook {
	var hooks []engine.Hook
	if runConfig.MinFreeSpaceMB > 0 {
		hooks = append(hooks, preflight.NewFreeSpaceHook(runConfig.BackupFolder, runConfig.MinFreeSpaceMB))
	}
	if runConfig.RCON.Enabled {
		hooks = append(hooks, console.NewHook(
			runConfig.RCON.Address,
			runConfig.RCON.Password,
			runConfig.RCON.PreCommands,
			runConfig.RCON.PostCommands,
		))
	}
	return hooks
}
