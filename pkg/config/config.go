package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/servicedir"
	"github.com/robfig/cron/v3"
)

// Bounds for the archive I/O buffer.
const (
	minBufferSizeKB = 4
	maxBufferSizeKB = 64 * 1024
)

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// RCONConfig controls the server console commands sent around every backup run.
type RCONConfig struct {
	Enabled      bool     `koanf:"enabled"`
	Address      string   `koanf:"address"`
	Password     string   `koanf:"password"`
	PreCommands  []string `koanf:"preCommands"`
	PostCommands []string `koanf:"postCommands"`
}

type Config struct {
	BackupFolder   string        `koanf:"backupFolder"`
	BackupPlugins  []string      `koanf:"backupPlugins"`
	PluginsFolder  string        `koanf:"pluginsFolder"`
	Schedule       string        `koanf:"schedule"`
	LogLevel       string        `koanf:"logLevel"`
	BufferSizeKB   int           `koanf:"bufferSizeKB"`
	MinFreeSpaceMB int           `koanf:"minFreeSpaceMB"`
	Metrics        MetricsConfig `koanf:"metrics"`
	RCON           RCONConfig    `koanf:"rcon"`

	ConfigPath string `koanf:"-"` // Never added to config file
	DryRun     bool   `koanf:"-"` // Never added to config file
}

// NewDefault creates and returns a Config struct with sensible default values.
// BackupFolder and PluginsFolder depend on where the config file lives and are
// seeded by Store.Seed instead.
func NewDefault() Config {
	return Config{
		BackupPlugins:  []string{},
		Schedule:       "@hourly", // Backups are once per day; hourly runs retry failed units.
		LogLevel:       "info",
		BufferSizeKB:   256,  // Keep it between 64KB-4MB
		MinFreeSpaceMB: 1024, // 0 disables the check
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
		RCON: RCONConfig{
			Enabled:      false,
			Address:      "127.0.0.1:25575",
			PreCommands:  []string{"save-off", "save-all flush"},
			PostCommands: []string{"save-on"},
		},
	}
}

// Load opens the store at path, seeds missing keys and returns the effective configuration.
func Load(path string) (*Store, Config, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, Config{}, err
	}
	if _, err := store.Seed(); err != nil {
		return nil, Config{}, fmt.Errorf("failed to seed config file %s: %w", store.Path(), err)
	}
	cfg, err := store.Config()
	if err != nil {
		return nil, Config{}, err
	}
	return store, cfg, nil
}

// Validate checks the configuration for logical errors and inconsistencies.
func (c *Config) Validate() error {
	if c.BackupFolder == "" {
		return fmt.Errorf("backupFolder cannot be empty")
	}
	if c.PluginsFolder == "" {
		return fmt.Errorf("pluginsFolder cannot be empty")
	}

	seen := make(map[string]bool, len(c.BackupPlugins))
	for _, name := range c.BackupPlugins {
		if !servicedir.ValidName(name) {
			return fmt.Errorf("invalid plugin name in backupPlugins: %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate plugin name in backupPlugins: %q", name)
		}
		seen[name] = true
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}

	if c.BufferSizeKB < minBufferSizeKB || c.BufferSizeKB > maxBufferSizeKB {
		return fmt.Errorf("bufferSizeKB must be between %d and %d, got %d", minBufferSizeKB, maxBufferSizeKB, c.BufferSizeKB)
	}

	if c.MinFreeSpaceMB < 0 {
		return fmt.Errorf("minFreeSpaceMB cannot be negative, got %d", c.MinFreeSpaceMB)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics.address cannot be empty when metrics are enabled")
	}

	if c.RCON.Enabled {
		if c.RCON.Address == "" {
			return fmt.Errorf("rcon.address cannot be empty when rcon is enabled")
		}
		if c.RCON.Password == "" {
			return fmt.Errorf("rcon.password cannot be empty when rcon is enabled")
		}
	}
	return nil
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"config", c.ConfigPath,
		"log_level", c.LogLevel,
		"backup_folder", c.BackupFolder,
		"plugins_folder", c.PluginsFolder,
		"schedule", c.Schedule,
		"dry_run", c.DryRun,
		"buffer_size_kb", c.BufferSizeKB,
	}
	if len(c.BackupPlugins) > 0 {
		logArgs = append(logArgs, "plugins", strings.Join(c.BackupPlugins, ", "))
	}
	if c.Metrics.Enabled {
		logArgs = append(logArgs, "metrics", fmt.Sprintf("enabled (a:%s)", c.Metrics.Address))
	}
	if c.RCON.Enabled {
		logArgs = append(logArgs, "rcon", fmt.Sprintf("enabled (a:%s)", c.RCON.Address))
	}
	plog.Info("Configuration loaded", logArgs...)
}

// MergeConfigWithFlags overlays the configuration values from flags on top of a base
// configuration. It iterates over the setFlags map, which contains only the flags
// explicitly provided by the user on the command line.
func MergeConfigWithFlags(command flagparse.Command, base Config, setFlags map[string]any) Config {
	merged := base
	merged.BackupPlugins = append([]string(nil), base.BackupPlugins...)

	for name, value := range setFlags {
		switch name {
		case "log-level":
			merged.LogLevel = value.(string)
		case "metrics":
			merged.Metrics.Enabled = value.(bool)
		case "metrics-address":
			merged.Metrics.Address = value.(string)
		case "dry-run":
			switch command {
			case flagparse.Run, flagparse.Daemon, flagparse.Prune:
				merged.DryRun = value.(bool)
			default:
			}
		case "plugins":
			merged.BackupPlugins = value.([]string)
		case "plugins-folder":
			merged.PluginsFolder = value.(string)
		case "backup-root":
			merged.BackupFolder = value.(string)
		case "buffer-size-kb":
			merged.BufferSizeKB = value.(int)
		case "schedule":
			merged.Schedule = value.(string)
		case "config":
			merged.ConfigPath = value.(string)
			if abs, err := filepath.Abs(merged.ConfigPath); err == nil {
				merged.ConfigPath = abs
			}
		default:
			plog.Debug("unhandled flag in MergeConfigWithFlags", "flag", name)
		}
	}
	return merged
}
