package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/flagparse"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestConfig_Validate(t *testing.T) {
	// Helper to get a valid base config for testing
	newValidConfig := func(t *testing.T) Config {
		cfg := NewDefault()
		cfg.BackupFolder = t.TempDir()
		cfg.PluginsFolder = t.TempDir()
		cfg.BackupPlugins = []string{"Essentials", "WorldEdit"}
		return cfg
	}

	t.Run("Valid Config", func(t *testing.T) {
		cfg := newValidConfig(t)
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config to pass validation, but got error: %v", err)
		}
	})

	t.Run("Valid RCON Config", func(t *testing.T) {
		cfg := newValidConfig(t)
		cfg.RCON.Enabled = true
		cfg.RCON.Password = "secret"
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected rcon config with defaults to pass validation, but got error: %v", err)
		}
	})

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Empty Backup Folder", func(c *Config) { c.BackupFolder = "" }},
		{"Empty Plugins Folder", func(c *Config) { c.PluginsFolder = "" }},
		{"Empty Plugin Name", func(c *Config) { c.BackupPlugins = []string{""} }},
		{"Plugin Name With Separator", func(c *Config) { c.BackupPlugins = []string{"../etc"} }},
		{"Duplicate Plugin Name", func(c *Config) { c.BackupPlugins = []string{"A", "A"} }},
		{"Invalid Schedule", func(c *Config) { c.Schedule = "every tuesday" }},
		{"Buffer Too Small", func(c *Config) { c.BufferSizeKB = 0 }},
		{"Buffer Too Large", func(c *Config) { c.BufferSizeKB = maxBufferSizeKB + 1 }},
		{"Metrics Without Address", func(c *Config) { c.Metrics = MetricsConfig{Enabled: true} }},
		{"Negative Free Space", func(c *Config) { c.MinFreeSpaceMB = -1 }},
		{"RCON Without Password", func(c *Config) { c.RCON.Enabled = true }},
		{"RCON Without Address", func(c *Config) {
			c.RCON = RCONConfig{Enabled: true, Password: "secret"}
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := newValidConfig(t)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error, but got nil")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("Missing file is seeded and saved", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "plugins", "PGL-Plugin-Backup")
		path := filepath.Join(dir, "config.yml")

		_, cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if want := filepath.Join(dir, DefaultBackupDirName); cfg.BackupFolder != want {
			t.Errorf("expected backup folder %q, got %q", want, cfg.BackupFolder)
		}
		if want := filepath.Dir(dir); cfg.PluginsFolder != want {
			t.Errorf("expected plugins folder %q, got %q", want, cfg.PluginsFolder)
		}
		if len(cfg.BackupPlugins) != 0 {
			t.Errorf("expected no plugins, got %v", cfg.BackupPlugins)
		}
		if cfg.Schedule != "@hourly" || cfg.BufferSizeKB != 256 {
			t.Errorf("expected defaults, got schedule=%q buffer=%d", cfg.Schedule, cfg.BufferSizeKB)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected seeded config file to be written: %v", err)
		}
		if cfg.ConfigPath != path {
			t.Errorf("expected config path %q, got %q", path, cfg.ConfigPath)
		}
	})

	t.Run("Existing values are kept", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yml")
		content := "backupFolder: /srv/backups\nbackupPlugins:\n  - Essentials\n  - WorldEdit\nschedule: \"@daily\"\nmetrics:\n  enabled: true\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		store, cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.BackupFolder != "/srv/backups" {
			t.Errorf("expected backup folder to be kept, got %q", cfg.BackupFolder)
		}
		if len(cfg.BackupPlugins) != 2 || cfg.BackupPlugins[0] != "Essentials" || cfg.BackupPlugins[1] != "WorldEdit" {
			t.Errorf("expected ordered plugin list, got %v", cfg.BackupPlugins)
		}
		if cfg.Schedule != "@daily" {
			t.Errorf("expected schedule @daily, got %q", cfg.Schedule)
		}
		if !cfg.Metrics.Enabled || cfg.Metrics.Address != "127.0.0.1:9464" {
			t.Errorf("expected metrics enabled with default address, got %+v", cfg.Metrics)
		}
		if !store.HasSection(KeyPluginsFolder) {
			t.Error("expected pluginsFolder to be seeded")
		}
	})

	t.Run("Malformed file is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yml")
		if err := os.WriteFile(path, []byte("backupPlugins: [unclosed"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := Load(path); err == nil {
			t.Error("expected an error for malformed YAML")
		}
	})
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	base.BackupFolder = "/from/config"
	base.BackupPlugins = []string{"A"}

	t.Run("Flags override config", func(t *testing.T) {
		merged := MergeConfigWithFlags(flagparse.Run, base, map[string]any{
			"backup-root":    "/from/flag",
			"plugins":        []string{"B", "C"},
			"dry-run":        true,
			"buffer-size-kb": 64,
			"log-level":      "debug",
		})

		if merged.BackupFolder != "/from/flag" {
			t.Errorf("expected backup folder from flag, got %q", merged.BackupFolder)
		}
		if len(merged.BackupPlugins) != 2 || merged.BackupPlugins[0] != "B" {
			t.Errorf("expected plugins from flag, got %v", merged.BackupPlugins)
		}
		if !merged.DryRun || merged.BufferSizeKB != 64 || merged.LogLevel != "debug" {
			t.Errorf("unexpected merge result: %+v", merged)
		}
		if base.BackupFolder != "/from/config" || base.BackupPlugins[0] != "A" {
			t.Error("expected base config to be left untouched")
		}
	})

	t.Run("Dry run ignored for restore", func(t *testing.T) {
		merged := MergeConfigWithFlags(flagparse.Restore, base, map[string]any{"dry-run": true})
		if merged.DryRun {
			t.Error("expected dry-run to be ignored for restore")
		}
	})
}
