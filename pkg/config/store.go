package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

// Configuration keys.
const (
	KeyBackupFolder   = "backupFolder"
	KeyBackupPlugins  = "backupPlugins"
	KeyPluginsFolder  = "pluginsFolder"
	KeySchedule       = "schedule"
	KeyLogLevel       = "logLevel"
	KeyBufferSizeKB   = "bufferSizeKB"
	KeyMetricsEnabled = "metrics.enabled"
	KeyMetricsAddress = "metrics.address"
	KeyMinFreeSpaceMB = "minFreeSpaceMB"
	KeyRCONEnabled    = "rcon.enabled"
	KeyRCONAddress    = "rcon.address"
	KeyRCONPassword   = "rcon.password"
	KeyRCONPre        = "rcon.preCommands"
	KeyRCONPost       = "rcon.postCommands"
)

// EnvPrefix is the prefix of environment variables that override configuration values.
const EnvPrefix = "PGL_PLUGIN_BACKUP_"

// DefaultBackupDirName is the backup root created next to the configuration file.
const DefaultBackupDirName = "backups"

// envMappings maps lower-cased environment variable names to configuration keys.
var envMappings = map[string]string{
	"pgl_plugin_backup_backup_folder":      KeyBackupFolder,
	"pgl_plugin_backup_backup_plugins":     KeyBackupPlugins,
	"pgl_plugin_backup_plugins_folder":     KeyPluginsFolder,
	"pgl_plugin_backup_schedule":           KeySchedule,
	"pgl_plugin_backup_log_level":          KeyLogLevel,
	"pgl_plugin_backup_buffer_size_kb":     KeyBufferSizeKB,
	"pgl_plugin_backup_metrics_enabled":    KeyMetricsEnabled,
	"pgl_plugin_backup_metrics_address":    KeyMetricsAddress,
	"pgl_plugin_backup_min_free_space_mb":  KeyMinFreeSpaceMB,
	"pgl_plugin_backup_rcon_enabled":       KeyRCONEnabled,
	"pgl_plugin_backup_rcon_address":       KeyRCONAddress,
	"pgl_plugin_backup_rcon_password":      KeyRCONPassword,
	"pgl_plugin_backup_rcon_pre_commands":  KeyRCONPre,
	"pgl_plugin_backup_rcon_post_commands": KeyRCONPost,
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices.
var sliceConfigPaths = []string{
	KeyBackupPlugins,
	KeyRCONPre,
	KeyRCONPost,
}

// Store is a YAML configuration document. Reads see three layers, lowest first: built-in
// defaults, the document, and environment overrides. Only the document layer is written
// back by Save, so neither defaults nor environment values leak into the file.
type Store struct {
	mu     sync.RWMutex
	path   string
	doc    *koanf.Koanf
	merged *koanf.Koanf
}

// OpenStore loads the document at path. A missing file yields an empty document.
func OpenStore(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("could not determine absolute path for config file %s: %w", path, err)
	}

	s := &Store{path: absPath, doc: koanf.New(".")}
	if _, err := os.Stat(absPath); err == nil {
		plog.Debug("Loading configuration", "path", absPath)
		if err := s.doc.Load(file.Provider(absPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", absPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error opening config file %s: %w", absPath, err)
	}

	if err := s.rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the document.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the directory holding the document.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// GetString returns the effective string value of key.
func (s *Store) GetString(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.String(key)
}

// GetStringList returns the effective list value of key.
func (s *Store) GetStringList(key string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.merged.Strings(key)
}

// HasSection reports whether the document itself defines key.
func (s *Store) HasSection(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Exists(key)
}

// Set writes value to the document layer. Call Save to persist it.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.doc.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return s.rebuild()
}

// Save writes the document layer to disk. The file is replaced atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := s.doc.Marshal(yaml.Parser())
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close config file: %w", err)
	}
	if err := os.Chmod(tmpPath, util.UserWritableFilePerms); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	plog.Debug("Saved config file", "path", s.path)
	return nil
}

// Seed fills in the keys the document must carry and saves it if anything was added.
// It reports whether the document changed.
func (s *Store) Seed() (bool, error) {
	changed, err := s.SeedDefaults()
	if err != nil || !changed {
		return false, err
	}
	return true, s.Save()
}

// SeedDefaults sets the keys the document must carry without saving it. An absent
// backupFolder defaults to <config dir>/backups, an absent pluginsFolder to the parent of
// the config dir, and an absent backupPlugins to an empty list. Existing values are never
// touched.
func (s *Store) SeedDefaults() (bool, error) {
	seeds := []struct {
		key   string
		value any
	}{
		{KeyBackupFolder, filepath.Join(s.Dir(), DefaultBackupDirName)},
		{KeyPluginsFolder, filepath.Dir(s.Dir())},
		{KeyBackupPlugins, []string{}},
	}

	changed := false
	for _, seed := range seeds {
		if s.HasSection(seed.key) {
			continue
		}
		if err := s.Set(seed.key, seed.value); err != nil {
			return false, err
		}
		plog.Info("Seeded configuration value", "key", seed.key, "value", seed.value)
		changed = true
	}
	return changed, nil
}

// Config decodes the effective values into a typed Config.
func (s *Store) Config() (Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := NewDefault()
	if err := s.merged.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.ConfigPath = s.path
	return cfg, nil
}

// rebuild recomputes the merged view. Callers must hold the write lock or own s exclusively.
func (s *Store) rebuild() error {
	merged := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := merged.Load(structs.Provider(NewDefault(), "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: The document
	if err := merged.Merge(s.doc); err != nil {
		return fmt.Errorf("failed to merge config document: %w", err)
	}

	// Layer 3: Load environment variables (highest priority)
	if err := merged.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(merged); err != nil {
		return fmt.Errorf("failed to process slice fields: %w", err)
	}

	s.merged = merged
	return nil
}

// envTransformFunc maps environment variable names to configuration keys.
// Unknown variables map to the empty string and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
