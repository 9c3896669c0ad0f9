package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/config"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/preflight"
)

// RunInit handles the logic for the 'init' command. It creates the configuration file, or
// updates an existing one with the values given as flags. Keys that are still missing
// afterwards are filled with their defaults so the file lists every setting.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	configPath, err := configPathFromFlags(flagMap)
	if err != nil {
		return fmt.Errorf("config path invalid: %w", err)
	}

	// Check for force flag to bypass confirmation
	force := false
	if f, ok := flagMap["force"]; ok {
		force = f.(bool)
	}

	if !force {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Printf("WARNING: Configuration file already exists at %s.\n", configPath)
			fmt.Printf("Values given as flags will replace the ones in the file.\n")
			if !PromptForConfirmation("Are you sure you want to continue?", false) {
				plog.Info(buildinfo.Name + " init operation canceled.")
				return nil
			}
		}
	}

	store, err := config.OpenStore(configPath)
	if err != nil {
		return err
	}

	// Apply flag values to the document.
	updates := make(map[string]any)
	if v, ok := flagMap["plugins"]; ok {
		updates[config.KeyBackupPlugins] = v
	}
	for flagName, key := range map[string]string{
		"plugins-folder": config.KeyPluginsFolder,
		"backup-root":    config.KeyBackupFolder,
	} {
		if v, ok := flagMap[flagName].(string); ok {
			abs, err := absPath(v)
			if err != nil {
				return fmt.Errorf("-%s invalid: %w", flagName, err)
			}
			updates[key] = abs
		}
	}
	for key, value := range updates {
		if err := store.Set(key, value); err != nil {
			return err
		}
	}

	// Fill in everything the file does not define yet.
	if _, err := store.SeedDefaults(); err != nil {
		return err
	}
	defaults := config.NewDefault()
	for _, d := range []struct {
		key   string
		value any
	}{
		{config.KeySchedule, defaults.Schedule},
		{config.KeyLogLevel, defaults.LogLevel},
		{config.KeyBufferSizeKB, defaults.BufferSizeKB},
		{config.KeyMetricsEnabled, defaults.Metrics.Enabled},
		{config.KeyMetricsAddress, defaults.Metrics.Address},
	} {
		if store.HasSection(d.key) {
			continue
		}
		if err := store.Set(d.key, d.value); err != nil {
			return err
		}
	}

	// CRITICAL: Validate the config before writing it
	initConfig, err := store.Config()
	if err != nil {
		return err
	}
	if err := initConfig.Validate(); err != nil {
		return err
	}

	startTime := time.Now()

	// Ensure the backup folder exists (or can be created) and is writable.
	if err := preflight.CheckBackupRootWritable(initConfig.BackupFolder); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" configuration successfully initialized.", "config", store.Path(), "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
