package cmd_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-plugin-backup/cmd"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/config"
)

func TestRunInit(t *testing.T) {
	t.Run("Writes A Complete Config", func(t *testing.T) {
		base := t.TempDir()
		configPath := filepath.Join(base, "PGL-Plugin-Backup", "config.yml")
		backupDir := filepath.Join(base, "archive")

		err := cmd.RunInit(context.Background(), map[string]any{
			"config":      configPath,
			"plugins":     []string{"Essentials", "WorldGuard"},
			"backup-root": backupDir,
		})
		if err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}

		store, err := config.OpenStore(configPath)
		if err != nil {
			t.Fatalf("failed to open written config: %v", err)
		}
		if got := store.GetStringList(config.KeyBackupPlugins); strings.Join(got, ",") != "Essentials,WorldGuard" {
			t.Errorf("unexpected backupPlugins: %v", got)
		}
		if got := store.GetString(config.KeyBackupFolder); got != backupDir {
			t.Errorf("expected backupFolder %q, got %q", backupDir, got)
		}
		if got := store.GetString(config.KeyPluginsFolder); got != base {
			t.Errorf("expected pluginsFolder to default to %q, got %q", base, got)
		}
		for _, key := range []string{config.KeySchedule, config.KeyLogLevel, config.KeyBufferSizeKB, config.KeyMetricsAddress} {
			if !store.HasSection(key) {
				t.Errorf("expected %s to be written to the file", key)
			}
		}
		if info, err := os.Stat(backupDir); err != nil || !info.IsDir() {
			t.Errorf("expected backup folder to be created: %v", err)
		}
	})

	t.Run("Force Updates Existing Config", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yml")
		existing := "schedule: '@daily'\nbackupPlugins:\n  - Old\n"
		if err := os.WriteFile(configPath, []byte(existing), 0644); err != nil {
			t.Fatal(err)
		}

		err := cmd.RunInit(context.Background(), map[string]any{
			"config":  configPath,
			"plugins": []string{"New"},
			"force":   true,
		})
		if err != nil {
			t.Fatalf("RunInit failed: %v", err)
		}

		store, err := config.OpenStore(configPath)
		if err != nil {
			t.Fatal(err)
		}
		if got := store.GetStringList(config.KeyBackupPlugins); strings.Join(got, ",") != "New" {
			t.Errorf("expected plugins to be replaced, got %v", got)
		}
		if got := store.GetString(config.KeySchedule); got != "@daily" {
			t.Errorf("expected existing schedule to be kept, got %q", got)
		}
	})

	t.Run("Invalid Values Are Not Written", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yml")

		err := cmd.RunInit(context.Background(), map[string]any{
			"config":  configPath,
			"plugins": []string{"a/b"},
		})
		if err == nil {
			t.Fatal("expected an error for an invalid plugin name")
		}
		if _, err := os.Stat(configPath); !os.IsNotExist(err) {
			t.Errorf("expected no config file to be written, stat err: %v", err)
		}
	})
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := cmd.RunVersion(&buf); err != nil {
		t.Fatalf("RunVersion failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), buildinfo.Name+" version "+buildinfo.Version) {
		t.Errorf("unexpected version output: %q", buf.String())
	}
}

func TestPromptForConfirmation(t *testing.T) {
	// Helper to mock stdin/stdout and run the function
	mockPrompt := func(input string, prompt string, defaultYes bool) (bool, string) {
		rIn, wIn, _ := os.Pipe()
		rOut, wOut, _ := os.Pipe()

		origStdin := os.Stdin
		origStdout := os.Stdout
		defer func() {
			os.Stdin = origStdin
			os.Stdout = origStdout
		}()

		os.Stdin = rIn
		os.Stdout = wOut

		go func() {
			_, _ = wIn.WriteString(input)
			_ = wIn.Close()
		}()

		result := cmd.PromptForConfirmation(prompt, defaultYes)

		_ = wOut.Close()
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)

		return result, buf.String()
	}

	tests := []struct {
		name       string
		input      string
		defaultYes bool
		want       bool
		wantPrompt string
	}{
		{"Explicit Yes", "y\n", false, true, "Update? [y/N]: "},
		{"Explicit No", "n\n", true, false, "Update? [Y/n]: "},
		{"Default Yes (Empty)", "\n", true, true, "Update? [Y/n]: "},
		{"Default No (Empty)", "\n", false, false, "Update? [y/N]: "},
		{"Case Insensitive", "YES\n", false, true, "Update? [y/N]: "},
		{"Anything Else Is No", "maybe\n", true, false, "Update? [Y/n]: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, output := mockPrompt(tt.input, "Update?", tt.defaultYes)
			if got != tt.want {
				t.Errorf("PromptForConfirmation() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(output, tt.wantPrompt) {
				t.Errorf("Output = %q, want substring %q", output, tt.wantPrompt)
			}
		})
	}
}
