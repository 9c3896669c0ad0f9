package cmd_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulschiretz/pgl-plugin-backup/cmd"
)

func TestRunRestore(t *testing.T) {
	backedUp := func(t *testing.T) workspace {
		t.Helper()
		ws := newWorkspace(t)
		if err := cmd.RunBackup(context.Background(), ws.flags(nil)); err != nil {
			t.Fatalf("RunBackup failed: %v", err)
		}
		return ws
	}

	t.Run("Restores Today's Archive", func(t *testing.T) {
		ws := backedUp(t)
		target := filepath.Join(t.TempDir(), "restored")

		err := cmd.RunRestore(context.Background(), ws.flags(map[string]any{
			"unit":   "Foo",
			"target": target,
		}))
		if err != nil {
			t.Fatalf("RunRestore failed: %v", err)
		}

		got, err := os.ReadFile(filepath.Join(target, "data", "users.json"))
		if err != nil {
			t.Fatalf("expected restored file: %v", err)
		}
		if string(got) != `{"users":[]}` {
			t.Errorf("unexpected restored content: %q", got)
		}
	})

	t.Run("Zero Padded Date Finds Folder", func(t *testing.T) {
		ws := backedUp(t)
		now := time.Now()
		target := filepath.Join(t.TempDir(), "restored")

		err := cmd.RunRestore(context.Background(), ws.flags(map[string]any{
			"unit":   "Bar",
			"target": target,
			"date":   fmt.Sprintf("%02d-%02d-%04d", int(now.Month()), now.Day(), now.Year()),
		}))
		if err != nil {
			t.Fatalf("RunRestore failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(target, "state.txt")); err != nil {
			t.Errorf("expected restored file: %v", err)
		}
	})

	t.Run("Explicit Date Without Archive", func(t *testing.T) {
		ws := backedUp(t)
		err := cmd.RunRestore(context.Background(), ws.flags(map[string]any{
			"unit":   "Foo",
			"target": filepath.Join(t.TempDir(), "restored"),
			"date":   "1-3-2000",
		}))
		if err == nil {
			t.Fatal("expected an error for a folder without the archive")
		}
	})

	tests := []struct {
		name  string
		extra func(t *testing.T) map[string]any
	}{
		{"Missing Unit Flag", func(t *testing.T) map[string]any {
			return map[string]any{"target": t.TempDir()}
		}},
		{"Missing Target Flag", func(t *testing.T) map[string]any {
			return map[string]any{"unit": "Foo"}
		}},
		{"Unit Name With Separator", func(t *testing.T) map[string]any {
			return map[string]any{"unit": "../Foo", "target": t.TempDir()}
		}},
		{"Malformed Date", func(t *testing.T) map[string]any {
			return map[string]any{"unit": "Foo", "target": t.TempDir(), "date": "2024-01-02"}
		}},
		{"Unit Never Backed Up", func(t *testing.T) map[string]any {
			return map[string]any{"unit": "Missing", "target": t.TempDir()}
		}},
		{"Target Not Empty", func(t *testing.T) map[string]any {
			target := t.TempDir()
			if err := os.WriteFile(filepath.Join(target, "keep.txt"), []byte("x"), 0644); err != nil {
				t.Fatal(err)
			}
			return map[string]any{"unit": "Foo", "target": target}
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ws := backedUp(t)
			if err := cmd.RunRestore(context.Background(), ws.flags(tc.extra(t))); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}
