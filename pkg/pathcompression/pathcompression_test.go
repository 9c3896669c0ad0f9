package pathcompression_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/pathcompression"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

func TestMain(m *testing.M) {
	plog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// createTestUnitDir creates a data directory with files, a nested file and an empty directory.
func createTestUnitDir(t *testing.T, baseDir string) string {
	t.Helper()
	src := filepath.Join(baseDir, "MyUnit")
	for _, dir := range []string{src, filepath.Join(src, "sub"), filepath.Join(src, "sub", "empty")} {
		if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
			t.Fatalf("failed to create dir %s: %v", dir, err)
		}
	}
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "bravo")
	return src
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), util.UserWritableFilePerms); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func archiveEntries(t *testing.T, archivePath string) map[string]*zip.File {
	t.Helper()
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	entries := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		entries[f.Name] = f
	}
	return entries
}

func readEntry(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("failed to open entry %s: %v", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read entry %s: %v", f.Name, err)
	}
	return string(data)
}

func TestCompress(t *testing.T) {
	t.Run("Happy Path - entries and contents", func(t *testing.T) {
		// Arrange
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		archivePath := filepath.Join(tempDir, "MyUnit.zip")
		c := pathcompression.NewPathCompressor(64)

		// Act
		if err := c.Compress(context.Background(), src, archivePath, nil); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		// Assert
		entries := archiveEntries(t, archivePath)
		var names []string
		for name := range entries {
			names = append(names, name)
		}
		sort.Strings(names)
		expected := []string{"a.txt", "sub/", "sub/b.txt", "sub/empty/"}
		if strings.Join(names, ",") != strings.Join(expected, ",") {
			t.Fatalf("expected entries %v, got %v", expected, names)
		}

		for _, dir := range []string{"sub/", "sub/empty/"} {
			if entries[dir].UncompressedSize64 != 0 {
				t.Errorf("expected directory entry %s to be empty, got %d bytes", dir, entries[dir].UncompressedSize64)
			}
		}
		if got := readEntry(t, entries["a.txt"]); got != "alpha" {
			t.Errorf("expected a.txt content 'alpha', got %q", got)
		}
		if got := readEntry(t, entries["sub/b.txt"]); got != "bravo" {
			t.Errorf("expected sub/b.txt content 'bravo', got %q", got)
		}
	})

	t.Run("Happy Path - no temp file left behind", func(t *testing.T) {
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		destDir := filepath.Join(tempDir, "dest")
		if err := os.Mkdir(destDir, util.UserWritableDirPerms); err != nil {
			t.Fatal(err)
		}
		c := pathcompression.NewPathCompressor(0)

		if err := c.Compress(context.Background(), src, filepath.Join(destDir, "MyUnit.zip"), nil); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		items, err := os.ReadDir(destDir)
		if err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].Name() != "MyUnit.zip" {
			t.Errorf("expected only MyUnit.zip in destination, got %d entries", len(items))
		}
	})

	t.Run("Large file is streamed through a small buffer", func(t *testing.T) {
		tempDir := t.TempDir()
		src := filepath.Join(tempDir, "Big")
		if err := os.Mkdir(src, util.UserWritableDirPerms); err != nil {
			t.Fatal(err)
		}
		payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
		if err := os.WriteFile(filepath.Join(src, "big.bin"), payload, util.UserWritableFilePerms); err != nil {
			t.Fatal(err)
		}
		archivePath := filepath.Join(tempDir, "Big.zip")
		counters := &metrics.Counters{}
		c := pathcompression.NewPathCompressor(1)

		if err := c.Compress(context.Background(), src, archivePath, counters); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		entries := archiveEntries(t, archivePath)
		if got := readEntry(t, entries["big.bin"]); got != string(payload) {
			t.Errorf("big.bin content mismatch: got %d bytes, want %d", len(got), len(payload))
		}
		info, err := os.Stat(archivePath)
		if err != nil {
			t.Fatal(err)
		}
		if counters.BytesWritten.Load() != info.Size() {
			t.Errorf("expected %d bytes written, got %d", info.Size(), counters.BytesWritten.Load())
		}
	})

	t.Run("Empty source produces empty archive", func(t *testing.T) {
		tempDir := t.TempDir()
		src := filepath.Join(tempDir, "Empty")
		if err := os.Mkdir(src, util.UserWritableDirPerms); err != nil {
			t.Fatal(err)
		}
		archivePath := filepath.Join(tempDir, "Empty.zip")
		c := pathcompression.NewPathCompressor(64)

		if err := c.Compress(context.Background(), src, archivePath, nil); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		if entries := archiveEntries(t, archivePath); len(entries) != 0 {
			t.Errorf("expected no entries, got %d", len(entries))
		}
	})

	t.Run("Error - missing source leaves no archive", func(t *testing.T) {
		tempDir := t.TempDir()
		archivePath := filepath.Join(tempDir, "Missing.zip")
		c := pathcompression.NewPathCompressor(64)

		err := c.Compress(context.Background(), filepath.Join(tempDir, "does-not-exist"), archivePath, nil)
		if err == nil {
			t.Fatal("expected an error for a missing source directory")
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected error wrapping os.ErrNotExist, got %v", err)
		}
		if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
			t.Errorf("expected no archive at %s", archivePath)
		}
	})

	t.Run("Error - missing destination directory", func(t *testing.T) {
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		archivePath := filepath.Join(tempDir, "nope", "MyUnit.zip")
		c := pathcompression.NewPathCompressor(64)

		if err := c.Compress(context.Background(), src, archivePath, nil); err == nil {
			t.Fatal("expected an error for a missing destination directory")
		}
	})

	t.Run("Error - cancelled context leaves no archive", func(t *testing.T) {
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		archivePath := filepath.Join(tempDir, "MyUnit.zip")
		c := pathcompression.NewPathCompressor(64)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := c.Compress(ctx, src, archivePath, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
			t.Errorf("expected no archive at %s", archivePath)
		}
		matches, _ := filepath.Glob(filepath.Join(tempDir, "*.tmp"))
		if len(matches) != 0 {
			t.Errorf("expected temp files to be removed, found %v", matches)
		}
	})

	t.Run("Archive inside source is not archived into itself", func(t *testing.T) {
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		archivePath := filepath.Join(src, "self.zip")
		c := pathcompression.NewPathCompressor(64)

		if err := c.Compress(context.Background(), src, archivePath, nil); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}
		for name := range archiveEntries(t, archivePath) {
			if strings.HasSuffix(name, ".tmp") || name == "self.zip" {
				t.Errorf("unexpected entry %s in archive", name)
			}
		}
	})
}

func TestCompressSymlink(t *testing.T) {
	tempDir := t.TempDir()
	src := createTestUnitDir(t, tempDir)
	err := os.Symlink("a.txt", filepath.Join(src, "link.txt"))
	if err != nil {
		if runtime.GOOS == "windows" {
			t.Skip("Skipping test: creating symlinks on Windows requires administrator privileges or Developer Mode.")
		}
		t.Fatalf("failed to create symlink: %v", err)
	}
	archivePath := filepath.Join(tempDir, "MyUnit.zip")
	c := pathcompression.NewPathCompressor(64)

	if err := c.Compress(context.Background(), src, archivePath, nil); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}

	target := filepath.Join(tempDir, "restored")
	if err := c.Extract(context.Background(), archivePath, target); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	link, err := os.Readlink(filepath.Join(target, "link.txt"))
	if err != nil {
		t.Fatalf("expected link.txt to be restored as a symlink: %v", err)
	}
	if link != "a.txt" {
		t.Errorf("expected link target a.txt, got %s", link)
	}
}

func TestExtract(t *testing.T) {
	t.Run("Round trip", func(t *testing.T) {
		tempDir := t.TempDir()
		src := createTestUnitDir(t, tempDir)
		archivePath := filepath.Join(tempDir, "MyUnit.zip")
		c := pathcompression.NewPathCompressor(64)
		if err := c.Compress(context.Background(), src, archivePath, nil); err != nil {
			t.Fatalf("Compress failed: %v", err)
		}

		target := filepath.Join(tempDir, "restored")
		if err := c.Extract(context.Background(), archivePath, target); err != nil {
			t.Fatalf("Extract failed: %v", err)
		}

		for rel, want := range map[string]string{"a.txt": "alpha", "sub/b.txt": "bravo"} {
			got, err := os.ReadFile(filepath.Join(target, util.DenormalizePath(rel)))
			if err != nil {
				t.Errorf("failed to read restored %s: %v", rel, err)
				continue
			}
			if string(got) != want {
				t.Errorf("restored %s: expected %q, got %q", rel, want, got)
			}
		}
		info, err := os.Stat(filepath.Join(target, "sub", "empty"))
		if err != nil || !info.IsDir() {
			t.Errorf("expected empty directory sub/empty to be restored")
		}
	})

	t.Run("Error - zip slip is rejected", func(t *testing.T) {
		tempDir := t.TempDir()
		archivePath := filepath.Join(tempDir, "evil.zip")
		f, err := os.Create(archivePath)
		if err != nil {
			t.Fatal(err)
		}
		zw := zip.NewWriter(f)
		w, err := zw.Create("../evil.txt")
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("pwned"))
		zw.Close()
		f.Close()

		target := filepath.Join(tempDir, "restored")
		c := pathcompression.NewPathCompressor(64)
		if err := c.Extract(context.Background(), archivePath, target); err == nil {
			t.Fatal("expected an error for an entry escaping the target directory")
		}
		if _, err := os.Stat(filepath.Join(tempDir, "evil.txt")); !os.IsNotExist(err) {
			t.Error("expected evil.txt not to be written outside the target")
		}
	})

	t.Run("Error - missing archive", func(t *testing.T) {
		tempDir := t.TempDir()
		c := pathcompression.NewPathCompressor(64)
		if err := c.Extract(context.Background(), filepath.Join(tempDir, "none.zip"), filepath.Join(tempDir, "out")); err == nil {
			t.Fatal("expected an error for a missing archive")
		}
	})
}
