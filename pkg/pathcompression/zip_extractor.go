package pathcompression

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

type zipExtractor struct {
	*PathCompressor

	ctx context.Context
}

func (e *zipExtractor) extract(absArchivePath, absTargetDir string) error {
	plog.Notice("EXTRACT", "source", absArchivePath, "target", absTargetDir)

	r, err := zip.OpenReader(absArchivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip file: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(absTargetDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", absTargetDir, err)
	}

	bufPtr := e.ioBufferPool.Get()
	defer e.ioBufferPool.Put(bufPtr)
	buf := (*bufPtr)[:cap(*bufPtr)]

	cleanTarget := filepath.Clean(absTargetDir)
	for _, f := range r.File {
		select {
		case <-e.ctx.Done():
			return e.ctx.Err()
		default:
		}

		// Security: Zip Slip protection:
		// Ensure that the target path is within the extraction directory.
		absTarget := filepath.Join(cleanTarget, util.DenormalizePath(f.Name))
		if !strings.HasPrefix(absTarget, cleanTarget+string(os.PathSeparator)) {
			return fmt.Errorf("illegal file path in archive: %s", f.Name)
		}

		if err := e.extractEntry(f, absTarget, buf); err != nil {
			return fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}
	return nil
}

func (e *zipExtractor) extractEntry(f *zip.File, absTarget string, buf []byte) error {
	// Security: Strip SUID and SGID bits to prevent privilege escalation.
	mode := f.Mode() &^ (os.ModeSetuid | os.ModeSetgid)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(absTarget, util.WithUserWritePermission(mode.Perm()))
	}

	if err := os.MkdirAll(filepath.Dir(absTarget), util.UserWritableDirPerms); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	// Security: Remove the file if it exists to prevent following a symlink
	// created by a previous entry (Symlink Interception).
	_ = os.Remove(absTarget)

	if mode&os.ModeSymlink != 0 {
		linkTarget, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return os.Symlink(string(linkTarget), absTarget)
	}

	outFile, err := os.OpenFile(absTarget, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, util.WithUserWritePermission(mode.Perm()))
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(outFile, rc, buf); err != nil {
		outFile.Close()
		return err
	}
	if err := outFile.Close(); err != nil {
		return err
	}

	return os.Chtimes(absTarget, f.Modified, f.Modified)
}
