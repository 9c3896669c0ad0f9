package pathcompression

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/metrics"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
	"github.com/paulschiretz/pgl-plugin-backup/pkg/util"
)

type zipCompressor struct {
	*PathCompressor

	// ctx is the cancellable context for the entire write.
	ctx context.Context

	src     string
	tmpPath string
	zw      *zip.Writer
	metrics metrics.Metrics
}

func (c *zipCompressor) compress(absArchivePath string) (retErr error) {
	info, err := os.Stat(c.src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory %s: %w", c.src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %s is not a directory", c.src)
	}

	// 1. Create Temp File
	// We create it in the same directory as the target to ensure atomic rename.
	trgF, err := os.CreateTemp(filepath.Dir(absArchivePath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	c.tmpPath = trgF.Name()

	// Ensure cleanup on error
	defer func() {
		if retErr != nil {
			trgF.Close()
			os.Remove(c.tmpPath)
		}
	}()

	// 2. Write Archive Content
	if err := c.writeArchive(trgF); err != nil {
		return err
	}

	// 3. Close explicitly to flush to disk before rename
	if err := trgF.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 4. Atomic Rename
	if err := os.Rename(c.tmpPath, absArchivePath); err != nil {
		return fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}
	return nil
}

func (c *zipCompressor) writeArchive(trgF *os.File) (retErr error) {
	mw := &compressMetricWriter{w: trgF, metrics: c.metrics}
	bufWriter := bufio.NewWriterSize(mw, c.ioBufferSize)

	c.zw = zip.NewWriter(bufWriter)
	c.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		fw := c.flatePool.Get()
		fw.Reset(out)
		return &pooledFlateWriter{Writer: fw, pool: c.flatePool}, nil
	})

	defer func() {
		if err := c.zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
		}
		if err := bufWriter.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	bufPtr := c.ioBufferPool.Get()
	defer c.ioBufferPool.Put(bufPtr)
	buf := (*bufPtr)[:cap(*bufPtr)]

	return c.walk(buf)
}

// walk visits the source tree breadth-first using an explicit queue. Directories are
// written as entries before their children, so extraction never sees a file whose
// parent has not been announced.
func (c *zipCompressor) walk(buf []byte) error {
	queue := []string{c.src}
	for len(queue) > 0 {
		select {
		case <-c.ctx.Done():
			return c.ctx.Err()
		default:
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read directory %s: %w", dir, err)
		}

		for _, d := range entries {
			absSrcPath := filepath.Join(dir, d.Name())
			if absSrcPath == c.tmpPath {
				continue
			}

			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("failed to get file info for %s: %w", absSrcPath, err)
			}

			relPathKey, err := filepath.Rel(c.src, absSrcPath)
			if err != nil {
				return fmt.Errorf("failed to get relative path for %s: %w", absSrcPath, err)
			}
			relPathKey = util.NormalizePath(relPathKey)

			switch {
			case info.IsDir():
				if err := c.writeDir(relPathKey, info); err != nil {
					return err
				}
				queue = append(queue, absSrcPath)
			case info.Mode()&os.ModeSymlink != 0:
				if err := c.writeSymlink(absSrcPath, relPathKey, info); err != nil {
					return err
				}
			case info.Mode().IsRegular():
				if err := c.writeFile(absSrcPath, relPathKey, info, buf); err != nil {
					return err
				}
			default:
				plog.Debug("Skipping special file", "path", absSrcPath, "mode", info.Mode().String())
			}
		}
	}
	return nil
}

func (c *zipCompressor) writeDir(relPathKey string, info os.FileInfo) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey + "/"
	header.Method = zip.Store
	header.UncompressedSize64 = 0

	plog.Notice("ADD", "source", c.src, "dir", header.Name)
	if _, err := c.zw.CreateHeader(header); err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", header.Name, err)
	}
	return nil
}

func (c *zipCompressor) writeSymlink(absSrcPath, relPathKey string, info os.FileInfo) error {
	linkTarget, err := os.Readlink(absSrcPath)
	if err != nil {
		return fmt.Errorf("failed to read link %s: %w", absSrcPath, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey
	header.Method = zip.Store // Symlinks are stored not compressed!

	plog.Notice("ADD", "source", c.src, "link", relPathKey)
	w, err := c.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", relPathKey, err)
	}
	_, err = w.Write([]byte(linkTarget))
	return err
}

func (c *zipCompressor) writeFile(absSrcPath, relPathKey string, info os.FileInfo, buf []byte) error {
	// Security: TOCTOU check
	fileToZip, err := secureFileOpen(absSrcPath, info)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", absSrcPath, err)
	}
	defer fileToZip.Close()

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header for %s: %w", relPathKey, err)
	}
	header.Name = relPathKey
	header.Method = zip.Deflate

	plog.Notice("ADD", "source", c.src, "file", relPathKey)
	w, err := c.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header for %s: %w", relPathKey, err)
	}

	if _, err := io.CopyBuffer(w, fileToZip, buf); err != nil {
		return fmt.Errorf("failed to copy %s into archive: %w", relPathKey, err)
	}
	return nil
}
