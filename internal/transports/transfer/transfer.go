// Package transfer holds the chunked, resumable copy loop shared by transports.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
)

const (
	// ChunkSize is the unit between two checkpoints.
	ChunkSize = 32 * 1024

	// PartialSuffix marks an incomplete download next to its final path.
	PartialSuffix = ".tmp"

	// ModTimeTolerance absorbs timestamp precision lost between filesystems and protocols.
	ModTimeTolerance = time.Second
)

// PartialPath returns the staging path used while localPath is downloaded.
func PartialPath(localPath string) string {
	return localPath + PartialSuffix
}

// OpenPartial opens the staging file for localPath in append mode, creating
// parent directories as needed. It returns the number of bytes already present.
func OpenPartial(fs afero.Fs, localPath string) (afero.File, int64, error) {
	if err := fs.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return nil, 0, fmt.Errorf("create directory: %w", err)
	}
	f, err := fs.OpenFile(PartialPath(localPath), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("open partial file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat partial file: %w", err)
	}
	return f, info.Size(), nil
}

// Truncate discards the staging file's content, for servers that ignore the resume offset.
func Truncate(f afero.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.Seek(0, io.SeekStart)
	return err
}

// Finalize flushes and closes the staging file, then moves it to localPath.
func Finalize(fs afero.Fs, f afero.File, localPath string) error {
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync partial file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close partial file: %w", err)
	}
	if err := fs.Rename(PartialPath(localPath), localPath); err != nil {
		return fmt.Errorf("rename partial file: %w", err)
	}
	return nil
}

// Copy streams src into dst in ChunkSize pieces. offset is the number of
// bytes already present for the entry and total its full size (zero when
// unknown). Before every chunk the progress checkpoint is consulted; its
// error is returned unchanged so callers can tell a pause or stop from a failure.
func Copy(
	ctx context.Context,
	dst io.Writer,
	src io.Reader,
	progress driven.Progress,
	limiter *rate.Limiter,
	offset, total int64,
) (int64, error) {
	buf := make([]byte, ChunkSize)
	var written int64

	for {
		if err := progress.Checkpoint(); err != nil {
			return written, err
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if w > 0 {
				progress.Transferred(int64(w))
				progress.FileProgress(offset+written, total)
			}
			if err != nil {
				return written, fmt.Errorf("write: %w", err)
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, fmt.Errorf("read: %w", readErr)
		}
	}
}

// NeedsSyncBySize reports whether the file at localPath is missing or has a different size.
func NeedsSyncBySize(fs afero.Fs, localPath string, size int64) bool {
	info, err := fs.Stat(localPath)
	if err != nil {
		return true
	}
	return info.Size() != size
}

// NeedsSyncBySizeAndTime additionally treats modification times further apart
// than ModTimeTolerance as stale. A zero modTime disables the time check.
func NeedsSyncBySizeAndTime(fs afero.Fs, localPath string, size int64, modTime time.Time) bool {
	info, err := fs.Stat(localPath)
	if err != nil {
		return true
	}
	if info.Size() != size {
		return true
	}
	if modTime.IsZero() {
		return false
	}
	diff := info.ModTime().Sub(modTime)
	if diff < 0 {
		diff = -diff
	}
	return diff > ModTimeTolerance
}
