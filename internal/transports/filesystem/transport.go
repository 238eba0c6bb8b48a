// Package filesystem mirrors a directory on the local machine.
package filesystem

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
	"github.com/custodia-labs/mirrorsync/internal/core/ports/driven"
	"github.com/custodia-labs/mirrorsync/internal/transports/transfer"
)

// Ensure Transport implements the interface.
var _ driven.Transport = (*Transport)(nil)

// Transport copies files between two paths of the same filesystem.
type Transport struct {
	fs afero.Fs
}

// New creates a local transport. A nil fs uses the OS filesystem.
func New(fs afero.Fs) *Transport {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Transport{fs: fs}
}

// Open checks that the source directory exists.
func (t *Transport) Open(_ context.Context, source domain.Source) (driven.Session, error) {
	root := filepath.Clean(source.Endpoint)
	info, err := t.fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source directory does not exist: %s", root)
		}
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", root)
	}
	limiter, err := transfer.LimiterFor(source)
	if err != nil {
		return nil, err
	}
	return &session{fs: t.fs, root: root, limiter: limiter}, nil
}

type session struct {
	fs      afero.Fs
	root    string
	limiter *rate.Limiter
}

// List walks the source tree. Only regular files are returned.
func (s *session) List(ctx context.Context) ([]domain.RemoteEntry, error) {
	var entries []domain.RemoteEntry
	err := afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, domain.RemoteEntry{
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Location: p,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return entries, nil
}

// NeedsSync compares size and modification time.
func (s *session) NeedsSync(localPath string, entry domain.RemoteEntry) bool {
	return transfer.NeedsSyncBySizeAndTime(s.fs, localPath, entry.Size, entry.ModTime)
}

// Fetch copies the file, keeping its mode and timestamps.
// Any failure other than a pause or stop aborts the task.
func (s *session) Fetch(ctx context.Context, entry domain.RemoteEntry, localPath string, progress driven.Progress) error {
	src, err := s.fs.Open(entry.Location)
	if err != nil {
		return driven.Abort(fmt.Errorf("open %s: %w", entry.Location, err))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return driven.Abort(fmt.Errorf("stat %s: %w", entry.Location, err))
	}

	dst, offset, err := transfer.OpenPartial(s.fs, localPath)
	if err != nil {
		return driven.Abort(err)
	}
	if offset > info.Size() {
		if err := transfer.Truncate(dst); err != nil {
			_ = dst.Close()
			return driven.Abort(err)
		}
		offset = 0
	}
	if offset > 0 {
		if _, err := src.Seek(offset, io.SeekStart); err != nil {
			_ = dst.Close()
			return driven.Abort(fmt.Errorf("seek %s: %w", entry.Location, err))
		}
		progress.Transferred(offset)
	}

	if _, err := transfer.Copy(ctx, dst, src, progress, s.limiter, offset, info.Size()); err != nil {
		_ = dst.Close()
		if domain.IsTaskInterrupt(err) {
			return err
		}
		return driven.Abort(fmt.Errorf("copy %s: %w", entry.Path, err))
	}
	if err := transfer.Finalize(s.fs, dst, localPath); err != nil {
		return driven.Abort(err)
	}
	if err := s.fs.Chmod(localPath, info.Mode().Perm()); err != nil {
		return driven.Abort(fmt.Errorf("chmod %s: %w", localPath, err))
	}
	if err := s.fs.Chtimes(localPath, info.ModTime(), info.ModTime()); err != nil {
		return driven.Abort(fmt.Errorf("chtimes %s: %w", localPath, err))
	}
	return nil
}

func (s *session) Close() error {
	return nil
}
