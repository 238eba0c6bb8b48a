package jsonfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/mirrorsync/internal/logger"
)

// DebounceInterval coalesces a burst of file events into one reload.
const DebounceInterval = 200 * time.Millisecond

// Watch reloads the store whenever the source file is changed by another
// process and calls onChange after each effective reload. The store's own
// writes do not trigger onChange. Watching stops when ctx is done.
//
// The parent directory is watched rather than the file, so replacing the
// file by rename is noticed.
func (s *SourceStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		if cerr := watcher.Close(); cerr != nil {
			logger.Warn("Failed to close file watcher: %v", cerr)
		}
		return fmt.Errorf("watch %q: %w", dir, err)
	}

	go s.watchLoop(ctx, watcher, onChange)
	return nil
}

func (s *SourceStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, onChange func()) {
	defer watcher.Close()

	base := filepath.Base(s.path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(DebounceInterval)
			} else {
				timer.Reset(DebounceInterval)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Source file watcher: %v", err)

		case <-fire:
			fire = nil
			changed, err := s.reload()
			if err != nil {
				logger.Warn("Ignoring unreadable source file %s: %v", s.path, err)
				continue
			}
			if changed {
				logger.Info("Reloaded sources from %s", s.path)
				if onChange != nil {
					onChange()
				}
			}
		}
	}
}
