package docindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever shard files in the index directory
// change, until ctx is done. Bursts of events within the configured
// debounce window cause a single reload. A failed reload is logged and the
// previous store stays active.
func (s *Service) Watch(ctx context.Context) error {
	watcher, err := s.newWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	slog.Info("Watching search index for changes", "dir", s.settings.Dir)
	s.watchLoop(ctx, watcher)
	return nil
}

func (s *Service) newWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.settings.Dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", s.settings.Dir, err)
	}
	return watcher, nil
}

func (s *Service) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	debounce := s.settings.WatchDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isShardEvent(event) {
				continue
			}
			slog.Debug("Search shard changed", "file", event.Name, "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Watcher error", "error", err)

		case <-timer.C:
			if err := s.Reload(ctx); err != nil {
				slog.Error("Reload failed, keeping previous index", "error", err)
				continue
			}
			slog.Info("Search index reloaded", "generation", s.Status().Generation)
		}
	}
}

func isShardEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	_, ok := classifyShard(event.Name)
	return ok
}
