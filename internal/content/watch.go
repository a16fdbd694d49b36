package content

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever the content file at path is written or
// recreated. The directory is watched rather than the file so editors that
// save by rename keep working. onReload may be nil. Watch blocks until ctx is
// done.
func (s *Store) Watch(ctx context.Context, path string, onReload func(error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create content watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("unable to watch %s: %w", dir, err)
	}
	log.Debug("watching content", "path", path)

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			dialogues, err := readFile(path)
			if err == nil {
				s.Replace(dialogues)
				log.Info("content reloaded", "path", path, "dialogues", len(dialogues))
			} else {
				log.Warn("content reload failed", "path", path, "error", err)
			}
			if onReload != nil {
				onReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("content watcher error", "error", err)
		}
	}
}
