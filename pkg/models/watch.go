package models

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog from path whenever the file is written or
// recreated, until ctx is done. The file is loaded once before watching
// starts. A reload that fails is logged and leaves the catalog unchanged.
func (c *Catalog) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	if err := c.LoadFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating catalog watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so the directory is watched rather
	// than the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching catalog dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadFile(path); err != nil {
				logger.Warn("model catalog reload failed", "path", path, "error", err)
				continue
			}
			logger.Info("model catalog reloaded", "path", path, "models", len(c.IDs()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("model catalog watcher error", "error", err)
		}
	}
}
