package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and invokes a callback with the
// validated result. Only knobs that are safe to apply live (the feed rate)
// should be consumed from the callback; everything else needs a restart.
type Watcher struct {
	Path     string
	Cooldown time.Duration // minimum spacing between reloads, default 1s
}

// Start blocks watching the file until ctx is done. Each write event
// re-loads the config; files that fail to parse or validate are skipped.
// Editors that replace the file (rename+create) are handled by watching the
// directory.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	if w.Cooldown <= 0 {
		w.Cooldown = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(w.Path)
	var lastReload time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// A save truncates before it writes; an empty file is a save in
			// progress, so wait for the event that carries the content.
			if fi, err := os.Stat(w.Path); err != nil || fi.Size() == 0 {
				continue
			}
			if time.Since(lastReload) < w.Cooldown {
				continue
			}
			lastReload = time.Now()

			cfg, err := LoadWithEnvOverrides(w.Path)
			if err != nil {
				continue
			}
			if onUpdate != nil {
				onUpdate(cfg)
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}
