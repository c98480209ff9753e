package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the config file and invokes onChange with each freshly
// loaded configuration. Editors replace files with rename/create, so the
// parent directory is watched rather than the file itself. Events are
// debounced; a file that fails to load is logged and skipped, keeping
// the last good config in effect.
//
// Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		cfg, err := LoadFile(path)
		if err != nil {
			slog.Warn("reload config", "path", path, "error", err)
			return
		}
		slog.Info("config reloaded", "path", path)
		onChange(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher", "error", err)
		}
	}
}
