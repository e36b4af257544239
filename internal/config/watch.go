package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and calls onChange with the newly
// loaded Config each time the file changes on disk. It blocks until ctx is
// cancelled.
//
// A reload that fails to parse or validate is logged and discarded; the
// previous config stays active and onChange is not called. The intended use
// is live threshold tuning: the evaluator swaps in the new threshold sets
// between cycles.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors commonly save via rename, which surfaces as Create
			// (new inode) or Remove followed by Create. Reload on anything
			// that leaves new content at the path.
			switch {
			case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				// The watch follows the inode; re-arm it on the path and
				// wait for the replacement file to appear.
				_ = watcher.Add(path)
				continue
			default:
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: reloaded", "path", path,
				"thresholds", len(cfg.Monitor.Thresholds))
			onChange(cfg)

			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
