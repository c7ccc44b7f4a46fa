package params

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-imports a parameter file whenever it changes on disk, letting
// an operator tune a running analysis session without restarting the host.
type Watcher struct {
	registry *Registry
	path     string
	opts     ImportOptions
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. Watch must be called to start it.
func NewWatcher(r *Registry, path string, opts ImportOptions) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{registry: r, path: path, opts: opts, watcher: fw}, nil
}

// Watch applies the file once, then re-applies it on every write until ctx
// is cancelled. The directory is watched rather than the file so that
// editors that replace-on-save keep triggering events.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	if err := w.registry.ImportFromFile(w.path, w.opts); err != nil {
		w.registry.logger.Warn("initial parameter file import failed", "path", w.path, "error", err)
	}
	go func() {
		defer func() { _ = w.watcher.Close() }()
		for {
			select {
			case e, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if e.Name != w.path {
					continue
				}
				if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := w.registry.ImportFromFile(w.path, w.opts); err != nil {
					w.registry.logger.Warn("parameter file reload failed", "path", w.path, "error", err)
				} else {
					w.registry.logger.Info("parameter file reloaded", "path", w.path)
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.registry.logger.Warn("parameter file watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
