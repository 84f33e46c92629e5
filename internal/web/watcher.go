package web

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"procmux/internal/domain"
)

// Watcher refreshes the cached server state whenever a reference record
// appears or disappears under the data directory. Group sub-directories are
// added to the watch as they are created; fsnotify does not recurse.
type Watcher struct {
	state   *State
	dataDir string
	logger  domain.Logger
	fsw     *fsnotify.Watcher
}

func NewWatcher(state *State, dataDir string, logger domain.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create data dir watcher: %w", err)
	}
	if err := fsw.Add(dataDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch data dir %q: %w", dataDir, err)
	}
	w := &Watcher{state: state, dataDir: dataDir, logger: logger, fsw: fsw}
	if err := w.watchGroupDirs(); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// watchGroupDirs adds every existing group directory to the watch so record
// creations inside them are seen.
func (w *Watcher) watchGroupDirs() error {
	entries, err := os.ReadDir(w.dataDir)
	if err != nil {
		return fmt.Errorf("scan data dir %q: %w", w.dataDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := w.fsw.Add(filepath.Join(w.dataDir, e.Name())); err != nil {
			w.logger.Debug("could not watch group dir", "dir", e.Name(), "err", err)
		}
	}
	return nil
}

// Run blocks processing events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Debug("could not watch new group dir", "dir", event.Name, "err", err)
			}
		}
	}
	if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) ||
		event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		if err := w.state.Reload(); err != nil {
			w.logger.Debug("state refresh failed", "err", err)
		}
	}
}
