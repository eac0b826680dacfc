// Detects writes to the patient table made by other programs.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports external modifications of a single file.
//
// The parent directory is watched rather than the file itself because saves
// replace the file by renaming a temporary one over it.
type Watcher struct {
	path     string
	w        *fsnotify.Watcher
	external func() bool
	changed  chan struct{}
}

// WatchFile starts watching path until ctx is canceled or Close is called.
//
// external is called on every event touching path and decides whether the
// event came from another program. Notifications are coalesced: at most one
// is pending on Changed at any time.
func WatchFile(ctx context.Context, path string, external func() bool) (*Watcher, error) {
	path = filepath.Clean(path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	wa := &Watcher{path: path, w: w, external: external, changed: make(chan struct{}, 1)}
	go wa.run(ctx)
	return wa, nil
}

// Changed returns the notification channel. It is closed when the watcher
// stops.
func (wa *Watcher) Changed() <-chan struct{} {
	return wa.changed
}

// Close stops the watcher.
func (wa *Watcher) Close() error {
	return wa.w.Close()
}

func (wa *Watcher) run(ctx context.Context) {
	defer close(wa.changed)
	defer func() { _ = wa.w.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-wa.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != wa.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			if !wa.external() {
				continue
			}
			slog.WarnContext(ctx, "Patient file modified by another program", "path", wa.path, "op", event.Op.String())
			select {
			case wa.changed <- struct{}{}:
			default:
			}
		case err, ok := <-wa.w.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Error watching patient file", "err", err)
		}
	}
}
