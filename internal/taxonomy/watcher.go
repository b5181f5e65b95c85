package taxonomy

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"ome/internal/logging"
)

// Reloader is anything with the atomic-swap Reload discipline. Both the
// Taxonomy and the rule store satisfy it.
type Reloader interface {
	Reload() error
}

// Watcher watches YAML files and triggers reloads, debounced so editors that
// write in multiple syscalls trigger a single reload. Reload failures are
// logged and swallowed: the previous snapshot stays active.
type Watcher struct {
	fsw      *fsnotify.Watcher
	targets  map[string]Reloader // cleaned absolute path -> reloader
	debounce time.Duration
}

// NewWatcher creates a watcher over the given path->reloader mapping.
func NewWatcher(targets map[string]Reloader) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:      fsw,
		targets:  make(map[string]Reloader, len(targets)),
		debounce: 250 * time.Millisecond,
	}
	for path, r := range targets {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		w.targets[filepath.Clean(abs)] = r
		// Watch the directory: editors replace files, which drops the
		// watch on the file itself.
		if err := fsw.Add(filepath.Dir(abs)); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	pending := make(map[string]Reloader)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				abs = ev.Name
			}
			r, watched := w.targets[filepath.Clean(abs)]
			if !watched {
				continue
			}
			pending[abs] = r
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			for path, r := range pending {
				if err := r.Reload(); err != nil {
					logging.TaxonomyWarn("hot reload of %s failed: %v", path, err)
				} else {
					logging.Taxonomy("hot reload of %s succeeded", path)
				}
			}
			pending = make(map[string]Reloader)
			fire = nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.TaxonomyWarn("watcher error: %v", err)
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
