// Package watch delivers desktop-file change events from the search
// roots. Events carry the file's relative identity and the rank of the
// root it changed under, and are coalesced per identity within a short
// window so editor write bursts collapse into one catalog update.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chess10kp/dmenud/internal/logging"
)

// Kind classifies a change.
type Kind int

const (
	Modified Kind = iota
	Deleted
)

// Event is one coalesced desktop-file change.
type Event struct {
	ID   string
	Rank int
	Kind Kind
}

type eventKey struct {
	id   string
	rank int
}

const coalesceWindow = 100 * time.Millisecond

// Watcher wraps an fsnotify watcher over all search roots.
type Watcher struct {
	fsw    *fsnotify.Watcher
	roots  []string
	events chan Event
	done   chan struct{}
	logger *logging.Logger
}

// New starts watching every directory under the given ranked roots.
func New(roots []string, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:    fsw,
		roots:  roots,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	go w.run()
	return w, nil
}

// Events is the coalesced change stream.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// addTree registers the directory and all subdirectories with fsnotify,
// which does not recurse on its own.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

// resolve maps an absolute path to its root rank and relative identity.
func (w *Watcher) resolve(path string) (string, int, bool) {
	for rank, root := range w.roots {
		if strings.HasPrefix(path, root+string(os.PathSeparator)) {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return "", 0, false
			}
			return filepath.ToSlash(rel), rank, true
		}
	}
	return "", 0, false
}

func (w *Watcher) run() {
	pending := make(map[eventKey]Event)

	timer := time.NewTimer(coalesceWindow)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-w.done:
			return

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if fsEvent.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					// A new subdirectory: watch it and surface anything
					// already inside.
					if err := w.addTree(fsEvent.Name); err != nil {
						w.logger.Warnf("Failed to watch new directory %s: %v", fsEvent.Name, err)
					}
					w.scanNewDir(fsEvent.Name, pending)
					timer.Reset(coalesceWindow)
					continue
				}
			}

			if !strings.HasSuffix(filepath.Base(fsEvent.Name), ".desktop") {
				continue
			}
			id, rank, ok := w.resolve(fsEvent.Name)
			if !ok {
				continue
			}

			var kind Kind
			switch {
			case fsEvent.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				kind = Deleted
			case fsEvent.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind = Modified
			default:
				continue
			}
			pending[eventKey{id: id, rank: rank}] = Event{ID: id, Rank: rank, Kind: kind}
			timer.Reset(coalesceWindow)

		case <-timer.C:
			// Non-blocking delivery; whatever doesn't fit stays pending
			// until the next window.
			for k, e := range pending {
				select {
				case w.events <- e:
					delete(pending, k)
				default:
				}
			}
			if len(pending) > 0 {
				timer.Reset(coalesceWindow)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Filesystem watcher error: %v", err)
		}
	}
}

// scanNewDir surfaces desktop files that may have landed in a directory
// before its watch was in place.
func (w *Watcher) scanNewDir(dir string, pending map[eventKey]Event) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".desktop") {
			return nil
		}
		id, rank, ok := w.resolve(path)
		if !ok {
			return nil
		}
		pending[eventKey{id: id, rank: rank}] = Event{ID: id, Rank: rank, Kind: Modified}
		return nil
	})
}
