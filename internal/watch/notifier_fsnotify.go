package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	domainerrors "github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
)

// fsnotifyNotifier implements Notifier on top of fsnotify. fsnotify has no
// access events, so KindAccessRead is never produced here.
type fsnotifyNotifier struct {
	emitter

	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	dirs      map[string]struct{}
	root      string
	recursive bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newFSNotifyNotifier(logger *slog.Logger) (Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fsnotifyNotifier{
		emitter: newEmitter(),
		logger:  logger,
		watcher: w,
		dirs:    make(map[string]struct{}),
	}, nil
}

// Start registers root and starts forwarding events.
func (n *fsnotifyNotifier) Start(root string, recursive bool) error {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRegistration, "cannot watch %q", root)
	}

	n.mu.Lock()
	n.root = root
	n.recursive = recursive && info.IsDir()
	n.mu.Unlock()

	if err := n.watcher.Add(root); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRegistration, "cannot watch %q", root)
	}
	if info.IsDir() {
		n.trackDir(root)
	}
	if n.recursive {
		n.addTree(root, false)
	}

	n.wg.Add(1)
	go n.processEvents()
	return nil
}

func (n *fsnotifyNotifier) trackDir(path string) {
	n.mu.Lock()
	n.dirs[path] = struct{}{}
	n.mu.Unlock()
}

func (n *fsnotifyNotifier) isTrackedDir(path string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.dirs[path]
	return ok
}

func (n *fsnotifyNotifier) untrackTree(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for p := range n.dirs {
		if p == path || (len(p) > len(prefix) && p[:len(prefix)] == prefix) {
			delete(n.dirs, p)
		}
	}
}

// addTree watches dir and every directory below it, skipping the ones that
// fail. With report set it returns a Created event for every entry found
// below dir, so files written into a new directory before its watch was
// added are not lost.
func (n *fsnotifyNotifier) addTree(dir string, report bool) []RawEvent {
	n.addDir(dir)

	var found []RawEvent
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			n.logger.Warn("failed to access path", "path", p, "error", err)
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if p == dir {
			return nil
		}
		if report {
			hint := fsutil.TypeFile
			if d.IsDir() {
				hint = fsutil.TypeDirectory
			}
			found = append(found, newEvent(KindCreated, p, hint))
		}
		if d.IsDir() {
			n.addDir(p)
		}
		return nil
	})
	return found
}

func (n *fsnotifyNotifier) addDir(path string) {
	if n.isTrackedDir(path) {
		return
	}
	if err := n.watcher.Add(path); err != nil {
		n.logger.Warn("failed to add watch", "path", path, "error", err)
		return
	}
	n.logger.Debug("added watch", "path", path)
	n.trackDir(path)
}

// processEvents forwards fsnotify events until Close.
func (n *fsnotifyNotifier) processEvents() {
	defer n.wg.Done()

	for {
		select {
		case <-n.done:
			return
		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			for _, raw := range n.translate(event) {
				if !n.emit(Result{Event: raw}) {
					return
				}
			}
		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				n.logger.Warn("fsnotify queue overflowed, events were lost", "root", n.root)
				if !n.emit(Result{Event: newEvent(KindOther, n.root, fsutil.TypeUnknown)}) {
					return
				}
				continue
			}
			if !n.emit(Result{Err: err}) {
				return
			}
		}
	}
}

// translate maps an fsnotify event to RawEvents. Operations are checked in
// the order below when several bits are set at once.
func (n *fsnotifyNotifier) translate(event fsnotify.Event) []RawEvent {
	path := filepath.Clean(event.Name)

	n.mu.RLock()
	recursive := n.recursive
	n.mu.RUnlock()

	switch {
	case event.Has(fsnotify.Create):
		hint := fsutil.TypeUnknown
		if t, err := fsutil.Stat(path); err == nil {
			hint = t
		}
		events := []RawEvent{newEvent(KindCreated, path, hint)}
		if hint == fsutil.TypeDirectory && recursive {
			events = append(events, n.addTree(path, true)...)
		}
		return events

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		hint := fsutil.TypeFile
		if n.isTrackedDir(path) {
			hint = fsutil.TypeDirectory
			n.untrackTree(path)
		}
		return []RawEvent{newEvent(KindRemoved, path, hint)}

	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		hint := fsutil.TypeFile
		if n.isTrackedDir(path) {
			hint = fsutil.TypeDirectory
		}
		return []RawEvent{newEvent(KindModified, path, hint)}

	default:
		return nil
	}
}

// Results returns the results channel.
func (n *fsnotifyNotifier) Results() <-chan Result {
	return n.results
}

// Close stops the fsnotify watcher and waits for the forwarder.
func (n *fsnotifyNotifier) Close() error {
	var closeErr error
	n.closeOnce.Do(func() {
		close(n.done)
		closeErr = n.watcher.Close()
		n.wg.Wait()
		close(n.results)
	})
	return closeErr
}
