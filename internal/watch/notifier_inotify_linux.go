//go:build linux

package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	domainerrors "github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
)

// inotifyMask selects the kernel events we translate.
// IN_ACCESS is why this backend exists next to fsnotify: it is the only one
// that can report reads.
const inotifyMask = unix.IN_CREATE | unix.IN_MOVED_TO |
	unix.IN_DELETE | unix.IN_MOVED_FROM | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF |
	unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_ACCESS

// inotifyNotifier implements Notifier with Linux inotify.
type inotifyNotifier struct {
	emitter

	logger *slog.Logger
	fd     int
	file   *os.File

	mu        sync.RWMutex
	watches   map[string]int
	wdPaths   map[int]string
	root      string
	rootIsDir bool
	recursive bool

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newInotifyNotifier(logger *slog.Logger) (Notifier, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	// A non-blocking descriptor wrapped in os.File is served by the runtime
	// poller, so Read parks instead of spinning and Close wakes it up.
	return &inotifyNotifier{
		emitter: newEmitter(),
		logger:  logger,
		fd:      fd,
		file:    os.NewFile(uintptr(fd), "inotify"),
		watches: make(map[string]int),
		wdPaths: make(map[int]string),
	}, nil
}

// Start registers root and starts reading events.
func (n *inotifyNotifier) Start(root string, recursive bool) error {
	root = filepath.Clean(root)

	info, err := os.Stat(root)
	if err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRegistration, "cannot watch %q", root)
	}

	n.mu.Lock()
	n.root = root
	n.rootIsDir = info.IsDir()
	n.recursive = recursive && info.IsDir()
	n.mu.Unlock()

	if err := n.addWatch(root); err != nil {
		return domainerrors.Wrapf(err, domainerrors.CodeRegistration, "cannot watch %q", root)
	}
	if n.recursive {
		n.addTree(root, false)
	}

	n.wg.Add(1)
	go n.readEvents()
	return nil
}

// addTree watches every directory below dir. Failures on descendants are
// logged and skipped; only the root is mandatory. With report set it returns
// a Created event for every entry found below dir, which covers whatever
// appeared in a new directory before its watch existed.
func (n *inotifyNotifier) addTree(dir string, report bool) []RawEvent {
	if err := n.addWatch(dir); err != nil {
		n.logger.Warn("failed to add watch", "path", dir, "error", err)
	}

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
		if !d.IsDir() {
			return nil
		}
		if err := n.addWatch(p); err != nil {
			n.logger.Warn("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
	return found
}

func (n *inotifyNotifier) addWatch(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.watches[path]; exists {
		return nil
	}

	wd, err := unix.InotifyAddWatch(n.fd, path, inotifyMask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch failed: %w", err)
	}

	// inotify hands out the same descriptor when an inode is watched twice
	// under two names; the latest name wins.
	if old, ok := n.wdPaths[wd]; ok {
		delete(n.watches, old)
	}
	n.watches[path] = wd
	n.wdPaths[wd] = path
	n.logger.Debug("added watch", "path", path, "wd", wd)
	return nil
}

// forgetTree drops bookkeeping for path and everything below it. The kernel
// has already released (or will release) the descriptors.
func (n *inotifyNotifier) forgetTree(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := path + string(filepath.Separator)
	for p, wd := range n.watches {
		if p == path || (len(p) > len(prefix) && p[:len(prefix)] == prefix) {
			//nolint:gosec // G115: wd is always a small non-negative int from inotify
			_, _ = unix.InotifyRmWatch(n.fd, uint32(wd))
			delete(n.watches, p)
			delete(n.wdPaths, wd)
		}
	}
}

func (n *inotifyNotifier) forgetWd(wd int) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if p, ok := n.wdPaths[wd]; ok {
		delete(n.wdPaths, wd)
		if n.watches[p] == wd {
			delete(n.watches, p)
		}
	}
}

// readEvents reads from the inotify descriptor until Close.
func (n *inotifyNotifier) readEvents() {
	defer n.wg.Done()

	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*64)

	for {
		count, err := n.file.Read(buf)
		if err != nil {
			if n.closing() || errors.Is(err, os.ErrClosed) {
				return
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			n.emit(Result{Err: fmt.Errorf("failed to read inotify events: %w", err)})
			return
		}

		if count < unix.SizeofInotifyEvent {
			continue
		}

		if !n.parseEvents(buf[:count]) {
			return
		}
	}
}

// parseEvents translates a buffer of raw inotify records. It reports false
// once the notifier is closing.
func (n *inotifyNotifier) parseEvents(buf []byte) bool {
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(raw.Len)
		if offset > len(buf) {
			return true
		}

		wd := int(raw.Wd)
		mask := raw.Mask

		if mask&unix.IN_Q_OVERFLOW != 0 {
			n.logger.Warn("inotify queue overflowed, events were lost", "root", n.root)
			if !n.emit(Result{Event: newEvent(KindOther, n.root, fsutil.TypeUnknown)}) {
				return false
			}
			continue
		}

		n.mu.RLock()
		dir, ok := n.wdPaths[wd]
		n.mu.RUnlock()
		if !ok {
			continue
		}

		if mask&unix.IN_IGNORED != 0 {
			n.forgetWd(wd)
			continue
		}

		path := dir
		if raw.Len > 0 {
			path = filepath.Join(dir, string(buf[nameStart:nameStart+clen(buf[nameStart:offset])]))
		}

		for _, event := range n.translate(path, dir, mask) {
			if !n.emit(Result{Event: event}) {
				return false
			}
		}
	}
	return true
}

// translate maps one inotify record to RawEvents and keeps the watch set in
// step with directories appearing and disappearing.
func (n *inotifyNotifier) translate(path, watched string, mask uint32) []RawEvent {
	hint := fsutil.TypeFile
	if mask&unix.IN_ISDIR != 0 {
		hint = fsutil.TypeDirectory
	}

	n.mu.RLock()
	root, rootIsDir, recursive := n.root, n.rootIsDir, n.recursive
	n.mu.RUnlock()

	switch {
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		events := []RawEvent{newEvent(KindCreated, path, hint)}
		if hint == fsutil.TypeDirectory && recursive {
			events = append(events, n.addTree(path, true)...)
		}
		return events

	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		if hint == fsutil.TypeDirectory {
			n.forgetTree(path)
		}
		return []RawEvent{newEvent(KindRemoved, path, hint)}

	case mask&(unix.IN_DELETE_SELF|unix.IN_MOVE_SELF) != 0:
		// Descendants also show up as IN_DELETE/IN_MOVED_FROM in their
		// parent; only the root has nobody else to report it.
		if watched != root {
			return nil
		}
		hint = fsutil.TypeFile
		if rootIsDir {
			hint = fsutil.TypeDirectory
		}
		return []RawEvent{newEvent(KindRemoved, path, hint)}

	case mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0:
		return []RawEvent{n.withSelfHint(KindModified, path, watched, hint)}

	case mask&unix.IN_ACCESS != 0:
		// Listing a directory is not a read. This also hides the walks
		// addTree does on watched directories.
		if hint == fsutil.TypeDirectory || (path == watched && rootIsDir) {
			return nil
		}
		return []RawEvent{n.withSelfHint(KindAccessRead, path, watched, hint)}

	default:
		return nil
	}
}

// withSelfHint fixes the type hint for records about a watched path itself,
// which carry IN_ISDIR only on some kernels.
func (n *inotifyNotifier) withSelfHint(kind Kind, path, watched string, hint fsutil.EntryType) RawEvent {
	if path == watched {
		n.mu.RLock()
		isFileRoot := path == n.root && !n.rootIsDir
		n.mu.RUnlock()
		if isFileRoot {
			hint = fsutil.TypeFile
		} else {
			hint = fsutil.TypeDirectory
		}
	}
	return newEvent(kind, path, hint)
}

// Results returns the results channel.
func (n *inotifyNotifier) Results() <-chan Result {
	return n.results
}

// Close removes every watch, closes the descriptor and waits for the reader.
func (n *inotifyNotifier) Close() error {
	var closeErr error
	n.closeOnce.Do(func() {
		close(n.done)

		n.mu.Lock()
		for path, wd := range n.watches {
			//nolint:gosec // G115: wd is always a small non-negative int from inotify
			_, _ = unix.InotifyRmWatch(n.fd, uint32(wd))
			n.logger.Debug("removed watch", "path", path, "wd", wd)
		}
		clear(n.watches)
		clear(n.wdPaths)
		n.mu.Unlock()

		closeErr = n.file.Close()
		n.wg.Wait()
		close(n.results)
	})
	return closeErr
}

// clen returns the length of a null-terminated byte slice.
func clen(b []byte) int {
	for i := range b {
		if b[i] == 0 {
			return i
		}
	}
	return len(b)
}
