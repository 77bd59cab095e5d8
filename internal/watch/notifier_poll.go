package watch

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
)

// entryState is what the poll notifier remembers about one path.
type entryState struct {
	typ     fsutil.EntryType
	size    int64
	modTime time.Time
	mode    fs.FileMode
}

func (s entryState) changed(o entryState) bool {
	return s.size != o.size || !s.modTime.Equal(o.modTime) || s.mode != o.mode
}

type snapshot map[string]entryState

// pollNotifier implements Notifier by diffing directory snapshots on a fixed
// interval. It is the only backend that honors Options.Interval.
type pollNotifier struct {
	emitter

	logger   *slog.Logger
	interval time.Duration

	root      string
	recursive bool
	rootType  fsutil.EntryType
	present   bool
	last      snapshot

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newPollNotifier(interval time.Duration, logger *slog.Logger) Notifier {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &pollNotifier{
		emitter:  newEmitter(),
		logger:   logger,
		interval: interval,
	}
}

// Start takes the initial snapshot and starts the polling loop.
func (n *pollNotifier) Start(root string, recursive bool) error {
	root = filepath.Clean(root)

	typ, err := fsutil.Stat(root)
	if err != nil {
		return errors.Wrapf(err, errors.CodeRegistration, "cannot watch %q", root)
	}

	n.root = root
	n.rootType = typ
	n.recursive = recursive && typ == fsutil.TypeDirectory
	n.present = true
	n.last, err = n.scan()
	if err != nil {
		return errors.Wrapf(err, errors.CodeRegistration, "cannot watch %q", root)
	}

	n.wg.Add(1)
	go n.loop()
	return nil
}

func (n *pollNotifier) loop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.done:
			return
		case <-ticker.C:
			if !n.poll() {
				return
			}
		}
	}
}

// poll diffs a fresh snapshot against the previous one and emits the
// differences. A root that is missing is reported as removed; any other
// failure to read it is sent as an error. It reports false once the notifier
// is closing or has failed.
func (n *pollNotifier) poll() bool {
	typ, err := fsutil.Stat(n.root)
	if err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		n.emit(Result{Err: fmt.Errorf("failed to stat watch root: %w", err)})
		return false
	}
	present := err == nil

	var next snapshot
	if present {
		n.rootType = typ
		if next, err = n.scan(); err != nil {
			if !stderrors.Is(err, fs.ErrNotExist) {
				n.emit(Result{Err: err})
				return false
			}
			// Gone between the stat and the scan; the next tick sees it.
			return true
		}
	}

	var events []RawEvent
	switch {
	case n.present && !present:
		// Root is gone: everything we knew about went with it.
		events = append(events, n.removed(n.last)...)
		if n.rootType == fsutil.TypeDirectory {
			events = append(events, newEvent(KindRemoved, n.root, n.rootType))
		}
		n.last = snapshot{}
	case !n.present && present:
		if typ == fsutil.TypeDirectory {
			events = append(events, newEvent(KindCreated, n.root, typ))
		}
		events = append(events, n.created(next)...)
		n.last = next
	case present:
		events = diffSnapshots(n.last, next)
		n.last = next
	}
	n.present = present

	for _, ev := range events {
		if !n.emit(Result{Event: ev}) {
			return false
		}
	}
	return true
}

// scan records every entry below the root: direct children, or the whole
// tree when recursive. A file root records only itself. Failing to read the
// root itself is an error; unreadable descendants are skipped.
func (n *pollNotifier) scan() (snapshot, error) {
	snap := make(snapshot)

	if n.rootType != fsutil.TypeDirectory {
		info, err := os.Stat(n.root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat watch root: %w", err)
		}
		snap[n.root] = stateOf(info)
		return snap, nil
	}

	if !n.recursive {
		entries, err := os.ReadDir(n.root)
		if err != nil {
			return nil, fmt.Errorf("failed to read watch root: %w", err)
		}
		for _, e := range entries {
			p := filepath.Join(n.root, e.Name())
			info, err := os.Stat(p)
			if err != nil {
				continue
			}
			snap[p] = stateOf(info)
		}
		return snap, nil
	}

	err := filepath.WalkDir(n.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == n.root {
				return fmt.Errorf("failed to read watch root: %w", err)
			}
			n.logger.Debug("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == n.root {
			return nil
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil
		}
		snap[p] = stateOf(info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (n *pollNotifier) removed(snap snapshot) []RawEvent {
	return diffSnapshots(snap, snapshot{})
}

func (n *pollNotifier) created(snap snapshot) []RawEvent {
	return diffSnapshots(snapshot{}, snap)
}

func stateOf(info fs.FileInfo) entryState {
	typ := fsutil.TypeFile
	if info.IsDir() {
		typ = fsutil.TypeDirectory
	}
	return entryState{
		typ:     typ,
		size:    info.Size(),
		modTime: info.ModTime(),
		mode:    info.Mode(),
	}
}

// diffSnapshots returns removals (by path), then creations (oldest first),
// then modifications (by path). An entry that changed between file and
// directory is reported as removed and created.
func diffSnapshots(prev, next snapshot) []RawEvent {
	var removed, created, modified []string

	for p, old := range prev {
		cur, ok := next[p]
		switch {
		case !ok:
			removed = append(removed, p)
		case cur.typ != old.typ:
			removed = append(removed, p)
			created = append(created, p)
		case cur.changed(old):
			modified = append(modified, p)
		}
	}
	for p := range next {
		if _, ok := prev[p]; !ok {
			created = append(created, p)
		}
	}

	sort.Strings(removed)
	sort.Strings(modified)
	sort.Slice(created, func(i, j int) bool {
		a, b := next[created[i]], next[created[j]]
		if !a.modTime.Equal(b.modTime) {
			return a.modTime.Before(b.modTime)
		}
		return created[i] < created[j]
	})

	events := make([]RawEvent, 0, len(removed)+len(created)+len(modified))
	for _, p := range removed {
		events = append(events, newEvent(KindRemoved, p, prev[p].typ))
	}
	for _, p := range created {
		events = append(events, newEvent(KindCreated, p, next[p].typ))
	}
	for _, p := range modified {
		events = append(events, newEvent(KindModified, p, next[p].typ))
	}
	return events
}

// Results returns the results channel.
func (n *pollNotifier) Results() <-chan Result {
	return n.results
}

// Close stops the polling loop.
func (n *pollNotifier) Close() error {
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		close(n.results)
	})
	return nil
}
