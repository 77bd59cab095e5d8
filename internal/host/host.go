// Package host exposes the filesystem library the way a script sees it:
// dynamic option and handler tables in, domain errors out.
package host

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
	"github.com/fsbridge/fsbridge/internal/logger"
	"github.com/fsbridge/fsbridge/internal/watch"
)

// Host binds watch sessions to one scheduler.
type Host struct {
	sched   watch.Scheduler
	logger  *slog.Logger
	backend watch.Backend

	active atomic.Int64
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger handed to every session.
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithBackend sets the notifier backend for new sessions.
func WithBackend(b watch.Backend) Option {
	return func(h *Host) {
		h.backend = b
	}
}

// New creates a host that queues handlers on sched.
func New(sched watch.Scheduler, opts ...Option) *Host {
	h := &Host{
		sched:   sched,
		logger:  logger.Discard(),
		backend: watch.BackendAuto,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Watch watches path until ctx is cancelled or the watcher fails.
// options is a pattern string or an option table; handlers maps the
// category names (added, removed, changed, read) to callbacks.
func (h *Host) Watch(ctx context.Context, path string, options any, handlers map[string]any) error {
	cfg, err := watch.NewConfig(options)
	if err != nil {
		return err
	}
	hs, err := watch.HandlersFromTable(handlers)
	if err != nil {
		return err
	}

	s, err := watch.NewSession(path, cfg, hs, h.sched,
		watch.WithLogger(h.logger),
		watch.WithBackend(h.backend),
	)
	if err != nil {
		return err
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	h.logger.Debug("watch requested",
		"session_id", s.ID(),
		"path", path,
		"handlers", hs.Len(),
	)
	return s.Run(ctx)
}

// ActiveSessions returns the number of Watch calls currently running.
func (h *Host) ActiveSessions() int {
	return int(h.active.Load())
}

// Exists reports whether anything exists at path.
func (h *Host) Exists(path string) (bool, error) {
	return fsutil.Exists(path)
}

// IsFile reports whether path is a regular file.
func (h *Host) IsFile(path string) (bool, error) {
	return fsutil.IsFile(path)
}

// IsDirectory reports whether path is a directory.
func (h *Host) IsDirectory(path string) (bool, error) {
	return fsutil.IsDir(path)
}

// ReadDir lists the entry names of a directory.
func (h *Host) ReadDir(path string) ([]string, error) {
	return fsutil.ReadDir(path)
}

// Copy copies a file or directory tree.
func (h *Host) Copy(from, to string, overwrite bool) error {
	return fsutil.Copy(from, to, overwrite)
}

// Move renames from to to.
func (h *Host) Move(from, to string, overwrite bool) error {
	return fsutil.Move(from, to, overwrite)
}

// ExitCode maps an error returned by the host to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return errors.CodeOf(err).ExitCode()
}
