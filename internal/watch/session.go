package watch

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/logger"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosed
	StateErrored
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBackend selects the notifier backend. The default is BackendAuto.
func WithBackend(b Backend) SessionOption {
	return func(s *Session) {
		s.backend = b
	}
}

// WithNotifier makes the session use n instead of creating one. The session
// still starts and closes it.
func WithNotifier(n Notifier) SessionOption {
	return func(s *Session) {
		s.notifier = n
	}
}

// Session watches one root and dispatches filtered events until the notifier
// stops, fails or the context is cancelled.
type Session struct {
	id      string
	root    string
	cfg     *Config
	filter  *Filter
	router  *Router
	logger  *slog.Logger
	backend Backend

	notifier Notifier

	state      atomic.Int32
	started    atomic.Bool
	dispatched atomic.Uint64
}

// NewSession creates a session in StateCreated. Nothing touches the
// filesystem until Run.
func NewSession(root string, cfg *Config, handlers Handlers, sched Scheduler, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		return nil, errors.Config("watch configuration is required")
	}
	if sched == nil {
		return nil, errors.Config("scheduler is required")
	}

	s := &Session{
		id:      uuid.NewString(),
		root:    root,
		cfg:     cfg,
		filter:  NewFilter(cfg),
		router:  NewRouter(handlers, sched),
		logger:  logger.Discard(),
		backend: BackendAuto,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session_id", s.id, "root", root)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Root returns the watched root as given.
func (s *Session) Root() string { return s.root }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Backend returns the backend in use. Before Run it is the requested one.
func (s *Session) Backend() Backend { return s.backend }

// Dispatched returns how many handler invocations were scheduled.
func (s *Session) Dispatched() uint64 { return s.dispatched.Load() }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run starts the notifier and processes results one at a time until the
// results channel closes (nil), the notifier reports an error (a watch
// error) or ctx is cancelled (nil). Run may only be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.Internalf("watch session %s was already run", s.id)
	}

	n := s.notifier
	if n == nil {
		created, chosen, err := NewNotifier(s.backend, s.cfg.Interval, s.logger)
		if err != nil {
			return err
		}
		n, s.backend = created, chosen
	}

	if err := n.Start(s.root, s.cfg.Recursive); err != nil {
		_ = n.Close()
		if errors.CodeOf(err) != errors.CodeRegistration {
			err = errors.Wrapf(err, errors.CodeRegistration, "cannot watch %q", s.root)
		}
		return err
	}

	s.setState(StateRunning)
	s.logger.Info("watch session started",
		"backend", s.backend,
		"pattern", s.cfg.Pattern,
		"recursive", s.cfg.Recursive,
	)

	results := n.Results()
	for {
		select {
		case <-ctx.Done():
			s.stop(n)
			drained := 0
			for range results {
				drained++
			}
			s.setState(StateClosed)
			s.logger.Info("watch session cancelled", "dispatched", s.Dispatched(), "discarded", drained)
			return nil

		case r, ok := <-results:
			if !ok {
				s.stop(n)
				s.setState(StateClosed)
				s.logger.Info("watch session closed", "dispatched", s.Dispatched())
				return nil
			}
			if r.Err != nil {
				s.stop(n)
				s.setState(StateErrored)
				s.logger.Error("watcher failed", "error", r.Err)
				return errors.Wrap(r.Err, errors.CodeWatch, "watcher failed")
			}
			if err := s.handle(r.Event); err != nil {
				s.stop(n)
				s.setState(StateErrored)
				s.logger.Error("dispatch failed", "error", err)
				return err
			}
		}
	}
}

// handle filters one event and routes what is left.
func (s *Session) handle(ev RawEvent) error {
	paths := s.filter.Apply(ev)
	if len(paths) == 0 {
		return nil
	}

	taskID, err := s.router.Route(ev.Kind, paths)
	if err != nil {
		return err
	}
	if taskID != "" {
		s.dispatched.Add(1)
		s.logger.Debug("event dispatched",
			"kind", ev.Kind,
			"paths", len(paths),
			"task_id", taskID,
		)
	}
	return nil
}

func (s *Session) stop(n Notifier) {
	if err := n.Close(); err != nil {
		s.logger.Warn("failed to close notifier", "error", err)
	}
}

// Watch validates options, builds a session for root and runs it.
func Watch(ctx context.Context, root string, options any, handlers Handlers, sched Scheduler, opts ...SessionOption) error {
	cfg, err := NewConfig(options)
	if err != nil {
		return err
	}
	s, err := NewSession(root, cfg, handlers, sched, opts...)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
