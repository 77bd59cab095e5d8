// Package scheduler implements the host's cooperative task queue.
//
// Watch sessions push handler invocations here instead of calling them
// directly, so a slow script callback never stalls the watch loop. Tasks are
// started in FIFO order; with a single worker (the default) they also run one
// at a time in that order, which is what scripts expect from a cooperative
// host.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/id"
	"github.com/fsbridge/fsbridge/internal/logger"
	"github.com/fsbridge/fsbridge/internal/ratelimit"
)

// ErrClosed is returned by Schedule once the scheduler stopped accepting work.
var ErrClosed = errors.Internalf("scheduler is closed")

// TaskFunc is the body of a scheduled task.
type TaskFunc = func(ctx context.Context) error

// Task is a unit of work queued on the scheduler.
type Task struct {
	ID   string
	Name string
	Run  TaskFunc
}

// Options configures a Scheduler.
type Options struct {
	// Workers is the number of tasks that may run at once (default: 1).
	Workers int
	// Rate paces task starts per task name, in tasks per second. Zero disables pacing.
	Rate float64
	// Burst is the number of tasks per name that may start back to back (default: 1).
	Burst int
	// OnError receives task failures. Defaults to logging them.
	OnError func(Task, error)
	Logger  *slog.Logger
}

// Scheduler runs queued tasks on a fixed set of workers.
type Scheduler struct {
	opts    Options
	logger  *slog.Logger
	limiter *ratelimit.KeyedRateLimiter

	mu     sync.Mutex
	queue  []Task
	closed bool

	ctx       context.Context //nolint:containedctx // Context needed for worker lifecycle management
	cancel    context.CancelFunc
	notify    chan struct{}
	closing   chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup

	completed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a scheduler. Call Start to begin running tasks.
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		opts:    opts,
		logger:  opts.Logger,
		limiter: ratelimit.New(opts.Rate, opts.Burst),
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
	if s.opts.OnError == nil {
		s.opts.OnError = s.logFailure
	}
	return s
}

// Start launches the worker pool. Calling it more than once has no effect.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Debug("starting scheduler workers",
			slog.Int("workers", s.opts.Workers),
			slog.Float64("rate", s.opts.Rate),
		)
		for i := range s.opts.Workers {
			s.wg.Add(1)
			go s.worker(i)
		}
	})
}

// Schedule queues run under name and returns the task id. It never waits for
// the task to start.
func (s *Scheduler) Schedule(name string, run TaskFunc) (string, error) {
	if run == nil {
		return "", errors.Internalf("task %q has no body", name)
	}

	taskID, err := id.Generate("task")
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "allocate task id")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.queue = append(s.queue, Task{ID: taskID, Name: name, Run: run})
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
		// Already notified
	}
	return taskID, nil
}

// Pending returns the number of queued tasks that have not started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Stats returns how many tasks completed and how many of those failed.
func (s *Scheduler) Stats() (completed, failed uint64) {
	return s.completed.Load(), s.failed.Load()
}

// Close stops accepting tasks, lets the workers drain everything already
// queued and waits for them to exit.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closing)

		// Workers that were never started cannot drain the queue.
		s.Start()
		s.wg.Wait()
		s.cancel()

		completed, failed := s.Stats()
		s.logger.Debug("scheduler stopped",
			slog.Uint64("completed", completed),
			slog.Uint64("failed", failed),
		)
	})
	return nil
}

// Shutdown implements do.Shutdownable.
func (s *Scheduler) Shutdown() error {
	return s.Close()
}

func (s *Scheduler) worker(n int) {
	defer s.wg.Done()

	for {
		if task, ok := s.next(); ok {
			s.run(n, task)
			continue
		}

		select {
		case <-s.notify:
		case <-s.closing:
			if s.Pending() == 0 {
				return
			}
		}
	}
}

func (s *Scheduler) next() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return Task{}, false
	}
	task := s.queue[0]
	s.queue[0] = Task{}
	s.queue = s.queue[1:]
	return task, true
}

func (s *Scheduler) run(worker int, task Task) {
	if err := s.limiter.Wait(s.ctx, task.Name); err != nil {
		s.failed.Add(1)
		s.opts.OnError(task, fmt.Errorf("pace task: %w", err))
		return
	}

	s.logger.Debug("running task",
		slog.Int("worker_id", worker),
		slog.String("task_id", task.ID),
		slog.String("name", task.Name),
	)

	err := s.invoke(task)
	s.completed.Add(1)
	if err != nil {
		s.failed.Add(1)
		s.opts.OnError(task, err)
	}
}

func (s *Scheduler) invoke(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(s.ctx)
}

func (s *Scheduler) logFailure(task Task, err error) {
	s.logger.Error("task failed",
		slog.String("task_id", task.ID),
		slog.String("name", task.Name),
		slog.Any("error", err),
	)
}
