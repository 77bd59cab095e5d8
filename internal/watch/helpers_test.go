package watch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/fsutil"
)

// fakeNotifier replays a fixed script of results through the real emitter.
type fakeNotifier struct {
	emitter

	script []Result
	// endAfterScript closes the results channel once the script is played,
	// like a notifier whose source went away.
	endAfterScript bool
	startErr       error

	mu        sync.Mutex
	root      string
	recursive bool

	starts atomic.Int32
	closes atomic.Int32

	wg          sync.WaitGroup
	doneOnce    sync.Once
	resultsOnce sync.Once
}

func newFakeNotifier(script ...Result) *fakeNotifier {
	return &fakeNotifier{emitter: newEmitter(), script: script}
}

func (f *fakeNotifier) Start(root string, recursive bool) error {
	f.starts.Add(1)
	if f.startErr != nil {
		return f.startErr
	}

	f.mu.Lock()
	f.root, f.recursive = root, recursive
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for _, r := range f.script {
			if !f.emit(r) {
				return
			}
		}
		if f.endAfterScript {
			f.resultsOnce.Do(func() { close(f.results) })
		}
	}()
	return nil
}

func (f *fakeNotifier) Results() <-chan Result { return f.results }

func (f *fakeNotifier) Close() error {
	f.closes.Add(1)
	f.doneOnce.Do(func() { close(f.done) })
	f.wg.Wait()
	f.resultsOnce.Do(func() { close(f.results) })
	return nil
}

type scheduledCall struct {
	name  string
	paths []string
}

// recordingScheduler runs every task inline and remembers what it ran.
type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduledCall
	err   error
	seq   int
}

func (s *recordingScheduler) Schedule(name string, run func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.seq++
	s.calls = append(s.calls, scheduledCall{name: name})
	_ = run(context.Background())
	return fmt.Sprintf("task-%d", s.seq), nil
}

func (s *recordingScheduler) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.name)
	}
	return out
}

// pathRecorder collects handler invocations.
type pathRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *pathRecorder) handler() Handler {
	return func(_ context.Context, paths []string) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, append([]string(nil), paths...))
		return nil
	}
}

func (r *pathRecorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func mustConfig(t *testing.T, v any) *Config {
	t.Helper()
	cfg, err := NewConfig(v)
	require.NoError(t, err)
	return cfg
}

func fileEvent(kind Kind, path string) Result {
	return Result{Event: newEvent(kind, path, fsutil.TypeFile)}
}

// waitFor receives from results until match reports true or the timeout
// expires.
func waitFor(t *testing.T, results <-chan Result, timeout time.Duration, match func(RawEvent) bool) RawEvent {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case r, ok := <-results:
			require.True(t, ok, "results channel closed early")
			require.NoError(t, r.Err)
			if match(r.Event) {
				return r.Event
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return RawEvent{}
		}
	}
}

func hasPath(kind Kind, path string) func(RawEvent) bool {
	return func(ev RawEvent) bool {
		if ev.Kind != kind {
			return false
		}
		for _, p := range ev.Paths {
			if p == path {
				return true
			}
		}
		return false
	}
}

// collect returns every event delivered within window, matching or not.
func collect(t *testing.T, results <-chan Result, window time.Duration) []RawEvent {
	t.Helper()
	deadline := time.After(window)
	var events []RawEvent
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return events
			}
			require.NoError(t, r.Err)
			events = append(events, r.Event)
		case <-deadline:
			return events
		}
	}
}

func kindsOf(events []RawEvent) []Kind {
	kinds := make([]Kind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

// startSession runs s in the background until the returned stop func cancels
// it. stop reports Run's result.
func startSession(t *testing.T, s *Session) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.State() == StateRunning }, 2*time.Second, 5*time.Millisecond)
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}
