package watch

import (
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/fsbridge/fsbridge/internal/errors"
)

// resultsCapacity is the size of every notifier's result channel. Keeping it
// at one turns each delivery into a hand-off: the producer waits until the
// session loop took the previous result.
const resultsCapacity = 1

// Notifier wraps a platform change-notification mechanism.
type Notifier interface {
	// Start registers root, recursively or not, and begins producing results.
	// It fails with a registration error when root is missing or cannot be
	// watched. Start is called at most once.
	Start(root string, recursive bool) error

	// Results returns the channel results are delivered on. It is closed
	// after Close has stopped production.
	Results() <-chan Result

	// Close unregisters every watch, stops production and closes the results
	// channel. It is safe to call more than once.
	Close() error
}

// Backend selects a Notifier implementation.
type Backend string

const (
	// BackendAuto uses inotify on Linux and fsnotify elsewhere, falling back
	// to polling when the native mechanism cannot be initialized.
	BackendAuto     Backend = "auto"
	BackendInotify  Backend = "inotify"
	BackendFSNotify Backend = "fsnotify"
	BackendPoll     Backend = "poll"
)

// ParseBackend converts a configuration string to a Backend. Empty means auto.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendInotify, BackendFSNotify, BackendPoll:
		return b, nil
	default:
		return "", errors.Configf("unknown watch backend %q (must be auto, inotify, fsnotify, or poll)", s)
	}
}

// NewNotifier creates a notifier for backend and reports the backend actually
// chosen. interval only matters for the poll backend.
func NewNotifier(backend Backend, interval time.Duration, logger *slog.Logger) (Notifier, Backend, error) {
	switch backend {
	case BackendInotify:
		n, err := newInotifyNotifier(logger)
		if err != nil {
			return nil, backend, errors.Wrap(err, errors.CodeRegistration, "create inotify notifier")
		}
		return n, backend, nil
	case BackendFSNotify:
		n, err := newFSNotifyNotifier(logger)
		if err != nil {
			return nil, backend, errors.Wrap(err, errors.CodeRegistration, "create fsnotify notifier")
		}
		return n, backend, nil
	case BackendPoll:
		return newPollNotifier(interval, logger), backend, nil
	case BackendAuto, "":
		native := BackendFSNotify
		if runtime.GOOS == "linux" {
			native = BackendInotify
		}
		n, chosen, err := NewNotifier(native, interval, logger)
		if err == nil {
			return n, chosen, nil
		}
		logger.Warn("native notifier unavailable, falling back to polling",
			"backend", native,
			"interval", interval,
			"error", err,
		)
		return newPollNotifier(interval, logger), BackendPoll, nil
	default:
		return nil, backend, errors.Configf("unknown watch backend %q", backend)
	}
}

// emitter is the producer half shared by every notifier.
type emitter struct {
	results chan Result
	done    chan struct{}
}

func newEmitter() emitter {
	return emitter{
		results: make(chan Result, resultsCapacity),
		done:    make(chan struct{}),
	}
}

// emit hands r to the session loop, blocking until there is room or the
// notifier is closing. It reports false when r was not delivered.
func (e emitter) emit(r Result) bool {
	select {
	case e.results <- r:
		return true
	case <-e.done:
		return false
	}
}

func (e emitter) closing() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}
