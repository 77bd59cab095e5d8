package watch

import (
	"context"
	"sort"

	"github.com/fsbridge/fsbridge/internal/errors"
)

// Handler is a script callback. It receives the filtered paths of one event.
type Handler func(ctx context.Context, paths []string) error

// Handlers holds the optional callback for each category.
type Handlers struct {
	Added   Handler
	Removed Handler
	Changed Handler
	Read    Handler
}

// For returns the handler registered for c, or nil.
func (h Handlers) For(c Category) Handler {
	switch c {
	case CategoryAdded:
		return h.Added
	case CategoryRemoved:
		return h.Removed
	case CategoryChanged:
		return h.Changed
	case CategoryRead:
		return h.Read
	default:
		return nil
	}
}

// Len returns the number of registered handlers.
func (h Handlers) Len() int {
	n := 0
	for _, fn := range []Handler{h.Added, h.Removed, h.Changed, h.Read} {
		if fn != nil {
			n++
		}
	}
	return n
}

// HandlersFromTable decodes a script handler table. Keys other than the four
// category names are ignored; values must be callable or nil.
func HandlersFromTable(table map[string]any) (Handlers, error) {
	var h Handlers
	slots := map[string]*Handler{
		CategoryAdded.String():   &h.Added,
		CategoryRemoved.String(): &h.Removed,
		CategoryChanged.String(): &h.Changed,
		CategoryRead.String():    &h.Read,
	}

	keys := make([]string, 0, len(slots))
	for k := range slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw, ok := table[key]
		if !ok || raw == nil {
			continue
		}
		fn, err := toHandler(raw)
		if err != nil {
			return Handlers{}, errors.Configf("handler %q: %s", key, err.Error())
		}
		*slots[key] = fn
	}
	return h, nil
}

func toHandler(raw any) (Handler, error) {
	switch fn := raw.(type) {
	case Handler:
		return fn, nil
	case func(context.Context, []string) error:
		return fn, nil
	case func([]string) error:
		return func(_ context.Context, paths []string) error { return fn(paths) }, nil
	case func([]string):
		return func(_ context.Context, paths []string) error {
			fn(paths)
			return nil
		}, nil
	default:
		return nil, errors.Configf("must be a function, got %T", raw)
	}
}

// Scheduler queues work on the host's task queue without waiting for it.
type Scheduler interface {
	Schedule(name string, run func(ctx context.Context) error) (string, error)
}

// Router maps raw kinds to handlers and pushes invocations to a Scheduler.
type Router struct {
	handlers Handlers
	sched    Scheduler
}

// NewRouter returns a router over handlers.
func NewRouter(handlers Handlers, sched Scheduler) *Router {
	return &Router{handlers: handlers, sched: sched}
}

// Route schedules the handler for kind with paths. It returns the task id,
// or "" when nothing was scheduled because the kind has no category or no
// handler is registered. The paths slice is handed over to the task.
func (r *Router) Route(kind Kind, paths []string) (string, error) {
	category, ok := CategoryFor(kind)
	if !ok {
		return "", nil
	}
	handler := r.handlers.For(category)
	if handler == nil {
		return "", nil
	}

	taskID, err := r.sched.Schedule("watch."+category.String(), func(ctx context.Context) error {
		return handler(ctx, paths)
	})
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeInternal, "schedule %s handler", category)
	}
	return taskID, nil
}
