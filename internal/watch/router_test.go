package watch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/errors"
)

func TestHandlersFromTable(t *testing.T) {
	var plain [][]string
	var withErr [][]string

	h, err := HandlersFromTable(map[string]any{
		"added":   func(paths []string) { plain = append(plain, paths) },
		"removed": func(paths []string) error { withErr = append(withErr, paths); return nil },
		"changed": Handler(func(context.Context, []string) error { return nil }),
		"read":    nil,
		"other":   "ignored",
	})
	require.NoError(t, err)

	assert.NotNil(t, h.Added)
	assert.NotNil(t, h.Removed)
	assert.NotNil(t, h.Changed)
	assert.Nil(t, h.Read)
	assert.Equal(t, 3, h.Len())

	require.NoError(t, h.For(CategoryAdded)(context.Background(), []string{"/a"}))
	require.NoError(t, h.For(CategoryRemoved)(context.Background(), []string{"/b"}))
	assert.Equal(t, [][]string{{"/a"}}, plain)
	assert.Equal(t, [][]string{{"/b"}}, withErr)
	assert.Nil(t, h.For(Category(0)))
}

func TestHandlersFromTable_RejectsNonCallable(t *testing.T) {
	_, err := HandlersFromTable(map[string]any{"changed": "not a function"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrConfig)
	assert.Contains(t, err.Error(), `"changed"`)
}

func TestRouter_Route(t *testing.T) {
	added := &pathRecorder{}
	changed := &pathRecorder{}
	sched := &recordingScheduler{}
	r := NewRouter(Handlers{Added: added.handler(), Changed: changed.handler()}, sched)

	id, err := r.Route(KindCreated, []string{"/a"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", id)

	id, err = r.Route(KindModified, []string{"/b", "/c"})
	require.NoError(t, err)
	assert.Equal(t, "task-2", id)

	// No handler registered.
	id, err = r.Route(KindRemoved, []string{"/d"})
	require.NoError(t, err)
	assert.Empty(t, id)

	// No category.
	id, err = r.Route(KindOther, []string{"/e"})
	require.NoError(t, err)
	assert.Empty(t, id)

	assert.Equal(t, []string{"watch.added", "watch.changed"}, sched.names())
	assert.Equal(t, [][]string{{"/a"}}, added.snapshot())
	assert.Equal(t, [][]string{{"/b", "/c"}}, changed.snapshot())
}

func TestRouter_ScheduleFailure(t *testing.T) {
	sched := &recordingScheduler{err: errors.Internalf("scheduler is closed")}
	r := NewRouter(Handlers{Read: (&pathRecorder{}).handler()}, sched)

	_, err := r.Route(KindAccessRead, []string{"/a"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(err))
}
