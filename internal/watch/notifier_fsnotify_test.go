package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
	"github.com/fsbridge/fsbridge/internal/logger"
)

func startFSNotify(t *testing.T, root string, recursive bool) Notifier {
	t.Helper()
	n, err := newFSNotifyNotifier(logger.Discard())
	require.NoError(t, err)
	require.NoError(t, n.Start(root, recursive))
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestFSNotifyNotifier_CreateWriteRemove(t *testing.T) {
	dir := t.TempDir()
	n := startFSNotify(t, dir, false)

	file := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	ev := waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, file))
	assert.Equal(t, fsutil.TypeFile, ev.Types[0])

	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("more")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	waitFor(t, n.Results(), 2*time.Second, hasPath(KindModified, file))

	require.NoError(t, os.Remove(file))
	waitFor(t, n.Results(), 2*time.Second, hasPath(KindRemoved, file))
}

func TestFSNotifyNotifier_RecursiveFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	n := startFSNotify(t, dir, true)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	ev := waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, sub))
	assert.Equal(t, fsutil.TypeDirectory, ev.Types[0])

	nested := filepath.Join(sub, "nested.txt")
	require.NoError(t, os.WriteFile(nested, nil, 0o644))
	waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, nested))

	require.NoError(t, os.RemoveAll(sub))
	ev = waitFor(t, n.Results(), 2*time.Second, hasPath(KindRemoved, sub))
	assert.Equal(t, fsutil.TypeDirectory, ev.Types[0])
}

func TestFSNotifyNotifier_MovedInTreeIsReported(t *testing.T) {
	dir := t.TempDir()
	staged := filepath.Join(t.TempDir(), "staged")
	require.NoError(t, os.MkdirAll(filepath.Join(staged, "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staged, "x", "y.txt"), nil, 0o644))

	n := startFSNotify(t, dir, true)

	moved := filepath.Join(dir, "staged")
	require.NoError(t, os.Rename(staged, moved))
	ev := waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, moved))
	assert.Equal(t, fsutil.TypeDirectory, ev.Types[0])
	ev = waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, filepath.Join(moved, "x", "y.txt")))
	assert.Equal(t, fsutil.TypeFile, ev.Types[0])

	later := filepath.Join(moved, "x", "later.txt")
	require.NoError(t, os.WriteFile(later, nil, 0o644))
	waitFor(t, n.Results(), 2*time.Second, hasPath(KindCreated, later))
}

func TestFSNotifyNotifier_MissingRoot(t *testing.T) {
	n, err := newFSNotifyNotifier(logger.Discard())
	require.NoError(t, err)

	err = n.Start(filepath.Join(t.TempDir(), "missing"), false)
	assert.ErrorIs(t, err, errors.ErrRegistration)
	require.NoError(t, n.Close())
}
