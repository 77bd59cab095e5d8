package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStat(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	writeFile(t, file, "a")

	kind, err := Stat(file)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, kind)

	kind, err = Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, TypeDirectory, kind)

	_, err = Stat(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEntryType_String(t *testing.T) {
	assert.Equal(t, "file", TypeFile.String())
	assert.Equal(t, "directory", TypeDirectory.String())
	assert.Equal(t, "unknown", TypeUnknown.String())
}

func TestExistenceChecks_MissingPathIsNotAnError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	exists, err := Exists(missing)
	require.NoError(t, err)
	assert.False(t, exists)

	isFile, err := IsFile(missing)
	require.NoError(t, err)
	assert.False(t, isFile)

	isDir, err := IsDir(missing)
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestExistenceChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "b.bin")
	writeFile(t, file, "b")

	exists, err := Exists(file)
	require.NoError(t, err)
	assert.True(t, exists)

	isFile, err := IsFile(file)
	require.NoError(t, err)
	assert.True(t, isFile)

	isDir, err := IsDir(file)
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = IsDir(dir)
	require.NoError(t, err)
	assert.True(t, isDir)
}

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "one.txt"), "1")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := ReadDir(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one.txt", "sub"}, names)
}

func TestReadDir_InvalidUTF8(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("only Linux allows arbitrary bytes in file names")
	}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad\xff.txt"), "x")

	_, err := ReadDir(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.txt")
	to := filepath.Join(dir, "to.txt")
	writeFile(t, from, "payload")

	require.NoError(t, Move(from, to, false))

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = os.Stat(from)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMove_Errors(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "from.txt")
	to := filepath.Join(dir, "to.txt")

	err := Move(from, to, false)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	writeFile(t, from, "new")
	writeFile(t, to, "old")

	err = Move(from, to, false)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))

	require.NoError(t, Move(from, to, true))
	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestCopy_File(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "src.txt")
	to := filepath.Join(dir, "dst.txt")
	writeFile(t, from, "copy me")

	require.NoError(t, Copy(from, to, false))

	data, err := os.ReadFile(to)
	require.NoError(t, err)
	assert.Equal(t, "copy me", string(data))

	err = Copy(from, to, false)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestCopy_Directory(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "tree")
	writeFile(t, filepath.Join(from, "a.txt"), "a")
	writeFile(t, filepath.Join(from, "nested", "b.txt"), "b")

	to := filepath.Join(dir, "copy")
	writeFile(t, filepath.Join(to, "stale.txt"), "stale")

	require.NoError(t, Copy(from, to, true))

	data, err := os.ReadFile(filepath.Join(to, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	_, err = os.Stat(filepath.Join(to, "stale.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "overwrite replaces the destination")
}

func TestCopy_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Copy(filepath.Join(dir, "missing"), filepath.Join(dir, "x"), true)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}
