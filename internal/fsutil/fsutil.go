// Package fsutil implements the plain filesystem contracts the watch host
// relies on: existence and type checks, copy, move and directory listing.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/fsbridge/fsbridge/internal/errors"
)

// EntryType is the kind of filesystem entry found at a path.
type EntryType uint8

const (
	// TypeUnknown means the type could not be determined.
	TypeUnknown EntryType = iota
	TypeFile
	TypeDirectory
)

// String returns the string representation of the entry type.
func (t EntryType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Stat returns the type of the entry at path, following symlinks.
// Entries that are neither regular files nor directories (sockets, devices)
// report TypeUnknown without an error.
func Stat(path string) (EntryType, error) {
	info, err := os.Stat(path)
	if err != nil {
		return TypeUnknown, err
	}
	return typeOf(info.Mode()), nil
}

func typeOf(mode fs.FileMode) EntryType {
	switch {
	case mode.IsDir():
		return TypeDirectory
	case mode.IsRegular():
		return TypeFile
	default:
		return TypeUnknown
	}
}

// Exists reports whether anything exists at path. A missing path is not an error.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// IsFile reports whether path is a regular file. A missing path is not an error.
func IsFile(path string) (bool, error) {
	return isType(path, TypeFile)
}

// IsDir reports whether path is a directory. A missing path is not an error.
func IsDir(path string) (bool, error) {
	return isType(path, TypeDirectory)
}

func isType(path string, want EntryType) (bool, error) {
	got, err := Stat(path)
	switch {
	case err == nil:
		return got == want, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// ReadDir lists the entry names in a directory. Names that are not valid
// UTF-8 cannot be handed to scripts and fail the whole listing.
func ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !utf8.ValidString(name) {
			return nil, errors.Validationf("file name could not be converted into a string: %q", name)
		}
		names = append(names, name)
	}
	return names, nil
}

// Move renames from to to. It fails with a not found error when the source is
// absent and with an already exists error when the destination exists and
// overwrite is false.
func Move(from, to string, overwrite bool) error {
	if err := checkTransfer(from, to, overwrite); err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move %q to %q: %w", from, to, err)
	}
	return nil
}

// Copy copies a file or a directory tree from from to to, with the same
// source and destination checks as Move. With overwrite set, an existing
// destination is removed first.
func Copy(from, to string, overwrite bool) error {
	if err := checkTransfer(from, to, overwrite); err != nil {
		return err
	}

	info, err := os.Stat(from)
	if err != nil {
		return fmt.Errorf("stat %q: %w", from, err)
	}

	if overwrite {
		if err := os.RemoveAll(to); err != nil {
			return fmt.Errorf("remove existing %q: %w", to, err)
		}
	}

	if !info.IsDir() {
		return copyFile(from, to, info.Mode().Perm())
	}

	return filepath.WalkDir(from, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, p)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)

		entryInfo, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, entryInfo.Mode().Perm())
		}
		return copyFile(p, target, entryInfo.Mode().Perm())
	})
}

func checkTransfer(from, to string, overwrite bool) error {
	exists, err := Exists(from)
	if err != nil {
		return err
	}
	if !exists {
		return errors.NotFoundf("no file or directory exists at the path %q", from)
	}

	if overwrite {
		return nil
	}
	exists, err = Exists(to)
	if err != nil {
		return err
	}
	if exists {
		return errors.AlreadyExistsf("a file or directory already exists at the path %q", to)
	}
	return nil
}

func copyFile(from, to string, perm fs.FileMode) error {
	src, err := os.Open(from) //#nosec G304 -- copying script-supplied paths is the point
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(to, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) //#nosec G304
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("copy %q to %q: %w", from, to, err)
	}
	return dst.Close()
}
