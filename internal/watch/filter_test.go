package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsbridge/fsbridge/internal/fsutil"
)

func TestFilter_TypeAndPattern(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "b.txt")
	bin := filepath.Join(dir, "b.bin")
	sub := filepath.Join(dir, "sub.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(bin, []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		opts map[string]any
		want []string
	}{
		{
			name: "files only",
			opts: map[string]any{"pattern": "*.txt", "watchDirectories": false},
			want: []string{txt},
		},
		{
			name: "directories only",
			opts: map[string]any{"pattern": "*.txt", "watchFiles": false},
			want: []string{sub},
		},
		{
			name: "both",
			opts: map[string]any{"pattern": "*"},
			want: []string{txt, bin, sub},
		},
		{
			name: "neither",
			opts: map[string]any{"pattern": "*", "watchFiles": false, "watchDirectories": false},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(mustConfig(t, tt.opts))
			got := f.Apply(RawEvent{Kind: KindModified, Paths: []string{txt, bin, sub}})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_NeverAddsPaths(t *testing.T) {
	f := NewFilter(mustConfig(t, "*"))
	assert.Empty(t, f.Apply(RawEvent{Kind: KindCreated}))
}

func TestFilter_StatFailureUsesHint(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone.txt")
	goneDir := filepath.Join(dir, "gone")
	noHint := filepath.Join(dir, "mystery.txt")

	f := NewFilter(mustConfig(t, map[string]any{"pattern": "*", "watchDirectories": false}))
	got := f.Apply(RawEvent{
		Kind:  KindRemoved,
		Paths: []string{gone, goneDir, noHint},
		Types: []fsutil.EntryType{fsutil.TypeFile, fsutil.TypeDirectory},
	})

	assert.Equal(t, []string{gone}, got)
}

func TestFilter_PrefersStatOverHint(t *testing.T) {
	f := NewFilter(mustConfig(t, map[string]any{"pattern": "*", "watchFiles": false}))
	f.stat = func(string) (fsutil.EntryType, error) { return fsutil.TypeDirectory, nil }

	got := f.Apply(RawEvent{
		Kind:  KindCreated,
		Paths: []string{"/x/new"},
		Types: []fsutil.EntryType{fsutil.TypeFile},
	})
	assert.Equal(t, []string{"/x/new"}, got)
}

func TestFilter_InvalidUTF8IsReplaced(t *testing.T) {
	f := NewFilter(mustConfig(t, "*"))
	f.stat = func(string) (fsutil.EntryType, error) { return fsutil.TypeFile, nil }

	got := f.Apply(RawEvent{Kind: KindCreated, Paths: []string{"/tmp/bad\xffname"}})
	assert.Equal(t, []string{"/tmp/bad\uFFFDname"}, got)
}
