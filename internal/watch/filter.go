package watch

import (
	"strings"
	"unicode/utf8"

	"github.com/fsbridge/fsbridge/internal/fsutil"
)

// Filter reduces the path list of a raw event to the paths a session cares
// about. It only ever removes paths and keeps the original order.
type Filter struct {
	cfg  *Config
	stat func(string) (fsutil.EntryType, error)
}

// NewFilter returns a filter for cfg.
func NewFilter(cfg *Config) *Filter {
	return &Filter{cfg: cfg, stat: fsutil.Stat}
}

// Apply returns the paths of ev that pass both the type filter and the glob.
// The entry type is read from the filesystem at filter time; when that fails
// (the path is usually gone already) the notifier's hint is used, and a path
// without a hint is dropped.
func (f *Filter) Apply(ev RawEvent) []string {
	var kept []string
	for i, path := range ev.Paths {
		typ, err := f.stat(path)
		if err != nil {
			typ = ev.typeHint(i)
		}
		if !f.cfg.Accepts(typ) {
			continue
		}

		display := toValidUTF8(path)
		if !f.cfg.Match(display) {
			continue
		}
		kept = append(kept, display)
	}
	return kept
}

// toValidUTF8 replaces invalid byte sequences with U+FFFD.
func toValidUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
