package watch

import (
	"math"
	"strconv"
	"time"

	"github.com/gobwas/glob"

	"github.com/fsbridge/fsbridge/internal/errors"
	"github.com/fsbridge/fsbridge/internal/fsutil"
	"github.com/fsbridge/fsbridge/internal/validation"
)

// DefaultInterval is the polling period used when the options omit one.
const DefaultInterval = 30 * time.Second

// Option keys understood in the record form.
const (
	keyPattern          = "pattern"
	keyRecursive        = "recursive"
	keyWatchFiles       = "watchFiles"
	keyWatchDirectories = "watchDirectories"
	keyInterval         = "interval"
)

var optionValidator = validation.New()

// Options is the user-facing watch configuration.
type Options struct {
	// Pattern is a glob matched against the full path of every candidate.
	Pattern string `option:"pattern" validate:"required"`
	// Recursive watches nested descendants instead of direct children only.
	Recursive bool `option:"recursive"`
	// WatchFiles keeps events for regular files.
	WatchFiles bool `option:"watchFiles"`
	// WatchDirectories keeps events for directories.
	WatchDirectories bool `option:"watchDirectories"`
	// Interval is the polling period. Only the poll backend uses it.
	Interval time.Duration `option:"interval" validate:"gte=1s"`
}

// DefaultOptions returns the options a bare pattern string stands for.
func DefaultOptions(pattern string) Options {
	return Options{
		Pattern:          pattern,
		Recursive:        false,
		WatchFiles:       true,
		WatchDirectories: true,
		Interval:         DefaultInterval,
	}
}

// Config is a validated Options value with its compiled glob.
type Config struct {
	Options
	matcher glob.Glob
}

// NewConfig builds a Config from what a script passed as watch options: a
// pattern string, a table (map[string]any) or an Options value. Every failure
// is a config error.
func NewConfig(v any) (*Config, error) {
	var opts Options
	switch val := v.(type) {
	case string:
		opts = DefaultOptions(val)
	case map[string]any:
		parsed, err := optionsFromTable(val)
		if err != nil {
			return nil, err
		}
		opts = parsed
	case Options:
		opts = val
	case *Options:
		if val == nil {
			return nil, errors.Config("options must be a string or a table")
		}
		opts = *val
	default:
		return nil, errors.Configf("options must be a string or a table, got %T", v)
	}
	return opts.Compile()
}

// Compile validates the options and compiles the pattern.
func (o Options) Compile() (*Config, error) {
	if err := optionValidator.Validate(o); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "invalid watch options")
	}

	// No separators: like a shell glob over the whole path string, '*' also
	// crosses '/' so "*.txt" matches files at any depth.
	matcher, err := glob.Compile(o.Pattern)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "invalid glob pattern %q", o.Pattern)
	}

	return &Config{Options: o, matcher: matcher}, nil
}

// Match reports whether path matches the compiled pattern.
func (c *Config) Match(path string) bool {
	return c.matcher.Match(path)
}

// Accepts reports whether entries of the given type pass the type filter.
func (c *Config) Accepts(t fsutil.EntryType) bool {
	switch t {
	case fsutil.TypeFile:
		return c.WatchFiles
	case fsutil.TypeDirectory:
		return c.WatchDirectories
	default:
		return false
	}
}

func optionsFromTable(t map[string]any) (Options, error) {
	opts := DefaultOptions("")

	raw, ok := t[keyPattern]
	if !ok || raw == nil {
		return Options{}, errors.Configf("options table is missing %q", keyPattern)
	}
	pattern, ok := raw.(string)
	if !ok {
		return Options{}, errors.Configf("option %q must be a string, got %T", keyPattern, raw)
	}
	opts.Pattern = pattern

	for key, dst := range map[string]*bool{
		keyRecursive:        &opts.Recursive,
		keyWatchFiles:       &opts.WatchFiles,
		keyWatchDirectories: &opts.WatchDirectories,
	} {
		raw, ok := t[key]
		if !ok || raw == nil {
			continue
		}
		b, ok := raw.(bool)
		if !ok {
			return Options{}, errors.Configf("option %q must be a boolean, got %T", key, raw)
		}
		*dst = b
	}

	if raw, ok := t[keyInterval]; ok && raw != nil {
		secs, err := wholeSeconds(raw)
		if err != nil {
			return Options{}, err
		}
		opts.Interval = time.Duration(secs) * time.Second
	}

	return opts, nil
}

// wholeSeconds accepts the numeric shapes a script runtime hands over and
// insists on a positive integral number of seconds.
func wholeSeconds(raw any) (int64, error) {
	var secs int64
	switch n := raw.(type) {
	case int:
		secs = int64(n)
	case int32:
		secs = int64(n)
	case int64:
		secs = n
	case uint:
		if uint64(n) > math.MaxInt32 {
			return 0, errors.Configf("option %q is too large", keyInterval)
		}
		secs = int64(n)
	case uint32:
		secs = int64(n)
	case uint64:
		if n > math.MaxInt32 {
			return 0, errors.Configf("option %q is too large", keyInterval)
		}
		secs = int64(n)
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, errors.Configf("option %q must be a whole number of seconds, got %s",
				keyInterval, strconv.FormatFloat(n, 'g', -1, 64))
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return 0, errors.Configf("option %q is too large", keyInterval)
		}
		secs = int64(n)
	default:
		return 0, errors.Configf("option %q must be a number, got %T", keyInterval, raw)
	}

	if secs < 1 {
		return 0, errors.Configf("option %q must be at least 1 second", keyInterval)
	}
	if secs > math.MaxInt32 {
		return 0, errors.Configf("option %q is too large", keyInterval)
	}
	return secs, nil
}
