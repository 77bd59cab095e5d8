// Package config provides fswatch configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsbridge/fsbridge/internal/errors"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Watch    WatchConfig
	Dispatch DispatchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// WatchConfig describes the single watch session the CLI runs.
type WatchConfig struct {
	Root             string        // Directory or file to watch (required)
	Pattern          string        // Glob matched against full paths (default: *)
	Recursive        bool          // Watch nested directories (default: false)
	WatchFiles       bool          // Report files (default: true)
	WatchDirectories bool          // Report directories (default: true)
	Interval         time.Duration // Poll backend period (default: 30s)
	Backend          string        // auto, inotify, fsnotify or poll (default: auto)
}

// DispatchConfig holds handler scheduling configuration.
type DispatchConfig struct {
	// Workers is the number of handler workers. One keeps handlers in event order.
	Workers int
	// Rate limits handler invocations per category per second; 0 disables pacing.
	Rate float64
	// Burst is the pacing bucket size (default: 1)
	Burst int
}

// LoadConfig loads configuration from the process arguments and environment.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("fswatch", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")

	// Watch flags
	root := fs.String("root", "", "Directory or file to watch")
	pattern := fs.String("pattern", "", "Glob matched against full paths (default: *)")
	recursive := fs.String("recursive", "", "Watch nested directories (default: false)")
	watchFiles := fs.String("files", "", "Report file events (default: true)")
	watchDirs := fs.String("directories", "", "Report directory events (default: true)")
	interval := fs.String("interval", "", "Polling interval for the poll backend (default: 30s)")
	backend := fs.String("backend", "", "Notifier backend: auto, inotify, fsnotify, poll (default: auto)")

	// Dispatch flags
	workers := fs.String("workers", "", "Handler workers (default: 1)")
	rate := fs.String("rate", "", "Handler invocations per second per category, 0 for unlimited (default: 0)")
	burst := fs.String("burst", "", "Handler burst size (default: 1)")

	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfig, "invalid arguments")
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// A bare positional argument is the root.
	rootValue := *root
	if rootValue == "" && fs.NArg() > 0 {
		rootValue = fs.Arg(0)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Watch: WatchConfig{
			Root:             getConfigValue(rootValue, "WATCH_ROOT", ""),
			Pattern:          getConfigValue(*pattern, "WATCH_PATTERN", "*"),
			Recursive:        getBoolConfigValue(*recursive, "WATCH_RECURSIVE", false),
			WatchFiles:       getBoolConfigValue(*watchFiles, "WATCH_FILES", true),
			WatchDirectories: getBoolConfigValue(*watchDirs, "WATCH_DIRECTORIES", true),
			Backend:          strings.ToLower(getConfigValue(*backend, "WATCH_BACKEND", "auto")),
		},
		Dispatch: DispatchConfig{
			Workers: getIntConfigValue(*workers, "DISPATCH_WORKERS", 1),
			Burst:   getIntConfigValue(*burst, "DISPATCH_BURST", 1),
		},
	}

	intervalStr := getConfigValue(*interval, "WATCH_INTERVAL", "30s")
	intervalDuration, err := parseInterval(intervalStr)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "invalid watch interval %q", intervalStr)
	}
	cfg.Watch.Interval = intervalDuration

	rateStr := getConfigValue(*rate, "DISPATCH_RATE", "0")
	rateValue, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfig, "invalid dispatch rate %q", rateStr)
	}
	cfg.Dispatch.Rate = rateValue

	// Expand watch root.
	if cfg.Watch.Root != "" {
		expanded, err := expandPath(cfg.Watch.Root)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeConfig, "invalid watch root")
		}
		cfg.Watch.Root = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.Config("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return errors.Configf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return errors.Configf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Watch.Root == "" {
		return errors.Config("watch root is required (set -root, WATCH_ROOT, or pass it as an argument)")
	}
	if c.Watch.Pattern == "" {
		return errors.Config("watch pattern cannot be empty")
	}
	if c.Watch.Interval < time.Second {
		return errors.Configf("invalid watch interval: %s (must be at least 1s)", c.Watch.Interval)
	}

	validBackends := map[string]bool{
		"auto":     true,
		"inotify":  true,
		"fsnotify": true,
		"poll":     true,
	}
	if !validBackends[c.Watch.Backend] {
		return errors.Configf("invalid watch backend: %s (must be auto, inotify, fsnotify, or poll)", c.Watch.Backend)
	}

	if c.Dispatch.Workers < 1 {
		return errors.Configf("invalid dispatch workers: %d (must be at least 1)", c.Dispatch.Workers)
	}
	if c.Dispatch.Rate < 0 {
		return errors.Configf("invalid dispatch rate: %g (must not be negative)", c.Dispatch.Rate)
	}
	if c.Dispatch.Burst < 0 {
		return errors.Configf("invalid dispatch burst: %d (must not be negative)", c.Dispatch.Burst)
	}

	return nil
}

// parseInterval accepts a Go duration ("45s", "2m") or a bare number of seconds.
func parseInterval(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// expandPath expands ~ and makes the path absolute.
func expandPath(path string) (string, error) {
	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
