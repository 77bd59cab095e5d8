// Package main provides the fswatch command: it watches one directory and
// prints every dispatched change until interrupted.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/fsbridge/fsbridge/internal/config"
	"github.com/fsbridge/fsbridge/internal/di"
	"github.com/fsbridge/fsbridge/internal/host"
	"github.com/fsbridge/fsbridge/internal/logger"
	"github.com/fsbridge/fsbridge/internal/watch"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Create DI container
	injector := di.NewContainer()

	h, err := di.Bootstrap(injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start fswatch: %v\n", err)
		return host.ExitCode(err)
	}

	cfg := do.MustInvoke[*config.Config](injector)
	log := do.MustInvoke[*logger.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchErr := h.Watch(ctx, cfg.Watch.Root, watchOptions(cfg.Watch), printHandlers(os.Stdout))
	if watchErr != nil {
		log.WithError(watchErr).Error("Watch ended with an error", "root", cfg.Watch.Root)
	} else {
		log.Info("Shutting down fswatch...")
	}

	// The DI container drains the scheduler on shutdown.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	return host.ExitCode(watchErr)
}

// watchOptions renders the configuration as the option table a script would
// pass.
func watchOptions(cfg config.WatchConfig) map[string]any {
	return map[string]any{
		"pattern":          cfg.Pattern,
		"recursive":        cfg.Recursive,
		"watchFiles":       cfg.WatchFiles,
		"watchDirectories": cfg.WatchDirectories,
		"interval":         int(cfg.Interval.Seconds()),
	}
}

// printHandlers registers one handler per category that writes
// "<category>\t<path>" lines to w.
func printHandlers(w io.Writer) map[string]any {
	handlers := make(map[string]any, 4)
	for _, c := range []watch.Category{
		watch.CategoryAdded,
		watch.CategoryRemoved,
		watch.CategoryChanged,
		watch.CategoryRead,
	} {
		name := c.String()
		handlers[name] = func(paths []string) error {
			var b strings.Builder
			for _, p := range paths {
				b.WriteString(name)
				b.WriteByte('\t')
				b.WriteString(p)
				b.WriteByte('\n')
			}
			_, err := io.WriteString(w, b.String())
			return err
		}
	}
	return handlers
}
