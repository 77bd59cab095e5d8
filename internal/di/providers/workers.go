package providers

import (
	"time"

	"github.com/samber/do/v2"

	"github.com/fsbridge/fsbridge/internal/config"
	"github.com/fsbridge/fsbridge/internal/logger"
	"github.com/fsbridge/fsbridge/internal/scheduler"
)

// SchedulerHandle wraps the task scheduler with shutdown capability.
type SchedulerHandle struct {
	*scheduler.Scheduler
	log *logger.Logger
}

// Shutdown implements do.Shutdownable. Queued handlers are drained, bounded
// by shutdownTimeout.
func (h *SchedulerHandle) Shutdown() error {
	done := make(chan error, 1)
	go func() { done <- h.Scheduler.Close() }()

	select {
	case err := <-done:
		completed, failed := h.Stats()
		h.log.Info("Scheduler stopped", "completed", completed, "failed", failed)
		return err
	case <-time.After(shutdownTimeout):
		h.log.Warn("Scheduler drain timed out", "pending", h.Pending(), "timeout", shutdownTimeout)
		return nil
	}
}

// ProvideScheduler provides the handler task scheduler.
func ProvideScheduler(i do.Injector) (*SchedulerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	s := scheduler.New(scheduler.Options{
		Workers: cfg.Dispatch.Workers,
		Rate:    cfg.Dispatch.Rate,
		Burst:   cfg.Dispatch.Burst,
		Logger:  log.With("component", "scheduler"),
	})
	s.Start()

	log.Info("Scheduler started",
		"workers", cfg.Dispatch.Workers,
		"rate", cfg.Dispatch.Rate,
	)

	return &SchedulerHandle{Scheduler: s, log: log}, nil
}
