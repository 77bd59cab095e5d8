package providers

import (
	"github.com/samber/do/v2"

	"github.com/fsbridge/fsbridge/internal/config"
	"github.com/fsbridge/fsbridge/internal/host"
	"github.com/fsbridge/fsbridge/internal/logger"
	"github.com/fsbridge/fsbridge/internal/watch"
)

// ProvideHost provides the script host bound to the scheduler.
func ProvideHost(i do.Injector) (*host.Host, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sched := do.MustInvoke[*SchedulerHandle](i)

	backend, err := watch.ParseBackend(cfg.Watch.Backend)
	if err != nil {
		return nil, err
	}

	return host.New(sched.Scheduler,
		host.WithLogger(log.WithField("component", "watch").Logger),
		host.WithBackend(backend),
	), nil
}
