package web

import (
	"context"
	"time"

	"procmux/internal/app"
	"procmux/internal/domain"
)

// Monitor periodically checks that the owning context process is still
// alive. When it disappears the monitor sweeps every orphaned backend and
// triggers daemon shutdown.
type Monitor struct {
	parentCtx string
	procs     domain.ProcessController
	manager   *app.Manager
	interval  time.Duration
	shutdown  func()
	logger    domain.Logger
}

func NewMonitor(parentCtx string, procs domain.ProcessController, manager *app.Manager, shutdown func(), logger domain.Logger) *Monitor {
	return &Monitor{
		parentCtx: parentCtx,
		procs:     procs,
		manager:   manager,
		interval:  time.Second,
		shutdown:  shutdown,
		logger:    logger,
	}
}

// Run blocks polling parent liveness until ctx is cancelled or the parent
// disappears.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.procs.Exists(m.parentCtx) {
				continue
			}
			m.logger.Info("parent process gone, shutting down", "parent_ctx", m.parentCtx)
			m.manager.SweepOrphans("")
			m.shutdown()
			return
		}
	}
}
