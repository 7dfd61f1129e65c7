package engine

import (
	"context"
	"log/slog"
	"time"
)

// Prober checks whether the remote is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor polls connectivity and feeds transitions into the engine.
// A failed probe marks the device offline; the first successful probe after
// that marks it online again, which triggers an immediate sync.
type Monitor struct {
	prober   Prober
	engine   *Engine
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a Monitor probing at the given interval.
func NewMonitor(prober Prober, e *Engine, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		prober:   prober,
		engine:   e,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

// Run starts the probe loop. Blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("connectivity monitor started",
		"component", "monitor",
		"action", "monitor_started",
		"interval", m.interval.String(),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("connectivity monitor stopped",
				"component", "monitor",
				"action", "monitor_stopped",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.Ping(probeCtx)
	if ctx.Err() != nil {
		return
	}
	m.engine.SetOnline(ctx, err == nil)
}
