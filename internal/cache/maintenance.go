package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule is the sweep cadence used when none is configured.
const DefaultSchedule = "@every 10m"

// Maintenance runs CollectGarbage on every registered collector on a cron
// schedule owned by the host process.
type Maintenance struct {
	cron       *cron.Cron
	collectors []Collector
	timeout    time.Duration
}

// NewMaintenance schedules sweeps of the given collectors.
func NewMaintenance(schedule string, collectors ...Collector) (*Maintenance, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	m := &Maintenance{
		cron:       cron.New(),
		collectors: collectors,
		timeout:    time.Minute,
	}
	if _, err := m.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		m.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	return m, nil
}

// CollectorOf returns c as a Collector when the backend needs sweeping.
func CollectorOf(c Cache) (Collector, bool) {
	col, ok := c.(Collector)
	return col, ok
}

// Start begins the schedule in the background.
func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop halts the schedule and waits for a running sweep, bounded by ctx.
func (m *Maintenance) Stop(ctx context.Context) {
	done := m.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce sweeps every collector and returns the total removed. A failing
// collector does not stop the others.
func (m *Maintenance) RunOnce(ctx context.Context) int {
	total := 0
	for _, c := range m.collectors {
		removed, err := c.CollectGarbage(ctx)
		total += removed
		if err != nil {
			slog.Warn("Cache sweep finished with errors", "removed", removed, "error", err)
		}
	}
	if total > 0 {
		slog.Info("Expired cache entries removed", "count", total)
	}
	return total
}
