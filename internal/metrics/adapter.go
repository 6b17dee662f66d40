package metrics

import (
	"time"

	"github.com/afikmenashe/logpipe/pkg/metrics"
)

// CollectorAdapter adapts pkg/metrics.Collector to the Recorder interface.
type CollectorAdapter struct {
	collector *metrics.Collector
}

// NewCollectorAdapter wraps a metrics.Collector to implement Recorder.
func NewCollectorAdapter(collector *metrics.Collector) *CollectorAdapter {
	return &CollectorAdapter{collector: collector}
}

func (a *CollectorAdapter) RecordProcessed(latency time.Duration) {
	a.collector.RecordProcessed(latency)
}

func (a *CollectorAdapter) RecordError() {
	a.collector.RecordError()
}

func (a *CollectorAdapter) RecordDelivered(channel string) {
	a.collector.RecordDelivered(channel)
}

func (a *CollectorAdapter) RecordBlocked(channel string) {
	a.collector.RecordBlocked(channel)
}

func (a *CollectorAdapter) RecordFailed(channel string) {
	a.collector.RecordFailed(channel)
}

// Ensure CollectorAdapter implements Recorder
var _ Recorder = (*CollectorAdapter)(nil)
