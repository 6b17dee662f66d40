// Package metrics provides recording interfaces for pipeline activity.
// It uses the null object pattern to avoid nil checks throughout the codebase.
package metrics

import "time"

// Recorder records pipeline and channel activity.
// Implementations can record to various backends (Redis, Prometheus, etc.)
type Recorder interface {
	// RecordProcessed records a record that went through the chain.
	RecordProcessed(latency time.Duration)

	// RecordError increments the chain error counter.
	RecordError()

	// RecordDelivered counts a notification accepted by the channel's target.
	RecordDelivered(channel string)

	// RecordBlocked counts a notification refused by the rate window.
	RecordBlocked(channel string)

	// RecordFailed counts a notification whose send errored.
	RecordFailed(channel string)
}

// NoOp discards all metrics.
type NoOp struct{}

// NewNoOp creates a new no-op metrics recorder.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) RecordProcessed(time.Duration) {}
func (n *NoOp) RecordError()                  {}
func (n *NoOp) RecordDelivered(string)        {}
func (n *NoOp) RecordBlocked(string)          {}
func (n *NoOp) RecordFailed(string)           {}

var _ Recorder = (*NoOp)(nil)

// Multi fans every call out to several recorders.
type Multi []Recorder

func (m Multi) RecordProcessed(latency time.Duration) {
	for _, r := range m {
		r.RecordProcessed(latency)
	}
}

func (m Multi) RecordError() {
	for _, r := range m {
		r.RecordError()
	}
}

func (m Multi) RecordDelivered(channel string) {
	for _, r := range m {
		r.RecordDelivered(channel)
	}
}

func (m Multi) RecordBlocked(channel string) {
	for _, r := range m {
		r.RecordBlocked(channel)
	}
}

func (m Multi) RecordFailed(channel string) {
	for _, r := range m {
		r.RecordFailed(channel)
	}
}

var _ Recorder = Multi(nil)

// OrNoOp returns r, or a NoOp when r is nil.
func OrNoOp(r Recorder) Recorder {
	if r == nil {
		return NewNoOp()
	}
	return r
}
