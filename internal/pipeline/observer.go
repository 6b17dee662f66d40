package pipeline

import (
	"context"
	"sync"

	"github.com/afikmenashe/logpipe/internal/record"
)

// Observer keeps every record it receives in memory.
type Observer struct {
	mu      sync.Mutex
	min     record.Level
	records []*record.Record
}

// NewObserver creates an observer that accepts records at or above min.
func NewObserver(min record.Level) *Observer {
	return &Observer{min: min}
}

func (o *Observer) Name() string { return "observer" }

func (o *Observer) IsHandling(level record.Level) bool {
	return level >= o.min
}

func (o *Observer) Handle(_ context.Context, r *record.Record) error {
	o.mu.Lock()
	o.records = append(o.records, r)
	o.mu.Unlock()
	return nil
}

func (o *Observer) HandleBatch(ctx context.Context, records []*record.Record) error {
	return HandleEach(ctx, o, records)
}

func (o *Observer) Close() error { return nil }

// Records returns the captured records in arrival order.
func (o *Observer) Records() []*record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*record.Record, len(o.records))
	copy(out, o.records)
	return out
}

// Last returns the most recent record, or nil.
func (o *Observer) Last() *record.Record {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.records) == 0 {
		return nil
	}
	return o.records[len(o.records)-1]
}

// Clear forgets captured records.
func (o *Observer) Clear() {
	o.mu.Lock()
	o.records = nil
	o.mu.Unlock()
}
