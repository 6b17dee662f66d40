package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/record"
)

// DefaultDedupWindow is how long a signature suppresses repeats.
const DefaultDedupWindow = 300 * time.Second

// Deduplication suppresses batches whose significant records were already
// forwarded within the window. Signatures live in a cache so processes that
// share a backend also share suppression.
//
// A batch is forwarded, whole, only if it contains at least one record at or
// above Level that has not been seen in the window. Batches made up solely of
// records below Level are never forwarded on their own.
type Deduplication struct {
	next   Handler
	store  cache.Cache
	level  record.Level
	window time.Duration
	now    func() time.Time
}

// DedupOption configures a Deduplication stage.
type DedupOption func(*Deduplication)

// WithDedupLevel sets the minimum level that is checked for duplicates.
func WithDedupLevel(level record.Level) DedupOption {
	return func(d *Deduplication) { d.level = level }
}

// WithDedupWindow sets the suppression window.
func WithDedupWindow(window time.Duration) DedupOption {
	return func(d *Deduplication) {
		if window > 0 {
			d.window = window
		}
	}
}

// NewDeduplication wraps next.
func NewDeduplication(next Handler, store cache.Cache, opts ...DedupOption) *Deduplication {
	d := &Deduplication{
		next:   next,
		store:  store,
		level:  record.LevelWarning,
		window: DefaultDedupWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Level returns the deduplication level.
func (d *Deduplication) Level() record.Level { return d.level }

// Window returns the suppression window.
func (d *Deduplication) Window() time.Duration { return d.window }

// Unwrap returns the wrapped handler.
func (d *Deduplication) Unwrap() Handler { return d.next }

func (d *Deduplication) IsHandling(level record.Level) bool {
	return d.next.IsHandling(level)
}

func (d *Deduplication) Handle(ctx context.Context, r *record.Record) error {
	return d.HandleBatch(ctx, []*record.Record{r})
}

func (d *Deduplication) HandleBatch(ctx context.Context, records []*record.Record) error {
	passthru := false
	for _, r := range records {
		if r.Level < d.level {
			continue
		}
		key := signature(r)
		if d.store.Has(ctx, key) {
			continue
		}
		d.store.Set(ctx, key, []byte(strconv.FormatInt(d.now().Unix(), 10)), d.window)
		passthru = true
	}
	if !passthru {
		return nil
	}
	return d.next.HandleBatch(ctx, records)
}

func (d *Deduplication) Close() error {
	return d.next.Close()
}

// signature identifies records that are the same failure.
func signature(r *record.Record) string {
	h := sha1.New()
	h.Write([]byte(r.Level.String()))
	h.Write([]byte{0})
	h.Write([]byte(r.Channel))
	h.Write([]byte{0})
	h.Write([]byte(r.Message))
	return "dedup:" + hex.EncodeToString(h.Sum(nil))
}
