// Package metrics keeps delivery counters for a logpipe instance and
// publishes them to Redis as JSON snapshots so several instances can be
// inspected from one place.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for instance snapshots.
	KeyPrefix = "logpipe:metrics:"
	// SnapshotTTL is how long a snapshot stays in Redis if not refreshed.
	SnapshotTTL = 2 * time.Minute
	// DefaultReportInterval is how often snapshots are written.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot is the published state of one instance.
type Snapshot struct {
	Instance    string    `json:"instance"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "stale"

	RecordsProcessed uint64  `json:"records_processed"`
	PipelineErrors   uint64  `json:"pipeline_errors"`
	RecordsPerSecond float64 `json:"records_per_second"`
	AvgLatencyNs     float64 `json:"avg_latency_ns"`

	// Per-channel outcome counters.
	Channels map[string]ChannelCounts `json:"channels,omitempty"`
}

// ChannelCounts are the outcomes of one notification channel.
type ChannelCounts struct {
	Delivered uint64 `json:"delivered"`
	Blocked   uint64 `json:"blocked"`
	Failed    uint64 `json:"failed"`
}

type channelCounters struct {
	delivered atomic.Uint64
	blocked   atomic.Uint64
	failed    atomic.Uint64
}

// Collector counts pipeline activity and periodically writes a Snapshot.
type Collector struct {
	instance       string
	redis          redis.Cmdable
	startedAt      time.Time
	reportInterval time.Duration

	processed      atomic.Uint64
	errors         atomic.Uint64
	totalLatencyNs atomic.Uint64

	rateMu        sync.Mutex
	lastReport    time.Time
	lastProcessed uint64

	channelsMu sync.RWMutex
	channels   map[string]*channelCounters

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector. client may be nil, in which case
// snapshots are only available through Snapshot.
func NewCollector(instance string, client redis.Cmdable) *Collector {
	now := time.Now().UTC()
	return &Collector{
		instance:       instance,
		redis:          client,
		startedAt:      now,
		reportInterval: DefaultReportInterval,
		lastReport:     now,
		channels:       make(map[string]*channelCounters),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval changes how often snapshots are written. Call before Start.
func (c *Collector) SetReportInterval(interval time.Duration) {
	if interval > 0 {
		c.reportInterval = interval
	}
}

// Start writes snapshots until ctx is done or Stop is called, with a final
// write on the way out.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.Publish(context.Background())
				return
			case <-c.stopCh:
				c.Publish(context.Background())
				return
			case <-ticker.C:
				c.Publish(ctx)
			}
		}
	}()
}

// Stop ends reporting and waits for the final write.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// RecordProcessed counts a record that went through the chain.
func (c *Collector) RecordProcessed(latency time.Duration) {
	c.processed.Add(1)
	if latency > 0 {
		c.totalLatencyNs.Add(uint64(latency.Nanoseconds()))
	}
}

// RecordError counts a record whose chain returned an error.
func (c *Collector) RecordError() {
	c.errors.Add(1)
}

func (c *Collector) RecordDelivered(channel string) { c.channel(channel).delivered.Add(1) }
func (c *Collector) RecordBlocked(channel string)   { c.channel(channel).blocked.Add(1) }
func (c *Collector) RecordFailed(channel string)    { c.channel(channel).failed.Add(1) }

func (c *Collector) channel(name string) *channelCounters {
	c.channelsMu.RLock()
	counters, ok := c.channels[name]
	c.channelsMu.RUnlock()
	if ok {
		return counters
	}

	c.channelsMu.Lock()
	defer c.channelsMu.Unlock()
	if counters, ok = c.channels[name]; !ok {
		counters = &channelCounters{}
		c.channels[name] = counters
	}
	return counters
}

// Snapshot returns the current state without writing it anywhere.
func (c *Collector) Snapshot() *Snapshot {
	now := time.Now().UTC()
	processed := c.processed.Load()

	c.rateMu.Lock()
	var rate float64
	if elapsed := now.Sub(c.lastReport).Seconds(); elapsed > 0 {
		rate = float64(processed-c.lastProcessed) / elapsed
	}
	c.rateMu.Unlock()

	var avg float64
	if processed > 0 {
		avg = float64(c.totalLatencyNs.Load()) / float64(processed)
	}

	c.channelsMu.RLock()
	channels := make(map[string]ChannelCounts, len(c.channels))
	for name, cc := range c.channels {
		channels[name] = ChannelCounts{
			Delivered: cc.delivered.Load(),
			Blocked:   cc.blocked.Load(),
			Failed:    cc.failed.Load(),
		}
	}
	c.channelsMu.RUnlock()

	return &Snapshot{
		Instance:         c.instance,
		StartedAt:        c.startedAt,
		LastUpdated:      now,
		Status:           "healthy",
		RecordsProcessed: processed,
		PipelineErrors:   c.errors.Load(),
		RecordsPerSecond: rate,
		AvgLatencyNs:     avg,
		Channels:         channels,
	}
}

// Publish writes the current snapshot to Redis.
func (c *Collector) Publish(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snap := c.Snapshot()
	c.rateMu.Lock()
	c.lastReport = snap.LastUpdated
	c.lastProcessed = snap.RecordsProcessed
	c.rateMu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("Failed to marshal metrics", "instance", c.instance, "error", err)
		return
	}

	key := KeyPrefix + c.instance
	if err := c.redis.Set(ctx, key, data, SnapshotTTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "instance", c.instance, "error", err)
		return
	}
	slog.Debug("Metrics written to Redis", "instance", c.instance, "key", key)
}

// Reader reads published snapshots.
type Reader struct {
	redis redis.Cmdable
}

// NewReader creates a reader.
func NewReader(client redis.Cmdable) *Reader {
	return &Reader{redis: client}
}

// Get returns the snapshot of one instance. Snapshots older than SnapshotTTL
// are marked stale.
func (r *Reader) Get(ctx context.Context, instance string) (*Snapshot, error) {
	data, err := r.redis.Get(ctx, KeyPrefix+instance).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no metrics found for instance: %s", instance)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if time.Since(snap.LastUpdated) > SnapshotTTL {
		snap.Status = "stale"
	}
	return &snap, nil
}

// Instances lists instances with a published snapshot.
func (r *Reader) Instances(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		names  []string
	)
	for {
		keys, next, err := r.redis.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list metrics keys: %w", err)
		}
		for _, key := range keys {
			names = append(names, key[len(KeyPrefix):])
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(names)
	return names, nil
}
