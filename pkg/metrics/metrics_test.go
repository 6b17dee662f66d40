package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector("web-1", nil)
	c.RecordProcessed(2 * time.Millisecond)
	c.RecordProcessed(4 * time.Millisecond)
	c.RecordError()
	c.RecordDelivered("discord")
	c.RecordDelivered("discord")
	c.RecordBlocked("discord")
	c.RecordFailed("email")

	snap := c.Snapshot()
	if snap.Instance != "web-1" {
		t.Errorf("Instance = %q, want web-1", snap.Instance)
	}
	if snap.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2", snap.RecordsProcessed)
	}
	if snap.PipelineErrors != 1 {
		t.Errorf("PipelineErrors = %d, want 1", snap.PipelineErrors)
	}
	if want := float64(3 * time.Millisecond); snap.AvgLatencyNs != want {
		t.Errorf("AvgLatencyNs = %v, want %v", snap.AvgLatencyNs, want)
	}
	if got := snap.Channels["discord"]; got.Delivered != 2 || got.Blocked != 1 {
		t.Errorf("discord = %+v, want 2 delivered 1 blocked", got)
	}
	if got := snap.Channels["email"]; got.Failed != 1 {
		t.Errorf("email = %+v, want 1 failed", got)
	}
}

func TestPublishWithoutRedis(t *testing.T) {
	c := NewCollector("web-1", nil)
	c.Publish(context.Background())
}

func TestStartStop(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	c := NewCollector("web-1", client)
	c.SetReportInterval(10 * time.Millisecond)
	c.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestReaderMissingInstance(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	if _, err := NewReader(client).Get(context.Background(), "nope"); err == nil {
		t.Error("Get() against unreachable redis should fail")
	}
}
