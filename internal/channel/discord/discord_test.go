package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/channel/retry"
	"github.com/afikmenashe/logpipe/internal/metrics"
	"github.com/afikmenashe/logpipe/internal/record"
	"github.com/afikmenashe/logpipe/internal/uid"
	pkgmetrics "github.com/afikmenashe/logpipe/pkg/metrics"
)

func failure(message string) *record.Record {
	r := record.New("app", record.LevelError, message, map[string]any{
		record.KeyFile:  "/srv/app/calc.go",
		record.KeyLine:  42,
		record.KeyTrace: "#0 calc.go(42)\n#1 main.go(10)\n#2 a\n#3 b\n#4 c\n#5 d\n#6 e",
	})
	uid.NewFixed("AB12-CD34").Process(context.Background(), r)
	r.Freeze()
	return r
}

func TestBuildPayload(t *testing.T) {
	r := failure(strings.Repeat("x", 300))
	info := channel.Info{Request: channel.RequestInfo{RemoteAddr: "10.0.0.7", ServerName: "web-1"}}

	p := BuildPayload(r, info)
	if len(p.Embeds) != 1 {
		t.Fatalf("got %d embeds, want 1", len(p.Embeds))
	}
	e := p.Embeds[0]
	if got := len([]rune(e.Title)); got != 252 {
		t.Errorf("title length = %d runes, want 252", got)
	}
	if e.Color != 15158332 {
		t.Errorf("Color = %d, want 15158332", e.Color)
	}
	if strings.Contains(e.Description, "#5 d") {
		t.Error("description should hold only the first 5 trace lines")
	}
	if !strings.Contains(e.Description, "#4 c") {
		t.Error("description missing fifth trace line")
	}
	if e.Fields[0].Value != "`AB12-CD34`" {
		t.Errorf("uid field = %q", e.Fields[0].Value)
	}
	if e.Author.Name != "web-1" {
		t.Errorf("Author.Name = %q, want web-1", e.Author.Name)
	}
	if last := e.Fields[len(e.Fields)-1]; last.Name != "👤 Session" {
		t.Errorf("last field = %q, want session notice", last.Name)
	}
}

func TestBuildPayloadLoggedInUser(t *testing.T) {
	info := channel.Info{
		User:     channel.Identity{UserID: "7", Login: "ada", DisplayName: "Ada", Email: "ada@corp.test"},
		LoggedIn: true,
	}
	p := BuildPayload(failure("boom"), info)
	last := p.Embeds[0].Fields[len(p.Embeds[0].Fields)-1]
	if !strings.Contains(last.Value, "`ada`") {
		t.Errorf("user field = %q, want login", last.Value)
	}
}

func newRecorder() (*pkgmetrics.Collector, metrics.Recorder) {
	c := pkgmetrics.NewCollector("test", nil)
	return c, metrics.NewCollectorAdapter(c)
}

func TestChannelDeliversAndRateLimits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("invalid payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	collector, rec := newRecorder()
	ch := NewChannel(srv.URL, cache.NewMemoryCache(), 2, channel.WithRecorder(rec))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := ch.Handle(ctx, failure("Division by zero")); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	if calls.Load() != 2 {
		t.Errorf("webhook called %d times, want 2", calls.Load())
	}
	counts := collector.Snapshot().Channels[Name]
	if counts.Delivered != 2 || counts.Blocked != 1 {
		t.Errorf("counts = %+v, want 2 delivered 1 blocked", counts)
	}
}

func TestChannelFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad embed", http.StatusBadRequest)
	}))
	defer srv.Close()

	collector, rec := newRecorder()
	ch := NewChannel(srv.URL, cache.NewMemoryCache(), 6, channel.WithRecorder(rec))

	if err := ch.Handle(context.Background(), failure("boom")); err != nil {
		t.Fatalf("Handle() error = %v, want nil", err)
	}
	if got := collector.Snapshot().Channels[Name].Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
}

func TestSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSender(srv.URL)
	s.Webhook().Retry = retry.None()
	code, err := s.Send(context.Background(), failure("boom"), channel.Info{})
	if code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", code)
	}
	if !channel.IsStatus(err, http.StatusServiceUnavailable) {
		t.Errorf("err = %v, want StatusError 503", err)
	}
}

func TestSenderTestURL(t *testing.T) {
	s := NewSender("https://example.com/api/webhooks/1/abc")
	code, err := s.Send(context.Background(), failure("boom"), channel.Info{})
	if err != nil || code != http.StatusNoContent {
		t.Errorf("Send() = %d, %v; want 204, nil", code, err)
	}
}

func TestDefaultMaxPerMinute(t *testing.T) {
	ch := NewChannel("https://example.com/x", cache.NewMemoryCache(), 0)
	if got := ch.Window().Max(); got != DefaultMaxPerMinute {
		t.Errorf("Max() = %d, want %d", got, DefaultMaxPerMinute)
	}
	if ch.Window().Key() != RateKey {
		t.Errorf("Key() = %q, want %q", ch.Window().Key(), RateKey)
	}
}
