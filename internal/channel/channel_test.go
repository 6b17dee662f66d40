package channel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/afikmenashe/logpipe/internal/cache"
	"github.com/afikmenashe/logpipe/internal/ratelimit"
	"github.com/afikmenashe/logpipe/internal/record"
)

type captureSender struct {
	infos []Info
	code  int
	err   error
}

func (s *captureSender) Send(_ context.Context, _ *record.Record, info Info) (int, error) {
	s.infos = append(s.infos, info)
	return s.code, s.err
}

func TestChannelPassesRequestAndIdentity(t *testing.T) {
	s := &captureSender{code: 204}
	ch := New("test", s)

	ctx := WithRequest(context.Background(), RequestInfo{RemoteAddr: "10.0.0.7"})
	ctx = WithIdentity(ctx, Identity{Login: "ada"})
	if err := ch.Handle(ctx, record.New("app", record.LevelError, "boom", nil)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	info := s.infos[0]
	if info.Request.RemoteAddr != "10.0.0.7" {
		t.Errorf("RemoteAddr = %q", info.Request.RemoteAddr)
	}
	if info.Request.ServerName != "localhost" {
		t.Errorf("ServerName = %q, want localhost default", info.Request.ServerName)
	}
	if !info.LoggedIn || info.User.Login != "ada" {
		t.Errorf("identity = %+v/%v", info.User, info.LoggedIn)
	}
}

func TestChannelIdentityProviderPanic(t *testing.T) {
	s := &captureSender{}
	bad := IdentityFunc(func(context.Context) (Identity, bool) { panic("session store down") })
	ch := New("test", s, WithIdentityProvider(bad))

	if err := ch.Handle(context.Background(), record.New("app", record.LevelError, "boom", nil)); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(s.infos) != 1 || s.infos[0].LoggedIn {
		t.Error("panicking provider should yield an anonymous send")
	}
}

func TestChannelSwallowsSendErrors(t *testing.T) {
	ch := New("test", &captureSender{err: errors.New("down")})
	if err := ch.Handle(context.Background(), record.New("app", record.LevelError, "boom", nil)); err != nil {
		t.Errorf("Handle() error = %v, want nil", err)
	}
}

func TestChannelRateWindow(t *testing.T) {
	s := &captureSender{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	window := ratelimit.New(cache.NewMemoryCache(), "test_log_timestamps", 1, ratelimit.WithClock(func() time.Time { return now }))
	ch := New("test", s, WithRateWindow(window), WithLevel(record.LevelWarning))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ch.Handle(ctx, record.New("app", record.LevelError, "boom", nil))
	}
	if len(s.infos) != 1 {
		t.Errorf("sent %d, want 1", len(s.infos))
	}
	if ch.IsHandling(record.LevelInfo) {
		t.Error("IsHandling(INFO) = true with WARNING minimum")
	}
}

func TestHandleBatchFiltersLevel(t *testing.T) {
	s := &captureSender{}
	ch := New("test", s, WithLevel(record.LevelError))
	ch.HandleBatch(context.Background(), []*record.Record{
		record.New("app", record.LevelInfo, "a", nil),
		record.New("app", record.LevelError, "b", nil),
	})
	if len(s.infos) != 1 {
		t.Errorf("sent %d, want 1", len(s.infos))
	}
}

func TestStatusError(t *testing.T) {
	err := error(&StatusError{Code: 429, Body: "slow down"})
	if !IsStatus(err, 429) {
		t.Error("IsStatus(429) = false")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestTruncateAndTestURL(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate() = %q, want hé", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("Truncate(n=0) = %q", got)
	}
	if !IsTestURL("https://example.com/hook") || IsTestURL("https://discord.com") {
		t.Error("IsTestURL mismatch")
	}
}
