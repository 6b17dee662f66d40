package setup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/afikmenashe/logpipe/internal/chain"
	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/config"
	"github.com/afikmenashe/logpipe/internal/display"
	"github.com/afikmenashe/logpipe/internal/pipeline"
	"github.com/afikmenashe/logpipe/internal/record"
	"github.com/afikmenashe/logpipe/internal/uid"
)

type captured struct {
	err error
	uid string
}

func capture(c *captured) display.Handler {
	return display.Func(func(w io.Writer, err error, id string) {
		c.err = err
		c.uid = id
		io.WriteString(w, "rendered")
	})
}

type failingHandler struct{}

func (failingHandler) IsHandling(record.Level) bool { return true }
func (failingHandler) Handle(context.Context, *record.Record) error {
	return errors.New("disk full")
}
func (failingHandler) HandleBatch(context.Context, []*record.Record) error { return nil }
func (failingHandler) Close() error                                         { return nil }

func divide(a, b int) int { return a / b }

func observed(t *testing.T) (*Setup, *pipeline.Observer, *captured) {
	t.Helper()
	obs := pipeline.NewObserver(record.LevelDebug)
	ids := uid.NewFixed("AB12-CD34")
	logger := pipeline.NewLogger("app", []pipeline.Handler{obs}, ids)
	c := &captured{}
	s := New(logger, ids, capture(c), WithFallback(io.Discard))
	if err := s.Register(); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return s, obs, c
}

func TestEndToEnd_DivisionByZero(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.File.Path = filepath.Join(dir, "app.log")

	ids := uid.NewFixed("AB12-CD34")
	c, err := chain.Build(context.Background(), cfg, chain.Deps{UID: ids})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got := &captured{}
	s := New(c.Logger, ids, capture(got))
	s.Register()

	failure := NewFailure(errors.New("Division by zero"), 0).At("calc.php", 42)
	var page bytes.Buffer
	if err := s.Handle(context.Background(), &page, failure); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	c.Close()

	if s.State() != StateRecovered {
		t.Errorf("State() = %v, want recovered", s.State())
	}
	if got.uid != "AB12-CD34" {
		t.Errorf("display uid = %q, want AB12-CD34", got.uid)
	}
	if got.err != failure {
		t.Errorf("display err = %v, want the failure", got.err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "app-*.log"))
	if len(matches) != 1 {
		t.Fatalf("log files = %v, want 1", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	for _, want := range []string{"[AB12-CD34]", "Division by zero", "CRITICAL", `"file":"calc.php"`, `"line":42`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q:\n%s", want, line)
		}
	}
}

func TestRegister(t *testing.T) {
	s := New(pipeline.NewLogger("app", nil), uid.NewFixed("AB12-CD34"), nil)
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
	if err := s.Register(); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want ready", s.State())
	}
	if err := s.Register(); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register() error = %v, want ErrAlreadyRegistered", err)
	}
}

func TestHandle_IdleReturnsError(t *testing.T) {
	obs := pipeline.NewObserver(record.LevelDebug)
	ids := uid.NewFixed("AB12-CD34")
	c := &captured{}
	s := New(pipeline.NewLogger("app", []pipeline.Handler{obs}, ids), ids, capture(c))

	failure := errors.New("Division by zero")
	var page bytes.Buffer
	if err := s.Handle(context.Background(), &page, failure); err != failure {
		t.Errorf("Handle() = %v, want the original error", err)
	}
	if len(obs.Records()) != 0 || c.err != nil || page.Len() != 0 {
		t.Error("unregistered setup logged or rendered")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want idle", s.State())
	}
}

func TestHandle_PermissionDeniedBypasses(t *testing.T) {
	s, obs, c := observed(t)
	denied := fmt.Errorf("orders page: %w", ErrPermissionDenied)

	if err := s.Handle(context.Background(), io.Discard, denied); err != denied {
		t.Errorf("Handle() = %v, want the original error", err)
	}
	if len(obs.Records()) != 0 {
		t.Errorf("records = %d, want 0", len(obs.Records()))
	}
	if c.err != nil {
		t.Error("display was called for a permission rejection")
	}
	if s.State() != StateReady {
		t.Errorf("State() = %v, want ready", s.State())
	}
}

func TestHandle_Fatal(t *testing.T) {
	ids := uid.NewFixed("AB12-CD34")
	logger := pipeline.NewLogger("app", []pipeline.Handler{failingHandler{}}, ids)
	c := &captured{}
	var fallback bytes.Buffer
	s := New(logger, ids, capture(c), WithFallback(&fallback))
	s.Register()

	var page bytes.Buffer
	if err := s.Handle(context.Background(), &page, errors.New("Division by zero")); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if s.State() != StateFatal {
		t.Errorf("State() = %v, want fatal", s.State())
	}
	if page.String() != FatalMessage {
		t.Errorf("page = %q, want %q", page.String(), FatalMessage)
	}
	for _, want := range []string{"Division by zero", "disk full"} {
		if !strings.Contains(fallback.String(), want) {
			t.Errorf("fallback missing %q:\n%s", want, fallback.String())
		}
	}
	if c.err != nil {
		t.Error("display was called on the fatal path")
	}
}

func TestHandle_DisplayPanicIsFatal(t *testing.T) {
	ids := uid.NewFixed("AB12-CD34")
	logger := pipeline.NewLogger("app", nil, ids)
	var fallback bytes.Buffer
	s := New(logger, ids, display.Func(func(io.Writer, error, string) { panic("template missing") }), WithFallback(&fallback))
	s.Register()

	var page bytes.Buffer
	s.Handle(context.Background(), &page, errors.New("boom"))
	if s.State() != StateFatal {
		t.Errorf("State() = %v, want fatal", s.State())
	}
	if !strings.Contains(fallback.String(), "template missing") {
		t.Errorf("fallback = %q, want the panic value", fallback.String())
	}
}

func TestRecover(t *testing.T) {
	s, obs, c := observed(t)

	func() {
		defer s.Recover(context.Background(), io.Discard)
		divide(1, 0)
	}()

	last := obs.Last()
	if last == nil {
		t.Fatal("no record logged")
	}
	if last.Level != record.LevelCritical {
		t.Errorf("Level = %v, want CRITICAL", last.Level)
	}
	if !strings.Contains(last.Message, "divide by zero") {
		t.Errorf("Message = %q, want divide by zero", last.Message)
	}
	if !strings.HasSuffix(last.File(), "setup_test.go") {
		t.Errorf("File() = %q, want setup_test.go", last.File())
	}
	if c.uid != "AB12-CD34" {
		t.Errorf("display uid = %q, want AB12-CD34", c.uid)
	}
}

func TestRecover_PermissionDeniedRepanics(t *testing.T) {
	s, obs, _ := observed(t)

	defer func() {
		v := recover()
		if v != ErrPermissionDenied {
			t.Errorf("recovered %v, want ErrPermissionDenied", v)
		}
		if len(obs.Records()) != 0 {
			t.Errorf("records = %d, want 0", len(obs.Records()))
		}
	}()
	func() {
		defer s.Recover(context.Background(), io.Discard)
		panic(ErrPermissionDenied)
	}()
}

func TestMiddleware(t *testing.T) {
	s, obs, c := observed(t)

	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			panic("checkout exploded")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("/ok status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("/boom status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if rec.Body.String() != "rendered" {
		t.Errorf("body = %q, want rendered", rec.Body.String())
	}
	if c.err == nil || c.err.Error() != "checkout exploded" {
		t.Errorf("display err = %v, want checkout exploded", c.err)
	}
	if len(obs.Records()) != 1 {
		t.Errorf("records = %d, want 1", len(obs.Records()))
	}
}

func TestMiddleware_RequestsKeepTheirOwnContext(t *testing.T) {
	discord := pipeline.NewObserver(record.LevelDebug)
	ids := uid.NewFixed("AB12-CD34")
	gate := pipeline.NewFingersCrossed(discord, record.LevelError)
	logger := pipeline.NewLogger("app", []pipeline.Handler{gate}, ids, channel.WebProcessor{})
	s := New(logger, ids, capture(&captured{}), WithFallback(io.Discard))
	s.Register()

	aStarted := make(chan struct{})
	aResume := make(chan struct{})
	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		switch r.URL.Path {
		case "/a":
			logger.Debug(ctx, "A context", nil)
			close(aStarted)
			<-aResume
			logger.Error(ctx, "A failure", nil)
		case "/b":
			logger.Debug(ctx, "B context", nil)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a", nil))
	}()
	<-aStarted
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/b", nil))
	close(aResume)
	<-done

	var msgs []string
	for _, r := range discord.Records() {
		msgs = append(msgs, r.Message)
		if got, _ := r.ExtraValue(channel.ExtraURL); got != "/a" {
			t.Errorf("%q url = %v, want /a", r.Message, got)
		}
	}
	if got := strings.Join(msgs, ","); got != "A context,A failure" {
		t.Errorf("released %q, want A's context and failure only", got)
	}
	if n := gate.Buffered(context.Background()); n != 0 {
		t.Errorf("process scope buffered %d, want 0", n)
	}
}

func TestLogError(t *testing.T) {
	s, obs, _ := observed(t)

	s.LogError(context.Background(), errors.New("card declined"), record.LevelWarning, DefaultPrefix)

	last := obs.Last()
	if last == nil {
		t.Fatal("no record logged")
	}
	if last.Message != "Handled business error: card declined" {
		t.Errorf("Message = %q", last.Message)
	}
	if last.Level != record.LevelWarning {
		t.Errorf("Level = %v, want WARNING", last.Level)
	}
	if !strings.HasSuffix(last.File(), "setup_test.go") {
		t.Errorf("File() = %q, want setup_test.go", last.File())
	}
}

func TestFromPanic(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"string", "boom", "boom"},
		{"error", errors.New("bad"), "bad"},
		{"int", 42, "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromPanic(tt.v).Error(); got != tt.want {
				t.Errorf("FromPanic(%v).Error() = %q, want %q", tt.v, got, tt.want)
			}
		})
	}

	f := NewFailure(ErrPermissionDenied, 0)
	if !errors.Is(f, ErrPermissionDenied) {
		t.Error("errors.Is(NewFailure(ErrPermissionDenied), ErrPermissionDenied) = false")
	}
}
