package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/afikmenashe/logpipe/internal/config"
)

type detailed struct{ msg string }

func (d detailed) Error() string   { return d.msg }
func (d detailed) File() string    { return "calc.go" }
func (d detailed) Line() int       { return 42 }
func (d detailed) Trace() []string { return []string{"main.divide", "main.main"} }

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { panic("write exploded") }

func TestSelect(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.General
		want string
	}{
		{"development", config.General{Environment: config.Development}, "trace"},
		{"development pretty", config.General{Environment: config.Development, Pretty: true}, "pretty"},
		{"production", config.General{Environment: config.Production}, "production"},
		{"production debug", config.General{Environment: config.Production, Debug: true}, "trace"},
		{"silent", config.General{Environment: config.Development, Display: config.DisplaySilent}, "silent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(tt.cfg).Name(); got != tt.want {
				t.Errorf("Select() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProduction_ShowsCodeOnly(t *testing.T) {
	var buf bytes.Buffer
	Production{}.Handle(&buf, detailed{"secret database password"}, "AB12-CD34")

	out := buf.String()
	if !strings.Contains(out, "AB12-CD34") {
		t.Errorf("output missing correlation id:\n%s", out)
	}
	if strings.Contains(out, "secret database password") {
		t.Error("production output leaks the error message")
	}
}

func TestTraceView(t *testing.T) {
	var buf bytes.Buffer
	TraceView{}.Handle(&buf, detailed{"Division by zero <b>"}, "AB12-CD34")

	out := buf.String()
	for _, want := range []string{"Error (ID: AB12-CD34)", "Division by zero &lt;b&gt;", "calc.go:42", "main.divide"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrettyPage_NoUID(t *testing.T) {
	var buf bytes.Buffer
	PrettyPage{}.Handle(&buf, errors.New("boom"), "")
	if !strings.Contains(buf.String(), "N/A") {
		t.Errorf("output missing N/A placeholder:\n%s", buf.String())
	}
}

func TestHandlersDoNotPanic(t *testing.T) {
	for _, h := range []Handler{Production{}, TraceView{}, PrettyPage{}, Silent{}} {
		t.Run(h.Name(), func(t *testing.T) {
			h.Handle(brokenWriter{}, nil, "AB12-CD34")
		})
	}
}

func TestSilent(t *testing.T) {
	var buf bytes.Buffer
	Silent{}.Handle(&buf, errors.New("boom"), "AB12-CD34")
	if buf.Len() != 0 {
		t.Errorf("Silent wrote %q, want nothing", buf.String())
	}
}
