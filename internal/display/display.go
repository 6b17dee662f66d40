// Package display renders a captured failure for the person who hit it.
// Handlers never return errors and recover their own panics: they run at the
// end of failure handling where nothing is left to report to.
package display

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"

	"github.com/afikmenashe/logpipe/internal/config"
)

// Detail is implemented by failures that know where they happened.
type Detail interface {
	File() string
	Line() int
	Trace() []string
}

// Handler presents err with its correlation id. uid may be empty.
type Handler interface {
	Name() string
	Handle(w io.Writer, err error, uid string)
}

// Select picks the handler for the configured environment.
func Select(cfg config.General) Handler {
	if cfg.Display == config.DisplaySilent {
		return Silent{}
	}
	if cfg.Environment == config.Development {
		if cfg.Pretty {
			return PrettyPage{}
		}
		return TraceView{}
	}
	if cfg.Debug {
		return TraceView{}
	}
	return Production{}
}

// view is the data every template renders.
type view struct {
	UID     string
	Message string
	Kind    string
	File    string
	Line    int
	Trace   []string
}

func newView(err error, uid string) view {
	v := view{UID: uid, Kind: fmt.Sprintf("%T", err)}
	if err != nil {
		v.Message = err.Error()
	}
	var d Detail
	if errors.As(err, &d) {
		v.File = d.File()
		v.Line = d.Line()
		v.Trace = d.Trace()
	}
	if v.UID == "" {
		v.UID = "N/A"
	}
	return v
}

func render(name string, tmpl *template.Template, w io.Writer, err error, uid string) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("Display handler panicked", "handler", name, "panic", v)
		}
	}()
	if rerr := tmpl.Execute(w, newView(err, uid)); rerr != nil {
		slog.Error("Failed to render failure page", "handler", name, "error", rerr)
	}
}

// Production shows an apology and the code to quote to support.
type Production struct{}

func (Production) Name() string { return "production" }

func (Production) Handle(w io.Writer, err error, uid string) {
	render("production", productionTmpl, w, err, uid)
}

// TraceView shows the message, location and stack trace.
type TraceView struct{}

func (TraceView) Name() string { return "trace" }

func (TraceView) Handle(w io.Writer, err error, uid string) {
	render("trace", traceTmpl, w, err, uid)
}

// PrettyPage is TraceView with styling and a context table.
type PrettyPage struct{}

func (PrettyPage) Name() string { return "pretty" }

func (PrettyPage) Handle(w io.Writer, err error, uid string) {
	render("pretty", prettyTmpl, w, err, uid)
}

// Silent shows nothing. The failure is still logged.
type Silent struct{}

func (Silent) Name() string { return "silent" }

func (Silent) Handle(io.Writer, error, string) {}

// Func adapts a function to Handler.
type Func func(w io.Writer, err error, uid string)

func (Func) Name() string { return "func" }

func (f Func) Handle(w io.Writer, err error, uid string) { f(w, err, uid) }

var productionTmpl = template.Must(template.New("production").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Something went wrong</title></head>
<body>
<h1>Something went wrong</h1>
<p>An unexpected error occurred and our team has been notified.</p>
<p>To speed up support, please quote the following error code:</p>
<div style="font-weight:bold;font-size:1.2em;user-select:all;">{{.UID}}</div>
</body></html>
`))

var traceTmpl = template.Must(template.New("trace").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Error (ID: {{.UID}})</title></head>
<body>
<h1>Error (ID: {{.UID}})</h1>
<p><strong>{{.Message}}</strong></p>
{{if .File}}<p>{{.File}}:{{.Line}}</p>{{end}}
{{if .Trace}}<pre>{{range .Trace}}{{.}}
{{end}}</pre>{{end}}
</body></html>
`))

var prettyTmpl = template.Must(template.New("pretty").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Error (ID: {{.UID}})</title>
<style>
body{font-family:sans-serif;margin:0;background:#f4f4f5;color:#18181b}
header{background:#dc2626;color:#fff;padding:24px}
main{padding:24px}
table{border-collapse:collapse;margin-bottom:24px}
td{border:1px solid #d4d4d8;padding:6px 12px}
pre{background:#18181b;color:#e4e4e7;padding:16px;overflow-x:auto}
</style></head>
<body>
<header><h1>{{.Message}}</h1><div>{{.Kind}}</div></header>
<main>
<table>
<tr><td>Error ID</td><td>{{.UID}}</td></tr>
{{if .File}}<tr><td>File</td><td>{{.File}}</td></tr>
<tr><td>Line</td><td>{{.Line}}</td></tr>{{end}}
</table>
{{if .Trace}}<pre>{{range .Trace}}{{.}}
{{end}}</pre>{{end}}
</main>
</body></html>
`))
