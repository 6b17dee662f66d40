package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/afikmenashe/logpipe/internal/channel"
	"github.com/afikmenashe/logpipe/internal/record"
)

var htmlBody = template.Must(template.New("email").Parse(`<!DOCTYPE html><html><head><style>
body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4; }
.container { background-color: #ffffff; border: 1px solid #dddddd; max-width: 800px; margin: auto; padding: 20px; }
.header { background-color: {{.Color}}; color: white; padding: 10px; text-align: center; font-size: 20px; }
table { width: 100%; border-collapse: collapse; margin-top: 20px; }
th, td { padding: 8px; text-align: left; border-bottom: 1px solid #ddd; }
th { background-color: #f2f2f2; width: 150px; }
pre { background-color: #eeeeee; padding: 10px; border: 1px solid #cccccc; white-space: pre-wrap; word-wrap: break-word; }
</style></head><body>
<div class="container">
<div class="header">🚨 Error notification: {{.Level}} 🚨</div>
<table>
<tr><th>Event ID</th><td><b>{{.UID}}</b></td></tr>
<tr><th>Message</th><td>{{.Message}}</td></tr>
<tr><th>File</th><td>{{.File}}</td></tr>
<tr><th>Line</th><td>{{.Line}}</td></tr>
<tr><th>Server</th><td>{{.Server}}</td></tr>
<tr><th>IP</th><td>{{.IP}}</td></tr>
{{- if .LoggedIn}}
<tr><th colspan="2" style="background-color: #e0e0e0;">User</th></tr>
<tr><th>ID</th><td>{{.User.UserID}}</td></tr>
<tr><th>Login</th><td>{{.User.Login}}</td></tr>
<tr><th>Name</th><td>{{.User.DisplayName}}</td></tr>
<tr><th>Email</th><td>{{.User.Email}}</td></tr>
{{- end}}
</table>
{{- if .Trace}}
<h3>Stack trace:</h3>
<pre>{{.Trace}}</pre>
{{- end}}
</div></body></html>`))

type bodyData struct {
	Color    template.CSS
	Level    string
	UID      string
	Message  string
	File     string
	Line     string
	Server   string
	IP       string
	LoggedIn bool
	User     channel.Identity
	Trace    string
}

// RenderHTML renders the HTML body. Every record-derived value is escaped.
func RenderHTML(r *record.Record, info channel.Info) (string, error) {
	data := bodyData{
		Color:    template.CSS(r.Level.HexColor()),
		Level:    r.Level.String(),
		UID:      r.UID(),
		Message:  r.Message,
		File:     r.File(),
		Line:     r.Line(),
		Server:   info.Request.ServerName,
		IP:       info.Request.RemoteAddr,
		LoggedIn: info.LoggedIn,
		User:     info.User,
		Trace:    r.Trace(),
	}
	var buf bytes.Buffer
	if err := htmlBody.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderText renders the plain-text alternative.
func RenderText(r *record.Record, info channel.Info) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error notification: %s\n", r.Level))
	sb.WriteString("==================\n\n")
	sb.WriteString(fmt.Sprintf("Event ID: %s\n", r.UID()))
	sb.WriteString(fmt.Sprintf("Message: %s\n", r.Message))
	sb.WriteString(fmt.Sprintf("File: %s\n", r.File()))
	sb.WriteString(fmt.Sprintf("Line: %s\n", r.Line()))
	sb.WriteString(fmt.Sprintf("Server: %s\n", info.Request.ServerName))
	sb.WriteString(fmt.Sprintf("IP: %s\n", info.Request.RemoteAddr))
	if info.LoggedIn {
		sb.WriteString(fmt.Sprintf("User: %s (%s) %s\n", info.User.DisplayName, info.User.Login, info.User.Email))
	}
	if trace := r.Trace(); trace != "" {
		sb.WriteString("\nStack trace:\n")
		sb.WriteString(trace)
		sb.WriteString("\n")
	}
	return sb.String()
}
