package channel

import (
	"context"

	"github.com/afikmenashe/logpipe/internal/record"
)

// Extra keys written by WebProcessor.
const (
	ExtraURL      = "url"
	ExtraIP       = "ip"
	ExtraMethod   = "http_method"
	ExtraServer   = "server"
	ExtraReferrer = "referrer"
)

// Identity is the signed-in user at the time of the failure.
type Identity struct {
	UserID      string
	Login       string
	DisplayName string
	Email       string
}

// IdentityProvider resolves the current user, typically from a session store.
type IdentityProvider interface {
	Lookup(ctx context.Context) (Identity, bool)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (Identity, bool)

func (f IdentityFunc) Lookup(ctx context.Context) (Identity, bool) { return f(ctx) }

// RequestInfo describes the request being served when the record was logged.
type RequestInfo struct {
	URL        string
	Method     string
	RemoteAddr string
	ServerName string
	Referrer   string
}

type identityKey struct{}
type requestKey struct{}

// WithIdentity attaches the current user to ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// WithRequest attaches request details to ctx.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

// ContextIdentity is an IdentityProvider that reads WithIdentity values.
var ContextIdentity IdentityProvider = IdentityFunc(func(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
})

// RequestFrom returns the request details on ctx, with "N/A" and
// "localhost" standing in for missing values.
func RequestFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	if info.RemoteAddr == "" {
		info.RemoteAddr = "N/A"
	}
	if info.ServerName == "" {
		info.ServerName = "localhost"
	}
	return info
}

// Info is everything a sender may render besides the record itself.
type Info struct {
	Request  RequestInfo
	User     Identity
	LoggedIn bool
}

// WebProcessor stamps the request on ctx into every record's extra, so file
// lines carry the same request details as notifications. Records logged
// outside a request are left alone.
type WebProcessor struct{}

func (WebProcessor) Process(ctx context.Context, r *record.Record) {
	info, ok := ctx.Value(requestKey{}).(RequestInfo)
	if !ok {
		return
	}
	r.SetExtra(ExtraURL, info.URL)
	r.SetExtra(ExtraIP, info.RemoteAddr)
	r.SetExtra(ExtraMethod, info.Method)
	r.SetExtra(ExtraServer, info.ServerName)
	r.SetExtra(ExtraReferrer, info.Referrer)
}
