package server

import (
	"net/http"
	"time"
)

// Middleware wraps the routed handler, typically setup.Setup.Middleware.
type Middleware func(http.Handler) http.Handler

// Router wraps the HTTP mux and provides route configuration.
type Router struct {
	mux      *http.ServeMux
	handlers *Handlers
	wrap     []Middleware
}

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handlers, wrap ...Middleware) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		handlers: h,
		wrap:     wrap,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("POST /api/v1/logs", r.handlers.PostLog)
	r.mux.HandleFunc("GET /api/v1/chain", r.handlers.GetChain)
	r.mux.HandleFunc("GET /api/v1/metrics", r.handlers.GetInstanceMetrics)
	r.mux.HandleFunc("POST /api/v1/panic", r.handlers.Panic)
	if r.handlers.prom != nil {
		r.mux.Handle("GET /metrics", r.handlers.prom)
	}
	r.mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// Handler returns the mux with the middleware chain and CORS applied.
func (r *Router) Handler() http.Handler {
	var handler http.Handler = r.mux
	for i := len(r.wrap) - 1; i >= 0; i-- {
		handler = r.wrap[i](handler)
	}
	return corsMiddleware(handler)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer creates an HTTP server listening on addr.
func NewServer(addr string, h *Handlers, wrap ...Middleware) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(h, wrap...).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
