// Package server exposes the chain over HTTP: manual log submission, chain
// inspection and metrics.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/afikmenashe/logpipe/internal/chain"
	"github.com/afikmenashe/logpipe/internal/record"
	"github.com/afikmenashe/logpipe/pkg/metrics"
)

// Handlers wraps dependencies for HTTP handlers.
type Handlers struct {
	chain  *chain.Chain
	reader *metrics.Reader
	prom   http.Handler
}

// NewHandlers creates a new handlers instance. reader and prom may be nil.
func NewHandlers(c *chain.Chain, reader *metrics.Reader, prom http.Handler) *Handlers {
	return &Handlers{chain: c, reader: reader, prom: prom}
}

// LogRequest is the body of POST /api/v1/logs.
type LogRequest struct {
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// LogResponse reports the correlation id the record was stamped with.
type LogResponse struct {
	UID   string `json:"uid"`
	Level string `json:"level"`
}

// ChainResponse describes the built chain.
type ChainResponse struct {
	Application string `json:"application"`
	UID         string `json:"uid"`
	Chain       string `json:"chain"`
	MetaLog     string `json:"meta_log,omitempty"`
}

// PostLog sends one record through the chain.
// POST /api/v1/logs
func (h *Handlers) PostLog(w http.ResponseWriter, r *http.Request) {
	var req LogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message cannot be empty", http.StatusBadRequest)
		return
	}
	level := record.LevelInfo
	if req.Level != "" {
		parsed, err := record.ParseLevel(req.Level)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		level = parsed
	}

	if err := h.chain.Log(r.Context(), level, req.Message, req.Context); err != nil {
		slog.Error("Failed to log record", "error", err)
		http.Error(w, "Failed to log record", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, LogResponse{UID: h.chain.UID.ID(), Level: level.String()})
}

// GetChain returns the shape of the chain.
// GET /api/v1/chain
func (h *Handlers) GetChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChainResponse{
		Application: h.chain.Name(),
		UID:         h.chain.UID.ID(),
		Chain:       chain.Describe(h.chain.Logger),
		MetaLog:     h.chain.MetaLog.Path(),
	})
}

// GetInstanceMetrics returns metric snapshots published to Redis.
// GET /api/v1/metrics[?instance=name]
func (h *Handlers) GetInstanceMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.reader == nil {
		http.Error(w, "Metrics reader not available", http.StatusServiceUnavailable)
		return
	}

	if instance := r.URL.Query().Get("instance"); instance != "" {
		snap, err := h.reader.Get(ctx, instance)
		if err != nil {
			slog.Warn("Failed to get instance metrics", "instance", instance, "error", err)
			snap = &metrics.Snapshot{Instance: instance, Status: "offline"}
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	names, err := h.reader.Instances(ctx)
	if err != nil {
		slog.Error("Failed to list instances", "error", err)
		http.Error(w, "Failed to retrieve metrics", http.StatusInternalServerError)
		return
	}
	all := make(map[string]*metrics.Snapshot, len(names))
	for _, name := range names {
		snap, err := h.reader.Get(ctx, name)
		if err != nil {
			continue
		}
		all[name] = snap
	}
	writeJSON(w, http.StatusOK, all)
}

// Panic fails the request on purpose so failure handling can be checked end to end.
// POST /api/v1/panic
func (h *Handlers) Panic(w http.ResponseWriter, r *http.Request) {
	msg := r.URL.Query().Get("message")
	if msg == "" {
		msg = "Deliberate failure"
	}
	panic(msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
