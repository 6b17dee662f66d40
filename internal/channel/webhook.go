package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afikmenashe/logpipe/internal/channel/retry"
	"github.com/afikmenashe/logpipe/pkg/shared"
)

// DefaultHTTPTimeout bounds a single webhook call.
const DefaultHTTPTimeout = 10 * time.Second

// Webhook posts JSON payloads, retrying transient failures.
type Webhook struct {
	URL    string
	Client *http.Client
	Retry  retry.Config
	// Name labels retry logs.
	Name string
}

// NewWebhook creates a poster with the default timeout and retry policy.
func NewWebhook(name, url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: DefaultHTTPTimeout},
		Retry:  retry.DefaultConfig(),
		Name:   name,
	}
}

// Post sends payload as JSON and returns the final status code. Non-2xx
// answers are returned as *StatusError.
func (w *Webhook) Post(ctx context.Context, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s payload: %w", w.Name, err)
	}

	var code int
	err = retry.WithRetry(ctx, w.Retry, w.Name+" webhook", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.Client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send %s notification to %s: %w", w.Name, shared.MaskURL(w.URL), err)
		}
		defer resp.Body.Close()

		code = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
		}
		return nil
	})
	return code, err
}
