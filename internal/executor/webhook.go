package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook posts signals to an HTTP endpoint.
type Webhook struct {
	baseURL *url.URL
	http    *http.Client
}

// NewWebhook creates a webhook executor for the given endpoint.
func NewWebhook(endpoint string, timeout time.Duration) (*Webhook, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("executor: webhook endpoint is required")
	}
	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("executor: parse webhook endpoint: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// Dispatch posts the notice to {endpoint}/dispatch.
func (w *Webhook) Dispatch(ctx context.Context, notice Notice) error {
	return w.post(ctx, "dispatch", notice)
}

// Terminate posts the job id to {endpoint}/terminate.
func (w *Webhook) Terminate(ctx context.Context, jobID string) error {
	return w.post(ctx, "terminate", map[string]string{"jobID": jobID})
}

func (w *Webhook) post(ctx context.Context, action string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("executor: encode %s payload: %w", action, err)
	}
	endpoint := w.baseURL.JoinPath(action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("executor: build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("executor: %s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("executor: %s rejected (%s): %s", action, resp.Status, strings.TrimSpace(string(detail)))
	}
	return nil
}
