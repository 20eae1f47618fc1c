package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPTransport is the backup transport: a mail provider reached over a JSON
// HTTP API authenticated with a bearer key.
type HTTPTransport struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewHTTPTransport(endpoint, apiKey, from string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type providerRequest struct {
	From string `json:"from"`
	Message
}

type providerResponse struct {
	ID string `json:"id"`
}

func (t *HTTPTransport) Name() string { return "http_api" }

func (t *HTTPTransport) Send(ctx context.Context, msg Message) (SendResult, error) {
	body, err := json.Marshal(providerRequest{From: t.from, Message: msg})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return SendResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return SendResult{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var out providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SendResult{}, fmt.Errorf("failed to decode provider response: %w", err)
	}
	return SendResult{Provider: t.Name(), MessageID: out.ID}, nil
}
