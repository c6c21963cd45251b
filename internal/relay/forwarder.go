package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illegalcall/bank-relay/internal/models"
)

// Forwarder sends validated credentials to the connection testing service
// and returns its reply as an envelope.
type Forwarder interface {
	Forward(ctx context.Context, endpoint string, req models.IncomingRequest) (models.Envelope, error)
}

// HTTPForwarder implements Forwarder with a single JSON POST.
type HTTPForwarder struct {
	client *http.Client
}

// NewHTTPForwarder creates a forwarder. A zero timeout leaves the call unbounded.
func NewHTTPForwarder(timeout time.Duration) *HTTPForwarder {
	return &HTTPForwarder{
		client: &http.Client{Timeout: timeout},
	}
}

// Forward posts the credentials to endpoint. Non-2xx replies are decoded like
// any other reply; only transport and decoding failures are errors.
func (f *HTTPForwarder) Forward(ctx context.Context, endpoint string, req models.IncomingRequest) (models.Envelope, error) {
	client := f.client
	if client == nil {
		client = http.DefaultClient
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("failed to marshal relay payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.Envelope{}, fmt.Errorf("failed to create relay request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return models.Envelope{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Envelope{}, fmt.Errorf("failed to read reply (status %d): %w", resp.StatusCode, err)
	}

	var reply map[string]json.RawMessage
	if err := json.Unmarshal(body, &reply); err != nil {
		return models.Envelope{}, fmt.Errorf("invalid JSON reply (status %d): %w", resp.StatusCode, err)
	}
	if reply == nil {
		return models.Envelope{}, fmt.Errorf("empty JSON reply (status %d)", resp.StatusCode)
	}

	return models.NewEnvelope(replyField(reply, "success"), replyField(reply, "message"), replyField(reply, "details")), nil
}

// replyField returns the raw value of key, or nil when the reply lacks it.
func replyField(reply map[string]json.RawMessage, key string) interface{} {
	raw, ok := reply[key]
	if !ok {
		return nil
	}
	return raw
}
