// Package forward delivers audit entries to the upstream collector over HTTP.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/scribe/internal/audit"
)

const httpTimeout = 10 * time.Second

// Forwarder posts audit entries to the collector endpoint. It implements
// audit.Submitter, and its Probe feeds the connectivity monitor.
type Forwarder struct {
	endpoint string
	token    string
	client   *http.Client
	logger   log.Logger
}

// New creates a forwarder for the collector endpoint. token may be empty, in
// which case no Authorization header is sent.
func New(endpoint, token string, logger log.Logger) *Forwarder {
	if logger == nil {
		logger = log.Nop()
	}
	return &Forwarder{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: httpTimeout},
		logger:   logger,
	}
}

// Submit posts one entry. Any transport error or non-2xx response is a failed
// delivery.
func (f *Forwarder) Submit(ctx context.Context, e *audit.Entry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("forward: marshal entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("forward: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("forward: post entry: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("forward: collector returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Probe checks collector reachability for the connectivity monitor. Any HTTP
// response counts as reachable, whatever the status; only transport errors
// mean offline.
func (f *Forwarder) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("forward: create probe: %w", err)
	}

	resp, err := f.client.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("forward: probe: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		f.logger.Warn(ctx, "collector reachable but unhealthy", "status", resp.StatusCode)
	}
	return nil
}
