// Package collectors provides Collector implementations for the feed poller:
// an HTTP fetcher for live endpoints and simulated generators for local
// development.
package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/intelsphere/apex-feeds/internal/utils"
)

// HTTPCollector fetches one JSON payload per poll cycle from a feed endpoint.
type HTTPCollector struct {
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewHTTPCollector constructs a collector with a bounded request timeout.
// headers may carry feed authentication (API keys etc.) and may be nil.
func NewHTTPCollector(endpoint string, timeout time.Duration, headers map[string]string) *HTTPCollector {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPCollector{
		endpoint: endpoint,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
	}
}

// Collect implements feeds.Collector.
func (c *HTTPCollector) Collect(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, utils.NewAppError("collector.fetch", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", c.endpoint, resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
