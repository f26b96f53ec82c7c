package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/intelsphere/apex-feeds/internal/models"
)

// WebhookNotifier posts dispatched actions as JSON to an external
// notification service.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
}

// NewWebhookNotifier constructs a notifier posting to endpoint.
func NewWebhookNotifier(endpoint string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	ActionType string                  `json:"actionType"`
	Recipients []string                `json:"recipients"`
	Priority   int                     `json:"priority"`
	Event      models.CorrelationEvent `json:"event"`
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, action models.ActionTrigger, event models.CorrelationEvent) error {
	body, err := json.Marshal(webhookPayload{
		ActionType: string(action.Type),
		Recipients: action.Recipients,
		Priority:   action.Priority,
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("encode action: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver action: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
