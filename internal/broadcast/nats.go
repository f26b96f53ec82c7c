package broadcast

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// NATSBridge republishes records and correlation events onto NATS subjects
// so out-of-process consumers can subscribe without holding a WebSocket.
// Best-effort like the hub: publish errors are logged, never propagated.
type NATSBridge struct {
	nc      *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSBridge connects to NATS and publishes under subject
// `<prefix>.records` and `<prefix>.correlations`.
func NewNATSBridge(url, subject string, timeout time.Duration, logger *slog.Logger) (*NATSBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, utils.NewAppError("nats.connect", "broker unreachable", err)
	}
	return &NATSBridge{nc: nc, subject: subject, logger: logger}, nil
}

// PublishRecord implements the same sink contract as the hub.
func (b *NATSBridge) PublishRecord(rec models.IntelligenceRecord) {
	b.publish(b.subject+".records", recordMessage{
		Type:      "record",
		FeedID:    rec.FeedID,
		RecordID:  rec.ID,
		Category:  rec.Category,
		Urgency:   rec.Urgency,
		Timestamp: rec.CreatedAt,
		Summary:   rec.Summary(),
	})
}

// PublishEvent republishes a correlation event.
func (b *NATSBridge) PublishEvent(event models.CorrelationEvent) {
	b.publish(b.subject+".correlations", correlationMessage{
		Type:                "correlation",
		RuleID:              event.RuleID,
		RuleName:            event.RuleName,
		Timestamp:           event.Timestamp,
		ContributingRecords: event.Records,
		Strength:            event.Strength,
		RecommendedActions:  event.RecommendedActions,
	})
}

func (b *NATSBridge) publish(subject string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Warn("nats encode failed", slog.Any("error", err))
		return
	}
	if err := b.nc.Publish(subject, data); err != nil {
		b.logger.Warn("nats publish failed", slog.String("subject", subject), slog.Any("error", err))
	}
}

// Close drains and closes the connection.
func (b *NATSBridge) Close() {
	if b.nc != nil {
		b.nc.Drain()
	}
}
