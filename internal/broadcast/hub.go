// Package broadcast fans normalized records and correlation events out to
// live subscribers. Delivery is best-effort per subscriber: a slow consumer
// is disconnected rather than allowed to block publication to others. No
// backlog or replay is kept.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
)

type recordMessage struct {
	Type      string              `json:"type"`
	FeedID    string              `json:"feedId"`
	RecordID  string              `json:"recordId"`
	Category  models.FeedCategory `json:"category"`
	Urgency   models.Urgency      `json:"urgency"`
	Timestamp time.Time           `json:"timestamp"`
	Summary   string              `json:"summary"`
}

type correlationMessage struct {
	Type                string                      `json:"type"`
	RuleID              string                      `json:"ruleId"`
	RuleName            string                      `json:"ruleName"`
	Timestamp           time.Time                   `json:"timestamp"`
	ContributingRecords []models.ContributingRecord `json:"contributingRecords"`
	Strength            float64                     `json:"strength"`
	RecommendedActions  []string                    `json:"recommendedActions"`
}

// Subscription is a live subscriber handle. Messages arrive on C until the
// hub closes it.
type Subscription struct {
	id uint64
	ch chan []byte
}

// C returns the subscriber's message channel. It is closed on disconnect.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Hub is the in-process subscriber registry.
type Hub struct {
	logger *slog.Logger
	queue  int

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewHub constructs a Hub with the given per-subscriber queue depth.
func NewHub(queue int, logger *slog.Logger) *Hub {
	if queue <= 0 {
		queue = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		queue:  queue,
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new live subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{id: h.nextID, ch: make(chan []byte, h.queue)}
	h.subs[sub.id] = sub
	metrics.SetConnectedSubscribers(len(h.subs))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(sub.id)
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// PublishRecord fans a normalized record out to every subscriber.
func (h *Hub) PublishRecord(rec models.IntelligenceRecord) {
	h.publish(recordMessage{
		Type:      "record",
		FeedID:    rec.FeedID,
		RecordID:  rec.ID,
		Category:  rec.Category,
		Urgency:   rec.Urgency,
		Timestamp: rec.CreatedAt,
		Summary:   rec.Summary(),
	})
}

// PublishEvent fans a correlation event out to every subscriber.
func (h *Hub) PublishEvent(event models.CorrelationEvent) {
	h.publish(correlationMessage{
		Type:                "correlation",
		RuleID:              event.RuleID,
		RuleName:            event.RuleName,
		Timestamp:           event.Timestamp,
		ContributingRecords: event.Records,
		Strength:            event.Strength,
		RecommendedActions:  event.RecommendedActions,
	})
}

func (h *Hub) publish(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("broadcast encode failed", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- data:
		default:
			// Subscriber queue full: treat as gone, never block the others.
			h.logger.Debug("dropping slow subscriber", slog.Uint64("subscriber", id))
			h.dropLocked(id)
		}
	}
}

func (h *Hub) dropLocked(id uint64) {
	sub, ok := h.subs[id]
	if !ok {
		return
	}
	delete(h.subs, id)
	close(sub.ch)
	metrics.SetConnectedSubscribers(len(h.subs))
}
