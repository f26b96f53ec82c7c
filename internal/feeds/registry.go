// Package feeds owns registered intelligence feeds and the per-feed polling
// tasks that drive collection.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/intelsphere/apex-feeds/internal/models"
)

// Collector is the per-feed collection contract, supplied by the caller at
// registration time. Implementations must honour ctx cancellation and signal
// failure with an error rather than a malformed payload.
type Collector interface {
	Collect(ctx context.Context) (map[string]any, error)
}

// ErrFeedDegraded marks a feed halted by its error counter; it stays halted
// until an operator reset.
var ErrFeedDegraded = errors.New("feed degraded")

// ConfigError rejects an invalid feed definition at registration. Fatal only
// to that registration.
type ConfigError struct {
	FeedID string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("feed %s: %s", e.FeedID, e.Reason)
}

// FeedConfig is the registration-time definition of a feed.
type FeedConfig struct {
	ID              string
	Name            string
	Category        models.FeedCategory
	Endpoint        string
	PollInterval    time.Duration
	Priority        models.FeedPriority
	GeographicScope []string
	LanguageFilters []string
	Classification  models.Classification
	Reliability     float64
	Throughput      float64
	Collector       Collector
}

// Registry exclusively owns IntelligenceFeed entities. Feeds are deactivated,
// never removed at runtime.
type Registry struct {
	mu         sync.RWMutex
	feeds      map[string]*models.IntelligenceFeed
	collectors map[string]Collector
	order      []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		feeds:      make(map[string]*models.IntelligenceFeed),
		collectors: make(map[string]Collector),
	}
}

// Register validates and stores a feed definition, returning its ID.
func (r *Registry) Register(cfg FeedConfig) (string, error) {
	if cfg.ID == "" {
		return "", &ConfigError{FeedID: cfg.ID, Reason: "missing feed id"}
	}
	if cfg.PollInterval <= 0 {
		return "", &ConfigError{FeedID: cfg.ID, Reason: "poll interval must be positive"}
	}
	if cfg.Collector == nil {
		return "", &ConfigError{FeedID: cfg.ID, Reason: "collector reference missing"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.feeds[cfg.ID]; exists {
		return "", &ConfigError{FeedID: cfg.ID, Reason: "already registered"}
	}

	r.feeds[cfg.ID] = &models.IntelligenceFeed{
		ID:              cfg.ID,
		Name:            cfg.Name,
		Category:        cfg.Category,
		Endpoint:        cfg.Endpoint,
		PollInterval:    cfg.PollInterval,
		Priority:        cfg.Priority,
		GeographicScope: cfg.GeographicScope,
		LanguageFilters: cfg.LanguageFilters,
		Classification:  cfg.Classification,
		Reliability:     cfg.Reliability,
		Throughput:      cfg.Throughput,
		Status:          models.FeedActive,
	}
	r.collectors[cfg.ID] = cfg.Collector
	r.order = append(r.order, cfg.ID)
	return cfg.ID, nil
}

// Get returns a copy of the feed, if registered.
func (r *Registry) Get(id string) (models.IntelligenceFeed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	feed, ok := r.feeds[id]
	if !ok {
		return models.IntelligenceFeed{}, false
	}
	return *feed, true
}

// Collector returns the collection contract registered for a feed.
func (r *Registry) Collector(id string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[id]
	return c, ok
}

// IDs lists registered feed IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RecordSuccess resets the error counter and stamps the last update. Called
// only by the feed's own poll task.
func (r *Registry) RecordSuccess(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed, ok := r.feeds[id]
	if !ok {
		return
	}
	feed.ErrorCount = 0
	feed.LastUpdate = now
	if feed.Status != models.FeedMaintenance {
		feed.Status = models.FeedActive
	}
}

// RecordFailure increments the error counter and, once the counter reaches
// the threshold, transitions the feed to error status. Returns the new count
// and whether the feed just degraded.
func (r *Registry) RecordFailure(id string, now time.Time, threshold int) (count int, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed, ok := r.feeds[id]
	if !ok {
		return 0, false
	}
	feed.ErrorCount++
	feed.LastUpdate = now
	if feed.ErrorCount >= threshold && feed.Status != models.FeedError {
		feed.Status = models.FeedError
		return feed.ErrorCount, true
	}
	return feed.ErrorCount, false
}

// Reset clears a degraded feed back to active so polling can resume.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed, ok := r.feeds[id]
	if !ok {
		return &ConfigError{FeedID: id, Reason: "not registered"}
	}
	feed.ErrorCount = 0
	feed.Status = models.FeedActive
	return nil
}

// SetStatus updates a feed's operational status (pause/maintenance).
func (r *Registry) SetStatus(id string, status models.FeedStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	feed, ok := r.feeds[id]
	if !ok {
		return &ConfigError{FeedID: id, Reason: "not registered"}
	}
	feed.Status = status
	return nil
}

// Snapshot returns copies of all feeds in registration order.
func (r *Registry) Snapshot() []models.IntelligenceFeed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.IntelligenceFeed, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.feeds[id])
	}
	return out
}
