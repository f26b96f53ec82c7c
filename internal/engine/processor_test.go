package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/intelsphere/apex-feeds/internal/config"
	"github.com/intelsphere/apex-feeds/internal/dispatch"
	"github.com/intelsphere/apex-feeds/internal/feeds"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

type cannedCollector struct {
	mu      sync.Mutex
	payload map[string]any
	err     error
	calls   int
}

func (c *cannedCollector) Collect(ctx context.Context) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.payload, nil
}

func (c *cannedCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type capturingPublisher struct {
	mu      sync.Mutex
	records []models.IntelligenceRecord
	events  []models.CorrelationEvent
}

func (p *capturingPublisher) PublishRecord(rec models.IntelligenceRecord) {
	p.mu.Lock()
	p.records = append(p.records, rec)
	p.mu.Unlock()
}

func (p *capturingPublisher) PublishEvent(event models.CorrelationEvent) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *capturingPublisher) recordCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

func (p *capturingPublisher) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *capturingPublisher) firstEvent() models.CorrelationEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[0]
}

type capturingNotifier struct {
	mu      sync.Mutex
	actions []models.ActionTrigger
}

func (n *capturingNotifier) Notify(ctx context.Context, action models.ActionTrigger, event models.CorrelationEvent) error {
	n.mu.Lock()
	n.actions = append(n.actions, action)
	n.mu.Unlock()
	return nil
}

func (n *capturingNotifier) actionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.actions)
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		BufferRetention:    2 * time.Hour,
		EvictionInterval:   5 * time.Minute,
		SweepInterval:      time.Minute,
		SweepLookback:      time.Hour,
		SuppressionWindow:  5 * time.Minute,
		FeedErrorThreshold: 5,
	}
}

func threatMarketRule() models.CorrelationRule {
	return models.CorrelationRule{
		ID:    "threat_market_correlation",
		Name:  "Threat-Market Impact Correlation",
		Logic: models.LogicAND,
		Conditions: []models.TriggerCondition{
			{Category: models.CategoryThreatIntel, Keywords: []string{"attack", "breach"}, ConfidenceThreshold: 0.8, TimeWindow: 5 * time.Minute},
			{Category: models.CategoryMarketData, Keywords: []string{"volatility", "decline"}, ConfidenceThreshold: 0.7, TimeWindow: 5 * time.Minute},
		},
		Actions: []models.ActionTrigger{
			{Type: models.ActionAlert, Recipients: []string{"security_team", "risk_management"}, Priority: 1},
		},
		Enabled: true,
	}
}

func registerFeed(t *testing.T, registry *feeds.Registry, id string, category models.FeedCategory, reliability float64, collector feeds.Collector) {
	t.Helper()
	if _, err := registry.Register(feeds.FeedConfig{
		ID:           id,
		Name:         id,
		Category:     category,
		PollInterval: time.Minute,
		Priority:     models.PriorityHigh,
		Reliability:  reliability,
		Throughput:   150,
		Collector:    collector,
	}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

// driveUntil ticks the clock until cond holds; poll loops create their
// tickers asynchronously, so early ticks can be lost.
func driveUntil(t *testing.T, clock *utils.ManualClock, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		clock.Tick(time.Second)
		for i := 0; i < 10; i++ {
			if cond() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	t.Fatal("condition not reached")
}

func TestProcessorCorrelatesAcrossFeeds(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	registry := feeds.NewRegistry()

	registerFeed(t, registry, "global_threat_intel", models.CategoryThreatIntel, 0.85, &cannedCollector{
		payload: map[string]any{"summary": "Coordinated attack on regional infrastructure"},
	})
	registerFeed(t, registry, "asean_market_data", models.CategoryMarketData, 0.8, &cannedCollector{
		payload: map[string]any{"summary": "Volatility spike across regional markets"},
	})

	notifier := &capturingNotifier{}
	dispatcher := dispatch.NewDispatcher(notifier, nil, time.Second)
	pub := &capturingPublisher{}
	p := New(testEngineConfig(), nil, clock, registry, []models.CorrelationRule{threatMarketRule()}, dispatcher, nil, pub)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	driveUntil(t, clock, func() bool { return pub.eventCount() >= 1 })

	if pub.recordCount() < 2 {
		t.Errorf("expected at least 2 broadcast records, got %d", pub.recordCount())
	}

	event := pub.firstEvent()
	if event.RuleID != "threat_market_correlation" {
		t.Errorf("unexpected rule %q", event.RuleID)
	}
	if len(event.Records) < 2 {
		t.Errorf("expected at least 2 contributing records, got %d", len(event.Records))
	}
	categories := map[models.FeedCategory]bool{}
	for _, rec := range event.Records {
		categories[rec.Category] = true
	}
	if !categories[models.CategoryThreatIntel] || !categories[models.CategoryMarketData] {
		t.Errorf("expected both categories among contributors, got %v", categories)
	}

	driveUntil(t, clock, func() bool { return notifier.actionCount() >= 1 })
}

func TestProcessorStartRequiresFeeds(t *testing.T) {
	clock := utils.NewManualClock(time.Now())
	p := New(testEngineConfig(), nil, clock, feeds.NewRegistry(), nil, nil, nil)
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error starting with no feeds")
	}
}

func TestProcessorStatusAndRecent(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	registry := feeds.NewRegistry()
	registerFeed(t, registry, "global_threat_intel", models.CategoryThreatIntel, 0.85, &cannedCollector{
		payload: map[string]any{"summary": "routine report"},
	})

	pub := &capturingPublisher{}
	p := New(testEngineConfig(), nil, clock, registry, nil, nil, func() int { return 3 }, pub)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	driveUntil(t, clock, func() bool { return p.Buffer().Len() >= 1 })

	status := p.Status()
	if status.TotalFeeds != 1 || status.ActiveFeeds != 1 {
		t.Errorf("expected 1 active feed, got %+v", status)
	}
	if status.BufferSize < 1 {
		t.Errorf("expected non-empty buffer, got %d", status.BufferSize)
	}
	if status.ConnectedSubscribers != 3 {
		t.Errorf("expected 3 subscribers, got %d", status.ConnectedSubscribers)
	}
	if status.TotalThroughput != 150 {
		t.Errorf("expected throughput 150, got %v", status.TotalThroughput)
	}
	if len(status.Feeds) != 1 || status.Feeds[0].ID != "global_threat_intel" {
		t.Errorf("expected per-feed health, got %+v", status.Feeds)
	}

	recent := p.Recent(10)
	if len(recent) < 1 {
		t.Fatalf("expected recent records, got %d", len(recent))
	}
	if recent[0].FeedID != "global_threat_intel" {
		t.Errorf("unexpected feed id %q", recent[0].FeedID)
	}
}

func TestProcessorFeedDegradationAndReset(t *testing.T) {
	clock := utils.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	registry := feeds.NewRegistry()
	collector := &cannedCollector{err: errors.New("upstream down")}
	registerFeed(t, registry, "global_threat_intel", models.CategoryThreatIntel, 0.85, collector)

	p := New(testEngineConfig(), nil, clock, registry, nil, nil, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	driveUntil(t, clock, func() bool {
		feed, _ := registry.Get("global_threat_intel")
		return feed.Status == models.FeedError
	})

	status := p.Status()
	if status.ErroredFeeds != 1 {
		t.Errorf("expected 1 errored feed, got %d", status.ErroredFeeds)
	}
	if collector.count() != 5 {
		t.Errorf("expected exactly 5 poll attempts before halt, got %d", collector.count())
	}

	collector.mu.Lock()
	collector.err = nil
	collector.mu.Unlock()

	if err := p.ResetFeed("global_threat_intel"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	feed, _ := registry.Get("global_threat_intel")
	if feed.Status != models.FeedActive {
		t.Errorf("expected active after reset, got %q", feed.Status)
	}

	driveUntil(t, clock, func() bool { return p.Buffer().Len() >= 1 })
}

func TestProcessorResetUnknownFeed(t *testing.T) {
	clock := utils.NewManualClock(time.Now())
	registry := feeds.NewRegistry()
	registerFeed(t, registry, "feed-1", models.CategoryThreatIntel, 0.8, &cannedCollector{payload: map[string]any{}})

	p := New(testEngineConfig(), nil, clock, registry, nil, nil, nil)
	var cfgErr *feeds.ConfigError
	if err := p.ResetFeed("missing"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}
