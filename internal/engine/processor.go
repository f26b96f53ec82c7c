// Package engine wires the collection, normalization, correlation, dispatch
// and broadcast stages into one runnable processor. All state is owned by the
// Processor instance; multiple instances can coexist.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/intelsphere/apex-feeds/internal/buffer"
	"github.com/intelsphere/apex-feeds/internal/config"
	"github.com/intelsphere/apex-feeds/internal/correlation"
	"github.com/intelsphere/apex-feeds/internal/dispatch"
	"github.com/intelsphere/apex-feeds/internal/feeds"
	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/normalize"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// Publisher is a broadcast sink for normalized records and correlation
// events (in-process hub, NATS bridge).
type Publisher interface {
	PublishRecord(models.IntelligenceRecord)
	PublishEvent(models.CorrelationEvent)
}

// Processor runs the full intelligence pipeline.
type Processor struct {
	cfg    config.EngineConfig
	logger *slog.Logger
	clock  utils.Clock

	registry   *feeds.Registry
	poller     *feeds.Poller
	normalizer *normalize.Normalizer
	buf        *buffer.Buffer
	correlator *correlation.Engine
	dispatcher *dispatch.Dispatcher
	publishers []Publisher

	ruleActions     map[string][]models.ActionTrigger
	subscriberCount func() int

	raw       chan feeds.RawItem
	latencies *utils.LatencyTracker

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Processor over the supplied registry and rule set.
// subscriberCount may be nil when no broadcast hub is attached.
func New(
	cfg config.EngineConfig,
	logger *slog.Logger,
	clock utils.Clock,
	registry *feeds.Registry,
	rules []models.CorrelationRule,
	dispatcher *dispatch.Dispatcher,
	subscriberCount func() int,
	publishers ...Publisher,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = utils.RealClock()
	}
	if dispatcher == nil {
		dispatcher = dispatch.NewDispatcher(nil, logger, 0)
	}

	p := &Processor{
		cfg:             cfg,
		logger:          logger,
		clock:           clock,
		registry:        registry,
		normalizer:      normalize.New(clock),
		buf:             buffer.New(clock),
		dispatcher:      dispatcher,
		publishers:      publishers,
		ruleActions:     make(map[string][]models.ActionTrigger, len(rules)),
		subscriberCount: subscriberCount,
		raw:             make(chan feeds.RawItem, 256),
		latencies:       utils.NewLatencyTracker(1024),
	}
	for _, rule := range rules {
		p.ruleActions[rule.ID] = rule.Actions
	}
	p.correlator = correlation.NewEngine(
		rules, correlation.KeywordMatcher{}, p.buf, clock, logger,
		cfg.SuppressionWindow, p.onCorrelation,
	)
	p.poller = feeds.NewPoller(registry, clock, logger, cfg.FeedErrorThreshold, p.raw)
	return p
}

// Buffer exposes the record buffer (read paths only).
func (p *Processor) Buffer() *buffer.Buffer { return p.buf }

// Registry exposes the feed registry.
func (p *Processor) Registry() *feeds.Registry { return p.registry }

// Start launches the poll loops, the reactive consumer, the correlation
// sweep, and buffer eviction. Fails when no feeds are registered.
func (p *Processor) Start(ctx context.Context) error {
	ids := p.registry.IDs()
	if len(ids) == 0 {
		return fmt.Errorf("start engine: no feeds registered")
	}

	p.runCtx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.consume()

	p.wg.Add(1)
	go p.runSweep()

	p.wg.Add(1)
	go p.runEviction()

	for _, id := range ids {
		if err := p.poller.StartPolling(p.runCtx, id); err != nil {
			p.logger.Warn("feed not started", slog.String("feed", id), slog.Any("error", err))
		}
	}

	p.logger.Info("feed engine started", slog.Int("feeds", len(ids)),
		slog.Int("rules", p.correlator.EnabledRuleCount()))
	return nil
}

// Stop cancels all scheduled tasks and waits for in-flight work to finish or
// be abandoned.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.poller.StopAll()
	p.wg.Wait()
}

func (p *Processor) consume() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			return
		case item := <-p.raw:
			p.handleRaw(item)
		}
	}
}

// handleRaw runs the reactive path for one collected payload: normalize,
// append, broadcast, correlate. Correlation always happens after the append.
func (p *Processor) handleRaw(item feeds.RawItem) {
	start := p.clock.Now()

	rec := p.normalizer.Normalize(item.Payload, item.Feed)
	metrics.ObserveRecord(rec.FeedID)

	p.buf.Append(rec)
	metrics.SetBufferSize(p.buf.Len())

	for _, pub := range p.publishers {
		pub.PublishRecord(rec)
	}

	p.correlator.EvaluateRecord(rec)

	p.latencies.Observe(p.clock.Now().Sub(start))
	if count := p.latencies.Count(); count >= 100 && count%100 == 0 {
		p.logger.Info("pipeline latency",
			slog.Duration("p95", p.latencies.Percentile(95)),
			slog.Int("samples", count))
	}
}

func (p *Processor) runSweep() {
	defer p.wg.Done()
	ticker := p.clock.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.runCtx.Done():
			return
		case <-ticker.C():
			p.correlator.Sweep(p.cfg.SweepLookback)
		}
	}
}

func (p *Processor) runEviction() {
	defer p.wg.Done()
	ticker := p.clock.NewTicker(p.cfg.EvictionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.runCtx.Done():
			return
		case <-ticker.C():
			evicted := p.buf.EvictOlderThan(p.cfg.BufferRetention)
			metrics.SetBufferSize(p.buf.Len())
			if evicted > 0 {
				p.logger.Debug("buffer eviction", slog.Int("evicted", evicted))
			}
		}
	}
}

// onCorrelation routes an emitted event to the dispatcher and every sink.
func (p *Processor) onCorrelation(event models.CorrelationEvent) {
	ctx := p.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	p.dispatcher.Dispatch(ctx, event, p.ruleActions[event.RuleID])

	for _, pub := range p.publishers {
		pub.PublishEvent(event)
	}
}

// SetRuleEnabled toggles a correlation rule at runtime.
func (p *Processor) SetRuleEnabled(id string, enabled bool) error {
	return p.correlator.SetRuleEnabled(id, enabled)
}

// ResetFeed clears a degraded feed and resumes its polling loop.
func (p *Processor) ResetFeed(id string) error {
	if err := p.registry.Reset(id); err != nil {
		return err
	}
	ctx := p.runCtx
	if ctx == nil {
		return nil
	}
	return p.poller.StartPolling(ctx, id)
}

// Recent returns up to limit of the newest buffered records.
func (p *Processor) Recent(limit int) []models.IntelligenceRecord {
	return p.buf.Latest(limit)
}

// Status assembles the read-only engine snapshot.
func (p *Processor) Status() models.EngineStatus {
	snapshot := p.registry.Snapshot()

	status := models.EngineStatus{
		TotalFeeds:     len(snapshot),
		BufferSize:     p.buf.Len(),
		EnabledRules:   p.correlator.EnabledRuleCount(),
		RuleEvalErrors: p.correlator.EvalErrorCount(),
	}
	if p.subscriberCount != nil {
		status.ConnectedSubscribers = p.subscriberCount()
	}

	for _, feed := range snapshot {
		switch feed.Status {
		case models.FeedActive:
			status.ActiveFeeds++
		case models.FeedError:
			status.ErroredFeeds++
		}
		status.TotalThroughput += feed.Throughput
		status.Feeds = append(status.Feeds, models.FeedHealth{
			ID:         feed.ID,
			Name:       feed.Name,
			Status:     feed.Status,
			ErrorCount: feed.ErrorCount,
			LastUpdate: feed.LastUpdate,
			Throughput: feed.Throughput,
		})
	}
	return status
}
