package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// RawItem carries one successfully collected payload downstream together
// with a snapshot of the feed that produced it.
type RawItem struct {
	Feed    models.IntelligenceFeed
	Payload map[string]any
}

// Poller runs one independently scheduled collection loop per started feed.
// Cadences are fully decoupled; a blocked collector stalls only its own feed.
type Poller struct {
	registry  *Registry
	clock     utils.Clock
	logger    *slog.Logger
	threshold int
	out       chan<- RawItem

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewPoller constructs a Poller forwarding collected payloads to out.
func NewPoller(registry *Registry, clock utils.Clock, logger *slog.Logger, threshold int, out chan<- RawItem) *Poller {
	if clock == nil {
		clock = utils.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Poller{
		registry:  registry,
		clock:     clock,
		logger:    logger,
		threshold: threshold,
		out:       out,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// StartPolling begins the scheduled loop for a registered feed. A degraded
// feed is refused until it is reset.
func (p *Poller) StartPolling(ctx context.Context, feedID string) error {
	feed, ok := p.registry.Get(feedID)
	if !ok {
		return fmt.Errorf("start polling: feed %s not registered", feedID)
	}
	if feed.Status == models.FeedError {
		return fmt.Errorf("start polling %s: %w", feedID, ErrFeedDegraded)
	}

	p.mu.Lock()
	if _, running := p.cancels[feedID]; running {
		p.mu.Unlock()
		return fmt.Errorf("start polling: feed %s already polling", feedID)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancels[feedID] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(loopCtx, feedID, feed.PollInterval)
	return nil
}

// StopPolling cancels a feed's loop. An in-flight collector call is cancelled
// at the collector boundary; a result produced despite cancellation is
// discarded before the loop exits.
func (p *Poller) StopPolling(feedID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[feedID]
	if ok {
		delete(p.cancels, feedID)
	}
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// StopAll cancels every loop and waits for them to drain.
func (p *Poller) StopAll() {
	p.mu.Lock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context, feedID string, interval time.Duration) {
	defer p.wg.Done()

	ticker := p.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if halt := p.pollOnce(ctx, feedID); halt {
				p.forget(feedID)
				return
			}
		}
	}
}

// pollOnce executes one collection cycle. Returns true when the feed has
// degraded and the loop must halt.
func (p *Poller) pollOnce(ctx context.Context, feedID string) bool {
	collector, ok := p.registry.Collector(feedID)
	if !ok {
		return true
	}

	payload, err := collector.Collect(ctx)
	if ctx.Err() != nil {
		// Stopped mid-flight: discard whatever the collector produced.
		return false
	}
	if err != nil {
		metrics.ObservePoll(feedID, metrics.OutcomeError)
		count, degraded := p.registry.RecordFailure(feedID, p.clock.Now(), p.threshold)
		p.logger.Warn("collection failed",
			slog.String("feed", feedID),
			slog.Int("error_count", count),
			slog.Any("error", err))
		if degraded {
			p.logger.Error("feed degraded, polling halted", slog.String("feed", feedID))
		}
		return degraded
	}

	metrics.ObservePoll(feedID, metrics.OutcomeSuccess)
	p.registry.RecordSuccess(feedID, p.clock.Now())

	feed, _ := p.registry.Get(feedID)
	select {
	case p.out <- RawItem{Feed: feed, Payload: payload}:
	case <-ctx.Done():
	}
	return false
}

func (p *Poller) forget(feedID string) {
	p.mu.Lock()
	if cancel, ok := p.cancels[feedID]; ok {
		cancel()
		delete(p.cancels, feedID)
	}
	p.mu.Unlock()
}
