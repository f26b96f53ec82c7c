// Package correlation evaluates declarative cross-feed rules against the
// intelligence buffer, both reactively on each new record and on a periodic
// sweep, and emits correlation events on a match.
package correlation

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intelsphere/apex-feeds/internal/buffer"
	"github.com/intelsphere/apex-feeds/internal/metrics"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// minMatches is the record count OR and WEIGHTED rules require.
const minMatches = 2

// proximitySpan is the contributor time span at which temporal proximity
// decays to zero.
const proximitySpan = time.Hour

var recommendedActions = []string{
	"Investigate correlation between intelligence sources",
	"Assess potential impact on operational domains",
	"Coordinate response across affected teams",
	"Monitor for additional correlated intelligence",
}

// Engine owns the rule set. Rules are read-mostly after startup; toggling
// enabled state becomes visible to the next evaluation cycle.
type Engine struct {
	matcher Matcher
	buf     *buffer.Buffer
	clock   utils.Clock
	logger  *slog.Logger
	emit    func(models.CorrelationEvent)

	mu    sync.RWMutex
	rules map[string]*models.CorrelationRule
	order []string

	suppressWindow time.Duration
	suppressMu     sync.Mutex
	suppressed     map[string]time.Time

	evalErrors atomic.Int64
}

// NewEngine constructs an Engine over the supplied rule set. emit receives
// every correlation event exactly once per distinct match.
func NewEngine(
	rules []models.CorrelationRule,
	matcher Matcher,
	buf *buffer.Buffer,
	clock utils.Clock,
	logger *slog.Logger,
	suppressWindow time.Duration,
	emit func(models.CorrelationEvent),
) *Engine {
	if matcher == nil {
		matcher = KeywordMatcher{}
	}
	if clock == nil {
		clock = utils.RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(models.CorrelationEvent) {}
	}

	e := &Engine{
		matcher:        matcher,
		buf:            buf,
		clock:          clock,
		logger:         logger,
		emit:           emit,
		rules:          make(map[string]*models.CorrelationRule, len(rules)),
		suppressWindow: suppressWindow,
		suppressed:     make(map[string]time.Time),
	}
	for i := range rules {
		rule := rules[i]
		e.rules[rule.ID] = &rule
		e.order = append(e.order, rule.ID)
	}
	return e
}

// SetRuleEnabled toggles a rule at runtime.
func (e *Engine) SetRuleEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	rule.Enabled = enabled
	return nil
}

// EnabledRuleCount reports how many rules are currently enabled.
func (e *Engine) EnabledRuleCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, rule := range e.rules {
		if rule.Enabled {
			n++
		}
	}
	return n
}

// EvalErrorCount reports rule evaluations skipped due to malformed conditions.
func (e *Engine) EvalErrorCount() int64 {
	return e.evalErrors.Load()
}

func (e *Engine) enabledRules() []models.CorrelationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.CorrelationRule, 0, len(e.order))
	for _, id := range e.order {
		if rule := e.rules[id]; rule.Enabled {
			out = append(out, *rule)
		}
	}
	return out
}

// EvaluateRecord is the reactive pass: called once for every newly
// normalized record, after that record's append to the buffer.
func (e *Engine) EvaluateRecord(rec models.IntelligenceRecord) {
	for _, rule := range e.enabledRules() {
		if err := validateRule(rule); err != nil {
			e.reportEvalError(rule.ID, err)
			continue
		}
		if !e.matchesAny(rec, rule.Conditions) {
			continue
		}

		companions := e.companions(rule, rec)
		candidates := append([]models.IntelligenceRecord{rec}, companions...)
		if e.satisfied(rule, candidates) {
			e.emitEvent(rule, candidates)
		}
	}
}

// Sweep is the periodic pass: batch-evaluates every enabled rule against
// buffered records younger than lookback. It catches correlations whose
// constituents arrived too far apart for either reactive pass to fire.
func (e *Engine) Sweep(lookback time.Duration) {
	recent := e.buf.Recent(lookback)
	if len(recent) < minMatches {
		e.pruneSuppressed()
		return
	}

	for _, rule := range e.enabledRules() {
		if err := validateRule(rule); err != nil {
			e.reportEvalError(rule.ID, err)
			continue
		}

		var matching []models.IntelligenceRecord
		for _, rec := range recent {
			if e.matchesAny(rec, rule.Conditions) {
				matching = append(matching, rec)
			}
		}
		if len(matching) == 0 {
			continue
		}
		if e.satisfied(rule, matching) {
			e.emitEvent(rule, matching)
		}
	}

	e.pruneSuppressed()
}

// companions searches the buffer for other records created within the rule's
// widest condition window that also match the rule, excluding the trigger.
func (e *Engine) companions(rule models.CorrelationRule, trigger models.IntelligenceRecord) []models.IntelligenceRecord {
	window := rule.MaxWindow()
	if window <= 0 {
		return nil
	}

	var out []models.IntelligenceRecord
	for _, rec := range e.buf.Recent(window) {
		if rec.ID == trigger.ID {
			continue
		}
		if e.matchesAny(rec, rule.Conditions) {
			out = append(out, rec)
		}
	}
	return out
}

func (e *Engine) matchesAny(rec models.IntelligenceRecord, conds []models.TriggerCondition) bool {
	for _, cond := range conds {
		if e.matcher.Match(rec, cond) {
			return true
		}
	}
	return false
}

// satisfied applies the rule's combination logic to the candidate set. AND
// needs every condition satisfiable by at least one record (not necessarily
// the same record per condition); OR and WEIGHTED need minMatches records.
func (e *Engine) satisfied(rule models.CorrelationRule, records []models.IntelligenceRecord) bool {
	if rule.Logic == models.LogicAND {
		for _, cond := range rule.Conditions {
			found := false
			for _, rec := range records {
				if e.matcher.Match(rec, cond) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return len(records) >= minMatches
}

func (e *Engine) emitEvent(rule models.CorrelationRule, records []models.IntelligenceRecord) {
	key := suppressionKey(rule.ID, records)
	if !e.markEmitted(key) {
		return
	}

	event := models.CorrelationEvent{
		RuleID:             rule.ID,
		RuleName:           rule.Name,
		Timestamp:          e.clock.Now(),
		Strength:           strength(records),
		RecommendedActions: append([]string(nil), recommendedActions...),
	}
	for _, rec := range records {
		event.Records = append(event.Records, models.ContributingRecord{
			RecordID:   rec.ID,
			FeedID:     rec.FeedID,
			Category:   rec.Category,
			Urgency:    rec.Urgency,
			Confidence: rec.Confidence,
		})
	}

	metrics.ObserveCorrelation(rule.ID)
	e.logger.Info("correlation detected",
		slog.String("rule", rule.ID),
		slog.Int("records", len(records)),
		slog.Float64("strength", event.Strength))
	e.emit(event)
}

// strength averages contributor confidence with their temporal proximity.
func strength(records []models.IntelligenceRecord) float64 {
	if len(records) == 0 {
		return 0
	}

	sum := 0.0
	for _, rec := range records {
		sum += rec.Confidence
	}
	avgConfidence := sum / float64(len(records))

	return (avgConfidence + temporalProximity(records)) / 2
}

func temporalProximity(records []models.IntelligenceRecord) float64 {
	if len(records) < 2 {
		return 1
	}
	earliest, latest := records[0].CreatedAt, records[0].CreatedAt
	for _, rec := range records[1:] {
		if rec.CreatedAt.Before(earliest) {
			earliest = rec.CreatedAt
		}
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}
	}
	proximity := 1 - latest.Sub(earliest).Seconds()/proximitySpan.Seconds()
	if proximity < 0 {
		return 0
	}
	return proximity
}

// suppressionKey identifies a (rule, contributing record set) pair so the
// reactive pass and the sweep cannot both fire for the same underlying
// correlation inside the suppression window.
func suppressionKey(ruleID string, records []models.IntelligenceRecord) string {
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.ID)
	}
	sort.Strings(ids)

	h := sha1.New()
	h.Write([]byte(ruleID))
	for _, id := range ids {
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// markEmitted records the key and reports whether the event should fire.
func (e *Engine) markEmitted(key string) bool {
	if e.suppressWindow <= 0 {
		return true
	}
	now := e.clock.Now()

	e.suppressMu.Lock()
	defer e.suppressMu.Unlock()
	if last, ok := e.suppressed[key]; ok && now.Sub(last) < e.suppressWindow {
		return false
	}
	e.suppressed[key] = now
	return true
}

func (e *Engine) pruneSuppressed() {
	if e.suppressWindow <= 0 {
		return
	}
	now := e.clock.Now()

	e.suppressMu.Lock()
	defer e.suppressMu.Unlock()
	for key, last := range e.suppressed {
		if now.Sub(last) >= e.suppressWindow {
			delete(e.suppressed, key)
		}
	}
}

func (e *Engine) reportEvalError(ruleID string, err error) {
	e.evalErrors.Add(1)
	metrics.ObserveRuleEvalError()
	e.logger.Warn("rule evaluation skipped", slog.String("rule", ruleID), slog.Any("error", err))
}

// validateRule rejects malformed definitions for the current cycle only.
func validateRule(rule models.CorrelationRule) error {
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("no trigger conditions")
	}
	for i, cond := range rule.Conditions {
		if cond.Category == "" {
			return fmt.Errorf("condition %d: missing category", i)
		}
		if len(cond.Keywords) == 0 {
			return fmt.Errorf("condition %d: no keywords", i)
		}
		if cond.ConfidenceThreshold < 0 || cond.ConfidenceThreshold > 1 {
			return fmt.Errorf("condition %d: confidence threshold out of range", i)
		}
	}
	switch rule.Logic {
	case models.LogicAND, models.LogicOR, models.LogicWeighted:
		return nil
	default:
		return fmt.Errorf("unknown combination logic %q", rule.Logic)
	}
}
