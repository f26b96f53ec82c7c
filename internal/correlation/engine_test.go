package correlation

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/intelsphere/apex-feeds/internal/buffer"
	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

var engineStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func makeRecord(id string, category models.FeedCategory, text string, confidence float64, createdAt time.Time) models.IntelligenceRecord {
	return models.IntelligenceRecord{
		ID:         id,
		FeedID:     "feed-" + string(category),
		Category:   category,
		Confidence: confidence,
		CreatedAt:  createdAt,
		SearchText: strings.ToLower(text),
	}
}

func andRule() models.CorrelationRule {
	return models.CorrelationRule{
		ID:    "threat_market_correlation",
		Name:  "Threat-Market Impact Correlation",
		Logic: models.LogicAND,
		Conditions: []models.TriggerCondition{
			{Category: models.CategoryThreatIntel, Keywords: []string{"attack", "breach"}, ConfidenceThreshold: 0.8, TimeWindow: 5 * time.Minute},
			{Category: models.CategoryMarketData, Keywords: []string{"volatility", "decline"}, ConfidenceThreshold: 0.7, TimeWindow: 5 * time.Minute},
		},
		Enabled: true,
	}
}

func orRule() models.CorrelationRule {
	return models.CorrelationRule{
		ID:    "geopolitical_financial_correlation",
		Name:  "Geopolitical-Financial Impact Correlation",
		Logic: models.LogicOR,
		Conditions: []models.TriggerCondition{
			{Category: models.CategoryGeopolitical, Keywords: []string{"policy"}, ConfidenceThreshold: 0.75, TimeWindow: 15 * time.Minute},
			{Category: models.CategoryFinancial, Keywords: []string{"banking"}, ConfidenceThreshold: 0.8, TimeWindow: 15 * time.Minute},
		},
		Enabled: true,
	}
}

type eventSink struct {
	events []models.CorrelationEvent
}

func (s *eventSink) capture(event models.CorrelationEvent) {
	s.events = append(s.events, event)
}

func newTestEngine(rules []models.CorrelationRule, clock *utils.ManualClock, buf *buffer.Buffer, sink *eventSink) *Engine {
	return NewEngine(rules, KeywordMatcher{}, buf, clock, nil, 5*time.Minute, sink.capture)
}

func TestReactiveANDCorrelation(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{andRule()}, clock, buf, sink)

	market := makeRecord("rec-market", models.CategoryMarketData,
		"volatility spike across regional markets", 0.85, engineStart.Add(-2*time.Minute))
	buf.Append(market)

	threat := makeRecord("rec-threat", models.CategoryThreatIntel,
		"coordinated attack on banking infrastructure", 0.9, engineStart)
	buf.Append(threat)
	engine.EvaluateRecord(threat)

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 correlation event, got %d", len(sink.events))
	}
	event := sink.events[0]
	if event.RuleID != "threat_market_correlation" {
		t.Errorf("unexpected rule id %q", event.RuleID)
	}
	if len(event.Records) != 2 {
		t.Fatalf("expected 2 contributing records, got %d", len(event.Records))
	}
	if len(event.RecommendedActions) != 4 {
		t.Errorf("expected 4 recommended actions, got %d", len(event.RecommendedActions))
	}

	// strength = (avg confidence + temporal proximity) / 2
	avg := (0.9 + 0.85) / 2
	proximity := 1 - 120.0/3600.0
	want := (avg + proximity) / 2
	if math.Abs(event.Strength-want) > 1e-9 {
		t.Errorf("expected strength %v, got %v", want, event.Strength)
	}
}

func TestANDRequiresEveryCondition(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{andRule()}, clock, buf, sink)

	// Two threat records, no market record: AND cannot be satisfied.
	first := makeRecord("rec-1", models.CategoryThreatIntel, "attack wave one", 0.9, engineStart.Add(-time.Minute))
	buf.Append(first)
	second := makeRecord("rec-2", models.CategoryThreatIntel, "attack wave two", 0.9, engineStart)
	buf.Append(second)
	engine.EvaluateRecord(second)

	if len(sink.events) != 0 {
		t.Fatalf("expected no events without a market record, got %d", len(sink.events))
	}
}

func TestConfidenceFloorBlocksMatch(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{andRule()}, clock, buf, sink)

	market := makeRecord("rec-market", models.CategoryMarketData, "volatility rising", 0.5, engineStart.Add(-time.Minute))
	buf.Append(market)
	threat := makeRecord("rec-threat", models.CategoryThreatIntel, "attack detected", 0.9, engineStart)
	buf.Append(threat)
	engine.EvaluateRecord(threat)

	if len(sink.events) != 0 {
		t.Fatalf("market record below its confidence floor must not correlate, got %d events", len(sink.events))
	}
}

func TestORNeedsTwoMatchingRecords(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{orRule()}, clock, buf, sink)

	geo := makeRecord("rec-geo", models.CategoryGeopolitical, "new trade policy announced", 0.8, engineStart.Add(-time.Minute))
	buf.Append(geo)
	engine.EvaluateRecord(geo)
	if len(sink.events) != 0 {
		t.Fatalf("single matching record must not satisfy OR, got %d events", len(sink.events))
	}

	fin := makeRecord("rec-fin", models.CategoryFinancial, "banking sector liquidity report", 0.85, engineStart)
	buf.Append(fin)
	engine.EvaluateRecord(fin)
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event once two records match, got %d", len(sink.events))
	}
}

func TestWeightedEvaluatesLikeOR(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	rule := orRule()
	rule.Logic = models.LogicWeighted
	engine := newTestEngine([]models.CorrelationRule{rule}, clock, buf, sink)

	geo := makeRecord("rec-geo", models.CategoryGeopolitical, "policy shift", 0.8, engineStart.Add(-time.Minute))
	buf.Append(geo)
	fin := makeRecord("rec-fin", models.CategoryFinancial, "banking update", 0.85, engineStart)
	buf.Append(fin)
	engine.EvaluateRecord(fin)

	if len(sink.events) != 1 {
		t.Fatalf("expected WEIGHTED to fire like OR, got %d events", len(sink.events))
	}
}

func TestSuppressionWindowBlocksDuplicateEmits(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{andRule()}, clock, buf, sink)

	market := makeRecord("rec-market", models.CategoryMarketData, "volatility spike", 0.85, engineStart.Add(-time.Minute))
	buf.Append(market)
	threat := makeRecord("rec-threat", models.CategoryThreatIntel, "attack underway", 0.9, engineStart)
	buf.Append(threat)

	engine.EvaluateRecord(threat)
	engine.EvaluateRecord(threat)
	engine.Sweep(time.Hour)
	if len(sink.events) != 1 {
		t.Fatalf("expected the same record set to emit once, got %d", len(sink.events))
	}

	// Past the suppression window the same correlation may fire again.
	clock.Advance(6 * time.Minute)
	engine.Sweep(time.Hour)
	if len(sink.events) != 2 {
		t.Fatalf("expected re-emit after suppression window, got %d", len(sink.events))
	}
}

func TestSweepRequiresTwoRecentRecords(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{orRule()}, clock, buf, sink)

	geo := makeRecord("rec-geo", models.CategoryGeopolitical, "policy statement", 0.8, engineStart)
	buf.Append(geo)
	engine.Sweep(time.Hour)

	if len(sink.events) != 0 {
		t.Fatalf("sweep over a single record must not emit, got %d", len(sink.events))
	}
}

func TestMalformedRuleCountsEvalError(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}

	bad := models.CorrelationRule{
		ID:      "bad-rule",
		Logic:   models.LogicAND,
		Enabled: true,
		Conditions: []models.TriggerCondition{
			{Category: models.CategoryThreatIntel}, // no keywords
		},
	}
	engine := newTestEngine([]models.CorrelationRule{bad}, clock, buf, sink)

	rec := makeRecord("rec-1", models.CategoryThreatIntel, "attack", 0.9, engineStart)
	buf.Append(rec)
	engine.EvaluateRecord(rec)

	if engine.EvalErrorCount() != 1 {
		t.Errorf("expected 1 eval error, got %d", engine.EvalErrorCount())
	}
	if len(sink.events) != 0 {
		t.Errorf("malformed rule must not emit, got %d events", len(sink.events))
	}
}

func TestSetRuleEnabled(t *testing.T) {
	clock := utils.NewManualClock(engineStart)
	buf := buffer.New(clock)
	sink := &eventSink{}
	engine := newTestEngine([]models.CorrelationRule{andRule()}, clock, buf, sink)

	if err := engine.SetRuleEnabled("threat_market_correlation", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if engine.EnabledRuleCount() != 0 {
		t.Errorf("expected 0 enabled rules, got %d", engine.EnabledRuleCount())
	}

	market := makeRecord("rec-market", models.CategoryMarketData, "volatility", 0.85, engineStart.Add(-time.Minute))
	buf.Append(market)
	threat := makeRecord("rec-threat", models.CategoryThreatIntel, "attack", 0.9, engineStart)
	buf.Append(threat)
	engine.EvaluateRecord(threat)
	if len(sink.events) != 0 {
		t.Fatalf("disabled rule must not emit, got %d events", len(sink.events))
	}

	if err := engine.SetRuleEnabled("threat_market_correlation", true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	engine.EvaluateRecord(threat)
	if len(sink.events) != 1 {
		t.Fatalf("expected emit after re-enable, got %d events", len(sink.events))
	}

	if err := engine.SetRuleEnabled("missing", true); err == nil {
		t.Error("expected error for unknown rule")
	}
}
