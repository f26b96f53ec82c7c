// Package normalize converts raw feed payloads into canonical intelligence
// records. Every derivation is a pure function of the payload and the feed's
// registration-time attributes; the package never touches the buffer.
package normalize

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

var (
	highImpactKeywords   = []string{"critical", "emergency", "breach", "attack", "crisis"}
	mediumImpactKeywords = []string{"alert", "warning", "significant", "major", "important"}
	sectorKeywords       = []string{"technology", "finance", "healthcare", "energy", "government"}
	countryNames         = []string{"Malaysia", "Singapore", "Thailand", "Indonesia", "Philippines", "Vietnam"}
)

const confidenceCap = 0.95

// Normalizer derives canonical records from raw payloads.
type Normalizer struct {
	clock utils.Clock
}

// New constructs a Normalizer on the supplied clock.
func New(clock utils.Clock) *Normalizer {
	if clock == nil {
		clock = utils.RealClock()
	}
	return &Normalizer{clock: clock}
}

// Normalize builds an immutable IntelligenceRecord from one raw payload.
func (n *Normalizer) Normalize(raw map[string]any, feed models.IntelligenceFeed) models.IntelligenceRecord {
	now := n.clock.Now()
	payloadText := serialize(raw)

	rec := models.IntelligenceRecord{
		ID:                   "intel-" + uuid.NewString(),
		FeedID:               feed.ID,
		Category:             feed.Category,
		CreatedAt:            payloadTime(raw, now),
		Classification:       feed.Classification,
		Urgency:              deriveUrgency(payloadText, feed.Priority),
		Raw:                  raw,
		Enriched:             enrich(raw, feed, now),
		CorrelationTags:      correlationTags(payloadText, feed.Category),
		GeographicIndicators: geographicIndicators(payloadText),
		Confidence:           confidence(raw, feed),
		SourceReliability:    feed.Reliability,
		ActionableIndicators: actionableIndicators(raw),
	}
	rec.TemporalRelevance = rec.TemporalRelevanceAt(now)
	rec.SearchText = recordText(rec, payloadText)
	return rec
}

// deriveUrgency classifies a record as immediate, priority, or routine from
// feed priority and payload content.
func deriveUrgency(payloadText string, priority models.FeedPriority) models.Urgency {
	switch {
	case priority == models.PriorityCritical && containsAny(payloadText, highImpactKeywords):
		return models.UrgencyImmediate
	case priority == models.PriorityHigh || containsAny(payloadText, mediumImpactKeywords):
		return models.UrgencyPriority
	default:
		return models.UrgencyRoutine
	}
}

func correlationTags(payloadText string, category models.FeedCategory) []string {
	tags := []string{string(category)}
	for _, sector := range sectorKeywords {
		if strings.Contains(payloadText, sector) {
			tags = append(tags, "sector:"+sector)
		}
	}
	return tags
}

func geographicIndicators(payloadText string) []string {
	var indicators []string
	for _, country := range countryNames {
		if strings.Contains(payloadText, strings.ToLower(country)) {
			indicators = append(indicators, "geo:"+country)
		}
	}
	return indicators
}

// confidence combines feed reliability, observed throughput, and payload
// field richness, capped at 0.95.
func confidence(raw map[string]any, feed models.IntelligenceFeed) float64 {
	score := feed.Reliability

	throughput := feed.Throughput / 1000
	if throughput > 1 {
		throughput = 1
	}
	score += 0.2 * throughput

	richness := float64(len(raw)) / 100
	if richness > 0.1 {
		richness = 0.1
	}
	score += richness

	if score > confidenceCap {
		return confidenceCap
	}
	if score < 0 {
		return 0
	}
	return score
}

func actionableIndicators(raw map[string]any) []models.ActionableIndicator {
	items, ok := raw["actionable_intelligence"].([]any)
	if !ok {
		return nil
	}
	context, _ := raw["intelligence_type"].(string)

	var indicators []models.ActionableIndicator
	for i, item := range items {
		action, ok := item.(string)
		if !ok {
			continue
		}
		indicators = append(indicators, models.ActionableIndicator{
			Type:     "action_item",
			Value:    action,
			Context:  context,
			Priority: i + 1,
		})
	}
	return indicators
}

func enrich(raw map[string]any, feed models.IntelligenceFeed, now time.Time) map[string]any {
	return map[string]any{
		"feed_context": map[string]any{
			"feed_name":        feed.Name,
			"geographic_scope": feed.GeographicScope,
			"classification":   string(feed.Classification),
		},
		"analysis_timestamp": now.UTC().Format(time.RFC3339),
	}
}

// payloadTime prefers the payload's own timestamp so temporal relevance
// reflects the intelligence event, not the poll that delivered it.
func payloadTime(raw map[string]any, fallback time.Time) time.Time {
	value, ok := raw["timestamp"].(string)
	if !ok {
		return fallback
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil || t.After(fallback) {
		return fallback
	}
	return t
}

// recordText is the lower-cased serialized view of the whole record that
// keyword matchers search; tags and enrichment participate in matching.
func recordText(rec models.IntelligenceRecord, payloadText string) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return payloadText
	}
	return strings.ToLower(string(data))
}

func serialize(raw map[string]any) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(data))
}

func containsAny(haystack string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}
