package models

import (
	"fmt"
	"time"
)

// Urgency is derived during normalization from feed priority and payload content.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyPriority  Urgency = "priority"
	UrgencyRoutine   Urgency = "routine"
)

// ActionableIndicator is a single follow-up item extracted from a payload,
// ranked ascending from 1.
type ActionableIndicator struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Context  string `json:"context"`
	Priority int    `json:"priority"`
}

// IntelligenceRecord is the canonical post-normalization shape. Records are
// immutable after creation; the buffer removes them by eviction only.
type IntelligenceRecord struct {
	ID                   string                `json:"recordId"`
	FeedID               string                `json:"feedId"`
	Category             FeedCategory          `json:"category"`
	CreatedAt            time.Time             `json:"timestamp"`
	Classification       Classification        `json:"classification"`
	Urgency              Urgency               `json:"urgency"`
	Raw                  map[string]any        `json:"rawData"`
	Enriched             map[string]any        `json:"processedData"`
	CorrelationTags      []string              `json:"correlationTags"`
	GeographicIndicators []string              `json:"geographicIndicators"`
	TemporalRelevance    float64               `json:"temporalRelevance"`
	Confidence           float64               `json:"confidenceScore"`
	SourceReliability    float64               `json:"sourceReliability"`
	ActionableIndicators []ActionableIndicator `json:"actionableIndicators"`

	// SearchText is the lower-cased serialized view of the record used for
	// keyword matching. Computed once at normalization time.
	SearchText string `json:"-"`
}

// Summary renders the human-readable one-liner carried in broadcast messages.
func (r IntelligenceRecord) Summary() string {
	return fmt.Sprintf("%s intelligence received from %s with %s urgency. Confidence: %.1f%%",
		r.Category, r.FeedID, r.Urgency, r.Confidence*100)
}

// TemporalRelevanceAt recomputes the freshness score for the given instant:
// linear decay from 1 to 0 over 24 hours of age.
func (r IntelligenceRecord) TemporalRelevanceAt(now time.Time) float64 {
	ageHours := now.Sub(r.CreatedAt).Hours()
	if ageHours <= 0 {
		return 1
	}
	rel := 1 - ageHours/24
	if rel < 0 {
		return 0
	}
	return rel
}
