package correlation

import (
	"strings"

	"github.com/intelsphere/apex-feeds/internal/models"
)

// Matcher decides whether a single record satisfies one trigger condition.
// The engine's control flow is matcher-agnostic so tokenized or field-scoped
// matchers can be substituted.
type Matcher interface {
	Match(rec models.IntelligenceRecord, cond models.TriggerCondition) bool
}

// KeywordMatcher implements the reference matching: category equality, a
// confidence floor, and case-insensitive keyword containment over the
// record's serialized view.
type KeywordMatcher struct{}

// Match reports whether rec satisfies cond.
func (KeywordMatcher) Match(rec models.IntelligenceRecord, cond models.TriggerCondition) bool {
	if rec.Category != cond.Category {
		return false
	}
	if rec.Confidence < cond.ConfidenceThreshold {
		return false
	}
	for _, kw := range cond.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(rec.SearchText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
