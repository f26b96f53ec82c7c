package models

import "time"

// CombinationLogic selects how a rule's conditions are combined.
type CombinationLogic string

const (
	LogicAND CombinationLogic = "AND"
	LogicOR  CombinationLogic = "OR"
	// LogicWeighted is accepted but currently evaluated like OR: per-condition
	// weights are not applied. The value is kept distinct so rule definitions
	// survive a future weighting scheme unchanged.
	LogicWeighted CombinationLogic = "WEIGHTED"
)

// ActionType tags a dispatched action; interpretation is entirely
// recipient-side.
type ActionType string

const (
	ActionAlert       ActionType = "alert"
	ActionEscalate    ActionType = "escalate"
	ActionNotify      ActionType = "notify"
	ActionInvestigate ActionType = "investigate"
)

// TriggerCondition names one feed category, keyword set, confidence floor and
// time window that a record must satisfy.
type TriggerCondition struct {
	Category            FeedCategory
	Keywords            []string
	ConfidenceThreshold float64
	TimeWindow          time.Duration
}

// ActionTrigger routes a matched rule to recipients.
type ActionTrigger struct {
	Type       ActionType
	Recipients []string
	Priority   int
}

// CorrelationRule is a declarative cross-feed pattern definition.
type CorrelationRule struct {
	ID                string
	Name              string
	Conditions        []TriggerCondition
	Logic             CombinationLogic
	Actions           []ActionTrigger
	GeographicFilters []string
	Classifications   []Classification
	Enabled           bool
}

// MaxWindow returns the widest condition time window, used to bound companion
// searches for reactive evaluation.
func (r CorrelationRule) MaxWindow() time.Duration {
	var max time.Duration
	for _, c := range r.Conditions {
		if c.TimeWindow > max {
			max = c.TimeWindow
		}
	}
	return max
}

// ContributingRecord identifies one record that participated in a correlation.
type ContributingRecord struct {
	RecordID   string       `json:"recordId"`
	FeedID     string       `json:"feedId"`
	Category   FeedCategory `json:"category"`
	Urgency    Urgency      `json:"urgency"`
	Confidence float64      `json:"confidence"`
}

// CorrelationEvent is emitted exactly once per rule match and is not retained
// after dispatch and broadcast.
type CorrelationEvent struct {
	RuleID             string               `json:"ruleId"`
	RuleName           string               `json:"ruleName"`
	Timestamp          time.Time            `json:"timestamp"`
	Records            []ContributingRecord `json:"contributingRecords"`
	Strength           float64              `json:"strength"`
	RecommendedActions []string             `json:"recommendedActions"`
}
