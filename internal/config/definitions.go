package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/intelsphere/apex-feeds/internal/models"
)

// Definitions enumerates the feeds and correlation rules to install at
// startup. Collector wiring happens in the caller; definitions are pure data.
type Definitions struct {
	Feeds []FeedDefinition `yaml:"feeds"`
	Rules []RuleDefinition `yaml:"rules"`
}

// FeedDefinition is the YAML shape of one feed registration.
type FeedDefinition struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	Category            string   `yaml:"category"`
	Endpoint            string   `yaml:"endpoint"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	Priority            string   `yaml:"priority"`
	GeographicScope     []string `yaml:"geographic_scope"`
	LanguageFilters     []string `yaml:"language_filters"`
	Classification      string   `yaml:"classification"`
	Reliability         float64  `yaml:"reliability"`
	Throughput          float64  `yaml:"throughput"`
	Simulated           bool     `yaml:"simulated"`
}

// PollInterval converts the declared cadence.
func (f FeedDefinition) PollInterval() time.Duration {
	return time.Duration(f.PollIntervalSeconds) * time.Second
}

// RuleDefinition is the YAML shape of one correlation rule.
type RuleDefinition struct {
	ID                string                `yaml:"id"`
	Name              string                `yaml:"name"`
	Logic             string                `yaml:"logic"`
	Conditions        []ConditionDefinition `yaml:"conditions"`
	Actions           []ActionDefinition    `yaml:"actions"`
	GeographicFilters []string              `yaml:"geographic_filters"`
	Classifications   []string              `yaml:"classifications"`
	Enabled           bool                  `yaml:"enabled"`
}

// ConditionDefinition is one trigger condition in YAML form.
type ConditionDefinition struct {
	Category            string   `yaml:"category"`
	Keywords            []string `yaml:"keywords"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold"`
	TimeWindowSeconds   int      `yaml:"time_window_seconds"`
}

// ActionDefinition is one action trigger in YAML form.
type ActionDefinition struct {
	Action     string   `yaml:"action"`
	Recipients []string `yaml:"recipients"`
	Priority   int      `yaml:"priority"`
}

// ToRule maps a definition into the domain rule type.
func (r RuleDefinition) ToRule() models.CorrelationRule {
	rule := models.CorrelationRule{
		ID:                r.ID,
		Name:              r.Name,
		Logic:             models.CombinationLogic(r.Logic),
		GeographicFilters: r.GeographicFilters,
		Enabled:           r.Enabled,
	}
	for _, c := range r.Classifications {
		rule.Classifications = append(rule.Classifications, models.Classification(c))
	}
	for _, c := range r.Conditions {
		rule.Conditions = append(rule.Conditions, models.TriggerCondition{
			Category:            models.FeedCategory(c.Category),
			Keywords:            c.Keywords,
			ConfidenceThreshold: c.ConfidenceThreshold,
			TimeWindow:          time.Duration(c.TimeWindowSeconds) * time.Second,
		})
	}
	for _, a := range r.Actions {
		rule.Actions = append(rule.Actions, models.ActionTrigger{
			Type:       models.ActionType(a.Action),
			Recipients: a.Recipients,
			Priority:   a.Priority,
		})
	}
	return rule
}

// LoadDefinitions parses a feed/rule definition file.
func LoadDefinitions(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	var defs Definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse definitions: %w", err)
	}
	if len(defs.Feeds) == 0 {
		return nil, fmt.Errorf("definitions %s: no feeds declared", path)
	}
	return &defs, nil
}
