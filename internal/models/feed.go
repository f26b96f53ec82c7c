package models

import "time"

// FeedCategory enumerates the kinds of intelligence sources.
type FeedCategory string

const (
	CategoryThreatIntel  FeedCategory = "threat_intel"
	CategoryMarketData   FeedCategory = "market_data"
	CategoryNewsFeeds    FeedCategory = "news_feeds"
	CategorySocialIntel  FeedCategory = "social_intel"
	CategoryFinancial    FeedCategory = "financial_feeds"
	CategoryGeopolitical FeedCategory = "geopolitical"
)

// FeedPriority captures how aggressively a feed's output is treated.
type FeedPriority string

const (
	PriorityCritical FeedPriority = "critical"
	PriorityHigh     FeedPriority = "high"
	PriorityMedium   FeedPriority = "medium"
	PriorityLow      FeedPriority = "low"
)

// Classification marks the handling level of a feed and its records.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationCommercial   Classification = "commercial"
	ClassificationConfidential Classification = "confidential"
	ClassificationSecret       Classification = "secret"
)

// FeedStatus tracks a feed's operational state.
type FeedStatus string

const (
	FeedActive      FeedStatus = "active"
	FeedPaused      FeedStatus = "paused"
	FeedError       FeedStatus = "error"
	FeedMaintenance FeedStatus = "maintenance"
)

// IntelligenceFeed describes a registered source and its operational state.
// Identity and scope fields are fixed at registration; Status, ErrorCount,
// LastUpdate and Throughput are mutated only by the feed's own poll task.
type IntelligenceFeed struct {
	ID              string
	Name            string
	Category        FeedCategory
	Endpoint        string
	PollInterval    time.Duration
	Priority        FeedPriority
	GeographicScope []string
	LanguageFilters []string
	Classification  Classification
	Reliability     float64
	Status          FeedStatus
	ErrorCount      int
	LastUpdate      time.Time
	Throughput      float64
}

// FeedHealth is the per-feed slice of the status snapshot.
type FeedHealth struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Status     FeedStatus `json:"status"`
	ErrorCount int        `json:"errorCount"`
	LastUpdate time.Time  `json:"lastUpdate"`
	Throughput float64    `json:"throughput"`
}

// EngineStatus is the read-only snapshot served by the status endpoint.
type EngineStatus struct {
	TotalFeeds           int          `json:"totalFeeds"`
	ActiveFeeds          int          `json:"activeFeeds"`
	ErroredFeeds         int          `json:"erroredFeeds"`
	TotalThroughput      float64      `json:"totalThroughput"`
	BufferSize           int          `json:"bufferSize"`
	EnabledRules         int          `json:"enabledRules"`
	ConnectedSubscribers int          `json:"connectedSubscribers"`
	RuleEvalErrors       int64        `json:"ruleEvalErrors"`
	Feeds                []FeedHealth `json:"feeds"`
}
