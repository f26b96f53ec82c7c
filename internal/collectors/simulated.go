package collectors

import (
	"context"
	"fmt"
	"time"

	"github.com/intelsphere/apex-feeds/internal/models"
	"github.com/intelsphere/apex-feeds/internal/utils"
)

// SimulatedCollector emits representative canned payloads for a feed
// category. Used by local development configurations in place of live
// endpoints.
type SimulatedCollector struct {
	category models.FeedCategory
	clock    utils.Clock
}

// NewSimulatedCollector constructs a simulated collector for one category.
func NewSimulatedCollector(category models.FeedCategory, clock utils.Clock) *SimulatedCollector {
	if clock == nil {
		clock = utils.RealClock()
	}
	return &SimulatedCollector{category: category, clock: clock}
}

// Collect implements feeds.Collector.
func (c *SimulatedCollector) Collect(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := c.clock.Now().UTC().Format(time.RFC3339)
	switch c.category {
	case models.CategoryThreatIntel:
		return threatPayload(now), nil
	case models.CategoryMarketData:
		return marketPayload(now), nil
	case models.CategoryNewsFeeds:
		return newsPayload(now), nil
	case models.CategorySocialIntel:
		return socialPayload(now), nil
	case models.CategoryFinancial:
		return financialPayload(now), nil
	case models.CategoryGeopolitical:
		return geopoliticalPayload(now), nil
	default:
		return nil, fmt.Errorf("no simulation for category %q", c.category)
	}
}

func threatPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "threat_indicators",
		"timestamp":         now,
		"indicators": []any{
			map[string]any{
				"type":        "ip_address",
				"value":       "192.168.100.50",
				"threat_type": "malicious_c2",
				"confidence":  0.89,
			},
			map[string]any{
				"type":        "domain",
				"value":       "malicious-example.com",
				"threat_type": "phishing_infrastructure",
				"confidence":  0.92,
			},
		},
		"threat_landscape": map[string]any{
			"active_campaigns": 15,
			"threat_level":     "elevated",
			"geographic_focus": []any{"Malaysia", "Singapore", "Thailand"},
		},
		"summary": "Active attack infrastructure detected across regional networks",
		"actionable_intelligence": []any{
			"Block identified malicious IP addresses",
			"Monitor for similar domain registration patterns",
			"Update threat hunting rules with new TTPs",
		},
	}
}

func marketPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "market_data",
		"timestamp":         now,
		"markets": map[string]any{
			"FTSE_KLCI": map[string]any{"current_value": 1485.67, "change_percent": 0.84},
			"STI":       map[string]any{"current_value": 3247.89, "change_percent": -0.26},
		},
		"regional_analysis": map[string]any{
			"overall_sentiment": "positive",
			"volatility_index":  0.23,
			"sector_performance": map[string]any{
				"technology": 2.1,
				"banking":    1.3,
				"energy":     -0.8,
			},
		},
		"summary": "Volatility easing across Singapore and Malaysia markets",
		"actionable_intelligence": []any{
			"Monitor technology sector outperformance",
			"Assess banking sector stability indicators",
		},
	}
}

func newsPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "news_intelligence",
		"timestamp":         now,
		"breaking_news": []any{
			map[string]any{
				"headline":        "ASEAN Digital Economy Initiative Announces Investment Plan",
				"sentiment":       "positive",
				"relevance_score": 0.94,
				"sector_impact":   []any{"technology", "finance"},
			},
			map[string]any{
				"headline":        "Cybersecurity Alert: New APT Campaign Targeting Financial Institutions",
				"sentiment":       "negative",
				"relevance_score": 0.97,
				"sector_impact":   []any{"banking", "government"},
			},
		},
		"geographic_focus": []any{"Malaysia", "Singapore", "Thailand"},
		"actionable_intelligence": []any{
			"Monitor digital economy investment opportunities",
			"Enhance cybersecurity posture for financial institutions",
		},
	}
}

func socialPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "social_intelligence",
		"timestamp":         now,
		"platform_analysis": map[string]any{
			"linkedin": map[string]any{
				"trending_topics": []any{"digital transformation", "technology adoption"},
				"sentiment_score": 0.74,
			},
			"twitter": map[string]any{
				"trending_hashtags": []any{"#ASEANTech", "#DigitalMalaysia"},
				"sentiment_score":   0.68,
			},
		},
		"geographic_distribution": map[string]any{"Malaysia": 65, "Singapore": 20},
		"actionable_intelligence": []any{
			"Leverage trending topics for content strategy",
			"Monitor sentiment shifts in key demographics",
		},
	}
}

func financialPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "financial_intelligence",
		"timestamp":         now,
		"banking_sector": map[string]any{
			"sector_health":        "stable",
			"non_performing_loans": 1.8,
			"credit_growth":        map[string]any{"business_loans": 4.2, "mortgages": 5.1},
		},
		"regulatory_updates": map[string]any{
			"regulatory_focus": []any{"cybersecurity", "consumer protection"},
		},
		"summary": "Finance sector liquidity stable across Singapore institutions",
		"actionable_intelligence": []any{
			"Monitor banking sector stability indicators",
			"Track fintech regulatory developments",
		},
	}
}

func geopoliticalPayload(now string) map[string]any {
	return map[string]any{
		"intelligence_type": "geopolitical_intelligence",
		"timestamp":         now,
		"regional_developments": map[string]any{
			"trade_agreements":     map[string]any{"rcep_implementation": "ongoing"},
			"security_cooperation": map[string]any{"cybersecurity_frameworks": "developing"},
		},
		"risk_assessment": map[string]any{
			"political_stability": 0.78,
			"economic_resilience": 0.82,
		},
		"summary": "Government policy coordination strengthening across Indonesia and Vietnam",
		"actionable_intelligence": []any{
			"Monitor regional trade agreement implementations",
			"Track cybersecurity cooperation developments",
		},
	}
}
