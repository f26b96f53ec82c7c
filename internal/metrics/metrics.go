package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful poll cycles.
	OutcomeSuccess = "success"
	// OutcomeError labels failed poll cycles.
	OutcomeError = "error"
)

var (
	feedPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_feeds",
			Name:      "polls_total",
			Help:      "Total poll cycles per feed, partitioned by outcome.",
		},
		[]string{"feed", "outcome"},
	)

	recordsNormalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_feeds",
			Name:      "records_normalized_total",
			Help:      "Canonical intelligence records produced, per feed.",
		},
		[]string{"feed"},
	)

	correlationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "apex_feeds",
			Name:      "correlation_events_total",
			Help:      "Correlation events emitted, per rule.",
		},
		[]string{"rule"},
	)

	ruleEvalErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex_feeds",
			Name:      "rule_eval_errors_total",
			Help:      "Rule evaluations skipped due to malformed conditions.",
		},
	)

	dispatchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "apex_feeds",
			Name:      "dispatch_errors_total",
			Help:      "Action deliveries that failed; never retried.",
		},
	)

	bufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_feeds",
			Name:      "buffer_records",
			Help:      "Records currently held in the intelligence buffer.",
		},
	)

	connectedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "apex_feeds",
			Name:      "subscribers_connected",
			Help:      "Live broadcast subscribers.",
		},
	)
)

// Register attaches apex-feeds collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		feedPollsTotal,
		recordsNormalizedTotal,
		correlationEventsTotal,
		ruleEvalErrorsTotal,
		dispatchErrorsTotal,
		bufferSize,
		connectedSubscribers,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePoll records one poll cycle outcome for a feed.
func ObservePoll(feedID string, outcome string) {
	if outcome != OutcomeError {
		outcome = OutcomeSuccess
	}
	feedPollsTotal.WithLabelValues(feedID, outcome).Inc()
}

// ObserveRecord counts one normalized record for a feed.
func ObserveRecord(feedID string) {
	recordsNormalizedTotal.WithLabelValues(feedID).Inc()
}

// ObserveCorrelation counts one emitted correlation event for a rule.
func ObserveCorrelation(ruleID string) {
	correlationEventsTotal.WithLabelValues(ruleID).Inc()
}

// ObserveRuleEvalError counts a rule evaluation skipped for this cycle.
func ObserveRuleEvalError() {
	ruleEvalErrorsTotal.Inc()
}

// ObserveDispatchError counts a failed action delivery.
func ObserveDispatchError() {
	dispatchErrorsTotal.Inc()
}

// SetBufferSize publishes the current buffer length.
func SetBufferSize(n int) {
	bufferSize.Set(float64(n))
}

// SetConnectedSubscribers publishes the live subscriber count.
func SetConnectedSubscribers(n int) {
	connectedSubscribers.Set(float64(n))
}
