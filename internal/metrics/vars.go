// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PairsEvaluated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crossarb_pairs_evaluated_total",
		Help: "Number of verified pair evaluations",
	})

	EvaluationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossarb_evaluation_errors_total",
		Help: "Pair evaluations that failed to fetch quotes, by venue",
	}, []string{"venue"})

	Detections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossarb_opportunities_detected_total",
		Help: "Opportunities clearing the minimum spread, by strategy kind",
	}, []string{"kind"})

	DetectedSpread = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_detected_spread_ratio",
		Help:    "Net spread of detected opportunities",
		Buckets: []float64{0.005, 0.01, 0.02, 0.03, 0.05, 0.08, 0.12, 0.2},
	})

	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossarb_executions_total",
		Help: "Execution attempts by engine and result status",
	}, []string{"engine", "status"})

	FillImbalance = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crossarb_fill_imbalance_ratio",
		Help:    "Leg fill imbalance as a fraction of target size",
		Buckets: []float64{0, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
	})

	VenueRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossarb_venue_requests_total",
		Help: "Venue API requests by venue and outcome",
	}, []string{"venue", "outcome"})

	VenueLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossarb_venue_request_seconds",
		Help:    "Venue API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"venue"})

	SimBalance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_sim_balance_usd",
		Help: "Simulated account balance",
	})

	RealizedPnL = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "crossarb_realized_pnl_usd",
		Help: "Cumulative realized PnL across positions",
	})

	LoopIterations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossarb_loop_iterations_total",
		Help: "Orchestrator iterations by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		PairsEvaluated,
		EvaluationErrors,
		Detections,
		DetectedSpread,
		Executions,
		FillImbalance,
		VenueRequests,
		VenueLatency,
		SimBalance,
		RealizedPnL,
		LoopIterations,
	)
}
