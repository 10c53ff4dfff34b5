package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics tracks arbitrage attempts and their outcomes
type EngineMetrics struct {
	Attempts     prometheus.Counter
	Successes    prometheus.Counter
	Failures     *prometheus.CounterVec
	Profit       prometheus.Counter
	Latency      prometheus.Histogram
	DeviationBps prometheus.Histogram
	LegOutput    *prometheus.CounterVec
}

// NewEngineMetrics registers engine metrics with reg. A nil reg creates
// unregistered collectors.
func NewEngineMetrics(namespace string, reg prometheus.Registerer) *EngineMetrics {
	factory := promauto.With(reg)

	return &EngineMetrics{
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_attempts_total",
			Help:      "Total number of arbitrage attempts",
		}),
		Successes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_success_total",
			Help:      "Total number of committed arbitrages",
		}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_failures_total",
			Help:      "Total number of aborted arbitrages by failure kind",
		}, []string{"kind"}),
		Profit: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrage_profit_units_total",
			Help:      "Cumulative realized profit in base asset units",
		}),
		Latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arbitrage_latency_seconds",
			Help:      "Time spent executing an arbitrage attempt",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		DeviationBps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "arbitrage_deviation_bps",
			Help:      "Deviation of realized buy rate from the oracle",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		LegOutput: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_leg_output_units_total",
			Help:      "Measured output of swap legs in asset units",
		}, []string{"leg"}),
	}
}
