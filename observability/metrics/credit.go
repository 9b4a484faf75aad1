package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type CreditMetrics struct {
	draws          *prometheus.CounterVec
	repayments     *prometheus.CounterVec
	defaults       prometheus.Counter
	drawVolume     prometheus.Counter
	repayVolume    prometheus.Counter
	lastAccrual    prometheus.Gauge
	requestLatency *prometheus.HistogramVec
}

var (
	creditOnce     sync.Once
	creditRegistry *CreditMetrics
)

func Credit() *CreditMetrics {
	creditOnce.Do(func() {
		creditRegistry = &CreditMetrics{
			draws: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_draws_total",
				Help: "Count of executed draws segmented by fill outcome.",
			}, []string{"fill"}),
			repayments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_repayments_total",
				Help: "Count of settlements segmented by kind.",
			}, []string{"kind"}),
			defaults: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_defaults_total",
				Help: "Count of debts moved to the defaulted state.",
			}),
			drawVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_draw_volume",
				Help: "Cumulative principal sourced from vaults.",
			}),
			repayVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_repay_volume",
				Help: "Cumulative payments routed back to vaults.",
			}),
			lastAccrual: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_last_accrual_timestamp",
				Help: "Unix timestamp of the most recent accumulator refresh.",
			}),
			requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "credit_request_duration_seconds",
				Help:    "Latency distribution for HTTP handlers.",
				Buckets: prometheus.DefBuckets,
			}, []string{"route", "status"}),
		}
		prometheus.MustRegister(
			creditRegistry.draws,
			creditRegistry.repayments,
			creditRegistry.defaults,
			creditRegistry.drawVolume,
			creditRegistry.repayVolume,
			creditRegistry.lastAccrual,
			creditRegistry.requestLatency,
		)
	})
	return creditRegistry
}

func (m *CreditMetrics) ObserveDraw(sourced *big.Int, allSatisfied bool) {
	if m == nil {
		return
	}
	fill := "partial"
	if allSatisfied {
		fill = "full"
	}
	m.draws.WithLabelValues(fill).Inc()
	m.drawVolume.Add(approxFloat(sourced))
}

func (m *CreditMetrics) ObserveRepayment(kind string, paid *big.Int) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.repayments.WithLabelValues(kind).Inc()
	m.repayVolume.Add(approxFloat(paid))
}

func (m *CreditMetrics) ObserveDefault() {
	if m == nil {
		return
	}
	m.defaults.Inc()
}

func (m *CreditMetrics) SetLastAccrual(ts int64) {
	if m == nil {
		return
	}
	m.lastAccrual.Set(float64(ts))
}

func (m *CreditMetrics) ObserveRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(route, status).Observe(seconds)
}

// approxFloat converts an amount for gauge export. Precision loss is
// acceptable for monitoring.
func approxFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(amount).Float64()
	return f
}
