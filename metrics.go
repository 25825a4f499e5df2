package spmcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for gateway operations. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	calls    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.HistogramVec
}

// NewMetrics creates the gateway collectors and pool gauges and registers them
// on reg. Panics if registration fails, like prometheus.MustRegister.
func NewMetrics(reg prometheus.Registerer, pm *PoolManager) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steampipe_mcp_operations_total",
				Help: "Total number of gateway operations",
			},
			[]string{"operation", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "steampipe_mcp_operation_errors_total",
				Help: "Total number of failed gateway operations by error kind",
			},
			[]string{"operation", "kind"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steampipe_mcp_operation_duration_seconds",
				Help:    "Gateway operation duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		rows: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "steampipe_mcp_result_rows",
				Help:    "Number of rows returned per successful operation",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.calls, m.errors, m.duration, m.rows)

	if pm != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "steampipe_mcp_pool_total_conns",
				Help: "Connections currently open in the pool",
			}, func() float64 { return float64(pm.Stats().TotalConns) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "steampipe_mcp_pool_acquired_conns",
				Help: "Connections currently borrowed from the pool",
			}, func() float64 { return float64(pm.Stats().AcquiredConns) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "steampipe_mcp_pool_in_flight_operations",
				Help: "Gateway operations currently holding the pool",
			}, func() float64 { return float64(pm.Stats().InFlight) }),
		)
	}
	return m
}

func (m *Metrics) observe(op string, start time.Time, rows int, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.calls.WithLabelValues(op, "error").Inc()
		m.errors.WithLabelValues(op, string(KindOf(err))).Inc()
		return
	}
	m.calls.WithLabelValues(op, "ok").Inc()
	m.rows.WithLabelValues(op).Observe(float64(rows))
}
