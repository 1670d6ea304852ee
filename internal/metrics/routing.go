// Package metrics exposes Prometheus metrics for routed pool acquisitions
// and the connection pools behind them.
package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/saltyorg/routedb/internal/dbrouter"
)

const namespace = "routedb"

// RoutingMetrics holds metrics about routed acquisitions and pool usage.
type RoutingMetrics struct {
	// AcquisitionsTotal counts resolved acquisitions.
	// Labels: target, source (bound, default)
	AcquisitionsTotal *prometheus.CounterVec

	// AcquisitionErrorsTotal counts acquisitions for unregistered targets.
	// Labels: target
	AcquisitionErrorsTotal *prometheus.CounterVec

	// OpenConnections is the number of established connections per pool.
	OpenConnections *prometheus.GaugeVec

	// InUse is the number of connections currently borrowed per pool.
	InUse *prometheus.GaugeVec

	// Idle is the number of idle connections per pool.
	Idle *prometheus.GaugeVec

	// WaitCount is the total number of connections waited for per pool.
	WaitCount *prometheus.GaugeVec
}

var _ dbrouter.Observer = (*RoutingMetrics)(nil)

// NewRoutingMetrics creates routing metrics registered with the default registry.
func NewRoutingMetrics() *RoutingMetrics {
	return NewRoutingMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewRoutingMetricsWithRegistry creates routing metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewRoutingMetricsWithRegistry(reg prometheus.Registerer) *RoutingMetrics {
	m := &RoutingMetrics{
		AcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "acquisitions_total",
				Help:      "Total number of routed pool acquisitions, broken down by target and whether the target was bound or the default.",
			},
			[]string{"target", "source"},
		),
		AcquisitionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "acquisition_errors_total",
				Help:      "Total number of acquisitions for targets with no registered pool.",
			},
			[]string{"target"},
		),
		OpenConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "open_connections",
				Help:      "Number of established connections, both in use and idle.",
			},
			[]string{"target"},
		),
		InUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "in_use",
				Help:      "Number of connections currently in use.",
			},
			[]string{"target"},
		),
		Idle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "idle",
				Help:      "Number of idle connections.",
			},
			[]string{"target"},
		),
		WaitCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pool",
				Name:      "wait_count",
				Help:      "Total number of connections waited for.",
			},
			[]string{"target"},
		),
	}

	reg.MustRegister(
		m.AcquisitionsTotal,
		m.AcquisitionErrorsTotal,
		m.OpenConnections,
		m.InUse,
		m.Idle,
		m.WaitCount,
	)

	return m
}

// Acquired records a resolved acquisition
func (m *RoutingMetrics) Acquired(target dbrouter.Target, bound bool) {
	source := "bound"
	if !bound {
		source = "default"
	}
	m.AcquisitionsTotal.WithLabelValues(target.String(), source).Inc()
}

// AcquireFailed records an acquisition for an unregistered target
func (m *RoutingMetrics) AcquireFailed(target dbrouter.Target, _ error) {
	m.AcquisitionErrorsTotal.WithLabelValues(target.String()).Inc()
}

// ObservePool records a snapshot of a pool's statistics
func (m *RoutingMetrics) ObservePool(target dbrouter.Target, stats sql.DBStats) {
	label := target.String()
	m.OpenConnections.WithLabelValues(label).Set(float64(stats.OpenConnections))
	m.InUse.WithLabelValues(label).Set(float64(stats.InUse))
	m.Idle.WithLabelValues(label).Set(float64(stats.Idle))
	m.WaitCount.WithLabelValues(label).Set(float64(stats.WaitCount))
}
