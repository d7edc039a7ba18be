// Package observability records stock engine events as Prometheus metrics.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/stock-engine/stock"
)

var _ stock.Observer = (*Metrics)(nil)

// Metrics implements stock.Observer. Pass it to the engine with
// stock.WithObserver.
type Metrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	EntriesApplied *prometheus.CounterVec
	Rejected       *prometheus.CounterVec

	// Alert metrics
	AlertsRaised  *prometheus.CounterVec
	AlertFailures prometheus.Counter

	// Sweep metrics
	SweepDuration prometheus.Histogram
	SweepScanned  prometheus.Counter
}

// NewMetrics registers the engine metrics on reg. A nil reg gets a fresh
// registry, which is what tests use.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,

		EntriesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_ledger_applied_total",
			Help: "Ledger entries appended, by transaction type.",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_ledger_rejected_total",
			Help: "Ledger operations rejected, by reason.",
		}, []string{"reason"}),

		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_alerts_raised_total",
			Help: "Alerts newly opened, by alert type.",
		}, []string{"type"}),
		AlertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_alert_failures_total",
			Help: "Alert evaluations that failed after a committed ledger change.",
		}),

		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stock_sweep_duration_seconds",
			Help:    "Wall time of expiry sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
		SweepScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_sweep_scanned_total",
			Help: "Ingredients examined by expiry sweeps.",
		}),
	}
	reg.MustRegister(
		m.EntriesApplied,
		m.Rejected,
		m.AlertsRaised,
		m.AlertFailures,
		m.SweepDuration,
		m.SweepScanned,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// =============================================================================
// stock.Observer
// =============================================================================

func (m *Metrics) EntryApplied(e stock.Entry) {
	m.EntriesApplied.WithLabelValues(string(e.Type)).Inc()
}

func (m *Metrics) ApplyRejected(_ stock.TxType, err error) {
	m.Rejected.WithLabelValues(RejectReason(err)).Inc()
}

func (m *Metrics) AlertRaised(a stock.Alert) {
	m.AlertsRaised.WithLabelValues(string(a.Type)).Inc()
}

func (m *Metrics) AlertFailed(stock.IngredientID, error) {
	m.AlertFailures.Inc()
}

func (m *Metrics) SweepCompleted(report stock.SweepReport, elapsed time.Duration) {
	m.SweepDuration.Observe(elapsed.Seconds())
	m.SweepScanned.Add(float64(report.Scanned))
}

// RejectReason maps an engine error to a low-cardinality label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, stock.ErrConsumptionFailed):
		return "consumption_failed"
	case errors.Is(err, stock.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, stock.ErrInvalidQuantity):
		return "invalid"
	case errors.Is(err, stock.ErrIngredientDeleted):
		return "deleted"
	case errors.Is(err, stock.ErrNotFound):
		return "not_found"
	case errors.Is(err, stock.ErrConcurrentModification):
		return "conflict"
	default:
		return "other"
	}
}
