// Package metrics exposes points activity as Prometheus series.
package metrics

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/points/pkg/points"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "points"

// Metrics groups the collectors the daemon exports.
type Metrics struct {
	Operations     *prometheus.CounterVec
	PointsMoved    *prometheus.CounterVec
	EventDuration  *prometheus.HistogramVec
	HostRequests   *prometheus.CounterVec
	HostConnection prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
		}, []string{"operation", "ledger", "status"}),
		PointsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "points_moved_total",
		}, []string{"operation", "ledger"}),
		EventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handle_seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "ok"}),
		HostRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "requests_total",
		}, []string{"request", "status"}),
		HostConnection: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "connected",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			metrics.Operations,
			metrics.PointsMoved,
			metrics.EventDuration,
			metrics.HostRequests,
			metrics.HostConnection,
		)
	}
	return metrics
}

// LogOperation counts one points operation; it satisfies points.OperationLogger.
func (metrics *Metrics) LogOperation(_ context.Context, entry points.OperationLog) {
	status := entry.Status
	if status == "" {
		status = "ok"
	}
	ledgerName := entry.Ledger.String()
	metrics.Operations.WithLabelValues(entry.Operation, ledgerName, status).Inc()
	if entry.Error == nil && entry.Amount > 0 {
		metrics.PointsMoved.WithLabelValues(entry.Operation, ledgerName).Add(float64(entry.Amount))
	}
}

// ObserveEvent records how long one handler invocation took.
func (metrics *Metrics) ObserveEvent(handler string, ok bool, elapsed time.Duration) {
	label := "false"
	if ok {
		label = "true"
	}
	metrics.EventDuration.WithLabelValues(handler, label).Observe(elapsed.Seconds())
}

// ObserveHostRequest counts one request sent to the host WebSocket API.
func (metrics *Metrics) ObserveHostRequest(request string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.HostRequests.WithLabelValues(request, status).Inc()
}

// SetHostConnected flips the host connection gauge.
func (metrics *Metrics) SetHostConnected(connected bool) {
	if connected {
		metrics.HostConnection.Set(1)
		return
	}
	metrics.HostConnection.Set(0)
}
