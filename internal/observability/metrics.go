// Package observability provides Prometheus metrics and tracing setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Transport metrics
	RPCCallLatency  *prometheus.HistogramVec
	RPCCallErrors   *prometheus.CounterVec
	WSNotifications *prometheus.CounterVec
	WSReconnects    prometheus.Counter

	// Action metrics
	ActionsTotal        *prometheus.CounterVec
	ActionDuration      *prometheus.HistogramVec
	ConfirmationLatency prometheus.Histogram
	TokensPurchased     prometheus.Counter
	LamportsSpent       prometheus.Counter

	// Sale metrics
	SaleTotalTokens prometheus.Gauge
	SaleTokensSold  prometheus.Gauge
	SaleRemaining   prometheus.Gauge
	SnapshotsStored prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRefresh  prometheus.Gauge
	LastSuccessfulSnapshot prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_ico"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed Solana RPC calls",
		}, []string{"method"}),
		WSNotifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_notifications_total",
			Help:      "Total number of WebSocket notifications by method",
		}, []string{"method"}),
		WSReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of successful WebSocket reconnects",
		}),

		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "actions_total",
			Help:      "Total number of sale actions by kind and status",
		}, []string{"kind", "status"}),
		ActionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "action_duration_seconds",
			Help:      "Sale action duration in seconds, including confirmation",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		ConfirmationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		TokensPurchased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_purchased_total",
			Help:      "Total number of whole tokens bought through this client",
		}),
		LamportsSpent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "lamports_spent_total",
			Help:      "Total lamports paid for purchases through this client",
		}),

		SaleTotalTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "total_tokens",
			Help:      "Tokens deposited into the sale vault",
		}),
		SaleTokensSold: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_sold",
			Help:      "Tokens sold by the sale",
		}),
		SaleRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sale",
			Name:      "tokens_remaining",
			Help:      "Tokens still available in the sale",
		}),
		SnapshotsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watch",
			Name:      "snapshots_stored_total",
			Help:      "Total number of sale snapshots stored",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "code"}),

		LastSuccessfulRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_refresh_timestamp",
			Help:      "Unix timestamp of last successful session refresh",
		}),
		LastSuccessfulSnapshot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of last stored sale snapshot",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordRPCCall records RPC call latency and failure.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// RecordWSNotification counts a WebSocket notification.
func RecordWSNotification(method string) {
	DefaultMetrics.WSNotifications.WithLabelValues(method).Inc()
}

// RecordWSReconnect counts a successful reconnect.
func RecordWSReconnect() {
	DefaultMetrics.WSReconnects.Inc()
}

// RecordAction records a finished sale action.
func RecordAction(kind, status string, durationSeconds float64) {
	DefaultMetrics.ActionsTotal.WithLabelValues(kind, status).Inc()
	DefaultMetrics.ActionDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordConfirmation records how long a signature took to confirm.
func RecordConfirmation(seconds float64) {
	DefaultMetrics.ConfirmationLatency.Observe(seconds)
}

// RecordPurchase adds a confirmed purchase to the running totals.
func RecordPurchase(tokens, lamports uint64) {
	DefaultMetrics.TokensPurchased.Add(float64(tokens))
	DefaultMetrics.LamportsSpent.Add(float64(lamports))
}

// UpdateSale sets the sale gauges.
func UpdateSale(totalTokens, tokensSold uint64) {
	DefaultMetrics.SaleTotalTokens.Set(float64(totalTokens))
	DefaultMetrics.SaleTokensSold.Set(float64(tokensSold))
	var remaining uint64
	if totalTokens > tokensSold {
		remaining = totalTokens - tokensSold
	}
	DefaultMetrics.SaleRemaining.Set(float64(remaining))
}

// RecordSnapshot counts a stored snapshot and stamps the health gauge.
func RecordSnapshot(unixSeconds int64) {
	DefaultMetrics.SnapshotsStored.Inc()
	DefaultMetrics.LastSuccessfulSnapshot.Set(float64(unixSeconds))
}

// RecordRefresh stamps the last successful refresh.
func RecordRefresh(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulRefresh.Set(float64(unixSeconds))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordHTTPRequest counts an API request.
func RecordHTTPRequest(route string, code int) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, statusLabel(code)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
