package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stashRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	stashRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stash_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	stashLedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_ledger_operations_total",
		Help: "Total ledger operations by kind and outcome.",
	}, []string{"operation", "outcome"})

	stashWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		stashRequestsTotal.WithLabelValues(method, path, status).Inc()
		stashRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerOp records a ledger operation outcome.
func RecordLedgerOp(operation string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "rejected"
	}
	stashLedgerOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		stashWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		stashWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}
