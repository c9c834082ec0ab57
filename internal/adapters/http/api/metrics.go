package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tasktune/fatigue/pkg/metrics"
)

// NewMetricsHandler serves the Prometheus exposition of the service registry.
func NewMetricsHandler() http.Handler {
	// Use our custom metrics registry to serve metrics
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
