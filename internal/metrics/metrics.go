// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes recorded by the daily job.
const (
	RefreshOK          = "ok"
	RefreshSkippedHour = "skipped_wrong_hour"
	RefreshSkippedDone = "skipped_already_ran"
	RefreshError       = "error"
)

// Collector records service-level counters.
type Collector struct {
	refreshRuns *prometheus.CounterVec
	upstream    *prometheus.CounterVec
	cacheReads  *prometheus.CounterVec
	merges      prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_refresh_runs_total",
			Help: "Daily refresh runs by outcome.",
		}, []string{"outcome"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_upstream_requests_total",
			Help: "Upstream provider requests by call and status class.",
		}, []string{"call", "status_class"}),
		cacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weatherdash_snapshot_reads_total",
			Help: "Snapshot cache reads by result.",
		}, []string{"result"}),
		merges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weatherdash_history_merges_total",
			Help: "Month-history merge writes.",
		}),
	}

	reg.MustRegister(c.refreshRuns, c.upstream, c.cacheReads, c.merges)
	return c
}

// RecordRefresh records one daily-refresh run outcome.
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshRuns.WithLabelValues(outcome).Inc()
}

// RecordUpstream records one upstream provider response, bucketed by status
// class (2xx, 4xx, ...).
func (c *Collector) RecordUpstream(call string, statusCode int) {
	class := strconv.Itoa(statusCode/100) + "xx"
	c.upstream.WithLabelValues(call, class).Inc()
}

// RecordUpstreamError records an upstream request that produced no HTTP
// response (transport failure, open circuit).
func (c *Collector) RecordUpstreamError(call string) {
	c.upstream.WithLabelValues(call, "error").Inc()
}

// RecordCacheRead records a snapshot cache hit or miss.
func (c *Collector) RecordCacheRead(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheReads.WithLabelValues(result).Inc()
}

// RecordMerge records one history merge write.
func (c *Collector) RecordMerge() {
	c.merges.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
