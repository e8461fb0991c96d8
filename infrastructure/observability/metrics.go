// Package observability holds the Prometheus metrics surface for the
// engine. Every instance carries its own registry, so tests can build
// collectors freely without duplicate-registration panics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the engine
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Hierarchy metrics
	ContainerCount prometheus.Gauge
	GraphCount     prometheus.Gauge

	// Promotion metrics
	PromotionsTotal   *prometheus.CounterVec
	PromotionDuration prometheus.Histogram

	// Consistency metrics
	IntegrityFindings  *prometheus.GaugeVec
	RepairActionsTotal *prometheus.CounterVec

	// Persistence metrics
	SnapshotFlushesTotal  *prometheus.CounterVec
	SnapshotFlushDuration *prometheus.HistogramVec
	WriteQueueDepth       prometheus.Gauge

	// Event metrics
	EventsPublishedTotal *prometheus.CounterVec
}

// NewCollector creates a metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ContainerCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "containers",
				Help:      "Number of containers in the hierarchy",
			},
		),
		GraphCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graphs",
				Help:      "Number of graphs in the workspace",
			},
		),
		PromotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promotions_total",
				Help:      "Total number of graph promotions by flow",
			},
			[]string{"source", "target"},
		),
		PromotionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "promotion_duration_seconds",
				Help:      "Promotion duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		IntegrityFindings: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "integrity_findings",
				Help:      "Findings reported by the last integrity validation, by category",
			},
			[]string{"category"},
		),
		RepairActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repair_actions_total",
				Help:      "Total number of automatic repair actions by kind",
			},
			[]string{"action"},
		),
		SnapshotFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_flushes_total",
				Help:      "Total number of snapshot flush attempts by outcome",
			},
			[]string{"key", "status"},
		),
		SnapshotFlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_flush_duration_seconds",
				Help:      "Snapshot flush duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"key"},
		),
		WriteQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "write_queue_depth",
				Help:      "Number of snapshot writes waiting in the debounce queue",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published by type",
			},
			[]string{"event_type"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.ContainerCount,
		c.GraphCount,
		c.PromotionsTotal,
		c.PromotionDuration,
		c.IntegrityFindings,
		c.RepairActionsTotal,
		c.SnapshotFlushesTotal,
		c.SnapshotFlushDuration,
		c.WriteQueueDepth,
		c.EventsPublishedTotal,
	)

	return c
}

// ObserveHTTPRequest records one completed HTTP request
func (c *Collector) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetHierarchySize updates the container and graph gauges
func (c *Collector) SetHierarchySize(containers, graphs int) {
	c.ContainerCount.Set(float64(containers))
	c.GraphCount.Set(float64(graphs))
}

// ObservePromotion records one promotion by its scope flow
func (c *Collector) ObservePromotion(sourceScope, targetScope string, duration time.Duration) {
	c.PromotionsTotal.WithLabelValues(sourceScope, targetScope).Inc()
	c.PromotionDuration.Observe(duration.Seconds())
}

// SetIntegrityFindings publishes the finding count for one category
func (c *Collector) SetIntegrityFindings(category string, count int) {
	c.IntegrityFindings.WithLabelValues(category).Set(float64(count))
}

// ObserveRepairActions counts repair actions of one kind
func (c *Collector) ObserveRepairActions(action string, count int) {
	if count <= 0 {
		return
	}
	c.RepairActionsTotal.WithLabelValues(action).Add(float64(count))
}

// ObserveEvent counts one published domain event
func (c *Collector) ObserveEvent(eventType string) {
	c.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// ObserveFlush records one snapshot flush attempt. This satisfies the
// write queue's metrics interface.
func (c *Collector) ObserveFlush(key string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.SnapshotFlushesTotal.WithLabelValues(key, status).Inc()
	c.SnapshotFlushDuration.WithLabelValues(key).Observe(duration.Seconds())
}

// SetQueueDepth publishes the current debounce queue depth
func (c *Collector) SetQueueDepth(depth int) {
	c.WriteQueueDepth.Set(float64(depth))
}

// Handler exposes the registry for scraping
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry backing this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
