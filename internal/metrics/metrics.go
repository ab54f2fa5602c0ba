// Package metrics exposes Prometheus counters for the matching domain.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services report into.
type Recorder interface {
	RecordSwipe(action string)
	RecordMatchCreated()
	RecordMatchConflict()
	RecordRateLimited()
	RecordMessageSent()
	RecordReport(reason string)
	RecordBlock()
	RecordPublishFailure()
	RecordRPC(method, code string, d time.Duration)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	swipes          *prometheus.CounterVec
	matchesCreated  prometheus.Counter
	matchConflicts  prometheus.Counter
	rateLimited     prometheus.Counter
	messagesSent    prometheus.Counter
	reports         *prometheus.CounterVec
	blocks          prometheus.Counter
	publishFailures prometheus.Counter
	rpcDuration     *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		swipes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildermatch_swipes_total",
			Help: "Swipes recorded in the ledger, by action.",
		}, []string{"action"}),
		matchesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_matches_created_total",
			Help: "Match rows created by reconciliation.",
		}),
		matchConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_match_conflicts_total",
			Help: "Reconciliations that found the pair already matched.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_superconnect_rate_limited_total",
			Help: "Super-connect swipes rejected by the daily quota.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_messages_sent_total",
			Help: "Messages persisted.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "buildermatch_reports_total",
			Help: "Reports filed, by reason.",
		}, []string{"reason"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_blocks_total",
			Help: "Block writes.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "buildermatch_feed_publish_failures_total",
			Help: "Realtime events that could not be published.",
		}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buildermatch_rpc_duration_seconds",
			Help:    "RPC latency by method and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	reg.MustRegister(
		c.swipes,
		c.matchesCreated,
		c.matchConflicts,
		c.rateLimited,
		c.messagesSent,
		c.reports,
		c.blocks,
		c.publishFailures,
		c.rpcDuration,
	)
	return c
}

func (c *Collector) RecordSwipe(action string)  { c.swipes.WithLabelValues(action).Inc() }
func (c *Collector) RecordMatchCreated()        { c.matchesCreated.Inc() }
func (c *Collector) RecordMatchConflict()       { c.matchConflicts.Inc() }
func (c *Collector) RecordRateLimited()         { c.rateLimited.Inc() }
func (c *Collector) RecordMessageSent()         { c.messagesSent.Inc() }
func (c *Collector) RecordReport(reason string) { c.reports.WithLabelValues(reason).Inc() }
func (c *Collector) RecordBlock()               { c.blocks.Inc() }
func (c *Collector) RecordPublishFailure()      { c.publishFailures.Inc() }

func (c *Collector) RecordRPC(method, code string, d time.Duration) {
	c.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
