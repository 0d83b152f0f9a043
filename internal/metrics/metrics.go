// Package metrics exposes ingestion counters to prometheus
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mikey/mailgraph/internal/core"
)

var (
	// MessagesTotal counts ingested records by outcome
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgraph_messages_total",
			Help: "Total number of message records by ingestion outcome",
		},
		[]string{"outcome"}, // outcome: accepted, malformed, duplicate, automated
	)

	// ThreadingEvents counts degraded reply links
	ThreadingEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgraph_threading_events_total",
			Help: "Reply links broken, orphaned or re-attached during thread reconstruction",
		},
		[]string{"event"}, // event: cycle, orphan, reattached
	)

	// IdentityEvents counts identity resolution outcomes worth auditing
	IdentityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailgraph_identity_events_total",
			Help: "Identity conflicts, merges and ambiguous name matches",
		},
		[]string{"event"}, // event: conflict, merge, ambiguous
	)

	// BatchDuration observes IngestBatch wall time (seconds)
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailgraph_batch_duration_seconds",
			Help:    "Duration of one ingestion batch in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
		},
	)

	// StoreDuration observes snapshot repository calls (seconds)
	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailgraph_store_duration_seconds",
			Help:    "Snapshot repository operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"backend", "operation"},
	)
)

// RecordBatch mirrors the counters of one batch
func RecordBatch(c core.Counters, duration time.Duration) {
	MessagesTotal.WithLabelValues("accepted").Add(float64(c.Accepted))
	MessagesTotal.WithLabelValues("malformed").Add(float64(c.SkippedMalformed))
	MessagesTotal.WithLabelValues("duplicate").Add(float64(c.Duplicates))
	MessagesTotal.WithLabelValues("automated").Add(float64(c.AutomatedMessages))

	ThreadingEvents.WithLabelValues("cycle").Add(float64(c.ReferenceCycles))
	ThreadingEvents.WithLabelValues("orphan").Add(float64(c.OrphanedReplies))
	ThreadingEvents.WithLabelValues("reattached").Add(float64(c.Reattached))

	IdentityEvents.WithLabelValues("conflict").Add(float64(c.IdentityConflicts))
	IdentityEvents.WithLabelValues("merge").Add(float64(c.Merges))
	IdentityEvents.WithLabelValues("ambiguous").Add(float64(c.AmbiguousMatches))

	BatchDuration.Observe(duration.Seconds())
}

// RecordStoreOperation observes one repository call
func RecordStoreOperation(backend, operation string, duration time.Duration) {
	StoreDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}
