package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batching
	MessagesEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_enqueued_total",
			Help: "Messages accepted into the write batcher",
		},
		[]string{"kind"}, // "room" or "direct"
	)

	BatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_batches_flushed_total",
			Help: "Batch flush attempts by outcome",
		},
		[]string{"outcome"}, // "ok" or "requeued"
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_batch_size",
			Help:    "Messages per flushed batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	PersistLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_persist_latency_seconds",
			Help:    "Message store SaveBatch latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
	)

	// Fan-out
	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_active_subscriptions",
			Help: "Live channel subscriptions held by the registry",
		},
	)

	FramesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_frames_delivered_total",
			Help: "Frames handed to client transports",
		},
	)

	SubscriptionsPruned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_subscriptions_pruned_total",
			Help: "Subscriptions removed because their transport was dead",
		},
		[]string{"reason"}, // "closed", "send_failed", "reaper"
	)

	// Signaling
	ActivePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_event_pollers",
			Help: "Running media-server long-poll consumers",
		},
	)

	SignalingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_signaling_requests_total",
			Help: "Media-server control requests by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	RelayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_relay_events_total",
			Help: "Media-server events seen by pollers",
		},
		[]string{"result"}, // "forwarded", "dropped"
	)
)
