// Package metrics exposes Prometheus instrumentation for the lobby/queue/
// playback/download pipeline, mirroring the teacher's promauto-registered
// gauge/counter/histogram style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveLobbies = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncwave",
		Name:      "active_lobbies",
		Help:      "Number of lobbies currently registered.",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncwave",
		Name:      "active_connections",
		Help:      "Number of open websocket connections.",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "syncwave",
		Name:      "queue_depth",
		Help:      "Current queue length per lobby.",
	}, []string{"lobby_id"})

	DownloadTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncwave",
		Name:      "download_transitions_total",
		Help:      "Song cache pipeline status transitions.",
	}, []string{"status"})

	SongDownloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "syncwave",
		Name:      "song_downloads_active",
		Help:      "Song cache pipeline downloads currently in flight.",
	})

	ChatThrottleDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "syncwave",
		Name:      "chat_throttle_drops_total",
		Help:      "Chat messages dropped by the per-connection rate limiter.",
	})

	GatewayMessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "syncwave",
		Name:      "gateway_messages_total",
		Help:      "Realtime gateway messages handled, by event name.",
	}, []string{"event"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "syncwave",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	PersistenceQueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "syncwave",
		Name:      "persistence_dropped_writes_total",
		Help:      "Fire-and-forget persistence writes dropped due to a full worker queue.",
	})
)
