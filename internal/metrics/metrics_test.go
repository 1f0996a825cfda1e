package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		ActiveLobbies,
		ActiveConnections,
		QueueDepth,
		DownloadTransitions,
		SongDownloadsActive,
		ChatThrottleDrops,
		GatewayMessagesHandled,
		HTTPRequestDuration,
		PersistenceQueueDropped,
	}

	for _, c := range collectors {
		ch := make(chan *prometheus.Desc, 10)
		c.Describe(ch)
		close(ch)

		count := 0
		for range ch {
			count++
		}
		if count == 0 {
			t.Errorf("metric %T has no descriptors", c)
		}
	}
}

func TestMetricLabels(t *testing.T) {
	QueueDepth.WithLabelValues("lobby-1").Set(3)
	QueueDepth.WithLabelValues("lobby-2").Set(0)

	DownloadTransitions.WithLabelValues("pending").Inc()
	DownloadTransitions.WithLabelValues("ready").Inc()

	GatewayMessagesHandled.WithLabelValues("queue:add").Inc()
	GatewayMessagesHandled.WithLabelValues("chat:send").Inc()

	HTTPRequestDuration.WithLabelValues("/api/lobbies", "GET", "200").Observe(0.01)
	HTTPRequestDuration.WithLabelValues("/api/lobbies", "POST", "500").Observe(1.2)
}

func TestGaugeAndCounterRecording(t *testing.T) {
	ActiveLobbies.Set(5)
	ActiveLobbies.Inc()
	ActiveLobbies.Dec()

	ActiveConnections.Set(10)
	ActiveConnections.Add(2)

	SongDownloadsActive.Inc()
	SongDownloadsActive.Dec()

	ChatThrottleDrops.Inc()
	ChatThrottleDrops.Add(3)

	PersistenceQueueDropped.Inc()
}

func TestConcurrentMetricRecording(t *testing.T) {
	var wg sync.WaitGroup
	numGoroutines := 50
	opsPerGoroutine := 20

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				ActiveConnections.Inc()
				ActiveConnections.Dec()
				QueueDepth.WithLabelValues("lobby-concurrent").Inc()
				DownloadTransitions.WithLabelValues("downloading").Inc()
				GatewayMessagesHandled.WithLabelValues("playback:sync").Inc()
				HTTPRequestDuration.WithLabelValues("/api/queue", "GET", "200").Observe(time.Duration(j).Seconds())
			}
		}()
	}
	wg.Wait()
}
