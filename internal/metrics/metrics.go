// Package metrics exposes the agent's Prometheus instrumentation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skybridge",
			Subsystem: "stream",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts to the cloud endpoint.",
		},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 while the sync stream is established.",
		},
	)
	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skybridge",
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Frames written to the sync stream.",
		},
	)
	framesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "skybridge",
			Subsystem: "stream",
			Name:      "frames_received_total",
			Help:      "Frames read from the sync stream.",
		},
	)
	heartbeatDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "skybridge",
			Subsystem: "stream",
			Name:      "heartbeat_duration_seconds",
			Help:      "Time to collect and send one heartbeat.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	journalDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "skybridge",
			Subsystem: "journal",
			Name:      "pending_events",
			Help:      "Undelivered events buffered locally.",
		},
	)
)

// Register registers all collectors exactly once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectAttempts, connected, framesSent, framesReceived,
			heartbeatDuration, journalDepth,
		)
	})
}

func RecordConnectAttempt() {
	Register()
	connectAttempts.Inc()
}

func SetConnected(up bool) {
	Register()
	if up {
		connected.Set(1)
	} else {
		connected.Set(0)
	}
}

func RecordFrameSent() {
	Register()
	framesSent.Inc()
}

func RecordFrameReceived() {
	Register()
	framesReceived.Inc()
}

func ObserveHeartbeat(d time.Duration) {
	Register()
	heartbeatDuration.Observe(d.Seconds())
}

func SetJournalDepth(n int64) {
	Register()
	journalDepth.Set(float64(n))
}
