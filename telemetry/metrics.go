// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// setup for the bot.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollTicks        *prometheus.CounterVec // platform label
	PollErrors       *prometheus.CounterVec
	DispatchesSent   *prometheus.CounterVec
	DispatchesFailed *prometheus.CounterVec
	TicketsCreated   prometheus.Counter
	TicketsResolved  prometheus.Counter
	TicketsClosed    prometheus.Counter

	// Histograms (seconds)
	PlatformCallDuration *prometheus.HistogramVec
	TickDuration         *prometheus.HistogramVec

	// Gauges
	OpenTicketsGauge     prometheus.Gauge
	TrackedEntitiesGauge *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollTicks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guildwatch_poll_ticks_total", Help: "Polling loop ticks completed"}, []string{"platform"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guildwatch_poll_errors_total", Help: "Per-entity poll failures"}, []string{"platform"})
		DispatchesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guildwatch_dispatches_sent_total", Help: "Notifications delivered"}, []string{"platform"})
		DispatchesFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "guildwatch_dispatches_failed_total", Help: "Notification deliveries that failed"}, []string{"platform"})
		TicketsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "guildwatch_tickets_created_total", Help: "Tickets created"})
		TicketsResolved = promauto.NewCounter(prometheus.CounterOpts{Name: "guildwatch_tickets_resolved_total", Help: "Tickets resolved by staff"})
		TicketsClosed = promauto.NewCounter(prometheus.CounterOpts{Name: "guildwatch_tickets_closed_total", Help: "Tickets closed and removed"})
		PlatformCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "guildwatch_platform_call_duration_seconds", Help: "External platform API call duration", Buckets: prometheus.DefBuckets}, []string{"platform"})
		TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "guildwatch_tick_duration_seconds", Help: "Full poll tick duration", Buckets: prometheus.DefBuckets}, []string{"platform"})
		OpenTicketsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "guildwatch_open_tickets", Help: "Currently open tickets across all guilds"})
		TrackedEntitiesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "guildwatch_tracked_entities", Help: "Tracked entities across all guilds"}, []string{"platform"})
	})
}

// TimePlatformCall measures fn and records its duration for the platform.
func TimePlatformCall(platform string, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if PlatformCallDuration != nil {
		PlatformCallDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
	return d
}

// SetOpenTickets records the current open ticket count.
func SetOpenTickets(n int) {
	if OpenTicketsGauge != nil {
		OpenTicketsGauge.Set(float64(n))
	}
}

// SetTrackedEntities records the tracked-entity count for a platform.
func SetTrackedEntities(platform string, n int) {
	if TrackedEntitiesGauge != nil {
		TrackedEntitiesGauge.WithLabelValues(platform).Set(float64(n))
	}
}
