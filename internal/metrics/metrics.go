package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seyone-projects/reda-backend/internal/models"
)

const namespace = "reda"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	bookingDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_decisions_total",
			Help:      "Booking validation outcomes by kind and result code.",
		},
		[]string{"kind", "code"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Outbound notifications by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Spreadsheet sync tasks by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	syncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_queue_pending",
			Help:      "Sync tasks picked up in the last poll.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, bookingDecisions, notifications, syncTasks, syncQueueDepth)
	})
}

func ObserveHTTP(route string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

const invalidKindLabel = "invalid"

// IncBookingDecision records one validator outcome. Admitted requests use code
// "admitted". Kinds come from clients, so anything unknown shares one label.
func IncBookingDecision(kind, code string) {
	if !models.BookingKind(kind).Valid() {
		kind = invalidKindLabel
	}
	if code == "" {
		code = "admitted"
	}
	bookingDecisions.WithLabelValues(kind, code).Inc()
}

func IncNotification(channel, outcome string) {
	notifications.WithLabelValues(channel, outcome).Inc()
}

// IncSyncTask records a processed task; outcome is completed, retry or failed.
func IncSyncTask(taskType, outcome string) {
	syncTasks.WithLabelValues(taskType, outcome).Inc()
}

func SetSyncQueueDepth(n int) {
	syncQueueDepth.Set(float64(n))
}
