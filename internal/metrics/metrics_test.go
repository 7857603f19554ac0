package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveHTTP("POST /api/v1/amenity-bookings", 201, 15*time.Millisecond)
		SetSyncQueueDepth(3)
	})

	before := testutil.ToFloat64(bookingDecisions.WithLabelValues("Hourly", "admitted"))
	IncBookingDecision("Hourly", "")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingDecisions.WithLabelValues("Hourly", "admitted")))

	IncNotification("sms", "sent")
	assert.Equal(t, float64(1), testutil.ToFloat64(notifications.WithLabelValues("sms", "sent")))
	assert.Equal(t, float64(3), testutil.ToFloat64(syncQueueDepth))
}

func TestBookingDecisionKindIsBounded(t *testing.T) {
	before := testutil.CollectAndCount(bookingDecisions)
	for i := 0; i < 200; i++ {
		IncBookingDecision(fmt.Sprintf("junk-%d", i), "invalid_input")
	}
	after := testutil.CollectAndCount(bookingDecisions)
	assert.LessOrEqual(t, after-before, 1, "unknown kinds must share a single series")
	assert.GreaterOrEqual(t, testutil.ToFloat64(bookingDecisions.WithLabelValues(invalidKindLabel, "invalid_input")), float64(200))
}

func TestMetricsSync(t *testing.T) {
	IncSyncTask("upsert", "retry")
	IncSyncTask("upsert", "retry")
	assert.Equal(t, float64(2), testutil.ToFloat64(syncTasks.WithLabelValues("upsert", "retry")))
}
