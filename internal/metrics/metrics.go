package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics — счётчики движка синхронизации календаря.
type SyncMetrics struct {
	Runs          *prometheus.CounterVec
	SlotsCreated  *prometheus.CounterVec
	SlotsUpdated  *prometheus.CounterVec
	SlotsStale    *prometheus.CounterVec
	SlotsFlagged  *prometheus.CounterVec
	EventFailures *prometheus.CounterVec
	RunDuration   prometheus.Histogram
}

func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_runs_total",
			Help: "Sync passes by result.",
		}, []string{"calendar_id", "result"}),

		SlotsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_slots_created_total",
			Help: "Slots created from feed events.",
		}, []string{"calendar_id"}),

		SlotsUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_slots_updated_total",
			Help: "Slots with descriptive fields refreshed.",
		}, []string{"calendar_id"}),

		SlotsStale: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_slots_stale_total",
			Help: "Free slots retired after their event vanished.",
		}, []string{"calendar_id"}),

		SlotsFlagged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_slots_flagged_total",
			Help: "Booked slots flagged for manual review.",
		}, []string{"calendar_id"}),

		EventFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_sync_event_failures_total",
			Help: "Per-event failures that did not abort the batch.",
		}, []string{"calendar_id"}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "calendar_sync_run_duration_seconds",
			Help:    "Time spent on one sync pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Observe записывает итог одного прохода.
func (m *SyncMetrics) Observe(calendarID string, created, updated, stale, flagged, failures int) {
	if m == nil {
		return
	}
	m.SlotsCreated.WithLabelValues(calendarID).Add(float64(created))
	m.SlotsUpdated.WithLabelValues(calendarID).Add(float64(updated))
	m.SlotsStale.WithLabelValues(calendarID).Add(float64(stale))
	m.SlotsFlagged.WithLabelValues(calendarID).Add(float64(flagged))
	m.EventFailures.WithLabelValues(calendarID).Add(float64(failures))
}
