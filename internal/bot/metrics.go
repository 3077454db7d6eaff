package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	MessagesProcessed    prometheus.Counter
	CommandsProcessed    prometheus.Counter
	CallbacksProcessed   prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
	SlotsBooked          prometheus.Counter
	SlotsCancelled       prometheus.Counter
	BookingConflicts     prometheus.Counter
	PanicsRecovered      prometheus.Counter
}

// NewMetrics создает новые метрики
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_messages_total",
			Help: "Total number of messages processed",
		}),

		CommandsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_commands_total",
			Help: "Total number of commands processed",
		}),

		CallbacksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_callbacks_total",
			Help: "Total number of callback queries processed",
		}),

		UpdateProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "telegram_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),

		SlotsBooked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_slots_booked_total",
			Help: "Total number of slots booked via the bot",
		}),

		SlotsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_slots_cancelled_total",
			Help: "Total number of bookings cancelled via the bot",
		}),

		BookingConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_booking_conflicts_total",
			Help: "Booking attempts that lost the race for a slot",
		}),

		PanicsRecovered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "telegram_bot_panics_recovered_total",
			Help: "Panics recovered in update handlers",
		}),
	}
}
