package models

const (
	StatusFree        = "free"
	StatusBooked      = "booked"
	StatusUnavailable = "unavailable"
)

const (
	StateIdle            = "idle"
	StateChoosingDate    = "choosing_date"
	StateChoosingTime    = "choosing_time"
	StateEnteringContact = "entering_contact"
	StateSelectCancel    = "select_cancel"
	StateConfirmCancel   = "confirm_cancel"
)

const (
	// DefaultRedisTTL время жизни состояния пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultLeadTimeMinutes минимальный запас до начала слота при бронировании
	DefaultLeadTimeMinutes = 60

	// DefaultSyncIntervalMinutes период фоновой синхронизации календаря
	DefaultSyncIntervalMinutes = 10

	// DefaultSyncDaysAhead окно синхронизации, дней вперёд от "сейчас"
	DefaultSyncDaysAhead = 7

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений, секунд
	RateLimitWindow = 60
)
