package domain

import (
	"context"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SlotRepository — хранилище слотов и пользователей.
type SlotRepository interface {
	GetSlot(ctx context.Context, id int64) (*models.Slot, error)
	GetSlotByExternalID(ctx context.Context, externalEventID string) (*models.Slot, error)
	GetFreeSlotsInRange(ctx context.Context, from, to time.Time) ([]*models.Slot, error)
	GetUserSlots(ctx context.Context, userID int64) ([]*models.Slot, error)
	GetSlotsInWindow(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Slot, error)
	GetFlaggedSlots(ctx context.Context) ([]*models.Slot, error)
	UpsertFromEvent(ctx context.Context, ev *models.ExternalEvent) (database.UpsertResult, error)
	MarkVanished(ctx context.Context, calendarID string, from, to time.Time, seenIDs map[string]bool) (stale int, flagged []*models.Slot, err error)
	BookSlotTx(ctx context.Context, slotID, userID int64, clientData string) (*models.Slot, error)
	CancelSlotTx(ctx context.Context, slotID, fromVersion int64) error
	ClearReviewFlag(ctx context.Context, slotID int64) error

	CreateOrUpdateUser(ctx context.Context, user *models.User) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUserActivity(ctx context.Context, telegramID int64) error
	GetAdmins(ctx context.Context) ([]*models.User, error)
}

// EventSource — внешний календарный фид.
type EventSource interface {
	ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*models.ExternalEvent, []models.EventFailure, error)
}

type StateRepository interface {
	GetState(ctx context.Context, userID int64) (*models.UserState, error)
	SetState(ctx context.Context, state *models.UserState) error
	ClearState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type StateManager interface {
	GetUserState(ctx context.Context, userID int64) (*models.UserState, error)
	SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error
	ClearUserState(ctx context.Context, userID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// BookingService — координатор бронирований (Reservation Coordinator).
type BookingService interface {
	ListAvailable(ctx context.Context, from, to time.Time) ([]*models.Slot, error)
	ListAvailableForDay(ctx context.Context, day time.Time) ([]*models.Slot, error)
	Book(ctx context.Context, slotID, userID int64, clientData string) (*models.Slot, error)
	Cancel(ctx context.Context, slotID, userID int64, isAdmin bool) error
	UserSlots(ctx context.Context, userID int64) ([]*models.Slot, error)
}

// AccessPolicy решает, кого пускать и кто админ; внедряется при старте.
type AccessPolicy interface {
	IsAuthorized(userID int64) bool
	IsAdmin(userID int64) bool
}

type UserService interface {
	AccessPolicy
	GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error)
	UpdateUserActivity(ctx context.Context, telegramID int64) error
	GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

type SyncEngine interface {
	Sync(ctx context.Context, calendarID string, from, to time.Time) (*models.SyncReport, error)
	SyncAll(ctx context.Context) ([]*models.SyncReport, error)
}

// TelegramSender — транспортный слой Telegram, в тестах подменяется моком.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMessage(chatID int64, text string) (tgbotapi.Message, error)
	SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	EditMessage(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
