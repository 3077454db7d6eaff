package bot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"zapisnik/internal/config"
	"zapisnik/internal/database"
	"zapisnik/internal/domain"
	"zapisnik/internal/events"
	"zapisnik/internal/models"
	"zapisnik/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTelegramService struct {
	domain.TelegramService
	sentTo []int64
	sent   []string
}

func (m *mockTelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sentTo = append(m.sentTo, msg.ChatID)
		m.sent = append(m.sent, msg.Text)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) SendMessage(chatID int64, text string) (tgbotapi.Message, error) {
	m.sentTo = append(m.sentTo, chatID)
	m.sent = append(m.sent, text)
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) SendWithInlineKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) (tgbotapi.Message, error) {
	m.sentTo = append(m.sentTo, chatID)
	m.sent = append(m.sent, text)
	return tgbotapi.Message{}, nil
}

type mockStateManager struct {
	domain.StateManager
	states map[int64]*models.UserState
}

func (m *mockStateManager) GetUserState(ctx context.Context, userID int64) (*models.UserState, error) {
	return m.states[userID], nil
}

func (m *mockStateManager) SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error {
	m.states[userID] = &models.UserState{UserID: userID, CurrentStep: step, TempData: data}
	return nil
}

func (m *mockStateManager) ClearUserState(ctx context.Context, userID int64) error {
	delete(m.states, userID)
	return nil
}

type mockUserService struct {
	domain.UserService
}

func (m *mockUserService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	return &models.User{ID: 7, TelegramID: telegramID}, nil
}

type mockBookingService struct {
	domain.BookingService
	bookErr  error
	booked   *models.Slot
	daySlots []*models.Slot
}

func (m *mockBookingService) Book(ctx context.Context, slotID, userID int64, clientData string) (*models.Slot, error) {
	if m.bookErr != nil {
		return nil, m.bookErr
	}
	return m.booked, nil
}

func (m *mockBookingService) ListAvailableForDay(ctx context.Context, day time.Time) ([]*models.Slot, error) {
	return m.daySlots, nil
}

type mockSlotRepo struct {
	domain.SlotRepository
	admins []*models.User
}

func (m *mockSlotRepo) GetAdmins(ctx context.Context) ([]*models.User, error) {
	return m.admins, nil
}

func newBotFixture(t *testing.T, cfg *config.Config, booking *mockBookingService, repo *mockSlotRepo) (*Bot, *mockTelegramService, *mockStateManager) {
	t.Helper()
	tg := &mockTelegramService{}
	state := &mockStateManager{states: make(map[int64]*models.UserState)}
	logger := zerolog.New(io.Discard)
	if cfg == nil {
		cfg = &config.Config{}
	}
	if repo == nil {
		repo = &mockSlotRepo{}
	}
	b, err := NewBot(tg, cfg, state, nil, booking, &mockUserService{}, nil, repo, nil, &logger)
	require.NoError(t, err)
	return b, tg, state
}

func contactUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func enteringContactState(userID, slotID int64, day time.Time) *models.UserState {
	return &models.UserState{
		UserID:      userID,
		CurrentStep: models.StateEnteringContact,
		TempData: map[string]interface{}{
			"slot_id": slotID,
			"day":     day.Format("2006-01-02"),
		},
	}
}

func TestFinalizeBookingSuccess(t *testing.T) {
	start := time.Now().UTC().Add(3 * time.Hour)
	booking := &mockBookingService{booked: &models.Slot{
		ID:     5,
		Start:  start,
		End:    start.Add(time.Hour),
		Status: models.StatusBooked,
	}}
	b, tg, state := newBotFixture(t, nil, booking, nil)

	userState := enteringContactState(123, 5, start)
	state.states[123] = userState

	b.finalizeBooking(context.Background(), contactUpdate(123, "Иван, +79991234567"), userState)

	// Диалог завершен, состояние сброшено
	assert.Nil(t, state.states[123])
	require.NotEmpty(t, tg.sent)
	assert.Contains(t, tg.sent[len(tg.sent)-1], "Вы записаны")
}

func TestFinalizeBookingSlotTakenReturnsToTimes(t *testing.T) {
	day := time.Now().UTC().AddDate(0, 0, 1)
	fresh := &models.Slot{
		ID:     6,
		Start:  time.Date(day.Year(), day.Month(), day.Day(), 15, 0, 0, 0, time.UTC),
		Status: models.StatusFree,
	}
	booking := &mockBookingService{
		bookErr:  database.ErrSlotUnavailable,
		daySlots: []*models.Slot{fresh},
	}
	b, tg, state := newBotFixture(t, nil, booking, nil)

	userState := enteringContactState(123, 5, day)
	state.states[123] = userState

	b.finalizeBooking(context.Background(), contactUpdate(123, "Иван"), userState)

	// Опоздавший возвращается к выбору времени со свежим списком
	got := state.states[123]
	require.NotNil(t, got)
	assert.Equal(t, models.StateChoosingTime, got.CurrentStep)
	assert.Equal(t, []int64{6}, got.GetInt64Slice("slot_ids"))
	assert.Equal(t, day.Format("2006-01-02"), got.GetString("day"))

	require.NotEmpty(t, tg.sent)
	assert.Contains(t, tg.sent[0], "уже занято")
}

func TestFinalizeBookingRecoverableErrorsKeepStep(t *testing.T) {
	day := time.Now().UTC().AddDate(0, 0, 1)

	tests := []struct {
		name string
		err  error
	}{
		{"EmptyContact", service.ErrEmptyContact},
		{"StoreFailure", errors.New("disk I/O error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			booking := &mockBookingService{bookErr: tt.err}
			b, tg, state := newBotFixture(t, nil, booking, nil)

			userState := enteringContactState(123, 5, day)
			state.states[123] = userState

			b.finalizeBooking(context.Background(), contactUpdate(123, "   "), userState)

			// Ошибка исправима: шаг и выбранный слот не теряются
			got := state.states[123]
			require.NotNil(t, got)
			assert.Equal(t, models.StateEnteringContact, got.CurrentStep)
			assert.EqualValues(t, 5, got.GetInt64("slot_id"))

			// Пользователю ушло ровно одно сообщение с подсказкой
			require.Len(t, tg.sent, 1)
		})
	}
}

func TestNotifyAdminsConflictUnionsConfigAndStore(t *testing.T) {
	cfg := &config.Config{Admins: []int64{1, 2}}
	repo := &mockSlotRepo{admins: []*models.User{
		{ID: 10, TelegramID: 2, IsAdmin: true},
		{ID: 11, TelegramID: 3, IsAdmin: true},
	}}
	b, tg, _ := newBotFixture(t, cfg, &mockBookingService{}, repo)

	b.notifyAdminsConflict(events.SlotEventPayload{
		SlotID:     5,
		Start:      time.Now().UTC(),
		End:        time.Now().UTC().Add(time.Hour),
		ClientData: "Иван",
		Reason:     "event time changed",
	})

	// Каждый админ получает уведомление один раз
	assert.ElementsMatch(t, []int64{1, 2, 3}, tg.sentTo)
}
