package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/models"
	"zapisnik/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID
	text := update.Message.Text
	l := zerolog.Ctx(ctx)

	if b.metrics != nil {
		b.metrics.MessagesProcessed.Inc()
		if strings.HasPrefix(text, "/") {
			b.metrics.CommandsProcessed.Inc()
		}
	}

	l.Debug().
		Int64("user_id", userID).
		Str("username", update.Message.From.UserName).
		Str("text", text).
		Msg("Handling message")

	if b.isAdmin(userID) && b.handleAdminCommand(ctx, update) {
		return
	}

	switch {
	case text == "/start" || strings.EqualFold(text, "сброс") || strings.EqualFold(text, "reset"):
		b.clearUserState(ctx, userID)
		b.handleStart(ctx, update)
		return

	case text == btnBook:
		b.showCalendar(ctx, update.Message.Chat.ID, userID, time.Now().UTC())
		return

	case text == btnMySlots:
		b.showUserSlots(ctx, update)
		return

	case text == btnCancelSlot:
		b.startCancelFlow(ctx, update)
		return
	}

	state := b.getUserState(ctx, userID)
	if state != nil && state.CurrentStep == models.StateEnteringContact {
		b.finalizeBooking(ctx, update, state)
		return
	}

	b.sendMessage(update.Message.Chat.ID, "Не понимаю. Используйте кнопки меню или /start.")
}

func (b *Bot) handleStart(ctx context.Context, update tgbotapi.Update) {
	from := update.Message.From
	if _, err := b.userService.GetOrCreateUser(ctx, from.ID, from.UserName, from.FirstName); err != nil {
		b.logger.Error().Err(err).Int64("user_id", from.ID).Msg("Error tracking user")
	}

	msg := tgbotapi.NewMessage(update.Message.Chat.ID,
		"Добро пожаловать! Здесь можно записаться на свободное время.")
	msg.ReplyMarkup = mainMenuKeyboard()

	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send main menu")
	}
	b.setUserState(ctx, update.Message.From.ID, models.StateIdle, nil)
}

// showCalendar показывает сетку месяца; кликабельны дни со свободными слотами.
func (b *Bot) showCalendar(ctx context.Context, chatID, userID int64, month time.Time) {
	monthStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	slots, err := b.bookingService.ListAvailable(ctx, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to list available slots")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	availableDays := make(map[string]bool)
	for _, slot := range slots {
		availableDays[slot.Start.Format("2006-01-02")] = true
	}

	text := "Выберите день. Точкой отмечены дни со свободным временем."
	if len(availableDays) == 0 {
		text = "В этом месяце свободного времени нет. Посмотрите соседние месяцы."
	}

	keyboard := monthCalendarKeyboard(monthStart, availableDays)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, text, keyboard); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send calendar")
		return
	}

	b.setUserState(ctx, userID, models.StateChoosingDate, map[string]interface{}{
		"month": monthStart.Format("2006-01"),
	})
}

// showDaySlots показывает свободное время выбранного дня.
func (b *Bot) showDaySlots(ctx context.Context, chatID, userID int64, messageID int, day time.Time) {
	slots, err := b.bookingService.ListAvailableForDay(ctx, day)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to list day slots")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if len(slots) == 0 {
		// Пока пользователь думал, день разобрали
		b.sendMessage(chatID, "На этот день свободного времени уже нет. Выберите другой.")
		b.showCalendar(ctx, chatID, userID, day)
		return
	}

	text := fmt.Sprintf("Свободное время на %s:", day.Format("02.01.2006"))
	keyboard := daySlotsKeyboard(slots)

	offered := make([]int64, 0, len(slots))
	for _, slot := range slots {
		offered = append(offered, slot.ID)
	}

	if messageID != 0 {
		if _, err := b.tgService.EditMessage(chatID, messageID, text, &keyboard); err != nil {
			b.logger.Debug().Err(err).Msg("Failed to edit message, sending new one")
			_, _ = b.tgService.SendWithInlineKeyboard(chatID, text, keyboard)
		}
	} else {
		_, _ = b.tgService.SendWithInlineKeyboard(chatID, text, keyboard)
	}

	b.setUserState(ctx, userID, models.StateChoosingTime, map[string]interface{}{
		"day":      day.Format("2006-01-02"),
		"slot_ids": offered,
	})
}

// requestContact просит контактные данные после выбора времени.
func (b *Bot) requestContact(ctx context.Context, chatID, userID int64, slot *models.Slot, tempData map[string]interface{}) {
	tempData["slot_id"] = slot.ID
	b.setUserState(ctx, userID, models.StateEnteringContact, tempData)

	b.sendMessage(chatID, fmt.Sprintf(
		"Вы выбрали %s, %s.\n\nНапишите имя и телефон для связи одним сообщением:",
		slot.Start.Format("02.01.2006"),
		slot.Start.Format("15:04"),
	))
}

// finalizeBooking — последний шаг: контакт получен, бронируем.
func (b *Bot) finalizeBooking(ctx context.Context, update tgbotapi.Update, state *models.UserState) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	slotID := state.GetInt64("slot_id")
	if slotID == 0 {
		b.sendMessage(chatID, msgSessionLost)
		b.clearUserState(ctx, userID)
		b.handleStart(ctx, update)
		return
	}

	user, err := b.userService.GetUserByTelegramID(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for booking")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	slot, err := b.bookingService.Book(ctx, slotID, user.ID, update.Message.Text)
	if err != nil {
		b.handleBookingError(ctx, update, state, err)
		return
	}

	if b.metrics != nil {
		b.metrics.SlotsBooked.Inc()
	}

	b.clearUserState(ctx, userID)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"✅ Вы записаны на %s в %s. Ждем вас!",
		slot.Start.Format("02.01.2006"),
		slot.Start.Format("15:04"),
	))
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send booking confirmation")
	}
}

// handleBookingError: если слот увели, возвращаем пользователя к выбору
// времени того же дня со свежим списком. Остальные ошибки (пустой контакт,
// сбой хранилища) шаг не сбрасывают: пользователь просто пробует еще раз.
func (b *Bot) handleBookingError(ctx context.Context, update tgbotapi.Update, state *models.UserState, err error) {
	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	b.sendMessage(chatID, b.getErrorMessage(err))

	slotGone := errors.Is(err, database.ErrSlotUnavailable) ||
		errors.Is(err, database.ErrSlotNotFound) ||
		errors.Is(err, service.ErrTooSoon)
	if !slotGone {
		return
	}

	if next, ok := nextStep(state.CurrentStep, evSlotTaken); ok {
		if b.metrics != nil {
			b.metrics.BookingConflicts.Inc()
		}
		day, parseErr := time.Parse("2006-01-02", state.GetString("day"))
		if parseErr != nil {
			day = time.Now().UTC()
		}
		b.setUserState(ctx, userID, next, map[string]interface{}{"day": day.Format("2006-01-02")})
		b.showDaySlots(ctx, chatID, userID, 0, day)
	}
}

func (b *Bot) showUserSlots(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID

	user, err := b.userService.GetUserByTelegramID(ctx, userID)
	if err != nil {
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	slots, err := b.bookingService.UserSlots(ctx, user.ID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to get user slots")
		b.sendMessage(update.Message.Chat.ID, b.getErrorMessage(err))
		return
	}

	if len(slots) == 0 {
		b.sendMessage(update.Message.Chat.ID, "У вас пока нет записей.")
		return
	}

	var message strings.Builder
	message.WriteString("📋 Ваши записи:\n\n")
	for _, slot := range slots {
		message.WriteString(fmt.Sprintf("🔹 %s, %s - %s\n",
			slot.Start.Format("02.01.2006"),
			slot.Start.Format("15:04"),
			slot.End.Format("15:04")))
		if slot.Summary != "" {
			message.WriteString(fmt.Sprintf("   %s\n", slot.Summary))
		}
	}

	b.sendMessage(update.Message.Chat.ID, message.String())
}

func (b *Bot) startCancelFlow(ctx context.Context, update tgbotapi.Update) {
	b.showCancelList(ctx, update.Message.Chat.ID, update.Message.From.ID)
}

func (b *Bot) showCancelList(ctx context.Context, chatID, userID int64) {
	user, err := b.userService.GetUserByTelegramID(ctx, userID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	slots, err := b.bookingService.UserSlots(ctx, user.ID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if len(slots) == 0 {
		b.sendMessage(chatID, "У вас нет записей, которые можно отменить.")
		return
	}

	keyboard := cancelListKeyboard(slots)
	if _, err := b.tgService.SendWithInlineKeyboard(chatID, "Какую запись отменить?", keyboard); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send cancel list")
		return
	}

	b.setUserState(ctx, userID, models.StateSelectCancel, nil)
}
