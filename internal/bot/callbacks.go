package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"zapisnik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, update tgbotapi.Update) {
	callback := update.CallbackQuery
	data := callback.Data
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	if b.metrics != nil {
		b.metrics.CallbacksProcessed.Inc()
	}

	// Отвечаем на callback сразу, чтобы убрать "часики"
	b.answerCallback(callback, "")

	switch {
	case data == cbNoop:
		return

	case strings.HasPrefix(data, cbMonthNav):
		month, err := time.Parse("2006-01", strings.TrimPrefix(data, cbMonthNav))
		if err != nil {
			return
		}
		b.showCalendar(ctx, chatID, userID, month)

	case strings.HasPrefix(data, cbDay):
		day, err := time.Parse("2006-01-02", strings.TrimPrefix(data, cbDay))
		if err != nil {
			return
		}
		state := b.getUserState(ctx, userID)
		if _, ok := nextStep(currentStep(state), evDatePicked); !ok {
			b.sendMessage(chatID, msgSessionLost)
			return
		}
		b.showDaySlots(ctx, chatID, userID, messageID, day)

	case data == cbBackDates:
		state := b.getUserState(ctx, userID)
		month := time.Now().UTC()
		if state != nil {
			if day, err := time.Parse("2006-01-02", state.GetString("day")); err == nil {
				month = day
			}
		}
		b.showCalendar(ctx, chatID, userID, month)

	case strings.HasPrefix(data, cbSlot):
		slotID, err := strconv.ParseInt(strings.TrimPrefix(data, cbSlot), 10, 64)
		if err != nil {
			return
		}
		b.handleSlotPicked(ctx, chatID, userID, slotID)

	case strings.HasPrefix(data, cbCancel) && !strings.HasPrefix(data, cbCancelYes):
		slotID, err := strconv.ParseInt(strings.TrimPrefix(data, cbCancel), 10, 64)
		if err != nil {
			return
		}
		b.handleCancelPicked(ctx, chatID, userID, slotID)

	case strings.HasPrefix(data, cbCancelYes):
		slotID, err := strconv.ParseInt(strings.TrimPrefix(data, cbCancelYes), 10, 64)
		if err != nil {
			return
		}
		b.handleCancelConfirmed(ctx, chatID, userID, slotID)

	case data == cbCancelNo:
		// С шага подтверждения возвращаемся к списку, из списка выходим в меню
		state := b.getUserState(ctx, userID)
		if next, ok := nextStep(currentStep(state), evCancelBack); ok && next == models.StateSelectCancel {
			b.showCancelList(ctx, chatID, userID)
			return
		}
		b.clearUserState(ctx, userID)
		b.sendMessage(chatID, "Хорошо, ничего не отменяем.")
	}
}

func (b *Bot) handleSlotPicked(ctx context.Context, chatID, userID, slotID int64) {
	state := b.getUserState(ctx, userID)
	if _, ok := nextStep(currentStep(state), evSlotPicked); !ok {
		b.sendMessage(chatID, msgSessionLost)
		return
	}

	// Принимаем только слоты из списка, который показывали этому пользователю
	if state == nil || !containsID(state.GetInt64Slice("slot_ids"), slotID) {
		b.sendMessage(chatID, msgSessionLost)
		return
	}

	slot, err := b.slotRepo.GetSlot(ctx, slotID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	if slot.Status != models.StatusFree {
		b.sendMessage(chatID, "⚠️ Это время уже занято. Пожалуйста, выберите другое.")
		b.showDaySlots(ctx, chatID, userID, 0, slot.Start)
		return
	}

	tempData := map[string]interface{}{}
	if state != nil && state.TempData != nil {
		tempData = state.TempData
	}
	b.requestContact(ctx, chatID, userID, slot, tempData)
}

func (b *Bot) handleCancelPicked(ctx context.Context, chatID, userID, slotID int64) {
	state := b.getUserState(ctx, userID)
	if _, ok := nextStep(currentStep(state), evCancelPicked); !ok {
		b.sendMessage(chatID, msgSessionLost)
		return
	}

	slot, err := b.slotRepo.GetSlot(ctx, slotID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	b.setUserState(ctx, userID, models.StateConfirmCancel, map[string]interface{}{
		"slot_id": slotID,
	})

	keyboard := confirmCancelKeyboard(slotID)
	_, _ = b.tgService.SendWithInlineKeyboard(chatID, fmt.Sprintf(
		"Отменить запись на %s в %s?",
		slot.Start.Format("02.01.2006"),
		slot.Start.Format("15:04"),
	), keyboard)
}

func (b *Bot) handleCancelConfirmed(ctx context.Context, chatID, userID, slotID int64) {
	user, err := b.userService.GetUserByTelegramID(ctx, userID)
	if err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if err := b.bookingService.Cancel(ctx, slotID, user.ID, b.isAdmin(userID)); err != nil {
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if b.metrics != nil {
		b.metrics.SlotsCancelled.Inc()
	}

	b.clearUserState(ctx, userID)
	b.sendMessage(chatID, "✅ Запись отменена. Время снова доступно для других.")
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func currentStep(state *models.UserState) string {
	if state == nil {
		return models.StateIdle
	}
	return state.CurrentStep
}
