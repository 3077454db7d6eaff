package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"zapisnik/internal/events"
)

// SubscribeNotifications подписывает бота на события шины:
// конфликты после синхронизации уходят админам в Telegram.
func (b *Bot) SubscribeNotifications(bus *events.EventBus) {
	bus.Subscribe(events.EventSlotConflict, func(event *events.Event) error {
		var payload events.SlotEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		b.notifyAdminsConflict(payload)
		return nil
	})
}

func (b *Bot) notifyAdminsConflict(payload events.SlotEventPayload) {
	message := fmt.Sprintf(`⚠️ Конфликт с календарем:

📅 %s, %s - %s
👤 %s
Причина: %s

Бронь сохранена, но требует ручного разбора: /flagged`,
		payload.Start.Format("02.01.2006"),
		payload.Start.Format("15:04"),
		payload.End.Format("15:04"),
		payload.ClientData,
		payload.Reason)

	for _, adminID := range b.adminRecipients() {
		if _, err := b.tgService.SendMessage(adminID, message); err != nil {
			b.logger.Error().Err(err).Int64("admin_id", adminID).Msg("Failed to notify admin")
		}
	}
}

// adminRecipients объединяет админов из конфига с помеченными в базе,
// без дублей. База недоступна — рассылаем хотя бы по конфигу.
func (b *Bot) adminRecipients() []int64 {
	seen := make(map[int64]bool)
	ids := make([]int64, 0, len(b.config.Admins))
	for _, id := range b.config.Admins {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admins, err := b.slotRepo.GetAdmins(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to load admins from store")
		return ids
	}
	for _, admin := range admins {
		if admin.TelegramID != 0 && !seen[admin.TelegramID] {
			seen[admin.TelegramID] = true
			ids = append(ids, admin.TelegramID)
		}
	}
	return ids
}
