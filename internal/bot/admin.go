package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleAdminCommand возвращает true, если сообщение было командой админа.
func (b *Bot) handleAdminCommand(ctx context.Context, update tgbotapi.Update) bool {
	text := update.Message.Text
	chatID := update.Message.Chat.ID

	switch {
	case text == "/sync":
		b.handleForceSync(ctx, chatID)
		return true

	case text == "/flagged":
		b.showFlaggedSlots(ctx, chatID)
		return true

	case strings.HasPrefix(text, "/clear_flag"):
		b.handleClearFlag(ctx, chatID, text)
		return true

	case text == "/export":
		b.handleExport(ctx, chatID)
		return true
	}
	return false
}

func (b *Bot) handleForceSync(ctx context.Context, chatID int64) {
	b.sendMessage(chatID, "🔄 Запускаю синхронизацию...")

	reports, err := b.syncEngine.SyncAll(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Manual sync failed")
		b.sendMessage(chatID, fmt.Sprintf("⚠️ Синхронизация прошла с ошибками: %v", err))
	}

	var message strings.Builder
	message.WriteString("Итоги синхронизации:\n\n")
	for _, report := range reports {
		message.WriteString(fmt.Sprintf(
			"📆 %s\n   новых: %d, обновлено: %d, снято: %d, на разбор: %d, ошибок: %d\n",
			report.CalendarID, report.Created, report.Updated, report.Stale,
			report.Flagged, len(report.Failures)))
	}
	if len(reports) == 0 {
		message.WriteString("Ни один календарь не синхронизировался.")
	}
	b.sendMessage(chatID, message.String())
}

func (b *Bot) showFlaggedSlots(ctx context.Context, chatID int64) {
	slots, err := b.slotRepo.GetFlaggedSlots(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to get flagged slots")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}

	if len(slots) == 0 {
		b.sendMessage(chatID, "✅ Конфликтов нет, разбирать нечего.")
		return
	}

	var message strings.Builder
	message.WriteString("⚠️ Брони, требующие ручного разбора:\n\n")
	for _, slot := range slots {
		message.WriteString(fmt.Sprintf("🔸 #%d %s, %s - %s\n",
			slot.ID,
			slot.Start.Format("02.01.2006"),
			slot.Start.Format("15:04"),
			slot.End.Format("15:04")))
		if slot.ClientData != "" {
			message.WriteString(fmt.Sprintf("   👤 %s\n", slot.ClientData))
		}
	}
	message.WriteString("\nПосле разбора: /clear_flag <id>")
	b.sendMessage(chatID, message.String())
}

func (b *Bot) handleClearFlag(ctx context.Context, chatID int64, text string) {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		b.sendMessage(chatID, "Использование: /clear_flag <id слота>")
		return
	}

	slotID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Неверный id слота.")
		return
	}

	if err := b.slotRepo.ClearReviewFlag(ctx, slotID); err != nil {
		b.logger.Error().Err(err).Int64("slot_id", slotID).Msg("Failed to clear review flag")
		b.sendMessage(chatID, b.getErrorMessage(err))
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("✅ Пометка со слота #%d снята.", slotID))
}

func (b *Bot) handleExport(ctx context.Context, chatID int64) {
	start := time.Now().UTC()
	end := start.AddDate(0, 0, b.config.Bot.SyncDaysAhead)

	filePath, err := b.exportScheduleToExcel(ctx, start, end)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to export schedule")
		b.sendMessage(chatID, "Ошибка при формировании экспорта.")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(filePath))
	if _, err := b.tgService.Send(doc); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send export document")
		b.sendMessage(chatID, "Файл сформирован, но отправить не получилось.")
	}
}
