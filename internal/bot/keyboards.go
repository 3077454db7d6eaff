package bot

import (
	"fmt"
	"time"

	"zapisnik/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnBook       = "📅 Записаться"
	btnMySlots    = "📋 Мои записи"
	btnCancelSlot = "❌ Отменить запись"
)

const (
	cbDay       = "day:"        // day:2026-09-05
	cbMonthNav  = "cal_nav:"    // cal_nav:2026-10
	cbSlot      = "slot:"       // slot:42
	cbCancel    = "cancel:"     // cancel:42
	cbCancelYes = "cancel_yes:" // cancel_yes:42
	cbCancelNo  = "cancel_no"
	cbBackDates = "back_to_dates"
	cbNoop      = "noop"
)

var ruMonths = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var ruWeekdays = [...]string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnBook),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnMySlots),
			tgbotapi.NewKeyboardButton(btnCancelSlot),
		),
	)
}

// monthCalendarKeyboard рисует сетку месяца. Кликабельны только дни,
// где есть хотя бы один доступный слот, остальные отдают noop.
func monthCalendarKeyboard(month time.Time, availableDays map[string]bool) tgbotapi.InlineKeyboardMarkup {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	var rows [][]tgbotapi.InlineKeyboardButton

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("«", cbMonthNav+prev.Format("2006-01")),
		tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s %d", ruMonths[first.Month()-1], first.Year()), cbNoop),
		tgbotapi.NewInlineKeyboardButtonData("»", cbMonthNav+next.Format("2006-01")),
	))

	var header []tgbotapi.InlineKeyboardButton
	for _, wd := range ruWeekdays {
		header = append(header, tgbotapi.NewInlineKeyboardButtonData(wd, cbNoop))
	}
	rows = append(rows, header)

	// Понедельник — первый день недели
	offset := (int(first.Weekday()) + 6) % 7
	daysInMonth := next.Add(-24 * time.Hour).Day()

	row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
	}

	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
		key := date.Format("2006-01-02")

		label := fmt.Sprintf("%d", day)
		data := cbNoop
		if availableDays[key] {
			label = fmt.Sprintf("•%d", day)
			data = cbDay + key
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))

		if len(row) == 7 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", cbNoop))
		}
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// daySlotsKeyboard — кнопки времени для выбранного дня, по три в ряд.
func daySlotsKeyboard(slots []*models.Slot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	row := make([]tgbotapi.InlineKeyboardButton, 0, 3)

	for _, slot := range slots {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			slot.Start.Format("15:04"),
			fmt.Sprintf("%s%d", cbSlot, slot.ID),
		))
		if len(row) == 3 {
			rows = append(rows, row)
			row = make([]tgbotapi.InlineKeyboardButton, 0, 3)
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ К выбору даты", cbBackDates),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// cancelListKeyboard — брони пользователя, каждая своей кнопкой.
func cancelListKeyboard(slots []*models.Slot) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, slot := range slots {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				slot.Start.Format("02.01 15:04"),
				fmt.Sprintf("%s%d", cbCancel, slot.ID),
			),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", cbCancelNo),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func confirmCancelKeyboard(slotID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, отменить", fmt.Sprintf("%s%d", cbCancelYes, slotID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Нет", cbCancelNo),
		),
	)
}
