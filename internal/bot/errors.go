package bot

import (
	"errors"

	"zapisnik/internal/database"
	"zapisnik/internal/service"
)

const (
	msgAccessDenied = "⛔️ Этот бот доступен только по приглашению."
	msgRateLimited  = "⚠️ Вы отправляете сообщения слишком часто. Пожалуйста, подождите немного."
	msgSessionLost  = "Сессия устарела. Начните заново."
)

func (b *Bot) getErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, database.ErrSlotUnavailable) {
		return "⚠️ Это время уже занято. Пожалуйста, выберите другое."
	}

	if errors.Is(err, database.ErrSlotNotFound) {
		return "⚠️ Это время больше недоступно. Пожалуйста, выберите другое."
	}

	if errors.Is(err, database.ErrConcurrentModification) {
		return "⚠️ Запись уже изменилась. Пожалуйста, попробуйте еще раз."
	}

	if errors.Is(err, service.ErrTooSoon) {
		return "⚠️ До начала осталось слишком мало времени. Выберите время попозже."
	}

	if errors.Is(err, service.ErrForbidden) {
		return "⚠️ Эта запись принадлежит другому пользователю."
	}

	if errors.Is(err, service.ErrEmptyContact) {
		return "⚠️ Напишите, пожалуйста, имя и телефон для связи."
	}

	return "❌ Произошла ошибка при обработке вашего запроса. Пожалуйста, попробуйте позже."
}
