package bot

import "zapisnik/internal/models"

// Событие диалога. Переходы описаны таблицей, чтобы логику диалога
// можно было проверить без Telegram.
type dialogEvent string

const (
	evStartBooking dialogEvent = "start_booking"
	evDatePicked   dialogEvent = "date_picked"
	evSlotPicked   dialogEvent = "slot_picked"
	evContactSent  dialogEvent = "contact_sent"
	evSlotTaken    dialogEvent = "slot_taken"
	evBackToDates  dialogEvent = "back_to_dates"
	evStartCancel  dialogEvent = "start_cancel"
	evCancelPicked dialogEvent = "cancel_picked"
	evCancelBack   dialogEvent = "cancel_back"
	evConfirmed    dialogEvent = "confirmed"
	evReset        dialogEvent = "reset"
)

var dialogTransitions = map[string]map[dialogEvent]string{
	models.StateIdle: {
		evStartBooking: models.StateChoosingDate,
		evStartCancel:  models.StateSelectCancel,
	},
	models.StateChoosingDate: {
		evDatePicked: models.StateChoosingTime,
		evReset:      models.StateIdle,
	},
	models.StateChoosingTime: {
		evSlotPicked:  models.StateEnteringContact,
		evBackToDates: models.StateChoosingDate,
		evReset:       models.StateIdle,
	},
	models.StateEnteringContact: {
		evContactSent: models.StateIdle,
		// Слот увели из-под носа: возвращаемся к выбору времени того же дня
		evSlotTaken: models.StateChoosingTime,
		evReset:     models.StateIdle,
	},
	models.StateSelectCancel: {
		evCancelPicked: models.StateConfirmCancel,
		evReset:        models.StateIdle,
	},
	models.StateConfirmCancel: {
		evConfirmed: models.StateIdle,
		// Передумал на подтверждении: назад к списку броней
		evCancelBack: models.StateSelectCancel,
		evReset:      models.StateIdle,
	},
}

// nextStep возвращает следующий шаг диалога. false значит, что событие
// в текущем шаге не предусмотрено и состояние менять нельзя.
func nextStep(current string, event dialogEvent) (string, bool) {
	if current == "" {
		current = models.StateIdle
	}
	steps, ok := dialogTransitions[current]
	if !ok {
		// reset работает из любого шага
		if event == evReset {
			return models.StateIdle, true
		}
		return "", false
	}
	next, ok := steps[event]
	if !ok && event == evReset {
		return models.StateIdle, true
	}
	return next, ok
}
