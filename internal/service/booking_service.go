package service

import (
	"context"
	"strings"
	"time"

	"zapisnik/internal/domain"
	"zapisnik/internal/events"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
)

// BookingService — единственная точка смены статуса слотов.
// Синхронизация календаря поля брони не трогает, поэтому все переходы
// free <-> booked проходят здесь.
type BookingService struct {
	repo     domain.SlotRepository
	eventBus domain.EventPublisher
	leadTime time.Duration
	logger   *zerolog.Logger
}

func NewBookingService(repo domain.SlotRepository, eventBus domain.EventPublisher, leadTimeMinutes int, logger *zerolog.Logger) *BookingService {
	if leadTimeMinutes <= 0 {
		leadTimeMinutes = models.DefaultLeadTimeMinutes
	}
	return &BookingService{
		repo:     repo,
		eventBus: eventBus,
		leadTime: time.Duration(leadTimeMinutes) * time.Minute,
		logger:   logger,
	}
}

// ListAvailable возвращает свободные слоты с началом в [from, to),
// отбрасывая те, до которых осталось меньше минимального запаса.
func (s *BookingService) ListAvailable(ctx context.Context, from, to time.Time) ([]*models.Slot, error) {
	earliest := time.Now().UTC().Add(s.leadTime)
	if from.Before(earliest) {
		from = earliest
	}
	if !from.Before(to) {
		return nil, nil
	}
	return s.repo.GetFreeSlotsInRange(ctx, from, to)
}

// ListAvailableForDay возвращает доступные слоты одного календарного дня.
func (s *BookingService) ListAvailableForDay(ctx context.Context, day time.Time) ([]*models.Slot, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.ListAvailable(ctx, start, start.AddDate(0, 0, 1))
}

// Book бронирует слот за пользователем. Запас времени проверяется и тут:
// список мог быть показан давно.
func (s *BookingService) Book(ctx context.Context, slotID, userID int64, clientData string) (*models.Slot, error) {
	clientData = strings.TrimSpace(clientData)
	if clientData == "" {
		return nil, ErrEmptyContact
	}

	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if time.Until(slot.Start) < s.leadTime {
		return nil, ErrTooSoon
	}

	booked, err := s.repo.BookSlotTx(ctx, slotID, userID, clientData)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("slot_id", slotID).
		Int64("user_id", userID).
		Time("start", booked.Start).
		Msg("Слот забронирован")

	s.publishSlotEvent(events.EventSlotBooked, booked, "")
	return booked, nil
}

// Cancel снимает бронь. Обычный пользователь может отменить только свою,
// админ — любую, но только с забронированного слота.
func (s *BookingService) Cancel(ctx context.Context, slotID, userID int64, isAdmin bool) error {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	if !slot.IsBooked() {
		return ErrForbidden
	}
	if !isAdmin && !slot.OwnedBy(userID) {
		return ErrForbidden
	}

	if err := s.repo.CancelSlotTx(ctx, slot.ID, slot.Version); err != nil {
		return err
	}

	s.logger.Info().
		Int64("slot_id", slotID).
		Int64("user_id", userID).
		Bool("is_admin", isAdmin).
		Msg("Бронь отменена")

	s.publishSlotEvent(events.EventSlotCancelled, slot, "cancelled by user")
	return nil
}

func (s *BookingService) UserSlots(ctx context.Context, userID int64) ([]*models.Slot, error) {
	return s.repo.GetUserSlots(ctx, userID)
}

func (s *BookingService) publishSlotEvent(eventType string, slot *models.Slot, reason string) {
	if s.eventBus == nil {
		return
	}

	payload := events.SlotEventPayload{
		SlotID:     slot.ID,
		CalendarID: slot.CalendarID,
		Start:      slot.Start,
		End:        slot.End,
		Summary:    slot.Summary,
		ClientData: slot.ClientData,
		Reason:     reason,
	}
	if slot.OwningUserID.Valid {
		payload.OwningUserID = slot.OwningUserID.Int64
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("slot_id", slot.ID).Msg("publish event error")
	}
}
