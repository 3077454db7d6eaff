package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingFixture(t *testing.T) (*BookingService, *database.DB, *events.EventBus) {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "service.db")
	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus()
	svc := NewBookingService(db, bus, 60, &logger)
	return svc, db, bus
}

func seedSlot(t *testing.T, db *database.DB, id string, start time.Time) *models.Slot {
	t.Helper()
	_, err := db.UpsertFromEvent(context.Background(), &models.ExternalEvent{
		ID:         id,
		CalendarID: "cal-1",
		Start:      start,
		End:        start.Add(time.Hour),
		Summary:    "Прием",
		Etag:       "e1",
		Raw:        "{}",
	})
	require.NoError(t, err)
	slot, err := db.GetSlotByExternalID(context.Background(), id)
	require.NoError(t, err)
	return slot
}

func TestListAvailableLeadTime(t *testing.T) {
	svc, db, _ := newBookingFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedSlot(t, db, "too-soon", now.Add(30*time.Minute))
	farSlot := seedSlot(t, db, "fine", now.Add(3*time.Hour))

	slots, err := svc.ListAvailable(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, farSlot.ID, slots[0].ID)

	// Пустое окно после сдвига нижней границы
	slots, err = svc.ListAvailable(ctx, now, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestListAvailableForDay(t *testing.T) {
	svc, db, _ := newBookingFixture(t)
	ctx := context.Background()
	day := time.Now().UTC().AddDate(0, 0, 2)

	inDay := seedSlot(t, db, "in-day", time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC))
	seedSlot(t, db, "next-day", time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, time.UTC).AddDate(0, 0, 1))

	slots, err := svc.ListAvailableForDay(ctx, day)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, inDay.ID, slots[0].ID)
}

func TestBook(t *testing.T) {
	svc, db, bus := newBookingFixture(t)
	ctx := context.Background()

	var published []events.SlotEventPayload
	bus.Subscribe(events.EventSlotBooked, func(ev *events.Event) error {
		var payload events.SlotEventPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return err
		}
		published = append(published, payload)
		return nil
	})

	slot := seedSlot(t, db, "ev-1", time.Now().UTC().Add(3*time.Hour))

	booked, err := svc.Book(ctx, slot.ID, 42, "Иван, +79991234567")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, booked.Status)
	assert.True(t, booked.OwnedBy(42))

	require.Len(t, published, 1)
	assert.Equal(t, slot.ID, published[0].SlotID)
	assert.EqualValues(t, 42, published[0].OwningUserID)

	// Второй желающий опоздал
	_, err = svc.Book(ctx, slot.ID, 43, "Мария")
	assert.ErrorIs(t, err, database.ErrSlotUnavailable)
}

func TestBookValidation(t *testing.T) {
	svc, db, _ := newBookingFixture(t)
	ctx := context.Background()

	slot := seedSlot(t, db, "ev-soon", time.Now().UTC().Add(30*time.Minute))

	_, err := svc.Book(ctx, slot.ID, 42, "   ")
	assert.ErrorIs(t, err, ErrEmptyContact)

	// Запас времени проверяется и при бронировании, не только в списке
	_, err = svc.Book(ctx, slot.ID, 42, "Иван")
	assert.ErrorIs(t, err, ErrTooSoon)

	_, err = svc.Book(ctx, 9999, 42, "Иван")
	assert.ErrorIs(t, err, database.ErrSlotNotFound)
}

func TestCancel(t *testing.T) {
	svc, db, bus := newBookingFixture(t)
	ctx := context.Background()

	cancelled := 0
	bus.Subscribe(events.EventSlotCancelled, func(*events.Event) error {
		cancelled++
		return nil
	})

	slot := seedSlot(t, db, "ev-cancel", time.Now().UTC().Add(3*time.Hour))
	_, err := svc.Book(ctx, slot.ID, 42, "Иван")
	require.NoError(t, err)

	// Чужую бронь отменить нельзя
	err = svc.Cancel(ctx, slot.ID, 43, false)
	assert.ErrorIs(t, err, ErrForbidden)

	// Админ может
	require.NoError(t, svc.Cancel(ctx, slot.ID, 43, true))
	assert.Equal(t, 1, cancelled)

	freed, err := db.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFree, freed.Status)

	// Свободный слот отменять нечего, даже админу
	err = svc.Cancel(ctx, slot.ID, 42, true)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelOwnBooking(t *testing.T) {
	svc, db, _ := newBookingFixture(t)
	ctx := context.Background()

	slot := seedSlot(t, db, "ev-own", time.Now().UTC().Add(3*time.Hour))
	_, err := svc.Book(ctx, slot.ID, 42, "Иван")
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, slot.ID, 42, false))

	slots, err := svc.UserSlots(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
