package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "slots.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(id string, start time.Time) *models.ExternalEvent {
	return &models.ExternalEvent{
		ID:         id,
		CalendarID: "cal-1",
		Start:      start,
		End:        start.Add(time.Hour),
		Summary:    "Прием",
		Etag:       "etag-1",
		Raw:        "{}",
	}
}

func TestUpsertFromEvent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	ev := testEvent("ev-1", start)

	result, err := db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, UpsertCreated, result)

	slot, err := db.GetSlotByExternalID(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFree, slot.Status)
	assert.Equal(t, "etag-1", slot.ExternalVersion)
	assert.EqualValues(t, 1, slot.Version)

	// Повторный прогон того же события ничего не меняет
	result, err = db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, UpsertUnchanged, result)

	// Сменился etag: описательные поля обновляются
	ev.Etag = "etag-2"
	ev.Summary = "Прием (перенесен кабинет)"
	result, err = db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)

	slot, err = db.GetSlotByExternalID(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, "Прием (перенесен кабинет)", slot.Summary)
	assert.Equal(t, "etag-2", slot.ExternalVersion)
	assert.False(t, slot.NeedsReview)
}

func TestUpsertFromEventRejectsBadTimes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(time.Hour)

	ev := testEvent("bad-ev", start)
	ev.End = ev.Start

	_, err := db.UpsertFromEvent(ctx, ev)
	assert.Error(t, err)
}

func TestUpsertPreservesBooking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	ev := testEvent("ev-booked", start)
	_, err := db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)

	slot, err := db.GetSlotByExternalID(ctx, "ev-booked")
	require.NoError(t, err)

	booked, err := db.BookSlotTx(ctx, slot.ID, 7, "Аня, +79990001122")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, booked.Status)

	// Изменилось только описание: бронь остается, пометки нет
	ev.Etag = "etag-2"
	ev.Description = "Взять документы"
	result, err := db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, UpsertUpdated, result)

	slot, err = db.GetSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, slot.Status)
	assert.Equal(t, "Аня, +79990001122", slot.ClientData)
	assert.False(t, slot.NeedsReview)

	// Перенос времени занятого слота: бронь остается, слот помечен
	ev.Etag = "etag-3"
	ev.Start = start.Add(2 * time.Hour)
	ev.End = ev.Start.Add(time.Hour)
	result, err = db.UpsertFromEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, UpsertFlagged, result)

	slot, err = db.GetSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, slot.Status)
	assert.True(t, slot.NeedsReview)
	assert.True(t, slot.Start.Equal(ev.Start))
}

func TestMarkVanished(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	_, err := db.UpsertFromEvent(ctx, testEvent("keep", base))
	require.NoError(t, err)
	_, err = db.UpsertFromEvent(ctx, testEvent("gone-free", base.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = db.UpsertFromEvent(ctx, testEvent("gone-booked", base.Add(4*time.Hour)))
	require.NoError(t, err)

	bookedSlot, err := db.GetSlotByExternalID(ctx, "gone-booked")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, bookedSlot.ID, 5, "Петр")
	require.NoError(t, err)

	from := base.Add(-time.Hour)
	to := base.Add(12 * time.Hour)
	seen := map[string]bool{"keep": true}

	stale, flagged, err := db.MarkVanished(ctx, "cal-1", from, to, seen)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)
	require.Len(t, flagged, 1)
	assert.Equal(t, bookedSlot.ID, flagged[0].ID)

	// Свободный слот снят с публикации
	goneFree, err := db.GetSlotByExternalID(ctx, "gone-free")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnavailable, goneFree.Status)

	// Занятый слот не отменен, только помечен
	goneBooked, err := db.GetSlot(ctx, bookedSlot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, goneBooked.Status)
	assert.True(t, goneBooked.NeedsReview)

	// Увиденный слот не тронут
	kept, err := db.GetSlotByExternalID(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFree, kept.Status)

	// Повторный прогон идемпотентен
	stale, flagged, err = db.MarkVanished(ctx, "cal-1", from, to, seen)
	require.NoError(t, err)
	assert.Equal(t, 0, stale)
	assert.Empty(t, flagged)
}

func TestRetireSlotOnlyCountsFreeRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	_, err := db.UpsertFromEvent(ctx, testEvent("retire-free", base))
	require.NoError(t, err)
	_, err = db.UpsertFromEvent(ctx, testEvent("retire-booked", base.Add(time.Hour)))
	require.NoError(t, err)

	free, err := db.GetSlotByExternalID(ctx, "retire-free")
	require.NoError(t, err)
	booked, err := db.GetSlotByExternalID(ctx, "retire-booked")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, booked.ID, 9, "Оля")
	require.NoError(t, err)

	now := time.Now().UTC()

	retired, err := db.retireSlot(ctx, free.ID, now)
	require.NoError(t, err)
	assert.True(t, retired)

	// Слот, забронированный между чтением окна и апдейтом, не снимается
	// и в счетчик снятых не попадает
	retired, err = db.retireSlot(ctx, booked.ID, now)
	require.NoError(t, err)
	assert.False(t, retired)

	stillBooked, err := db.GetSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, stillBooked.Status)

	// Уже снятый слот второй раз не считается
	retired, err = db.retireSlot(ctx, free.ID, now)
	require.NoError(t, err)
	assert.False(t, retired)
}

func TestBookSlotTx(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(24 * time.Hour)

	_, err := db.UpsertFromEvent(ctx, testEvent("ev-book", start))
	require.NoError(t, err)
	slot, err := db.GetSlotByExternalID(ctx, "ev-book")
	require.NoError(t, err)

	booked, err := db.BookSlotTx(ctx, slot.ID, 42, "Иван, +79991234567")
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, booked.Status)
	assert.True(t, booked.OwnedBy(42))
	assert.Equal(t, slot.Version+1, booked.Version)

	// Повторная бронь того же слота
	_, err = db.BookSlotTx(ctx, slot.ID, 43, "Мария")
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	// Несуществующий слот
	_, err = db.BookSlotTx(ctx, 99999, 42, "Иван")
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestCancelSlotTx(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(24 * time.Hour)

	_, err := db.UpsertFromEvent(ctx, testEvent("ev-cancel", start))
	require.NoError(t, err)
	slot, err := db.GetSlotByExternalID(ctx, "ev-cancel")
	require.NoError(t, err)

	booked, err := db.BookSlotTx(ctx, slot.ID, 42, "Иван")
	require.NoError(t, err)

	// Отмена со старой версией не проходит
	err = db.CancelSlotTx(ctx, booked.ID, booked.Version-1)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = db.CancelSlotTx(ctx, booked.ID, booked.Version)
	require.NoError(t, err)

	freed, err := db.GetSlot(ctx, booked.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFree, freed.Status)
	assert.False(t, freed.OwningUserID.Valid)
	assert.Empty(t, freed.ClientData)

	// Вторая отмена уже не проходит
	err = db.CancelSlotTx(ctx, booked.ID, freed.Version)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestGetFreeSlotsInRange(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	_, err := db.UpsertFromEvent(ctx, testEvent("s1", base))
	require.NoError(t, err)
	_, err = db.UpsertFromEvent(ctx, testEvent("s2", base.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = db.UpsertFromEvent(ctx, testEvent("s3", base.Add(48*time.Hour)))
	require.NoError(t, err)

	s2, err := db.GetSlotByExternalID(ctx, "s2")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, s2.ID, 1, "x")
	require.NoError(t, err)

	slots, err := db.GetFreeSlotsInRange(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "s1", slots[0].ExternalEventID)
}

func TestReviewFlagLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(24 * time.Hour)

	_, err := db.UpsertFromEvent(ctx, testEvent("ev-flag", start))
	require.NoError(t, err)
	slot, err := db.GetSlotByExternalID(ctx, "ev-flag")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, slot.ID, 1, "x")
	require.NoError(t, err)

	_, flagged, err := db.MarkVanished(ctx, "cal-1", start.Add(-time.Hour), start.Add(time.Hour), nil)
	require.NoError(t, err)
	require.Len(t, flagged, 1)

	slots, err := db.GetFlaggedSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)

	err = db.ClearReviewFlag(ctx, slot.ID)
	require.NoError(t, err)

	slots, err = db.GetFlaggedSlots(ctx)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
