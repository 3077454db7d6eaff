package sync

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"zapisnik/internal/calendar"
	"zapisnik/internal/database"
	"zapisnik/internal/events"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events   []*models.ExternalEvent
	failures []models.EventFailure
	errs     []error
	calls    int
}

func (f *fakeSource) ListEvents(_ context.Context, _ string, _, _ time.Time) ([]*models.ExternalEvent, []models.EventFailure, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, nil, err
		}
	}
	return f.events, f.failures, nil
}

func newEngineTest(t *testing.T, source *fakeSource, bus *events.EventBus) (*Engine, *database.DB) {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	db, err := database.NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	engine := NewEngine(source, db, bus, Options{
		Calendars: []models.Calendar{{ID: "cal-1", Name: "Основной"}},
		Retry:     RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2},
	}, &logger)
	return engine, db
}

func feedEvent(id string, start time.Time, etag string) *models.ExternalEvent {
	return &models.ExternalEvent{
		ID:         id,
		CalendarID: "cal-1",
		Start:      start,
		End:        start.Add(time.Hour),
		Summary:    "Прием",
		Etag:       etag,
		Raw:        "{}",
	}
}

func TestSyncCreatesAndIsIdempotent(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	source := &fakeSource{events: []*models.ExternalEvent{
		feedEvent("ev-1", base, "e1"),
		feedEvent("ev-2", base.Add(2*time.Hour), "e1"),
	}}
	engine, db := newEngineTest(t, source, events.NewEventBus())
	ctx := context.Background()

	from := base.Add(-time.Hour)
	to := base.Add(24 * time.Hour)

	report, err := engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 0, report.Stale)

	slots, err := db.GetFreeSlotsInRange(ctx, from, to)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	// Тот же фид второй раз: ничего не меняется
	report, err = engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)
	assert.True(t, report.IsZero())
	assert.Equal(t, 2, report.Unchanged)
}

func TestSyncVanishedEvents(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	source := &fakeSource{events: []*models.ExternalEvent{
		feedEvent("stays", base, "e1"),
		feedEvent("goes-free", base.Add(2*time.Hour), "e1"),
		feedEvent("goes-booked", base.Add(4*time.Hour), "e1"),
	}}
	bus := events.NewEventBus()

	var conflicts []events.SlotEventPayload
	bus.Subscribe(events.EventSlotConflict, func(ev *events.Event) error {
		var payload events.SlotEventPayload
		require.NoError(t, json.Unmarshal(ev.Payload, &payload))
		conflicts = append(conflicts, payload)
		return nil
	})

	engine, db := newEngineTest(t, source, bus)
	ctx := context.Background()
	from := base.Add(-time.Hour)
	to := base.Add(24 * time.Hour)

	_, err := engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)

	bookedSlot, err := db.GetSlotByExternalID(ctx, "goes-booked")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, bookedSlot.ID, 9, "Олег")
	require.NoError(t, err)

	// Два события пропали из фида
	source.events = source.events[:1]

	report, err := engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stale)
	assert.Equal(t, 1, report.Flagged)

	// Свободный снят, занятый помечен и не отменен
	goneFree, err := db.GetSlotByExternalID(ctx, "goes-free")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnavailable, goneFree.Status)

	goneBooked, err := db.GetSlot(ctx, bookedSlot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, goneBooked.Status)
	assert.True(t, goneBooked.NeedsReview)

	require.Len(t, conflicts, 1)
	assert.Equal(t, bookedSlot.ID, conflicts[0].SlotID)
}

func TestSyncFlagsRescheduledBooking(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	source := &fakeSource{events: []*models.ExternalEvent{feedEvent("ev-move", base, "e1")}}
	bus := events.NewEventBus()

	conflictCount := 0
	bus.Subscribe(events.EventSlotConflict, func(*events.Event) error {
		conflictCount++
		return nil
	})

	engine, db := newEngineTest(t, source, bus)
	ctx := context.Background()
	from := base.Add(-time.Hour)
	to := base.Add(24 * time.Hour)

	_, err := engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)

	slot, err := db.GetSlotByExternalID(ctx, "ev-move")
	require.NoError(t, err)
	_, err = db.BookSlotTx(ctx, slot.ID, 3, "Ира")
	require.NoError(t, err)

	// Событие переехало на другое время
	source.events = []*models.ExternalEvent{feedEvent("ev-move", base.Add(3*time.Hour), "e2")}

	report, err := engine.Sync(ctx, "cal-1", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 1, conflictCount)

	moved, err := db.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, moved.Status)
	assert.True(t, moved.NeedsReview)
}

func TestSyncRetriesTransientErrors(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	source := &fakeSource{
		events: []*models.ExternalEvent{feedEvent("ev-1", base, "e1")},
		errs:   []error{calendar.ErrFeedTransient, calendar.ErrFeedTransient, nil},
	}
	engine, _ := newEngineTest(t, source, events.NewEventBus())

	report, err := engine.Sync(context.Background(), "cal-1", base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 3, source.calls)
}

func TestSyncDoesNotRetryPermanentErrors(t *testing.T) {
	source := &fakeSource{errs: []error{calendar.ErrFeedPermanent}}
	engine, db := newEngineTest(t, source, events.NewEventBus())

	base := time.Now().UTC()
	_, err := engine.Sync(context.Background(), "cal-1", base, base.Add(24*time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, calendar.ErrFeedPermanent)
	assert.Equal(t, 1, source.calls)

	// База осталась нетронутой
	slots, dbErr := db.GetSlotsInWindow(context.Background(), "cal-1", base.Add(-time.Hour), base.AddDate(0, 0, 30))
	require.NoError(t, dbErr)
	assert.Empty(t, slots)
}

func TestSyncCollectsEventFailures(t *testing.T) {
	base := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	bad := feedEvent("ev-bad", base.Add(2*time.Hour), "e1")
	bad.End = bad.Start // не пройдет валидацию стора

	source := &fakeSource{
		events:   []*models.ExternalEvent{feedEvent("ev-ok", base, "e1"), bad},
		failures: []models.EventFailure{{EventID: "ev-skipped", Err: "bad time"}},
	}
	engine, db := newEngineTest(t, source, events.NewEventBus())
	ctx := context.Background()

	report, err := engine.Sync(ctx, "cal-1", base.Add(-time.Hour), base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, report.Failures, 2)

	_, err = db.GetSlotByExternalID(ctx, "ev-ok")
	assert.NoError(t, err)
	_, err = db.GetSlotByExternalID(ctx, "ev-bad")
	assert.ErrorIs(t, err, database.ErrSlotNotFound)
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4)) // clamp
	assert.Equal(t, time.Second, policy.NextDelay(0))
}
