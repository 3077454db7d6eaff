package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapisnik/internal/models"
)

// UpsertResult — что сделал UpsertFromEvent с конкретным событием.
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "created"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
	UpsertFlagged   UpsertResult = "flagged"
)

const slotColumns = `id, external_event_id, calendar_id, start_time, end_time, summary, description,
                 location, raw_payload, status, owning_user_id, client_data,
                 external_version, needs_review, created_at, updated_at, version`

func scanSlot(row interface{ Scan(...any) error }) (*models.Slot, error) {
	var s models.Slot
	err := row.Scan(
		&s.ID, &s.ExternalEventID, &s.CalendarID, &s.Start, &s.End, &s.Summary, &s.Description,
		&s.Location, &s.RawPayload, &s.Status, &s.OwningUserID, &s.ClientData,
		&s.ExternalVersion, &s.NeedsReview, &s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE id = ?`
	slot, err := scanSlot(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot: %w", err)
	}
	return slot, nil
}

func (db *DB) GetSlotByExternalID(ctx context.Context, externalEventID string) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE external_event_id = ?`
	slot, err := scanSlot(db.QueryRowContext(ctx, query, externalEventID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot by external id: %w", err)
	}
	return slot, nil
}

func (db *DB) querySlots(ctx context.Context, query string, args ...any) ([]*models.Slot, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.Slot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slots, nil
}

// GetFreeSlotsInRange возвращает свободные слоты с началом в [from, to), по возрастанию start.
func (db *DB) GetFreeSlotsInRange(ctx context.Context, from, to time.Time) ([]*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE status = ? AND start_time >= ? AND start_time < ?
              ORDER BY start_time ASC`
	return db.querySlots(ctx, query, models.StatusFree, from.UTC(), to.UTC())
}

// GetUserSlots возвращает брони пользователя по возрастанию start.
func (db *DB) GetUserSlots(ctx context.Context, userID int64) ([]*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE owning_user_id = ? AND status = ?
              ORDER BY start_time ASC`
	return db.querySlots(ctx, query, userID, models.StatusBooked)
}

// GetSlotsInWindow возвращает все слоты календаря с началом в окне, кроме снятых.
func (db *DB) GetSlotsInWindow(ctx context.Context, calendarID string, from, to time.Time) ([]*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots
              WHERE calendar_id = ? AND start_time >= ? AND start_time < ? AND status != ?
              ORDER BY start_time ASC`
	return db.querySlots(ctx, query, calendarID, from.UTC(), to.UTC(), models.StatusUnavailable)
}

// UpsertFromEvent создает слот по событию фида либо обновляет его описательные
// поля при смене etag. Поля брони (status, owning_user_id, client_data)
// не трогает никогда — ими владеет координатор.
func (db *DB) UpsertFromEvent(ctx context.Context, ev *models.ExternalEvent) (UpsertResult, error) {
	if !ev.Start.Before(ev.End) {
		return "", fmt.Errorf("event %s: start is not before end", ev.ID)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()

	existing, err := scanSlot(tx.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE external_event_id = ?`, ev.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			`INSERT INTO slots (external_event_id, calendar_id, start_time, end_time, summary, description,
                    location, raw_payload, status, external_version, created_at, updated_at, version)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.CalendarID, ev.Start.UTC(), ev.End.UTC(), ev.Summary, ev.Description,
			ev.Location, ev.Raw, models.StatusFree, ev.Etag, now, now, 1,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert slot: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit: %w", err)
		}
		return UpsertCreated, nil

	case err != nil:
		return "", fmt.Errorf("failed to look up slot: %w", err)
	}

	if existing.ExternalVersion == ev.Etag {
		return UpsertUnchanged, nil
	}

	// Перенос времени у уже забронированного слота — конфликт,
	// бронь сохраняем и помечаем слот для ручного разбора.
	flag := existing.NeedsReview
	result := UpsertUpdated
	if existing.IsBooked() && (!existing.Start.Equal(ev.Start.UTC()) || !existing.End.Equal(ev.End.UTC())) {
		flag = true
		result = UpsertFlagged
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE slots SET calendar_id = ?, start_time = ?, end_time = ?, summary = ?, description = ?,
                location = ?, raw_payload = ?, external_version = ?, needs_review = ?,
                updated_at = ?, version = version + 1
         WHERE external_event_id = ?`,
		ev.CalendarID, ev.Start.UTC(), ev.End.UTC(), ev.Summary, ev.Description,
		ev.Location, ev.Raw, ev.Etag, flag, now, ev.ID,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update slot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return result, nil
}

// MarkVanished обрабатывает слоты, чьи события пропали из выборки окна:
// свободные снимаются с публикации, забронированные помечаются для разбора
// (оплаченную бронь молча не отменяем). Возвращает количество снятых слотов
// и свежепомеченные брони.
func (db *DB) MarkVanished(ctx context.Context, calendarID string, from, to time.Time, seenIDs map[string]bool) (stale int, flagged []*models.Slot, err error) {
	slots, err := db.GetSlotsInWindow(ctx, calendarID, from, to)
	if err != nil {
		return 0, nil, err
	}

	now := time.Now().UTC()
	for _, slot := range slots {
		if seenIDs[slot.ExternalEventID] {
			continue
		}
		if slot.IsBooked() {
			if slot.NeedsReview {
				continue
			}
			_, err = db.ExecContext(ctx,
				`UPDATE slots SET needs_review = 1, updated_at = ?, version = version + 1 WHERE id = ?`,
				now, slot.ID)
			if err != nil {
				return stale, flagged, fmt.Errorf("failed to flag slot %d: %w", slot.ID, err)
			}
			slot.NeedsReview = true
			flagged = append(flagged, slot)
			continue
		}
		retired, err := db.retireSlot(ctx, slot.ID, now)
		if err != nil {
			return stale, flagged, fmt.Errorf("failed to retire slot %d: %w", slot.ID, err)
		}
		if retired {
			stale++
		}
	}
	return stale, flagged, nil
}

// retireSlot снимает свободный слот с публикации. false без ошибки значит,
// что слот успели забронировать между чтением окна и этим апдейтом,
// и в отчет он попасть не должен.
func (db *DB) retireSlot(ctx context.Context, slotID int64, now time.Time) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE slots SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND status = ?`,
		models.StatusUnavailable, now, slotID, models.StatusFree)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// BookSlotTx атомарно переводит слот free -> booked. Из N конкурентных
// вызовов ровно один проходит, остальные получают ErrSlotUnavailable.
func (db *DB) BookSlotTx(ctx context.Context, slotID, userID int64, clientData string) (*models.Slot, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM slots WHERE id = ?`, slotID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check slot status: %w", err)
	}
	if status != models.StatusFree {
		return nil, ErrSlotUnavailable
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE slots SET status = ?, owning_user_id = ?, client_data = ?,
                updated_at = ?, version = version + 1
         WHERE id = ? AND status = ?`,
		models.StatusBooked, userID, clientData, now, slotID, models.StatusFree)
	if err != nil {
		return nil, fmt.Errorf("failed to book slot: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrSlotUnavailable
	}

	slot, err := scanSlot(tx.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = ?`, slotID))
	if err != nil {
		return nil, fmt.Errorf("failed to reload booked slot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking: %w", err)
	}
	return slot, nil
}

// CancelSlotTx переводит booked -> free и очищает данные брони.
// Версия защищает от гонки с повторной отменой.
func (db *DB) CancelSlotTx(ctx context.Context, slotID, fromVersion int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE slots SET status = ?, owning_user_id = NULL, client_data = '',
                updated_at = ?, version = version + 1
         WHERE id = ? AND status = ? AND version = ?`,
		models.StatusFree, time.Now().UTC(), slotID, models.StatusBooked, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to cancel slot: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// GetFlaggedSlots возвращает слоты, ожидающие ручного разбора.
func (db *DB) GetFlaggedSlots(ctx context.Context) ([]*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE needs_review = 1 ORDER BY start_time ASC`
	return db.querySlots(ctx, query)
}

// ClearReviewFlag снимает пометку после ручного разбора.
func (db *DB) ClearReviewFlag(ctx context.Context, slotID int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE slots SET needs_review = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), slotID)
	return err
}
