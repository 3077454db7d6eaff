package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zapisnik/internal/calendar"
	"zapisnik/internal/database"
	"zapisnik/internal/domain"
	"zapisnik/internal/events"
	"zapisnik/internal/metrics"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
)

// Engine сверяет слоты в базе с внешним календарным фидом.
// Описательные поля слотов идут за фидом, поля брони фид не трогает.
type Engine struct {
	source    domain.EventSource
	repo      domain.SlotRepository
	publisher domain.EventPublisher
	metrics   *metrics.SyncMetrics
	retry     RetryPolicy
	logger    *zerolog.Logger

	calendars []models.Calendar
	interval  time.Duration
	daysAhead int
}

type Options struct {
	Calendars []models.Calendar
	Interval  time.Duration
	DaysAhead int
	Retry     RetryPolicy
	Metrics   *metrics.SyncMetrics
}

func NewEngine(source domain.EventSource, repo domain.SlotRepository, publisher domain.EventPublisher, opts Options, logger *zerolog.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = time.Duration(models.DefaultSyncIntervalMinutes) * time.Minute
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = models.DefaultSyncDaysAhead
	}
	if opts.Retry.MaxRetries == 0 {
		opts.Retry = DefaultRetryPolicy()
	}

	return &Engine{
		source:    source,
		repo:      repo,
		publisher: publisher,
		metrics:   opts.Metrics,
		retry:     opts.Retry,
		logger:    logger,
		calendars: opts.Calendars,
		interval:  opts.Interval,
		daysAhead: opts.DaysAhead,
	}
}

// Sync делает один проход по окну календаря: сначала полная выборка фида,
// затем сверка с базой. При ошибке выборки база не меняется вообще.
func (e *Engine) Sync(ctx context.Context, calendarID string, from, to time.Time) (*models.SyncReport, error) {
	started := time.Now()

	feedEvents, feedFailures, err := e.fetchWithRetry(ctx, calendarID, from, to)
	if err != nil {
		if e.metrics != nil {
			e.metrics.Runs.WithLabelValues(calendarID, "error").Inc()
		}
		return nil, fmt.Errorf("failed to fetch calendar feed: %w", err)
	}

	report := &models.SyncReport{CalendarID: calendarID, Failures: feedFailures}
	seen := make(map[string]bool, len(feedEvents))

	for _, ev := range feedEvents {
		seen[ev.ID] = true

		result, err := e.repo.UpsertFromEvent(ctx, ev)
		if err != nil {
			e.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Не удалось применить событие фида")
			report.Failures = append(report.Failures, models.EventFailure{EventID: ev.ID, Err: err.Error()})
			continue
		}

		switch result {
		case database.UpsertCreated:
			report.Created++
		case database.UpsertUpdated:
			report.Updated++
		case database.UpsertUnchanged:
			report.Unchanged++
		case database.UpsertFlagged:
			report.Updated++
			report.Flagged++
			if slot, getErr := e.repo.GetSlotByExternalID(ctx, ev.ID); getErr == nil {
				e.publishConflict(slot, "event time changed under an active booking")
			}
		}
	}

	stale, flagged, err := e.repo.MarkVanished(ctx, calendarID, from, to, seen)
	if err != nil {
		if e.metrics != nil {
			e.metrics.Runs.WithLabelValues(calendarID, "error").Inc()
		}
		return nil, fmt.Errorf("failed to reconcile vanished events: %w", err)
	}
	report.Stale = stale
	report.Flagged += len(flagged)

	// Пропавшая бронь требует внимания человека, рассылаем конфликт по каждой.
	for _, slot := range flagged {
		e.publishConflict(slot, "event vanished from feed")
	}

	if e.publisher != nil {
		if err := e.publisher.PublishJSON(events.EventSyncCompleted, events.SyncEventPayload{
			CalendarID: calendarID,
			Created:    report.Created,
			Updated:    report.Updated,
			Stale:      report.Stale,
			Flagged:    report.Flagged,
			Failures:   len(report.Failures),
		}); err != nil {
			e.logger.Warn().Err(err).Msg("Не удалось опубликовать событие sync_completed")
		}
	}

	if e.metrics != nil {
		e.metrics.Runs.WithLabelValues(calendarID, "ok").Inc()
		e.metrics.Observe(calendarID, report.Created, report.Updated, report.Stale, report.Flagged, len(report.Failures))
		e.metrics.RunDuration.Observe(time.Since(started).Seconds())
	}

	logEvent := e.logger.Info()
	if report.IsZero() {
		logEvent = e.logger.Debug()
	}
	logEvent.
		Str("calendar_id", calendarID).
		Int("created", report.Created).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("stale", report.Stale).
		Int("flagged", report.Flagged).
		Int("failures", len(report.Failures)).
		Dur("took", time.Since(started)).
		Msg("Синхронизация календаря завершена")

	return report, nil
}

// SyncAll проходит по всем настроенным календарям в окне [сейчас, сейчас+daysAhead).
// Ошибка одного календаря не мешает остальным.
func (e *Engine) SyncAll(ctx context.Context) ([]*models.SyncReport, error) {
	from := time.Now().UTC()
	to := from.AddDate(0, 0, e.daysAhead)

	var reports []*models.SyncReport
	var errs []error
	for _, cal := range e.calendars {
		report, err := e.Sync(ctx, cal.ID, from, to)
		if err != nil {
			e.logger.Error().Err(err).Str("calendar_id", cal.ID).Msg("Синхронизация календаря не удалась")
			errs = append(errs, fmt.Errorf("calendar %s: %w", cal.ID, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// Run крутит периодическую синхронизацию до отмены контекста.
// Первый проход выполняется сразу, не дожидаясь тикера.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Dur("interval", e.interval).
		Int("calendars", len(e.calendars)).
		Msg("Запуск фоновой синхронизации календарей")

	if _, err := e.SyncAll(ctx); err != nil {
		e.logger.Error().Err(err).Msg("Стартовая синхронизация завершилась с ошибками")
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Фоновая синхронизация остановлена")
			return
		case <-ticker.C:
			if _, err := e.SyncAll(ctx); err != nil {
				e.logger.Error().Err(err).Msg("Синхронизация завершилась с ошибками")
			}
		}
	}
}

// fetchWithRetry повторяет выборку фида при временных ошибках.
// Постоянные ошибки (4xx кроме 429) возвращаются сразу.
func (e *Engine) fetchWithRetry(ctx context.Context, calendarID string, from, to time.Time) ([]*models.ExternalEvent, []models.EventFailure, error) {
	var lastErr error
	for attempt := 1; attempt <= e.retry.MaxRetries+1; attempt++ {
		feedEvents, failures, err := e.source.ListEvents(ctx, calendarID, from, to)
		if err == nil {
			return feedEvents, failures, nil
		}
		lastErr = err

		if !errors.Is(err, calendar.ErrFeedTransient) || attempt > e.retry.MaxRetries {
			break
		}

		delay := e.retry.NextDelay(attempt)
		e.logger.Warn().Err(err).
			Str("calendar_id", calendarID).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Фид недоступен, повторяем")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, nil, lastErr
}

func (e *Engine) publishConflict(slot *models.Slot, reason string) {
	if e.publisher == nil {
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
	if err := e.publisher.PublishJSON(events.EventSlotConflict, payload); err != nil {
		e.logger.Warn().Err(err).Int64("slot_id", slot.ID).Msg("Не удалось опубликовать конфликт слота")
	}
}
