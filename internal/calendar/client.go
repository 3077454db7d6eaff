package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"zapisnik/internal/config"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Client обращается к Google Calendar API только на чтение.
type Client struct {
	service *calendarapi.Service
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewClient собирает авторизованный клиент: OAuth-конфиг из client_id/secret
// или credentials.json, токен (с refresh token) из token-файла.
func NewClient(ctx context.Context, cfg config.GoogleConfig, logger *zerolog.Logger) (*Client, error) {
	oauthCfg, err := oauthConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token from %s: %w", cfg.TokenFile, err)
	}

	source := &savingTokenSource{
		path:   cfg.TokenFile,
		src:    oauthCfg.TokenSource(ctx, token),
		last:   token.AccessToken,
		logger: logger,
	}
	httpClient := oauth2.NewClient(ctx, source)
	service, err := calendarapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		service: service,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// ListEvents возвращает события календаря в окне [timeMin, timeMax).
// Кривые события не прерывают выборку, а попадают в failures.
func (c *Client) ListEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*models.ExternalEvent, []models.EventFailure, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	result, err := c.service.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(timeMin.UTC().Format(time.RFC3339)).
		TimeMax(timeMax.UTC().Format(time.RFC3339)).
		OrderBy("startTime").
		MaxResults(250).
		Do()
	if err != nil {
		return nil, nil, classifyFeedError(err)
	}

	events := make([]*models.ExternalEvent, 0, len(result.Items))
	var failures []models.EventFailure

	for _, item := range result.Items {
		ev, convErr := c.toExternalEvent(item, calendarID)
		if convErr != nil {
			c.logger.Warn().Err(convErr).Str("event_id", item.Id).Msg("Пропускаем событие фида")
			failures = append(failures, models.EventFailure{EventID: item.Id, Err: convErr.Error()})
			continue
		}
		events = append(events, ev)
	}

	c.logger.Debug().
		Str("calendar_id", calendarID).
		Int("events", len(events)).
		Int("failures", len(failures)).
		Msg("Fetched events from calendar feed")

	return events, failures, nil
}

func (c *Client) toExternalEvent(item *calendarapi.Event, calendarID string) (*models.ExternalEvent, error) {
	if item.Id == "" {
		return nil, fmt.Errorf("event has no id")
	}

	start, err := eventTime(item.Start, false)
	if err != nil {
		return nil, fmt.Errorf("bad start time: %w", err)
	}
	end, err := eventTime(item.End, true)
	if err != nil {
		return nil, fmt.Errorf("bad end time: %w", err)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("start %s is not before end %s", start, end)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot event: %w", err)
	}

	return &models.ExternalEvent{
		ID:          item.Id,
		CalendarID:  calendarID,
		Start:       start,
		End:         end,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Etag:        item.Etag,
		Raw:         string(raw),
	}, nil
}

// eventTime разбирает время события; у событий "на весь день" заполнена
// только дата — начало дня для start, конец дня для end.
func eventTime(edt *calendarapi.EventDateTime, endOfDay bool) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing time")
	}
	if edt.DateTime != "" {
		return time.Parse(time.RFC3339, edt.DateTime)
	}
	if edt.Date != "" {
		day, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, err
		}
		if endOfDay {
			return day.Add(24*time.Hour - time.Second), nil
		}
		return day, nil
	}
	return time.Time{}, fmt.Errorf("missing time")
}

func oauthConfig(cfg config.GoogleConfig) (*oauth2.Config, error) {
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendarapi.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(data, calendarapi.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials file: %w", err)
	}
	oauthCfg.RedirectURL = "urn:ietf:wg:oauth:2.0:oob"
	return oauthCfg, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// savingTokenSource пишет обновленный access token обратно в файл,
// чтобы refresh переживал перезапуск процесса.
type savingTokenSource struct {
	path   string
	src    oauth2.TokenSource
	last   string
	logger *zerolog.Logger
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := SaveToken(s.path, token); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to persist refreshed token")
		}
	}
	return token, nil
}

// SaveToken сохраняет токен после прохождения auth-флоу или refresh.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
