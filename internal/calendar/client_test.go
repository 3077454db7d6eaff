package calendar

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

func TestEventTime(t *testing.T) {
	t.Run("DateTime", func(t *testing.T) {
		got, err := eventTime(&calendarapi.EventDateTime{DateTime: "2026-09-05T10:00:00+03:00"}, false)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 9, 5, 7, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("AllDayStart", func(t *testing.T) {
		got, err := eventTime(&calendarapi.EventDateTime{Date: "2026-09-05"}, false)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("AllDayEnd", func(t *testing.T) {
		got, err := eventTime(&calendarapi.EventDateTime{Date: "2026-09-05"}, true)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 9, 5, 23, 59, 59, 0, time.UTC), got)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := eventTime(nil, false)
		assert.Error(t, err)

		_, err = eventTime(&calendarapi.EventDateTime{}, false)
		assert.Error(t, err)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := eventTime(&calendarapi.EventDateTime{Date: "вчера"}, false)
		assert.Error(t, err)
	})
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyFeedError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"RateLimited", &googleapi.Error{Code: 429}, true},
		{"ServerError", &googleapi.Error{Code: 503}, true},
		{"NetworkTimeout", timeoutError{}, true},
		{"Unauthorized", &googleapi.Error{Code: 401}, false},
		{"NotFound", &googleapi.Error{Code: 404}, false},
		{"UnknownError", errors.New("что-то пошло не так"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFeedError(tt.err)
			require.Error(t, got)
			assert.Equal(t, tt.transient, errors.Is(got, ErrFeedTransient))
			assert.Equal(t, !tt.transient, errors.Is(got, ErrFeedPermanent))
			// Исходная ошибка не теряется
			assert.ErrorContains(t, got, tt.err.Error())
		})
	}

	assert.NoError(t, classifyFeedError(nil))
}

func TestSavingTokenSource(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	path := filepath.Join(t.TempDir(), "token.json")

	refreshed := &oauth2.Token{AccessToken: "fresh", RefreshToken: "r1"}
	source := &savingTokenSource{
		path:   path,
		src:    oauth2.StaticTokenSource(refreshed),
		last:   "stale",
		logger: &logger,
	}

	// Токен сменился после refresh: уходит на диск
	got, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)

	saved, err := tokenFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", saved.AccessToken)
	assert.Equal(t, "r1", saved.RefreshToken)

	// Тот же токен второй раз не перезаписываем
	require.NoError(t, os.Remove(path))
	_, err = source.Token()
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
