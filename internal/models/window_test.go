package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

func TestNewWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("explicit range covers whole days", func(t *testing.T) {
		w, err := NewWindow("2021-01-01", "2021-01-03", now)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
		assert.Equal(t, time.Date(2021, 1, 3, 23, 59, 59, 0, time.UTC), w.End)
		assert.Equal(t, int64(1609459200000), w.StartMillis())
		assert.Equal(t, int64(1609718399000), w.EndMillis())
		assert.Equal(t, "2021-01-01..2021-01-03", w.String())
	})

	t.Run("single day window", func(t *testing.T) {
		w, err := NewWindow("2021-01-01", "2021-01-01", now)
		require.NoError(t, err)
		assert.Equal(t, "2021-01-01", w.StartDate())
		assert.Equal(t, "2021-01-01", w.EndDate())
	})

	t.Run("missing end defaults to yesterday in UTC", func(t *testing.T) {
		w, err := NewWindow("2024-03-01", "", now)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 14, 23, 59, 59, 0, time.UTC), w.End)
	})

	t.Run("yesterday is computed in UTC regardless of local zone", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*60*60)
		localNow := time.Date(2024, 3, 15, 2, 0, 0, 0, tokyo) // 2024-03-14 17:00 UTC
		w, err := NewWindow("2024-03-01", "", localNow)
		require.NoError(t, err)
		assert.Equal(t, "2024-03-13", w.EndDate())
	})

	invalid := []struct {
		name  string
		start string
		end   string
		value string
	}{
		{name: "inverted range", start: "2021-01-05", end: "2021-01-01", value: "2021-01-05"},
		{name: "malformed start", start: "01/01/2021", end: "2021-01-03", value: "01/01/2021"},
		{name: "malformed end", start: "2021-01-01", end: "2021-02-30", value: "2021-02-30"},
		{name: "empty start", start: "", end: "2021-01-03", value: ""},
		{name: "default end before start", start: "2030-01-01", end: "", value: "2030-01-01"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWindow(tt.start, tt.end, now)
			var dateErr *apperrors.InvalidDateError
			require.True(t, errors.As(err, &dateErr), "expected InvalidDateError, got %v", err)
			assert.Equal(t, tt.value, dateErr.Value)
		})
	}
}

func TestWindowContains(t *testing.T) {
	w, err := NewWindow("2021-01-01", "2021-01-03", time.Now())
	require.NoError(t, err)

	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(w.End))
	assert.True(t, w.Contains(time.Date(2021, 1, 2, 12, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(w.Start.Add(-time.Millisecond)))
	assert.False(t, w.Contains(w.End.Add(time.Millisecond)))
}

func TestLookupInterval(t *testing.T) {
	tests := []struct {
		input    string
		code     string
		duration time.Duration
		ok       bool
	}{
		{"1d", "1d", 24 * time.Hour, true},
		{" 4h ", "4h", 4 * time.Hour, true},
		{"1m", "1m", time.Minute, true},
		{"1M", "1M", 0, true},
		{"1 day", "1d", 24 * time.Hour, true},
		{"1Day", "1d", 24 * time.Hour, true},
		{"7d", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			iv, ok := LookupInterval(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.code, iv.Code)
			assert.Equal(t, tt.duration, iv.Duration)
		})
	}

	assert.Equal(t, "1d", NormalizeInterval("daily"))
	assert.Equal(t, "7d", NormalizeInterval(" 7d"))
	assert.Contains(t, SupportedIntervals(), "1w")
	assert.Len(t, SupportedIntervals(), 15)
}
