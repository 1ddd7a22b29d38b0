package gaps

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

var testStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func createContinuousCandles(start time.Time, count int, step time.Duration) []models.Candle {
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		candles[i] = models.Candle{Date: start.Add(time.Duration(i) * step), Open: 1, High: 1, Low: 1, Close: 1}
	}
	return candles
}

func mustWindow(t *testing.T, start, end string) models.Window {
	t.Helper()
	w, err := models.NewWindow(start, end, time.Now())
	require.NoError(t, err)
	return w
}

func TestDetectInSequence(t *testing.T) {
	day := 24 * time.Hour

	t.Run("continuous daily series", func(t *testing.T) {
		candles := createContinuousCandles(testStart, 3, day)
		gaps := DetectInSequence("BTCUSDT", "1d", candles, day, mustWindow(t, "2021-01-01", "2021-01-03"))
		assert.Empty(t, gaps)
	})

	t.Run("interior gap", func(t *testing.T) {
		candles := []models.Candle{
			{Date: testStart},
			{Date: testStart.Add(3 * day)},
			{Date: testStart.Add(4 * day)},
		}
		gaps := DetectInSequence("BTCUSDT", "1d", candles, day, models.Window{})
		require.Len(t, gaps, 1)

		gap := gaps[0]
		assert.Equal(t, PositionInterior, gap.Position)
		assert.Equal(t, 2, gap.Missing)
		assert.Equal(t, testStart.Add(day), gap.Start)
		assert.Equal(t, testStart.Add(3*day), gap.End)
		assert.Equal(t, 2*day, gap.Duration())
		assert.Contains(t, gap.ID, "BTCUSDT_1d_")
	})

	t.Run("leading gap for late listing", func(t *testing.T) {
		candles := createContinuousCandles(testStart.Add(5*day), 5, day)
		gaps := DetectInSequence("NEWUSDT", "1d", candles, day, mustWindow(t, "2021-01-01", "2021-01-10"))
		require.Len(t, gaps, 1)
		assert.Equal(t, PositionLeading, gaps[0].Position)
		assert.Equal(t, 5, gaps[0].Missing)
		assert.Equal(t, testStart, gaps[0].Start)
	})

	t.Run("trailing gap in hourly series", func(t *testing.T) {
		candles := createContinuousCandles(testStart, 21, time.Hour)
		gaps := DetectInSequence("BTCUSDT", "1h", candles, time.Hour, mustWindow(t, "2021-01-01", "2021-01-01"))
		require.Len(t, gaps, 1)
		assert.Equal(t, PositionTrailing, gaps[0].Position)
		assert.Equal(t, 3, gaps[0].Missing)
		assert.Equal(t, testStart.Add(21*time.Hour), gaps[0].Start)
		assert.Equal(t, testStart.Add(24*time.Hour), gaps[0].End)
	})

	t.Run("weekly candles do not align to window start", func(t *testing.T) {
		monday := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
		candles := createContinuousCandles(monday, 2, 7*day)
		gaps := DetectInSequence("BTCUSDT", "1w", candles, 7*day, mustWindow(t, "2021-01-01", "2021-01-17"))
		assert.Empty(t, gaps)
	})

	t.Run("no step", func(t *testing.T) {
		assert.Nil(t, DetectInSequence("BTCUSDT", "1M", createContinuousCandles(testStart, 2, day), 0, models.Window{}))
	})
}

func TestDetectorDetect(t *testing.T) {
	var buf bytes.Buffer
	detector := NewDetector(slog.New(slog.NewJSONHandler(&buf, nil)))

	table := &models.Table{
		Symbol:   "BTCUSDT",
		Interval: "1d",
		Window:   mustWindow(t, "2021-01-01", "2021-01-05"),
		Candles: []models.Candle{
			{Date: testStart},
			{Date: testStart.AddDate(0, 0, 2)},
			{Date: testStart.AddDate(0, 0, 4)},
		},
	}

	summary := detector.Detect(table)
	assert.True(t, summary.HasGaps())
	assert.Len(t, summary.Gaps, 2)
	assert.Equal(t, 2, summary.Missing)
	assert.Contains(t, buf.String(), "missing candles")

	t.Run("month interval skipped", func(t *testing.T) {
		monthly := *table
		monthly.Interval = "1M"
		assert.False(t, detector.Detect(&monthly).HasGaps())
	})

	t.Run("empty table", func(t *testing.T) {
		assert.False(t, detector.Detect(&models.Table{Interval: "1d"}).HasGaps())
		assert.False(t, detector.Detect(nil).HasGaps())
	})
}
