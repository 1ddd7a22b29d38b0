package validator

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

var day0 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(day int, open, high, low, close, volume float64) models.Candle {
	return models.Candle{
		Date:   day0.AddDate(0, 0, day),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  close,
		Volume: volume,
	}
}

func TestCheckSequence(t *testing.T) {
	t.Run("ascending", func(t *testing.T) {
		candles := []models.Candle{candle(0, 1, 1, 1, 1, 1), candle(1, 1, 1, 1, 1, 1), candle(2, 1, 1, 1, 1, 1)}
		assert.NoError(t, CheckSequence("BTCUSDT", candles))
	})

	t.Run("empty and single", func(t *testing.T) {
		assert.NoError(t, CheckSequence("BTCUSDT", nil))
		assert.NoError(t, CheckSequence("BTCUSDT", []models.Candle{candle(0, 1, 1, 1, 1, 1)}))
	})

	t.Run("duplicate date", func(t *testing.T) {
		candles := []models.Candle{candle(0, 1, 1, 1, 1, 1), candle(1, 1, 1, 1, 1, 1), candle(1, 2, 2, 2, 2, 2)}
		err := CheckSequence("BTCUSDT", candles)

		var dup *apperrors.DuplicateDateError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "BTCUSDT", dup.Symbol)
		assert.Equal(t, day0.AddDate(0, 0, 1), dup.Date)
	})

	t.Run("out of order", func(t *testing.T) {
		candles := []models.Candle{candle(1, 1, 1, 1, 1, 1), candle(0, 1, 1, 1, 1, 1)}
		err := CheckSequence("BTCUSDT", candles)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of order")
	})
}

func TestCheckCandle(t *testing.T) {
	tests := []struct {
		name   string
		candle models.Candle
		want   []IssueType
	}{
		{name: "consistent", candle: candle(0, 100, 110, 90, 105, 10)},
		{name: "high below close", candle: candle(0, 100, 104, 90, 105, 10), want: []IssueType{IssueHighBelowBody}},
		{name: "low above open", candle: candle(0, 100, 110, 101, 105, 10), want: []IssueType{IssueLowAboveBody}},
		{name: "zero prices", candle: candle(0, 0, 0, 0, 0, 0), want: []IssueType{IssueNonPositive, IssueNonPositive, IssueNonPositive, IssueNonPositive}},
		{name: "negative volume", candle: candle(0, 100, 110, 90, 105, -1), want: []IssueType{IssueNegativeVolume}},
		{name: "zero volume is fine", candle: candle(0, 100, 110, 90, 105, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := CheckCandle(3, tt.candle)
			var got []IssueType
			for _, issue := range issues {
				assert.Equal(t, 3, issue.Index)
				got = append(got, issue.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPriceSpikes(t *testing.T) {
	candles := []models.Candle{
		candle(0, 10, 10, 10, 10, 1),
		candle(1, 10, 70, 10, 60, 1),
		candle(2, 60, 60, 9, 10, 1),
		candle(3, 10, 12, 10, 11, 1),
	}

	issues := DetectPriceSpikes(candles, 5)
	require.Len(t, issues, 2)
	assert.Equal(t, 1, issues[0].Index)
	assert.Equal(t, 2, issues[1].Index)
	assert.Equal(t, IssuePriceSpike, issues[0].Type)
}

func TestValidate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	v := NewOHLCVValidatorWithConfig(Config{PriceSpikeThreshold: 5, MaxLoggedIssues: 1}, logger)

	t.Run("duplicates fail", func(t *testing.T) {
		table := &models.Table{Symbol: "ETHUSDT", Candles: []models.Candle{candle(0, 1, 1, 1, 1, 1), candle(0, 1, 1, 1, 1, 1)}}
		_, err := v.Validate(table)
		assert.Equal(t, apperrors.ErrorTypeDuplicateDate, apperrors.Classify(err))
	})

	t.Run("issues are reported and logged", func(t *testing.T) {
		buf.Reset()
		table := &models.Table{Symbol: "ETHUSDT", Candles: []models.Candle{
			candle(0, 100, 104, 90, 105, 10),
			candle(1, 100, 110, 101, 105, -1),
		}}
		report, err := v.Validate(table)
		require.NoError(t, err)
		assert.Equal(t, 2, report.Checked)
		assert.False(t, report.Clean())
		assert.Equal(t, map[IssueType]int{IssueHighBelowBody: 1, IssueLowAboveBody: 1, IssueNegativeVolume: 1}, report.CountByType())
		assert.Contains(t, buf.String(), "candle issue")
		assert.Contains(t, buf.String(), "further candle issues suppressed")
	})

	t.Run("nil table", func(t *testing.T) {
		report, err := v.Validate(nil)
		require.NoError(t, err)
		assert.True(t, report.Clean())
	})
}
