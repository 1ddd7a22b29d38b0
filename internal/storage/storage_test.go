package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

var testStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestTable generates count daily candles starting at testStart
func createTestTable(symbol string, count int) *models.Table {
	candles := make([]models.Candle, count)
	for i := 0; i < count; i++ {
		open := 29000.0 + float64(i)*100
		candles[i] = models.Candle{
			Date:   testStart.AddDate(0, 0, i),
			Open:   open,
			High:   open + 500.5,
			Low:    open - 250.25,
			Close:  open + 50.125,
			Volume: 1234.56789 + float64(i),
		}
	}
	return &models.Table{Symbol: symbol, Interval: "1d", Candles: candles}
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{100, "100.00000000"},
		{123.45, "123.45000000"},
		{0, "0.00000000"},
		{0.000000015, "0.00000002"},
		{29000.123456789, "29000.12345679"},
		{-1.5, "-1.50000000"},
		{math.NaN(), "NaN"},
		{math.Inf(1), "+Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatDecimal(tt.in))
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "2021-01-01T00:00:00.000Z", FormatDate(testStart))
	tokyo := time.FixedZone("JST", 9*60*60)
	assert.Equal(t, "2021-01-01T00:00:00.250Z", FormatDate(testStart.Add(250*time.Millisecond).In(tokyo)))
}

func TestEncodeCSV(t *testing.T) {
	var sb strings.Builder
	table := &models.Table{Symbol: "BTCUSDT", Candles: []models.Candle{
		{Date: testStart, Open: 100, High: 110, Low: 90, Close: 105, Volume: 123.45},
		{Date: testStart.AddDate(0, 0, 1), Open: 105, High: 115, Low: 95, Close: 110, Volume: 234.56},
	}}

	require.NoError(t, EncodeCSV(&sb, table))
	want := "Date,Open,High,Low,Close,Volume\n" +
		"2021-01-01T00:00:00.000Z,100.00000000,110.00000000,90.00000000,105.00000000,123.45000000\n" +
		"2021-01-02T00:00:00.000Z,105.00000000,115.00000000,95.00000000,110.00000000,234.56000000\n"
	assert.Equal(t, want, sb.String())
}

func TestArtifactPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "BTCUSDT.csv"), ArtifactPath("out", "BTCUSDT", "csv"))
	assert.Equal(t, filepath.Join("out", "BTCUSDT"), ArtifactPath("out", "BTCUSDT", ""))
}

func TestNewSink(t *testing.T) {
	logger := createTestLogger()

	tests := []struct {
		format string
		want   Sink
		ext    string
	}{
		{"", &CSVSink{}, "csv"},
		{"CSV", &CSVSink{}, "csv"},
		{"parquet", &ParquetSink{}, "parquet"},
		{"memory", &MemorySink{}, "csv"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			sink, err := NewSink(tt.format, logger)
			require.NoError(t, err)
			assert.IsType(t, tt.want, sink)
			assert.Equal(t, tt.ext, sink.Extension())
		})
	}

	_, err := NewSink("xlsx", logger)
	assert.Error(t, err)
}

func TestCSVSinkWrite(t *testing.T) {
	ctx := context.Background()
	sink := NewCSVSink(createTestLogger())

	t.Run("creates nested directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		path := ArtifactPath(dir, "BTCUSDT", sink.Extension())

		require.NoError(t, sink.Write(ctx, path, createTestTable("BTCUSDT", 3)))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, "Date,Open,High,Low,Close,Volume", lines[0])
		assert.True(t, strings.HasPrefix(lines[1], "2021-01-01T00:00:00.000Z,29000.00000000,"))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	})

	t.Run("overwrites without leftovers and is deterministic", func(t *testing.T) {
		dir := t.TempDir()
		path := ArtifactPath(dir, "ETHUSDT", sink.Extension())

		require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))
		require.NoError(t, sink.Write(ctx, path, createTestTable("ETHUSDT", 2)))
		first, err := os.ReadFile(path)
		require.NoError(t, err)

		require.NoError(t, sink.Write(ctx, path, createTestTable("ETHUSDT", 2)))
		second, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.NotContains(t, string(first), "stale")

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})

	t.Run("unwritable target", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, nil, 0o644))

		err := sink.Write(ctx, filepath.Join(blocker, "BTCUSDT.csv"), createTestTable("BTCUSDT", 1))
		var storageErr *StorageError
		require.True(t, errors.As(err, &storageErr))
		assert.Equal(t, "mkdir", storageErr.Operation)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		path := ArtifactPath(t.TempDir(), "BTCUSDT", sink.Extension())
		assert.ErrorIs(t, sink.Write(canceled, path, createTestTable("BTCUSDT", 1)), context.Canceled)
		assert.NoFileExists(t, path)
	})
}

func TestStorageErrorMessage(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("rename", "out/BTCUSDT.csv", cause)
	assert.Equal(t, "storage operation rename on out/BTCUSDT.csv failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
}
