package storage

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// TimestampLayout is the fixed-width ISO 8601 UTC form written for Date.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// DecimalPlaces is the fractional precision of every numeric column
const DecimalPlaces = 8

// Header is the column row of every tabular artifact
var Header = []string{"Date", "Open", "High", "Low", "Close", "Volume"}

// FormatDecimal renders f with exactly DecimalPlaces fractional digits.
func FormatDecimal(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return decimal.NewFromFloat(f).StringFixed(DecimalPlaces)
}

// FormatDate renders t in UTC using TimestampLayout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record returns the text row for c in Header order.
func Record(c models.Candle) []string {
	return []string{
		FormatDate(c.Date),
		FormatDecimal(c.Open),
		FormatDecimal(c.High),
		FormatDecimal(c.Low),
		FormatDecimal(c.Close),
		FormatDecimal(c.Volume),
	}
}

// EncodeCSV writes the header and one row per candle.
func EncodeCSV(w io.Writer, table *models.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if table != nil {
		for _, c := range table.Candles {
			if err := cw.Write(Record(c)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
