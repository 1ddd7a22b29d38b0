package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

// Candle is the normalized form of one kline: a UTC open time and five float columns.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ValidationError represents a request validation error with specific field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message explains the failure
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// MillisToTime converts an exchange timestamp to a UTC time with millisecond precision.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var errNotFinite = errors.New("value is outside the float64 range")

// NormalizeKline converts a raw kline into a Candle. Every numeric field must be a
// finite decimal; anything else is a ParseError rather than a silently dropped row.
func NormalizeKline(k RawKline) (Candle, error) {
	c := Candle{Date: MillisToTime(k.OpenTime)}

	columns := []struct {
		name  string
		value string
		dst   *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}

	for _, col := range columns {
		d, err := decimal.NewFromString(col.value)
		if err != nil {
			return Candle{}, &apperrors.ParseError{Field: col.name, Value: col.value, Index: -1, Err: err}
		}
		f, _ := d.Float64()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return Candle{}, &apperrors.ParseError{Field: col.name, Value: col.value, Index: -1, Err: errNotFinite}
		}
		*col.dst = f
	}

	return c, nil
}

// Table is the normalized, ascending candle series for one symbol and window.
type Table struct {
	Symbol   string
	Interval string
	Window   Window
	Candles  []Candle
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Candles)
}

// First returns the earliest candle date, or the zero time for an empty table
func (t *Table) First() time.Time {
	if t.Len() == 0 {
		return time.Time{}
	}
	return t.Candles[0].Date
}

// Last returns the latest candle date, or the zero time for an empty table
func (t *Table) Last() time.Time {
	if t.Len() == 0 {
		return time.Time{}
	}
	return t.Candles[len(t.Candles)-1].Date
}
