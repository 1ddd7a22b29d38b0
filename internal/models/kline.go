// Package models provides the data structures that flow from the kline endpoint to the
// output artifact: the raw 12-field kline tuple, the normalized candle, the per-symbol
// table and the requested date window.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

// minKlineFields is the number of leading tuple fields the normalizer reads.
const minKlineFields = 6

// RawKline is one kline tuple exactly as the exchange returns it. Price and
// volume fields stay as text so no precision is lost before normalization.
type RawKline struct {
	OpenTime            int64 // ms since epoch
	Open                string
	High                string
	Low                 string
	Close               string
	Volume              string
	CloseTime           int64 // ms since epoch
	QuoteAssetVolume    string
	TradeCount          int64
	TakerBuyBaseVolume  string
	TakerBuyQuoteVolume string
	Ignore              string
}

// ParseRawKline decodes one array element of a klines response. Open time and the
// five OHLCV fields are required; the trailing fields are read when present.
func ParseRawKline(row gjson.Result) (RawKline, error) {
	if !row.IsArray() {
		return RawKline{}, &apperrors.ParseError{Field: "kline", Value: truncate(row.Raw), Index: -1}
	}

	fields := row.Array()
	if len(fields) < minKlineFields {
		return RawKline{}, &apperrors.ParseError{
			Field: "kline",
			Value: truncate(row.Raw),
			Index: -1,
			Err:   fmt.Errorf("expected at least %d fields, got %d", minKlineFields, len(fields)),
		}
	}

	openTime, err := intField(fields[0])
	if err != nil {
		return RawKline{}, &apperrors.ParseError{Field: "open_time", Value: fields[0].Raw, Index: -1, Err: err}
	}

	k := RawKline{
		OpenTime: openTime,
		Open:     textField(fields[1]),
		High:     textField(fields[2]),
		Low:      textField(fields[3]),
		Close:    textField(fields[4]),
		Volume:   textField(fields[5]),
	}

	optional := func(i int) (gjson.Result, bool) {
		if i < len(fields) {
			return fields[i], true
		}
		return gjson.Result{}, false
	}
	if f, ok := optional(6); ok {
		k.CloseTime, _ = intField(f)
	}
	if f, ok := optional(7); ok {
		k.QuoteAssetVolume = textField(f)
	}
	if f, ok := optional(8); ok {
		k.TradeCount, _ = intField(f)
	}
	if f, ok := optional(9); ok {
		k.TakerBuyBaseVolume = textField(f)
	}
	if f, ok := optional(10); ok {
		k.TakerBuyQuoteVolume = textField(f)
	}
	if f, ok := optional(11); ok {
		k.Ignore = textField(f)
	}

	return k, nil
}

// ParseKlinesPage decodes a full klines response body.
func ParseKlinesPage(body []byte) ([]RawKline, error) {
	if !gjson.ValidBytes(body) {
		return nil, &apperrors.ParseError{Field: "klines", Value: truncate(string(body)), Index: -1}
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, &apperrors.ParseError{Field: "klines", Value: truncate(parsed.Raw), Index: -1}
	}

	rows := parsed.Array()
	klines := make([]RawKline, 0, len(rows))
	for i, row := range rows {
		k, err := ParseRawKline(row)
		if err != nil {
			if pe, ok := err.(*apperrors.ParseError); ok {
				pe.Index = i
			}
			return nil, err
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// MarshalJSON renders the kline in the exchange's positional array form.
func (k RawKline) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{
		k.OpenTime,
		k.Open,
		k.High,
		k.Low,
		k.Close,
		k.Volume,
		k.CloseTime,
		k.QuoteAssetVolume,
		k.TradeCount,
		k.TakerBuyBaseVolume,
		k.TakerBuyQuoteVolume,
		k.Ignore,
	})
}

// UnmarshalJSON accepts the positional array form.
func (k *RawKline) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return &apperrors.ParseError{Field: "kline", Value: truncate(string(data)), Index: -1}
	}
	parsed, err := ParseRawKline(gjson.ParseBytes(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// textField keeps numbers in their wire form so decimal parsing sees every digit.
func textField(f gjson.Result) string {
	switch f.Type {
	case gjson.String:
		return f.Str
	case gjson.Number:
		return f.Raw
	default:
		return ""
	}
}

func intField(f gjson.Result) (int64, error) {
	switch f.Type {
	case gjson.Number:
		return strconv.ParseInt(f.Raw, 10, 64)
	case gjson.String:
		return strconv.ParseInt(f.Str, 10, 64)
	default:
		return 0, fmt.Errorf("expected an integer, got %s", f.Type)
	}
}

func truncate(s string) string {
	const limit = 120
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
