package models

import (
	"sort"
	"strings"
	"time"
)

// DefaultInterval is the one-day kline code
const DefaultInterval = "1d"

// Interval describes one kline code accepted by the futures endpoint. Duration is
// zero for calendar-month candles, whose length varies.
type Interval struct {
	Code     string
	Duration time.Duration
}

var supportedIntervals = map[string]Interval{
	"1m":  {Code: "1m", Duration: time.Minute},
	"3m":  {Code: "3m", Duration: 3 * time.Minute},
	"5m":  {Code: "5m", Duration: 5 * time.Minute},
	"15m": {Code: "15m", Duration: 15 * time.Minute},
	"30m": {Code: "30m", Duration: 30 * time.Minute},
	"1h":  {Code: "1h", Duration: time.Hour},
	"2h":  {Code: "2h", Duration: 2 * time.Hour},
	"4h":  {Code: "4h", Duration: 4 * time.Hour},
	"6h":  {Code: "6h", Duration: 6 * time.Hour},
	"8h":  {Code: "8h", Duration: 8 * time.Hour},
	"12h": {Code: "12h", Duration: 12 * time.Hour},
	"1d":  {Code: "1d", Duration: 24 * time.Hour},
	"3d":  {Code: "3d", Duration: 72 * time.Hour},
	"1w":  {Code: "1w", Duration: 7 * 24 * time.Hour},
	"1M":  {Code: "1M"},
}

// Long-form spellings. Codes themselves are case sensitive: 1m is a minute, 1M a month.
var intervalAliases = map[string]string{
	"1min":  "1m",
	"5min":  "5m",
	"15min": "15m",
	"1hour": "1h",
	"4hour": "4h",
	"1day":  "1d",
	"daily": "1d",
	"1week": "1w",
}

// LookupInterval resolves a code or alias. Unknown codes return false; the
// exchange remains the authority on what it accepts.
func LookupInterval(code string) (Interval, bool) {
	code = strings.TrimSpace(code)
	if iv, ok := supportedIntervals[code]; ok {
		return iv, true
	}
	key := strings.ToLower(strings.ReplaceAll(code, " ", ""))
	if alias, ok := intervalAliases[key]; ok {
		return supportedIntervals[alias], true
	}
	return Interval{}, false
}

// NormalizeInterval returns the exchange code for code, or code unchanged when it is not recognized.
func NormalizeInterval(code string) string {
	if iv, ok := LookupInterval(code); ok {
		return iv.Code
	}
	return strings.TrimSpace(code)
}

// SupportedIntervals returns every known code, sorted.
func SupportedIntervals() []string {
	codes := make([]string, 0, len(supportedIntervals))
	for code := range supportedIntervals {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
