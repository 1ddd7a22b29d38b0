package gaps

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// Detector scans sorted candle tables for missing open times.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector that logs each gap it finds as a warning.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger.With("component", "gap_detector")}
}

// Detect scans table, which must already be sorted ascending, against its
// interval and window. Calendar-month and unknown intervals have no fixed step
// and are skipped.
func (d *Detector) Detect(table *models.Table) *Summary {
	summary := &Summary{}
	if table == nil || len(table.Candles) == 0 {
		return summary
	}

	iv, ok := models.LookupInterval(table.Interval)
	if !ok || iv.Duration <= 0 {
		d.logger.Debug("gap detection skipped for interval without fixed step",
			"symbol", table.Symbol,
			"interval", table.Interval)
		return summary
	}

	summary.Gaps = DetectInSequence(table.Symbol, iv.Code, table.Candles, iv.Duration, table.Window)
	for _, gap := range summary.Gaps {
		summary.Missing += gap.Missing
		d.logger.Warn("missing candles",
			"symbol", gap.Symbol,
			"interval", gap.Interval,
			"position", gap.Position,
			"start", gap.Start,
			"end", gap.End,
			"missing", gap.Missing)
	}

	return summary
}

// DetectInSequence returns the gaps in candles for a fixed step. Leading and
// trailing gaps are measured against window when it is set.
func DetectInSequence(symbol, interval string, candles []models.Candle, step time.Duration, window models.Window) []Gap {
	if len(candles) == 0 || step <= 0 {
		return nil
	}

	var gaps []Gap

	first := candles[0].Date
	if !window.Start.IsZero() && first.After(window.Start) {
		if missing := int(first.Sub(window.Start) / step); missing > 0 {
			gaps = append(gaps, newGap(symbol, interval, first.Add(-time.Duration(missing)*step), first, missing, PositionLeading))
		}
	}

	for i := 0; i < len(candles)-1; i++ {
		current := candles[i].Date
		next := candles[i+1].Date

		if missing := int(next.Sub(current)/step) - 1; missing > 0 {
			gaps = append(gaps, newGap(symbol, interval, current.Add(step), next, missing, PositionInterior))
		}
	}

	last := candles[len(candles)-1].Date
	if !window.End.IsZero() && window.End.After(last) {
		if missing := int(window.End.Sub(last) / step); missing > 0 {
			gaps = append(gaps, newGap(symbol, interval, last.Add(step), last.Add(time.Duration(missing+1)*step), missing, PositionTrailing))
		}
	}

	return gaps
}

func newGap(symbol, interval string, start, end time.Time, missing int, pos Position) Gap {
	return Gap{
		ID:       generateGapID(symbol, interval, start, end),
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      end,
		Missing:  missing,
		Position: pos,
	}
}

// generateGapID creates a unique identifier for a gap.
func generateGapID(symbol, interval string, start, end time.Time) string {
	id := fmt.Sprintf("%s_%s_%d_%d_%s",
		symbol,
		interval,
		start.Unix(),
		end.Unix(),
		uuid.New().String()[:8],
	)
	id = strings.ReplaceAll(id, "/", "-")
	return strings.ReplaceAll(id, " ", "_")
}
