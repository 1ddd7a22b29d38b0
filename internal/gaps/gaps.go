// Package gaps finds missing candles in a normalized table.
//
// Gaps are informational. The exchange omits candles for periods with no
// trading, and a symbol listed after the window start has no early history, so
// a gap never fails an extraction; it is logged and reported so the caller can
// decide whether to refetch.
package gaps

import (
	"fmt"
	"time"
)

// Position says where in the window a gap sits
type Position string

const (
	PositionLeading  Position = "leading"  // Before the first candle
	PositionInterior Position = "interior" // Between two candles
	PositionTrailing Position = "trailing" // After the last candle
)

// Gap is a run of missing candle open times. Start is the first missing open
// time and End the open time of the next candle present (or the first open time
// past the window).
type Gap struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Missing  int       `json:"missing"`
	Position Position  `json:"position"`
}

// Duration returns the span the gap covers
func (g Gap) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

func (g Gap) String() string {
	return fmt.Sprintf("%s %s gap of %d candle(s) from %s to %s",
		g.Symbol, g.Position, g.Missing, g.Start.UTC().Format(time.RFC3339), g.End.UTC().Format(time.RFC3339))
}

// Summary aggregates a detection pass
type Summary struct {
	Gaps    []Gap
	Missing int
}

// HasGaps reports whether anything is missing
func (s *Summary) HasGaps() bool {
	return len(s.Gaps) > 0
}
