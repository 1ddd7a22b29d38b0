package models

import (
	"fmt"
	"time"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

// DateLayout is the calendar date format accepted for window bounds.
const DateLayout = "2006-01-02"

// Window is an inclusive UTC range from the first millisecond of the start date
// to 23:59:59 of the end date.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow parses start and end calendar dates. An empty end defaults to the day
// before now, in UTC. Parse failures and inverted ranges return InvalidDateError.
func NewWindow(startDate, endDate string, now time.Time) (Window, error) {
	start, err := parseDate(startDate)
	if err != nil {
		return Window{}, err
	}

	var end time.Time
	if endDate == "" {
		y, m, d := now.UTC().AddDate(0, 0, -1).Date()
		end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		end, err = parseDate(endDate)
		if err != nil {
			return Window{}, err
		}
	}

	if start.After(end) {
		return Window{}, &apperrors.InvalidDateError{
			Value:  startDate,
			Reason: fmt.Sprintf("start date is after end date %s", end.Format(DateLayout)),
		}
	}

	return Window{
		Start: start,
		End:   end.Add(23*time.Hour + 59*time.Minute + 59*time.Second),
	}, nil
}

func parseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, &apperrors.InvalidDateError{Value: value, Reason: "expected YYYY-MM-DD", Err: err}
	}
	return t, nil
}

// StartMillis returns the window start in ms since epoch
func (w Window) StartMillis() int64 { return w.Start.UnixMilli() }

// EndMillis returns the window end in ms since epoch
func (w Window) EndMillis() int64 { return w.End.UnixMilli() }

// Contains reports whether t falls inside the window, bounds included
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// StartDate returns the start bound as a calendar date
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns the end bound as a calendar date
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", w.StartDate(), w.EndDate())
}
