// Package validator checks normalized candle tables before they are written.
//
// Two kinds of findings are produced. Sequence violations (a repeated Date or a
// Date that moves backwards) are returned as errors because the output table
// would be ambiguous. Logical oddities inside a single candle, such as a high
// below the close, are reported as Issues and only logged: the exchange is
// the source of truth for the values it returns.
package validator

import (
	"fmt"
	"time"
)

// IssueType names the rule an Issue violated
type IssueType string

const (
	IssueHighBelowBody  IssueType = "high_below_body"
	IssueLowAboveBody   IssueType = "low_above_body"
	IssueNonPositive    IssueType = "non_positive_price"
	IssueNegativeVolume IssueType = "negative_volume"
	IssuePriceSpike     IssueType = "price_spike"
)

// Issue is a non-fatal finding about one candle
type Issue struct {
	Type    IssueType `json:"type"`
	Index   int       `json:"index"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s at %s: %s", i.Type, i.Date.UTC().Format(time.RFC3339), i.Message)
}

// Config controls the optional checks
type Config struct {
	// PriceSpikeThreshold is the close-to-close ratio that counts as a spike.
	// Zero disables spike detection.
	PriceSpikeThreshold float64
	// MaxLoggedIssues caps how many issues Validate logs individually
	MaxLoggedIssues int
}

// DefaultConfig returns the checks used by the extractor
func DefaultConfig() Config {
	return Config{
		PriceSpikeThreshold: 5.0,
		MaxLoggedIssues:     20,
	}
}

// Report summarizes a validation pass
type Report struct {
	Checked int
	Issues  []Issue
}

// Clean reports whether no issues were found
func (r *Report) Clean() bool {
	return len(r.Issues) == 0
}

// CountByType groups issues by rule
func (r *Report) CountByType() map[IssueType]int {
	counts := make(map[IssueType]int)
	for _, issue := range r.Issues {
		counts[issue.Type]++
	}
	return counts
}
