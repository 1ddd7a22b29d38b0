package validator

import (
	"fmt"
	"log/slog"
	"math"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// OHLCVValidator runs sequence and per-candle checks over a table.
type OHLCVValidator struct {
	config Config
	logger *slog.Logger
}

// NewOHLCVValidator creates a validator with the default configuration.
func NewOHLCVValidator(logger *slog.Logger) *OHLCVValidator {
	return NewOHLCVValidatorWithConfig(DefaultConfig(), logger)
}

// NewOHLCVValidatorWithConfig creates a validator with a custom configuration.
func NewOHLCVValidatorWithConfig(cfg Config, logger *slog.Logger) *OHLCVValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &OHLCVValidator{
		config: cfg,
		logger: logger.With("component", "ohlcv_validator"),
	}
}

// Validate checks the table's sequence and then every candle. A sequence
// violation is returned as an error; candle issues are collected in the report
// and logged as warnings.
func (v *OHLCVValidator) Validate(table *models.Table) (*Report, error) {
	if table == nil {
		return &Report{}, nil
	}

	if err := CheckSequence(table.Symbol, table.Candles); err != nil {
		return nil, err
	}

	report := &Report{Checked: len(table.Candles)}
	for i, c := range table.Candles {
		report.Issues = append(report.Issues, CheckCandle(i, c)...)
	}
	if v.config.PriceSpikeThreshold > 0 {
		report.Issues = append(report.Issues, DetectPriceSpikes(table.Candles, v.config.PriceSpikeThreshold)...)
	}

	for i, issue := range report.Issues {
		if v.config.MaxLoggedIssues > 0 && i >= v.config.MaxLoggedIssues {
			v.logger.Warn("further candle issues suppressed",
				"symbol", table.Symbol,
				"suppressed", len(report.Issues)-i)
			break
		}
		v.logger.Warn("candle issue",
			"symbol", table.Symbol,
			"type", issue.Type,
			"date", issue.Date,
			"message", issue.Message)
	}

	return report, nil
}

// CheckSequence verifies candles are strictly ascending by Date. A repeated
// Date yields *errors.DuplicateDateError.
func CheckSequence(symbol string, candles []models.Candle) error {
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Date, candles[i].Date
		if cur.Equal(prev) {
			return &apperrors.DuplicateDateError{Symbol: symbol, Date: cur}
		}
		if cur.Before(prev) {
			return fmt.Errorf("candle %d for %s out of order: %s precedes %s",
				i, symbol, cur.Format(models.DateLayout), prev.Format(models.DateLayout))
		}
	}
	return nil
}

// CheckCandle applies the OHLC consistency rules to one candle.
func CheckCandle(index int, c models.Candle) []Issue {
	var issues []Issue

	add := func(t IssueType, format string, args ...any) {
		issues = append(issues, Issue{Type: t, Index: index, Date: c.Date, Message: fmt.Sprintf(format, args...)})
	}

	if c.High < math.Max(c.Open, c.Close) {
		add(IssueHighBelowBody, "high %g is below max of open %g and close %g", c.High, c.Open, c.Close)
	}
	if c.Low > math.Min(c.Open, c.Close) {
		add(IssueLowAboveBody, "low %g is above min of open %g and close %g", c.Low, c.Open, c.Close)
	}
	for _, p := range []struct {
		name  string
		value float64
	}{{"open", c.Open}, {"high", c.High}, {"low", c.Low}, {"close", c.Close}} {
		if p.value <= 0 {
			add(IssueNonPositive, "%s price must be positive, got %g", p.name, p.value)
		}
	}
	if c.Volume < 0 {
		add(IssueNegativeVolume, "volume must not be negative, got %g", c.Volume)
	}

	return issues
}

// DetectPriceSpikes flags candles whose close moved by more than threshold
// times the previous close in either direction.
func DetectPriceSpikes(candles []models.Candle, threshold float64) []Issue {
	var issues []Issue
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			continue
		}
		ratio := cur / prev
		if ratio < 1 {
			ratio = 1 / ratio
		}
		if ratio > threshold {
			issues = append(issues, Issue{
				Type:    IssuePriceSpike,
				Index:   i,
				Date:    candles[i].Date,
				Message: fmt.Sprintf("close moved from %g to %g (%.2fx)", prev, cur, ratio),
			})
		}
	}
	return issues
}
