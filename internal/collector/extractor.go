package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/gaps"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/storage"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/validator"
)

// DefaultOutputDir is used when neither the request nor the config names one
const DefaultOutputDir = "./binance_futures_csvs"

// ExtractRequest is one symbol's extraction. EndDate may be empty to mean
// yesterday in UTC; Interval and OutputDir fall back to the extractor defaults.
type ExtractRequest struct {
	Symbol    string
	StartDate string
	EndDate   string
	Interval  string
	OutputDir string
}

// ExtractResult is the written table and where it went
type ExtractResult struct {
	Table  *models.Table
	Path   string
	Pages  int
	Gaps   *gaps.Summary
	Report *validator.Report
}

// ExtractorConfig holds the process-wide defaults
type ExtractorConfig struct {
	DefaultInterval string
	OutputDir       string
}

// Extractor turns a date range into a normalized candle artifact.
type Extractor struct {
	fetcher   *RangeFetcher
	sink      storage.Sink
	validator *validator.OHLCVValidator
	gaps      *gaps.Detector
	config    ExtractorConfig
	logger    *slog.Logger

	// now anchors the default end date; replaced in tests
	now func() time.Time
}

// NewExtractor wires a fetcher to a sink.
func NewExtractor(fetcher *RangeFetcher, sink storage.Sink, cfg ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultInterval == "" {
		cfg.DefaultInterval = models.DefaultInterval
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	return &Extractor{
		fetcher:   fetcher,
		sink:      sink,
		validator: validator.NewOHLCVValidator(logger),
		gaps:      gaps.NewDetector(logger),
		config:    cfg,
		logger:    logger.With("component", "extractor"),
		now:       time.Now,
	}
}

// Metrics returns the counters shared with the underlying fetcher
func (e *Extractor) Metrics() *Metrics {
	return e.fetcher.Metrics()
}

// Extract fetches, normalizes, checks and writes one symbol's window.
//
// Date problems are reported as *errors.InvalidDateError before any request is
// made. A window without records yields *errors.NoDataError and no artifact.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	symbol := strings.TrimSpace(req.Symbol)
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}

	interval := models.NormalizeInterval(req.Interval)
	if interval == "" {
		interval = e.config.DefaultInterval
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = e.config.OutputDir
	}

	window, err := models.NewWindow(req.StartDate, req.EndDate, e.now())
	if err != nil {
		return nil, err
	}

	e.logger.Info("extracting",
		"symbol", symbol,
		"interval", interval,
		"window", window.String())

	raw, pages, err := e.fetcher.fetchRange(ctx, symbol, interval, window.StartMillis(), window.EndMillis())
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, &apperrors.NoDataError{Symbol: symbol, Start: window.StartDate(), End: window.EndDate()}
	}

	candles, err := normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", symbol, err)
	}

	clipped := clip(candles, window)
	if dropped := len(candles) - len(clipped); dropped > 0 {
		e.logger.Debug("dropped records outside window",
			"symbol", symbol,
			"dropped", dropped)
	}
	if len(clipped) == 0 {
		return nil, &apperrors.NoDataError{Symbol: symbol, Start: window.StartDate(), End: window.EndDate()}
	}

	sort.SliceStable(clipped, func(i, j int) bool {
		return clipped[i].Date.Before(clipped[j].Date)
	})

	table := &models.Table{
		Symbol:   symbol,
		Interval: interval,
		Window:   window,
		Candles:  clipped,
	}

	report, err := e.validator.Validate(table)
	if err != nil {
		return nil, err
	}
	gapSummary := e.gaps.Detect(table)

	path := storage.ArtifactPath(outputDir, symbol, e.sink.Extension())
	if err := e.sink.Write(ctx, path, table); err != nil {
		return nil, fmt.Errorf("write %s: %w", symbol, err)
	}
	e.fetcher.Metrics().recordRowsWritten(table.Len())

	e.logger.Info("extraction written",
		"symbol", symbol,
		"rows", table.Len(),
		"pages", pages,
		"path", path)

	return &ExtractResult{
		Table:  table,
		Path:   path,
		Pages:  pages,
		Gaps:   gapSummary,
		Report: report,
	}, nil
}

// validateSymbol rejects symbols that cannot safely name an artifact.
func validateSymbol(symbol string) error {
	if symbol == "" {
		return models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if strings.ContainsAny(symbol, `/\`) || strings.Contains(symbol, "..") {
		return models.ValidationError{Field: "symbol", Message: fmt.Sprintf("symbol %q contains a path separator", symbol)}
	}
	return nil
}

// normalize converts every raw record, failing on the first bad one.
func normalize(raw []models.RawKline) ([]models.Candle, error) {
	candles := make([]models.Candle, 0, len(raw))
	for i, k := range raw {
		c, err := models.NormalizeKline(k)
		if err != nil {
			var parseErr *apperrors.ParseError
			if errors.As(err, &parseErr) && parseErr.Index < 0 {
				parseErr.Index = i
			}
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// clip keeps candles whose Date lies inside the window, bounds included.
func clip(candles []models.Candle, window models.Window) []models.Candle {
	kept := candles[:0]
	for _, c := range candles {
		if window.Contains(c.Date) {
			kept = append(kept, c)
		}
	}
	return kept
}
