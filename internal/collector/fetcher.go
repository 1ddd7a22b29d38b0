// Package collector walks a kline window page by page, normalizes the records
// into a candle table, and runs batches of per-symbol extractions.
//
// The fetch loop never retries. A short or empty page ends the walk, every
// full page moves the cursor strictly forward, and a failed page aborts the
// whole range. Retrying is left to the batch caller.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/exchange"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// DefaultPageDelay is the pause between successive page requests
const DefaultPageDelay = 200 * time.Millisecond

// FetcherConfig bounds the page walk
type FetcherConfig struct {
	// PageLimit is the records requested per page. Zero or values above the exchange
	// maximum are clamped to the maximum.
	PageLimit int
	// PageDelay is slept between requests, never after the last one
	PageDelay time.Duration
}

// DefaultFetcherConfig returns the exchange maximum page size and the standard delay
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{PageLimit: config.MaxPageLimit, PageDelay: DefaultPageDelay}
}

// FetcherConfigFrom builds a FetcherConfig from the exchange section
func FetcherConfigFrom(cfg config.ExchangeConfig) FetcherConfig {
	return FetcherConfig{PageLimit: cfg.PageLimit, PageDelay: cfg.PageDelay}
}

// RangeFetcher requests consecutive pages until a window is exhausted.
type RangeFetcher struct {
	transport exchange.Transport
	config    FetcherConfig
	metrics   *Metrics
	logger    *slog.Logger

	// sleep waits between pages; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRangeFetcher creates a fetcher over transport.
func NewRangeFetcher(transport exchange.Transport, cfg FetcherConfig, logger *slog.Logger) *RangeFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageLimit <= 0 || cfg.PageLimit > config.MaxPageLimit {
		cfg.PageLimit = config.MaxPageLimit
	}
	if cfg.PageDelay < 0 {
		cfg.PageDelay = 0
	}

	return &RangeFetcher{
		transport: transport,
		config:    cfg,
		metrics:   NewMetrics(),
		logger:    logger.With("component", "range_fetcher"),
		sleep:     sleepContext,
	}
}

// Metrics returns the counters fed by this fetcher
func (f *RangeFetcher) Metrics() *Metrics {
	return f.metrics
}

// FetchRange returns every raw kline with an open time in [startMs, endMs], in
// the order the exchange returned them. An empty result with a nil error means
// the exchange has no data in the window. Paging stops on an empty page, a
// short page, or a full page whose next cursor would pass endMs.
func (f *RangeFetcher) FetchRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]models.RawKline, error) {
	klines, _, err := f.fetchRange(ctx, symbol, interval, startMs, endMs)
	return klines, err
}

// fetchRange is FetchRange that also reports how many requests were issued.
func (f *RangeFetcher) fetchRange(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]models.RawKline, int, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, 0, models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if startMs < 0 || endMs < startMs {
		return nil, 0, models.ValidationError{
			Field:   "window",
			Message: fmt.Sprintf("invalid window [%d, %d]", startMs, endMs),
		}
	}

	limit := f.config.PageLimit
	cursor := startMs
	pages := 0
	var klines []models.RawKline

	for {
		if pages > 0 {
			if err := f.sleep(ctx, f.config.PageDelay); err != nil {
				return nil, pages, err
			}
		}

		req := exchange.PageRequest{
			Symbol:    symbol,
			Interval:  interval,
			StartTime: cursor,
			EndTime:   endMs,
			Limit:     limit,
		}

		start := time.Now()
		page, err := f.transport.FetchPage(ctx, req)
		pages++
		f.metrics.recordPage(len(page), time.Since(start), err)
		if err != nil {
			return nil, pages, fmt.Errorf("page %d at cursor %d: %w", pages, cursor, err)
		}

		f.logger.Debug("fetched page",
			"symbol", symbol,
			"interval", interval,
			"page", pages,
			"cursor", cursor,
			"records", len(page))

		if len(page) == 0 {
			break
		}
		klines = append(klines, page...)

		if len(page) < limit {
			break
		}

		next := page[len(page)-1].OpenTime + 1
		if next <= cursor {
			return nil, pages, fmt.Errorf("%w: page %d ended at open time %d, cursor %d",
				apperrors.ErrCursorStalled, pages, next-1, cursor)
		}
		if next > endMs {
			break
		}
		cursor = next
	}

	return klines, pages, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
