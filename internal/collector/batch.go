package collector

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/logger"
)

// DefaultSymbolDelay is the pause after each symbol before its worker takes the next
const DefaultSymbolDelay = 300 * time.Millisecond

// SymbolExtractor runs one extraction. *Extractor satisfies it.
type SymbolExtractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResult, error)
}

// MetricsProvider exposes run counters
type MetricsProvider interface {
	Metrics() *Metrics
}

// BatchConfig controls pacing, parallelism and caller-side retry.
type BatchConfig struct {
	SymbolDelay time.Duration
	Concurrency int
	Retry       apperrors.RetryPolicy
}

// BatchConfigFrom builds a BatchConfig from the batch section
func BatchConfigFrom(cfg config.BatchConfig) BatchConfig {
	return BatchConfig{
		SymbolDelay: cfg.SymbolDelay,
		Concurrency: cfg.Concurrency,
		Retry: apperrors.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
	}
}

// SymbolResult is the outcome of one symbol in a batch
type SymbolResult struct {
	Symbol   string
	Rows     int
	Path     string
	First    time.Time
	Last     time.Time
	Pages    int
	Attempts int
	Duration time.Duration
	Err      error
}

// OK reports whether the symbol was written
func (r SymbolResult) OK() bool {
	return r.Err == nil
}

// ErrorType classifies the failure, or returns "" on success
func (r SymbolResult) ErrorType() apperrors.ErrorType {
	return apperrors.Classify(r.Err)
}

// BatchSummary lists every symbol in request order
type BatchSummary struct {
	Results  []SymbolResult
	Duration time.Duration
	Metrics  RunMetrics
}

// Succeeded returns the written symbols
func (s *BatchSummary) Succeeded() []SymbolResult {
	var out []SymbolResult
	for _, r := range s.Results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the symbols that produced no artifact
func (s *BatchSummary) Failed() []SymbolResult {
	var out []SymbolResult
	for _, r := range s.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// TotalRows sums rows over successful symbols
func (s *BatchSummary) TotalRows() int {
	total := 0
	for _, r := range s.Results {
		total += r.Rows
	}
	return total
}

// BatchRunner extracts many symbols. One symbol's failure never stops the
// others; every outcome lands in the summary.
type BatchRunner struct {
	extractor SymbolExtractor
	config    BatchConfig
	metrics   *Metrics
	logger    *slog.Logger
	progress  func(SymbolResult)
}

// NewBatchRunner creates a runner. Concurrency below 1 runs sequentially.
func NewBatchRunner(extractor SymbolExtractor, cfg BatchConfig, log *slog.Logger) *BatchRunner {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}

	metrics := NewMetrics()
	if mp, ok := extractor.(MetricsProvider); ok {
		metrics = mp.Metrics()
	}

	return &BatchRunner{
		extractor: extractor,
		config:    cfg,
		metrics:   metrics,
		logger:    log.With("component", "batch_runner"),
	}
}

// OnResult registers fn to be called as each symbol finishes. With concurrency
// above 1 calls arrive in completion order and may overlap.
func (b *BatchRunner) OnResult(fn func(SymbolResult)) *BatchRunner {
	b.progress = fn
	return b
}

// Run extracts every request and returns the summary. A worker waits
// SymbolDelay after finishing a symbol before it starts another, and symbol
// starts are never closer together than SymbolDelay.
func (b *BatchRunner) Run(ctx context.Context, reqs []ExtractRequest) *BatchSummary {
	start := time.Now()
	results := make([]SymbolResult, len(reqs))

	limit := rate.Inf
	if b.config.SymbolDelay > 0 {
		limit = rate.Every(b.config.SymbolDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	var g errgroup.Group
	g.SetLimit(b.config.Concurrency)

	for i, req := range reqs {
		if err := limiter.Wait(ctx); err != nil {
			for j := i; j < len(reqs); j++ {
				results[j] = SymbolResult{Symbol: reqs[j].Symbol, Err: err}
				b.metrics.recordSymbol(err)
			}
			break
		}

		g.Go(func() error {
			results[i] = b.runOne(ctx, req)
			if b.progress != nil {
				b.progress(results[i])
			}
			if i < len(reqs)-1 {
				// The slot stays held, so the next symbol cannot start early
				_ = sleepContext(ctx, b.config.SymbolDelay)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := &BatchSummary{
		Results:  results,
		Duration: time.Since(start),
		Metrics:  b.metrics.Snapshot(),
	}

	b.logger.Info("batch finished",
		"symbols", len(reqs),
		"succeeded", len(summary.Succeeded()),
		"failed", len(summary.Failed()),
		"rows", summary.TotalRows(),
		"pages", summary.Metrics.PagesFetched,
		"duration", summary.Duration)

	return summary
}

func (b *BatchRunner) runOne(ctx context.Context, req ExtractRequest) SymbolResult {
	ctx = logger.WithSymbol(ctx, req.Symbol)
	if req.Interval != "" {
		ctx = logger.WithInterval(ctx, req.Interval)
	}

	result := SymbolResult{Symbol: req.Symbol}
	start := time.Now()

	err := logger.TimedOperationWithContext(ctx, b.logger, "extract_symbol", func() error {
		attempts, err := apperrors.Retry(ctx, b.config.Retry, b.logger, func() error {
			res, err := b.extractor.Extract(ctx, req)
			if err != nil {
				return err
			}
			result.Rows = res.Table.Len()
			result.Path = res.Path
			result.First = res.Table.First()
			result.Last = res.Table.Last()
			result.Pages = res.Pages
			return nil
		})
		result.Attempts = attempts
		return err
	})

	result.Duration = time.Since(start)
	result.Err = err
	b.metrics.recordSymbol(err)
	return result
}
