package collector

import (
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

// Metrics tracks fetch and extraction counters for one process run. It is safe
// for concurrent use.
type Metrics struct {
	// Atomic counters for thread-safe updates
	pagesFetched     int64
	recordsFetched   int64
	pageErrors       int64
	rateLimitHits    int64
	symbolsSucceeded int64
	symbolsFailed    int64
	rowsWritten      int64

	// Response time tracking
	totalResponseTime int64 // nanoseconds
	responseCount     int64

	// Start time for calculating rates
	startTime time.Time
	mutex     sync.RWMutex
}

// RunMetrics is a point-in-time copy of Metrics
type RunMetrics struct {
	PagesFetched     int64
	RecordsFetched   int64
	PageErrors       int64
	RateLimitHits    int64
	SymbolsSucceeded int64
	SymbolsFailed    int64
	RowsWritten      int64
	AvgResponseTime  time.Duration
	Elapsed          time.Duration
}

// NewMetrics creates a zeroed collector
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// recordPage records one page request and its outcome
func (m *Metrics) recordPage(records int, duration time.Duration, err error) {
	atomic.AddInt64(&m.pagesFetched, 1)
	atomic.AddInt64(&m.totalResponseTime, duration.Nanoseconds())
	atomic.AddInt64(&m.responseCount, 1)

	if err != nil {
		atomic.AddInt64(&m.pageErrors, 1)
		if apperrors.Classify(err) == apperrors.ErrorTypeRateLimit {
			atomic.AddInt64(&m.rateLimitHits, 1)
		}
		return
	}
	atomic.AddInt64(&m.recordsFetched, int64(records))
}

// recordSymbol records the final outcome of one symbol extraction
func (m *Metrics) recordSymbol(err error) {
	if err != nil {
		atomic.AddInt64(&m.symbolsFailed, 1)
		return
	}
	atomic.AddInt64(&m.symbolsSucceeded, 1)
}

// recordRowsWritten records rows persisted to an artifact
func (m *Metrics) recordRowsWritten(count int) {
	atomic.AddInt64(&m.rowsWritten, int64(count))
}

// Snapshot returns the current counters
func (m *Metrics) Snapshot() RunMetrics {
	responseCount := atomic.LoadInt64(&m.responseCount)
	totalResponseTime := atomic.LoadInt64(&m.totalResponseTime)

	var avgResponseTime time.Duration
	if responseCount > 0 {
		avgResponseTime = time.Duration(totalResponseTime / responseCount)
	}

	m.mutex.RLock()
	elapsed := time.Since(m.startTime)
	m.mutex.RUnlock()

	return RunMetrics{
		PagesFetched:     atomic.LoadInt64(&m.pagesFetched),
		RecordsFetched:   atomic.LoadInt64(&m.recordsFetched),
		PageErrors:       atomic.LoadInt64(&m.pageErrors),
		RateLimitHits:    atomic.LoadInt64(&m.rateLimitHits),
		SymbolsSucceeded: atomic.LoadInt64(&m.symbolsSucceeded),
		SymbolsFailed:    atomic.LoadInt64(&m.symbolsFailed),
		RowsWritten:      atomic.LoadInt64(&m.rowsWritten),
		AvgResponseTime:  avgResponseTime,
		Elapsed:          elapsed,
	}
}

// reset zeroes all counters (useful for testing)
func (m *Metrics) reset() {
	atomic.StoreInt64(&m.pagesFetched, 0)
	atomic.StoreInt64(&m.recordsFetched, 0)
	atomic.StoreInt64(&m.pageErrors, 0)
	atomic.StoreInt64(&m.rateLimitHits, 0)
	atomic.StoreInt64(&m.symbolsSucceeded, 0)
	atomic.StoreInt64(&m.symbolsFailed, 0)
	atomic.StoreInt64(&m.rowsWritten, 0)
	atomic.StoreInt64(&m.totalResponseTime, 0)
	atomic.StoreInt64(&m.responseCount, 0)

	m.mutex.Lock()
	m.startTime = time.Now()
	m.mutex.Unlock()
}
