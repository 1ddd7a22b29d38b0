package collector

import (
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()

	m.recordPage(1000, 10*time.Millisecond, nil)
	m.recordPage(250, 30*time.Millisecond, nil)
	m.recordPage(0, 20*time.Millisecond, &apperrors.TransportError{StatusCode: http.StatusTooManyRequests})
	m.recordPage(0, 20*time.Millisecond, &apperrors.TransportError{StatusCode: http.StatusBadGateway})
	m.recordSymbol(nil)
	m.recordSymbol(errors.New("boom"))
	m.recordRowsWritten(1250)

	snap := m.Snapshot()
	assert.Equal(t, int64(4), snap.PagesFetched)
	assert.Equal(t, int64(1250), snap.RecordsFetched)
	assert.Equal(t, int64(2), snap.PageErrors)
	assert.Equal(t, int64(1), snap.RateLimitHits)
	assert.Equal(t, int64(1), snap.SymbolsSucceeded)
	assert.Equal(t, int64(1), snap.SymbolsFailed)
	assert.Equal(t, int64(1250), snap.RowsWritten)
	assert.Equal(t, 20*time.Millisecond, snap.AvgResponseTime)
	assert.Greater(t, snap.Elapsed, time.Duration(0))
}

func TestMetricsConcurrent(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.recordPage(10, time.Millisecond, nil)
			m.recordSymbol(nil)
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.PagesFetched)
	assert.Equal(t, int64(500), snap.RecordsFetched)
	assert.Equal(t, int64(50), snap.SymbolsSucceeded)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.recordPage(5, time.Millisecond, nil)
	m.recordRowsWritten(5)
	m.recordSymbol(nil)

	m.reset()

	snap := m.Snapshot()
	assert.Zero(t, snap.PagesFetched)
	assert.Zero(t, snap.RecordsFetched)
	assert.Zero(t, snap.RowsWritten)
	assert.Zero(t, snap.SymbolsSucceeded)
	assert.Zero(t, snap.AvgResponseTime)
}
