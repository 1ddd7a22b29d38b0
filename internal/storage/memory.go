package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// MemorySink keeps tables in memory keyed by artifact path. It backs dry runs
// and tests.
type MemorySink struct {
	mu     sync.RWMutex
	tables map[string]*models.Table
	writes int
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{tables: make(map[string]*models.Table)}
}

// Extension implements Sink.
func (m *MemorySink) Extension() string { return FormatCSV }

// Write implements Sink. The table is copied so later mutation by the caller
// does not leak into the sink.
func (m *MemorySink) Write(ctx context.Context, path string, table *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := &models.Table{}
	if table != nil {
		*stored = *table
		stored.Candles = append([]models.Candle(nil), table.Candles...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[path] = stored
	m.writes++
	return nil
}

// Get returns the table last written to path.
func (m *MemorySink) Get(path string) (*models.Table, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[path]
	return t, ok
}

// Paths returns every written path, sorted.
func (m *MemorySink) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.tables))
	for p := range m.tables {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Writes returns how many times Write succeeded
func (m *MemorySink) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}
