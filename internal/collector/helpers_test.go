package collector

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/exchange"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

const (
	minuteMs = int64(60 * 1000)
	dayMs    = int64(24 * 60 * 60 * 1000)

	jan1 = int64(1609459200000) // 2021-01-01 00:00:00 UTC
)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockTransport is a testify mock of exchange.Transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) FetchPage(ctx context.Context, req exchange.PageRequest) ([]models.RawKline, error) {
	args := m.Called(ctx, req)
	var page []models.RawKline
	if v := args.Get(0); v != nil {
		page = v.([]models.RawKline)
	}
	return page, args.Error(1)
}

// fakeSource serves a fixed kline history the way the futures endpoint does:
// records with open time in [StartTime, EndTime], oldest first, at most Limit.
type fakeSource struct {
	mu       sync.Mutex
	klines   []models.RawKline
	requests []exchange.PageRequest
	failAt   int
	err      error
}

func (s *fakeSource) FetchPage(ctx context.Context, req exchange.PageRequest) ([]models.RawKline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.failAt > 0 && len(s.requests) == s.failAt {
		return nil, s.err
	}

	var page []models.RawKline
	for _, k := range s.klines {
		if k.OpenTime < req.StartTime || k.OpenTime > req.EndTime {
			continue
		}
		page = append(page, k)
		if len(page) == req.Limit {
			break
		}
	}
	return page, nil
}

func (s *fakeSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// staticTransport returns the same page for every request, ignoring bounds
type staticTransport struct {
	mu    sync.Mutex
	page  []models.RawKline
	count int
}

func (s *staticTransport) FetchPage(ctx context.Context, req exchange.PageRequest) ([]models.RawKline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.page, nil
}

func (s *staticTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func rawKline(openTime int64, price string) models.RawKline {
	return models.RawKline{
		OpenTime:  openTime,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    "10.5",
		CloseTime: openTime + minuteMs - 1,
	}
}

// seriesKlines generates n klines step ms apart with rising prices
func seriesKlines(start, step int64, n int) []models.RawKline {
	klines := make([]models.RawKline, n)
	for i := 0; i < n; i++ {
		klines[i] = rawKline(start+int64(i)*step, strconv.Itoa(100+i)+".5")
	}
	return klines
}

// sleepRecorder replaces the fetcher's inter-page sleep
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sleeps)
}

func newTestFetcher(transport exchange.Transport, limit int) (*RangeFetcher, *sleepRecorder) {
	fetcher := NewRangeFetcher(transport, FetcherConfig{PageLimit: limit, PageDelay: DefaultPageDelay}, createTestLogger())
	recorder := &sleepRecorder{}
	fetcher.sleep = recorder.sleep
	return fetcher, recorder
}
