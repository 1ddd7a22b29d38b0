package collector

import (
	"context"
	"testing"
)

// BenchmarkFetchRange walks a year of hourly klines, nine pages per iteration
func BenchmarkFetchRange(b *testing.B) {
	source := &fakeSource{klines: seriesKlines(jan1, 60*minuteMs, 8760)}
	end := jan1 + 8760*60*minuteMs

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		fetcher, _ := newTestFetcher(source, 1000)
		klines, err := fetcher.FetchRange(context.Background(), "BTCUSDT", "1h", jan1, end)
		if err != nil {
			b.Fatalf("FetchRange failed: %v", err)
		}
		if len(klines) != 8760 {
			b.Fatalf("expected 8760 klines, got %d", len(klines))
		}
	}

	b.ReportMetric(float64(8760*b.N)/b.Elapsed().Seconds(), "klines/sec")
}

// BenchmarkExtract covers normalization, checks and the memory sink
func BenchmarkExtract(b *testing.B) {
	source := &fakeSource{klines: seriesKlines(jan1, dayMs, 1500)}
	extractor, _ := newMemoryExtractor(source)
	req := ExtractRequest{Symbol: "BTCUSDT", StartDate: "2021-01-01", EndDate: "2025-02-08", Interval: "1d"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := extractor.Extract(context.Background(), req); err != nil {
			b.Fatalf("Extract failed: %v", err)
		}
	}
}
