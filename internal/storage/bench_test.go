package storage

import (
	"context"
	"io"
	"testing"
)

// BenchmarkEncodeCSV measures row formatting throughput
func BenchmarkEncodeCSV(b *testing.B) {
	table := createTestTable("BTCUSDT", 1000)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := EncodeCSV(io.Discard, table); err != nil {
			b.Fatalf("EncodeCSV failed: %v", err)
		}
	}

	b.ReportMetric(float64(1000*b.N)/b.Elapsed().Seconds(), "candles/sec")
}

// BenchmarkCSVSinkWrite includes the temp file, fsync and rename
func BenchmarkCSVSinkWrite(b *testing.B) {
	if testing.Short() {
		b.Skip("skipping benchmark in short mode")
	}

	sink := NewCSVSink(createTestLogger())
	table := createTestTable("BTCUSDT", 1000)
	path := ArtifactPath(b.TempDir(), "BTCUSDT", sink.Extension())

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := sink.Write(context.Background(), path, table); err != nil {
			b.Fatalf("Write failed: %v", err)
		}
	}
}
