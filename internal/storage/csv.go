package storage

import (
	"context"
	"io"
	"log/slog"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// CSVSink writes the canonical delimited artifact.
type CSVSink struct {
	logger *slog.Logger
}

// NewCSVSink creates a CSV sink.
func NewCSVSink(logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{logger: logger.With("component", "csv_sink")}
}

// Extension implements Sink.
func (s *CSVSink) Extension() string { return FormatCSV }

// Write implements Sink.
func (s *CSVSink) Write(ctx context.Context, path string, table *models.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writeAtomic(path, func(w io.Writer) error {
		return EncodeCSV(w, table)
	}); err != nil {
		return err
	}

	s.logger.Debug("wrote csv artifact", "path", path, "rows", table.Len())
	return nil
}
