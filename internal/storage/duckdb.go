package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marcboeker/go-duckdb/v2"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

const createCandlesTable = `CREATE TABLE candles (
	"Date"   TIMESTAMPTZ NOT NULL,
	"Open"   DOUBLE NOT NULL,
	"High"   DOUBLE NOT NULL,
	"Low"    DOUBLE NOT NULL,
	"Close"  DOUBLE NOT NULL,
	"Volume" DOUBLE NOT NULL
)`

// ParquetSink writes a columnar artifact through an in-memory DuckDB
// database: rows go in through the Appender API and out with COPY.
type ParquetSink struct {
	logger *slog.Logger
}

// NewParquetSink creates a Parquet sink.
func NewParquetSink(logger *slog.Logger) *ParquetSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParquetSink{logger: logger.With("component", "parquet_sink")}
}

// Extension implements Sink.
func (s *ParquetSink) Extension() string { return FormatParquet }

// Write implements Sink.
func (s *ParquetSink) Write(ctx context.Context, path string, table *models.Table) error {
	start := time.Now()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewStorageError("mkdir", path, err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return NewStorageError("open", path, fmt.Errorf("failed to open DuckDB database: %w", err))
	}
	defer db.Close()

	// Single writer: the appender and COPY must share one connection
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return NewStorageError("open", path, fmt.Errorf("failed to get connection: %w", err))
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, createCandlesTable); err != nil {
		return NewStorageError("create", path, fmt.Errorf("failed to create candles table: %w", err))
	}

	if err := appendCandles(conn, table); err != nil {
		return NewStorageError("append", path, err)
	}

	tmpName := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.NewString()[:8]))
	copyStmt := fmt.Sprintf(`COPY (SELECT * FROM candles ORDER BY "Date") TO '%s' (FORMAT PARQUET)`, quoteLiteral(tmpName))
	if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
		_ = os.Remove(tmpName)
		return NewStorageError("copy", path, fmt.Errorf("failed to export parquet: %w", err))
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return NewStorageError("rename", path, err)
	}

	s.logger.Debug("wrote parquet artifact",
		"path", path,
		"rows", table.Len(),
		"duration", time.Since(start))
	return nil
}

// appendCandles bulk loads the table with the DuckDB Appender API.
func appendCandles(conn *sql.Conn, table *models.Table) error {
	if table.Len() == 0 {
		return nil
	}

	var driverConn *duckdb.Conn
	err := conn.Raw(func(dc interface{}) error {
		var ok bool
		driverConn, ok = dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("underlying connection is not a DuckDB connection")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to get DuckDB connection: %w", err)
	}

	appender, err := duckdb.NewAppenderFromConn(driverConn, "", "candles")
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}

	for i, c := range table.Candles {
		if err := appender.AppendRow(c.Date.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			_ = appender.Close()
			return fmt.Errorf("failed to append candle %d: %w", i, err)
		}
	}

	if err := appender.Close(); err != nil {
		return fmt.Errorf("failed to flush appender: %w", err)
	}
	return nil
}

func quoteLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
