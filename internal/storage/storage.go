// Package storage writes normalized candle tables to output artifacts.
// Every file sink replaces its target atomically so that a reader never sees a
// partially written table, and an existing artifact is overwritten in place.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// Artifact formats accepted by NewSink
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatMemory  = "memory"
)

// Sink persists one candle table per call.
//
// Write must replace any existing artifact at path and must not leave a partial
// file behind on failure. Extension is the file suffix used to build the path.
type Sink interface {
	Write(ctx context.Context, path string, table *models.Table) error
	Extension() string
}

// NewSink returns the sink for format.
func NewSink(format string, logger *slog.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		return NewCSVSink(logger), nil
	case FormatParquet:
		return NewParquetSink(logger), nil
	case FormatMemory:
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// ArtifactPath returns <dir>/<symbol>.<ext>.
func ArtifactPath(dir, symbol, ext string) string {
	if ext == "" {
		return filepath.Join(dir, symbol)
	}
	return filepath.Join(dir, symbol+"."+ext)
}

// StorageError represents a failed artifact write.
type StorageError struct {
	// Operation is the step that failed (e.g., "create", "encode", "rename")
	Operation string

	// Path is the target artifact
	Path string

	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for StorageError.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s on %s failed: %v", e.Operation, e.Path, e.Err)
}

// Unwrap returns the underlying error for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError with the provided details.
func NewStorageError(operation, path string, err error) *StorageError {
	return &StorageError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// writeAtomic creates the parent directory, streams encode into a temp file in
// the same directory and renames it over path.
func writeAtomic(path string, encode func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewStorageError("mkdir", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return NewStorageError("create", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = encode(tmp); err != nil {
		return NewStorageError("encode", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return NewStorageError("sync", path, err)
	}
	if err = tmp.Close(); err != nil {
		return NewStorageError("close", path, err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return NewStorageError("chmod", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return NewStorageError("rename", path, err)
	}
	return nil
}
