// Package logger provides structured logging with context propagation for the kline extractor.
// It builds slog handlers from LoggingConfig, rotates file output with lumberjack and
// carries symbol and interval identifiers through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
	// SymbolKey is the context key for the trading symbol
	SymbolKey ContextKey = "symbol"
	// IntervalKey is the context key for the kline interval
	IntervalKey ContextKey = "interval"
)

// LoggerManager manages structured logging for the application
type LoggerManager struct {
	baseLogger *slog.Logger
	config     config.LoggingConfig
	writer     io.WriteCloser
}

// NewLoggerManager creates a new logger manager with the specified configuration
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	return newLoggerManager(cfg, writer), nil
}

// NewLoggerManagerWithWriter builds a manager that writes to w regardless of cfg.Output.
func NewLoggerManagerWithWriter(cfg config.LoggingConfig, w io.Writer) *LoggerManager {
	return newLoggerManager(cfg, nopWriteCloser{w})
}

func newLoggerManager(cfg config.LoggingConfig, writer io.WriteCloser) *LoggerManager {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	baseAttrs := make([]slog.Attr, 0, len(cfg.ContextFields))
	for key, value := range cfg.ContextFields {
		baseAttrs = append(baseAttrs, slog.String(key, value))
	}
	if len(baseAttrs) > 0 {
		handler = handler.WithAttrs(baseAttrs)
	}

	return &LoggerManager{
		baseLogger: slog.New(handler),
		config:     cfg,
		writer:     writer,
	}
}

// createWriter creates the appropriate writer based on configuration
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stdout":
		return nopWriteCloser{os.Stdout}, nil
	case "stderr", "":
		return nopWriteCloser{os.Stderr}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}

		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported log output %q", cfg.Output)
	}
}

// nopWriteCloser wraps an io.Writer to provide a Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the base logger instance
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.baseLogger
}

// Close closes the logger and any associated resources
func (lm *LoggerManager) Close() error {
	if lm.writer != nil {
		return lm.writer.Close()
	}
	return nil
}

// extractContextAttributes extracts logging attributes from context
func extractContextAttributes(ctx context.Context) []any {
	var attrs []any

	if operation, ok := ctx.Value(OperationKey).(string); ok && operation != "" {
		attrs = append(attrs, slog.String("operation", operation))
	}

	if symbol, ok := ctx.Value(SymbolKey).(string); ok && symbol != "" {
		attrs = append(attrs, slog.String("symbol", symbol))
	}

	if interval, ok := ctx.Value(IntervalKey).(string); ok && interval != "" {
		attrs = append(attrs, slog.String("interval", interval))
	}

	return attrs
}

// NewRunID returns a fresh ID for correlating every line of one invocation.
// Attach it to the base logger once; it is not carried in context.
func NewRunID() string {
	return uuid.NewString()
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithSymbol adds a trading symbol to the context
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, SymbolKey, symbol)
}

// WithInterval adds a kline interval to the context
func WithInterval(ctx context.Context, interval string) context.Context {
	return context.WithValue(ctx, IntervalKey, interval)
}

// TimedOperationWithContext logs an operation with context and timing
func TimedOperationWithContext(ctx context.Context, logger *slog.Logger, operation string, fn func() error) error {
	start := time.Now()
	ctx = WithOperation(ctx, operation)
	attrs := extractContextAttributes(ctx)

	logger.DebugContext(ctx, "operation started", attrs...)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		logger.ErrorContext(ctx, "operation failed",
			append(attrs, slog.Duration("duration", duration), slog.Any("error", err))...)
		return err
	}

	logger.InfoContext(ctx, "operation completed",
		append(attrs, slog.Duration("duration", duration))...)

	return nil
}
