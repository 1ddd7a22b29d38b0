// Package exchange defines the page transport used to pull klines from the
// Binance USDT-M futures market.
//
// A Transport performs exactly one request per call and never retries. Pagination,
// pacing and retry policy belong to the caller, so that page counts stay
// predictable and tests can assert the exact request sequence.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// Transport names accepted by NewTransport
const (
	TransportHTTP = "http"
	TransportSDK  = "sdk"
)

// Transport fetches a single page of klines.
//
// Implementations return records in the order the exchange sent them. An empty
// slice with a nil error means the exchange has nothing in the requested range.
// Non-success responses and connection failures are reported as
// *errors.TransportError; malformed bodies as *errors.ParseError.
type Transport interface {
	FetchPage(ctx context.Context, req PageRequest) ([]models.RawKline, error)
}

// HealthChecker verifies the exchange is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Client combines page fetching with a reachability probe.
type Client interface {
	Transport
	HealthChecker
}

// PageRequest is one klines query. StartTime and EndTime are inclusive bounds in
// milliseconds since the Unix epoch.
type PageRequest struct {
	Symbol    string `json:"symbol"`
	Interval  string `json:"interval"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Limit     int    `json:"limit"`
}

// Validate checks the request before it is sent.
func (r PageRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return models.ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	if strings.TrimSpace(r.Interval) == "" {
		return models.ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}

	if r.StartTime < 0 {
		return models.ValidationError{Field: "startTime", Message: "start time cannot be negative"}
	}

	if r.EndTime < r.StartTime {
		return models.ValidationError{Field: "endTime", Message: "end time must not precede start time"}
	}

	if r.Limit < 1 || r.Limit > config.MaxPageLimit {
		return models.ValidationError{
			Field:   "limit",
			Message: fmt.Sprintf("limit must be between 1 and %d", config.MaxPageLimit),
		}
	}

	return nil
}

// NewTransport builds the transport selected by cfg.Transport.
func NewTransport(cfg config.ExchangeConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", TransportHTTP:
		return NewHTTPTransport(cfg, logger), nil
	case TransportSDK:
		return NewSDKTransport(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
