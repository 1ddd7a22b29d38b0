// Package errors defines the extraction error taxonomy and a small classification and
// retry layer on top of it. Callers decide whether to retry; the fetch path never does.
package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeInvalidDate     ErrorType = "invalid_date"     // Malformed or inverted date range
	ErrorTypeTransportClient ErrorType = "transport_client" // HTTP 4xx, bad symbol or interval
	ErrorTypeRateLimit       ErrorType = "rate_limit"       // HTTP 429 or 418
	ErrorTypeServerError     ErrorType = "server_error"     // HTTP 5xx
	ErrorTypeTimeout         ErrorType = "timeout"          // Request timeout
	ErrorTypeNetwork         ErrorType = "network"          // Connection failures
	ErrorTypeNoData          ErrorType = "no_data"          // Confirmed absence of records
	ErrorTypeParse           ErrorType = "parse"            // Record failed numeric coercion
	ErrorTypeDuplicateDate   ErrorType = "duplicate_date"   // Source returned the same open time twice
	ErrorTypeCursorStalled   ErrorType = "cursor_stalled"   // Full page that did not advance the cursor
	ErrorTypeValidation      ErrorType = "validation"       // Request failed local validation
	ErrorTypeCanceled        ErrorType = "canceled"         // Context canceled
	ErrorTypeUnknown         ErrorType = "unknown"          // Unclassified errors
)

// ErrCursorStalled reports a full page whose last open time does not move the cursor forward.
var ErrCursorStalled = errors.New("pagination cursor did not advance")

// InvalidDateError reports a date string that cannot be parsed or a range whose start
// follows its end. It is returned before any network request is made.
type InvalidDateError struct {
	Value  string
	Reason string
	Err    error
}

func (e *InvalidDateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid date %q: %s: %v", e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid date %q: %s", e.Value, e.Reason)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// TransportError reports a failed page request: a non-success status or a
// connection failure. Code and Message carry the exchange error body when present.
type TransportError struct {
	StatusCode int
	Body       string
	Code       int64
	Message    string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode >= 500:
		return fmt.Sprintf("server error %d: %s", e.StatusCode, e.detail())
	case e.StatusCode >= 400:
		return fmt.Sprintf("client error %d: %s", e.StatusCode, e.detail())
	case e.StatusCode > 0:
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.detail())
	case e.Timeout:
		return fmt.Sprintf("request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("request failed: %v", e.Err)
	}
}

func (e *TransportError) detail() string {
	if e.Message != "" {
		return fmt.Sprintf("code=%d msg=%s", e.Code, e.Message)
	}
	if e.Body != "" {
		return e.Body
	}
	return http.StatusText(e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRateLimited reports whether the exchange asked the client to slow down
func (e *TransportError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusTeapot
}

// IsClientError reports a request the exchange rejected as malformed
func (e *TransportError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 && !e.IsRateLimited()
}

// IsServerError reports a 5xx response
func (e *TransportError) IsServerError() bool {
	return e.StatusCode >= 500
}

// Retryable reports whether repeating the same request could succeed
func (e *TransportError) Retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, context.Canceled)
	}
	return e.IsServerError() || e.IsRateLimited()
}

// NoDataError reports a successful fetch that returned zero records for the window.
type NoDataError struct {
	Symbol string
	Start  string
	End    string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no kline data returned for %s between %s and %s", e.Symbol, e.Start, e.End)
}

// ParseError reports a raw record that failed coercion. Index is the record's
// position in the fetched sequence, or -1 when not applicable.
type ParseError struct {
	Field string
	Value string
	Index int
	Err   error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s %q", e.Field, e.Value)
	if e.Index >= 0 {
		msg = fmt.Sprintf("record %d: %s", e.Index, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// DuplicateDateError reports two candles sharing one Date in a single table.
type DuplicateDateError struct {
	Symbol string
	Date   time.Time
}

func (e *DuplicateDateError) Error() string {
	return fmt.Sprintf("duplicate candle date %s for %s", e.Date.UTC().Format(time.RFC3339), e.Symbol)
}

// Classify maps err onto an ErrorType
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	var (
		invalidDate *InvalidDateError
		transport   *TransportError
		noData      *NoDataError
		parseErr    *ParseError
		duplicate   *DuplicateDateError
	)

	switch {
	case errors.As(err, &invalidDate):
		return ErrorTypeInvalidDate
	case errors.As(err, &noData):
		return ErrorTypeNoData
	case errors.As(err, &parseErr):
		return ErrorTypeParse
	case errors.As(err, &duplicate):
		return ErrorTypeDuplicateDate
	case errors.As(err, &transport):
		return classifyTransport(transport)
	case errors.Is(err, ErrCursorStalled):
		return ErrorTypeCursorStalled
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case isTimeoutError(err):
		return ErrorTypeTimeout
	case isNetworkError(err):
		return ErrorTypeNetwork
	case strings.Contains(strings.ToLower(err.Error()), "validation"):
		return ErrorTypeValidation
	}

	return ErrorTypeUnknown
}

func classifyTransport(e *TransportError) ErrorType {
	switch {
	case e.IsRateLimited():
		return ErrorTypeRateLimit
	case e.IsClientError():
		return ErrorTypeTransportClient
	case e.IsServerError():
		return ErrorTypeServerError
	case e.Timeout:
		return ErrorTypeTimeout
	case errors.Is(e.Err, context.Canceled):
		return ErrorTypeCanceled
	default:
		return ErrorTypeNetwork
	}
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"network unreachable",
		"no such host",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsRetryable checks if an error is worth repeating. Only transport failures
// outside the client-error range qualify.
func IsRetryable(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return transport.Retryable()
	}
	return false
}

// RetryPolicy bounds caller-side retry. MaxAttempts of 1 or less makes a single attempt.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// It returns the number of attempts made alongside the final error.
func Retry(ctx context.Context, policy RetryPolicy, logger *slog.Logger, fn func() error) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if policy.MaxAttempts <= 1 {
		err := operation()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return attempts, permanent.Err
		}
		return attempts, err
	}

	exponential := backoff.NewExponentialBackOff()
	if policy.InitialDelay > 0 {
		exponential.InitialInterval = policy.InitialDelay
	}
	if policy.MaxDelay > 0 {
		exponential.MaxInterval = policy.MaxDelay
	}
	exponential.MaxElapsedTime = 0

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(exponential, uint64(policy.MaxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, strategy, func(err error, wait time.Duration) {
		logger.Warn("retrying after failure",
			"attempt", attempts,
			"max_attempts", policy.MaxAttempts,
			"error_type", Classify(err),
			"wait", wait,
			"error", err)
	})
	return attempts, err
}
