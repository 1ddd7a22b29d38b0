package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

const (
	defaultBaseURL    = "https://fapi.binance.com"
	defaultKlinesPath = "/fapi/v1/klines"
	pingPath          = "/fapi/v1/ping"

	defaultRequestTimeout = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second

	// A full page of 1000 klines is well under 1 MiB
	maxResponseBytes = 16 << 20
	maxErrorBody     = 512

	userAgent = "go-binance-ohlcv-extractor/1.0"
)

// HTTPTransport queries the futures klines endpoint directly over net/http.
type HTTPTransport struct {
	httpClient *http.Client
	baseURL    string
	klinesPath string
	logger     *slog.Logger
}

// NewHTTPTransport creates a transport for cfg. Empty fields fall back to the
// public futures endpoint.
func NewHTTPTransport(cfg config.ExchangeConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	klinesPath := cfg.KlinesPath
	if klinesPath == "" {
		klinesPath = defaultKlinesPath
	}

	return &HTTPTransport{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:    baseURL,
		klinesPath: klinesPath,
		logger:     logger.With("component", "http_transport"),
	}
}

// FetchPage implements Transport.
func (t *HTTPTransport) FetchPage(ctx context.Context, req PageRequest) ([]models.RawKline, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("interval", req.Interval)
	params.Set("startTime", strconv.FormatInt(req.StartTime, 10))
	params.Set("endTime", strconv.FormatInt(req.EndTime, 10))
	params.Set("limit", strconv.Itoa(req.Limit))

	t.logger.Debug("requesting klines page",
		"symbol", req.Symbol,
		"interval", req.Interval,
		"start_time", req.StartTime,
		"end_time", req.EndTime,
		"limit", req.Limit)

	body, err := t.get(ctx, t.klinesPath, params)
	if err != nil {
		return nil, err
	}

	return models.ParseKlinesPage(body)
}

// HealthCheck implements HealthChecker using the ping endpoint.
func (t *HTTPTransport) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := t.get(healthCtx, pingPath, nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	t.logger.Debug("health check passed")
	return nil
}

func (t *HTTPTransport) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	requestURL := t.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, requestError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, requestError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	return body, nil
}

// statusError builds a TransportError from a non-success response, lifting the
// exchange's {"code":...,"msg":...} body when there is one.
func statusError(status int, body []byte) *apperrors.TransportError {
	e := &apperrors.TransportError{StatusCode: status}

	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	e.Body = text

	if gjson.ValidBytes(body) {
		parsed := gjson.ParseBytes(body)
		if msg := parsed.Get("msg"); msg.Exists() {
			e.Code = parsed.Get("code").Int()
			e.Message = msg.String()
		}
	}

	return e
}

func requestError(err error) *apperrors.TransportError {
	return &apperrors.TransportError{Err: err, Timeout: isTimeout(err)}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
