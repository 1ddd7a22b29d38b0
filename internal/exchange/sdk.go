package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/config"
	apperrors "github.com/johnayoung/go-binance-ohlcv-extractor/internal/errors"
	"github.com/johnayoung/go-binance-ohlcv-extractor/internal/models"
)

// Binance error codes that identify the response class when the SDK has
// dropped the HTTP status.
const (
	codeUnknown         = -1000
	codeDisconnected    = -1001
	codeTooManyRequests = -1003
	codeUnexpectedResp  = -1006
	codeTimeout         = -1007
)

// SDKTransport fetches pages through the go-binance futures client.
type SDKTransport struct {
	client *futures.Client
	logger *slog.Logger
}

// NewSDKTransport creates an SDK-backed transport. The klines endpoint is public,
// so the client is built without credentials.
func NewSDKTransport(cfg config.ExchangeConfig, logger *slog.Logger) *SDKTransport {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	client := futures.NewClient("", "")
	if baseURL := strings.TrimRight(cfg.BaseURL, "/"); baseURL != "" {
		client.BaseURL = baseURL
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	client.UserAgent = userAgent

	return &SDKTransport{
		client: client,
		logger: logger.With("component", "sdk_transport"),
	}
}

// FetchPage implements Transport.
func (s *SDKTransport) FetchPage(ctx context.Context, req PageRequest) ([]models.RawKline, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	s.logger.Debug("requesting klines page",
		"symbol", req.Symbol,
		"interval", req.Interval,
		"start_time", req.StartTime,
		"end_time", req.EndTime,
		"limit", req.Limit)

	klines, err := s.client.NewKlinesService().
		Symbol(req.Symbol).
		Interval(req.Interval).
		StartTime(req.StartTime).
		EndTime(req.EndTime).
		Limit(req.Limit).
		Do(ctx)
	if err != nil {
		return nil, sdkError(err)
	}

	out := make([]models.RawKline, 0, len(klines))
	for _, kl := range klines {
		if kl == nil {
			continue
		}
		out = append(out, fromSDKKline(kl))
	}
	return out, nil
}

// HealthCheck implements HealthChecker.
func (s *SDKTransport) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.client.NewPingService().Do(healthCtx); err != nil {
		return fmt.Errorf("health check failed: %w", sdkError(err))
	}

	s.logger.Debug("health check passed")
	return nil
}

func fromSDKKline(kl *futures.Kline) models.RawKline {
	return models.RawKline{
		OpenTime:            kl.OpenTime,
		Open:                kl.Open,
		High:                kl.High,
		Low:                 kl.Low,
		Close:               kl.Close,
		Volume:              kl.Volume,
		CloseTime:           kl.CloseTime,
		QuoteAssetVolume:    kl.QuoteAssetVolume,
		TradeCount:          kl.TradeNum,
		TakerBuyBaseVolume:  kl.TakerBuyBaseAssetVolume,
		TakerBuyQuoteVolume: kl.TakerBuyQuoteAssetVolume,
	}
}

// sdkError maps SDK failures onto TransportError. The SDK surfaces exchange
// error bodies as *common.APIError without the HTTP status, so the status is
// inferred from the exchange code.
func sdkError(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &apperrors.TransportError{
			StatusCode: statusForCode(apiErr.Code),
			Code:       apiErr.Code,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	return requestError(err)
}

func statusForCode(code int64) int {
	switch code {
	case codeTooManyRequests:
		return http.StatusTooManyRequests
	case codeUnknown, codeDisconnected, codeUnexpectedResp:
		return http.StatusInternalServerError
	case codeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
