package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/httputil"
	"go.uber.org/zap"
)

const (
	DefaultKlineLimit = 200
	maxKlineLimit     = 1000
)

// BinanceClient proxies candlestick requests for the chart views.
type BinanceClient struct {
	baseURL    string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewBinanceClient(baseURL string, log *zap.Logger) *BinanceClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &BinanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    4 * time.Second,
			Logger:      log.Named("binance"),
		},
	}
}

// KlineError carries a non-2xx answer from Binance.
type KlineError struct {
	Status int
	Body   string
}

func (e *KlineError) Error() string {
	return fmt.Sprintf("binance returned status %d: %s", e.Status, e.Body)
}

// GetKlines returns Binance's kline array unchanged. limit <= 0 uses the
// default of 200; larger values are capped at 1000.
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error) {
	if symbol == "" || interval == "" {
		return nil, fmt.Errorf("symbol and interval are required")
	}
	if limit <= 0 {
		limit = DefaultKlineLimit
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))
	endpoint := c.baseURL + "/api/v3/klines?" + q.Encode()

	resp, err := httputil.Do(ctx, c.httpClient, c.retry, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("binance fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read klines: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &KlineError{Status: resp.StatusCode, Body: string(body)}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}
	return json.RawMessage(body), nil
}
