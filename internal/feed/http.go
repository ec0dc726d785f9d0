package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/httputil"
	"github.com/kjannette/lab-dashboard/internal/models"
	"go.uber.org/zap"
)

// HTTPSource reads another dashboard backend's /api/trades and /api/machines.
type HTTPSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      httputil.RetryConfig
}

func NewHTTPSource(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Logger:      log.Named("feed"),
		},
	}
}

func (s *HTTPSource) Trades(ctx context.Context) ([]models.Trade, error) {
	var body struct {
		Trades []models.Trade `json:"trades"`
	}
	if err := s.get(ctx, "/api/trades", &body); err != nil {
		return nil, err
	}
	return body.Trades, nil
}

func (s *HTTPSource) Machines(ctx context.Context) ([]models.Machine, error) {
	var body struct {
		Machines []models.Machine `json:"machines"`
	}
	if err := s.get(ctx, "/api/machines", &body); err != nil {
		return nil, err
	}
	return body.Machines, nil
}

func (s *HTTPSource) get(ctx context.Context, path string, out any) error {
	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
		if err != nil {
			return nil, err
		}
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
