package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kjannette/lab-dashboard/internal/external"
	"go.uber.org/zap"
)

// handleKlines proxies Binance candles for the chart views.
func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := strings.TrimSpace(q.Get("symbol"))
	interval := strings.TrimSpace(q.Get("interval"))
	if symbol == "" || interval == "" {
		writeError(w, http.StatusBadRequest, "symbol and interval are required")
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	data, err := s.deps.Klines.GetKlines(r.Context(), symbol, interval, limit)
	if err != nil {
		var ke *external.KlineError
		if errors.As(err, &ke) && ke.Status >= 400 && ke.Status < 500 {
			writeError(w, http.StatusBadRequest, ke.Body)
			return
		}
		s.log.Error("fetch klines", zap.String("symbol", symbol), zap.String("interval", interval), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to fetch klines")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
