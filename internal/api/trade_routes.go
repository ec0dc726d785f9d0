package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.deps.Trades.GetAll(r.Context())
	if err != nil {
		s.log.Error("fetch trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// handleTradesFiltered serves ?pair=&limit=, newest first. limit defaults
// to 1000 and accepts "all".
func (s *Server) handleTradesFiltered(w http.ResponseWriter, r *http.Request) {
	pair := strings.TrimSpace(r.URL.Query().Get("pair"))
	limit := parseLimit(r, defaultTradeLimit, 0)

	trades, err := s.deps.Trades.GetFiltered(r.Context(), pair, limit)
	if err != nil {
		s.log.Error("fetch filtered trades", zap.String("pair", pair), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch filtered trades")
		return
	}
	s.log.Debug("filtered trades", zap.String("pair", pair), zap.Int("count", len(trades)))
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

func (s *Server) handleMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.deps.Machines.GetAll(r.Context())
	if err != nil {
		s.log.Error("fetch machines", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch machines")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"machines": machines})
}
