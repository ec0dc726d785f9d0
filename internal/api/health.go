package api

import (
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Services  healthServices `json:"services"`
}

type healthServices struct {
	Database    string  `json:"database"`
	TradeFeed   string  `json:"tradeFeed"`
	LastRefresh *string `json:"lastRefresh"`
	Trades      int     `json:"trades"`
}

// handleHealth reports "degraded" when the database or the trade feed is
// down. It always answers 200 so load balancers keep routing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  healthServices{Database: "not configured", TradeFeed: "not configured"},
	}

	if s.deps.DB != nil {
		resp.Services.Database = "connected"
		if _, err := s.deps.DB.Ping(r.Context()); err != nil {
			resp.Services.Database = "disconnected"
			resp.Status = "degraded"
		}
	}

	if s.deps.Snapshots != nil {
		resp.Services.TradeFeed = "ok"
		if !s.deps.Snapshots.Healthy() {
			resp.Services.TradeFeed = "failing"
			resp.Status = "degraded"
		}
		if snap := s.deps.Snapshots.Latest(); snap != nil {
			at := snap.FetchedAt.Format(time.RFC3339)
			resp.Services.LastRefresh = &at
			resp.Services.Trades = len(snap.Trades)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
