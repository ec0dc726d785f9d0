package api

import (
	"net/http"
	"strings"

	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/kjannette/lab-dashboard/internal/repository"
	"go.uber.org/zap"
)

type logsResponse[T any] struct {
	Logs       []T                `json:"logs"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
}

func parseSignalLogFilter(r *http.Request) (repository.SignalLogFilter, error) {
	q := r.URL.Query()
	f := repository.SignalLogFilter{
		Symbol:     strings.TrimSpace(q.Get("symbol")),
		SignalType: strings.TrimSpace(q.Get("signalType")),
		MachineID:  strings.TrimSpace(q.Get("machineId")),
	}
	var err error
	if f.From, err = parseDateParam(r, "fromDate"); err != nil {
		return f, err
	}
	if f.To, err = parseDateParam(r, "toDate"); err != nil {
		return f, err
	}
	return f, nil
}

func parseBotEventFilter(r *http.Request) (repository.BotEventFilter, error) {
	q := r.URL.Query()
	f := repository.BotEventFilter{
		UID:       strings.TrimSpace(q.Get("uid")),
		Source:    strings.TrimSpace(q.Get("source")),
		MachineID: strings.TrimSpace(q.Get("machineId")),
	}
	var err error
	if f.From, err = parseDateParam(r, "fromDate"); err != nil {
		return f, err
	}
	if f.To, err = parseDateParam(r, "toDate"); err != nil {
		return f, err
	}
	return f, nil
}

func pageFor(page, limit int) int {
	if limit == 0 {
		return 1
	}
	return page
}

func (s *Server) handleSignalLogs(w http.ResponseWriter, r *http.Request) {
	f, err := parseSignalLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r, defaultLogLimit, maxQueryLimit)
	page := pageFor(parsePage(r), limit)

	logs, total, err := s.deps.SignalLogs.List(r.Context(), f, page, limit)
	if err != nil {
		s.log.Error("fetch signal logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch signal processing logs")
		return
	}
	p := models.NewPagination(page, limit, total)
	writeJSON(w, http.StatusOK, logsResponse[models.SignalLog]{Logs: logs, Pagination: &p})
}

func (s *Server) handleSignalLogSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseSignalLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.deps.SignalLogs.Summary(r.Context(), f)
	if err != nil {
		s.log.Error("summarize signal logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch signal processing log summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (s *Server) handleSignalLogsWithUniqueID(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing symbols param")
		return
	}
	symbols := splitList(raw)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "no symbols provided")
		return
	}
	limit := parseLimit(r, defaultUIDLimit, maxQueryLimit)
	page := pageFor(parsePage(r), limit)

	logs, total, err := s.deps.SignalLogs.WithUniqueID(r.Context(), symbols, page, limit)
	if err != nil {
		s.log.Error("fetch signal logs with unique id", zap.Strings("symbols", symbols), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch logs with Unique_id")
		return
	}
	p := models.NewPagination(page, limit, total)
	writeJSON(w, http.StatusOK, logsResponse[models.SignalLog]{Logs: logs, Pagination: &p})
}

func (s *Server) handleSignalLogsByUIDs(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("uids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing uids param")
		return
	}
	uids := splitList(raw)
	if len(uids) == 0 {
		writeError(w, http.StatusBadRequest, "no UIDs provided")
		return
	}

	logs, err := s.deps.SignalLogs.ByUIDs(r.Context(), uids)
	if err != nil {
		s.log.Error("fetch signal logs by uid", zap.Int("uids", len(uids)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch logs by UIDs")
		return
	}
	writeJSON(w, http.StatusOK, logsResponse[models.SignalLog]{Logs: logs})
}

func (s *Server) handleBotEvents(w http.ResponseWriter, r *http.Request) {
	f, err := parseBotEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := parseLimit(r, defaultLogLimit, maxQueryLimit)
	page := pageFor(parsePage(r), limit)

	events, total, err := s.deps.BotEvents.List(r.Context(), f, page, limit)
	if err != nil {
		s.log.Error("fetch bot events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch bot event logs")
		return
	}
	p := models.NewPagination(page, limit, total)
	writeJSON(w, http.StatusOK, logsResponse[models.BotEvent]{Logs: events, Pagination: &p})
}

func (s *Server) handleBotEventSummary(w http.ResponseWriter, r *http.Request) {
	f, err := parseBotEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := s.deps.BotEvents.Summary(r.Context(), f)
	if err != nil {
		s.log.Error("summarize bot events", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch bot event log summary")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}
