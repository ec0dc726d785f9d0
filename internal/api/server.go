package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/kjannette/lab-dashboard/internal/prefs"
	"github.com/kjannette/lab-dashboard/internal/repository"
	"github.com/kjannette/lab-dashboard/internal/scheduler"
	"go.uber.org/zap"
)

const (
	maxQueryLimit     = 1000
	defaultLogLimit   = 50
	defaultUIDLimit   = 100
	defaultTradeLimit = 1000
)

type TradeStore interface {
	GetAll(ctx context.Context) ([]models.Trade, error)
	GetFiltered(ctx context.Context, pair string, limit int) ([]models.Trade, error)
}

type MachineStore interface {
	GetAll(ctx context.Context) ([]models.Machine, error)
}

type SignalLogStore interface {
	List(ctx context.Context, f repository.SignalLogFilter, page, limit int) ([]models.SignalLog, int64, error)
	Summary(ctx context.Context, f repository.SignalLogFilter) (*models.SignalLogSummary, error)
	WithUniqueID(ctx context.Context, symbols []string, page, limit int) ([]models.SignalLog, int64, error)
	ByUIDs(ctx context.Context, uids []string) ([]models.SignalLog, error)
}

type BotEventStore interface {
	List(ctx context.Context, f repository.BotEventFilter, page, limit int) ([]models.BotEvent, int64, error)
	Summary(ctx context.Context, f repository.BotEventFilter) (*models.BotEventSummary, error)
}

type KlineClient interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) (json.RawMessage, error)
}

// Snapshots is the refreshed trade data the dashboard routes read.
type Snapshots interface {
	Latest() *scheduler.Snapshot
	Subscribe(fn func(*scheduler.Snapshot)) (unsubscribe func())
	Healthy() bool
}

type Preferences interface {
	Filters(ctx context.Context, profile string, defaults dashboard.FilterState) (dashboard.FilterState, error)
	SaveFilters(ctx context.Context, profile string, fs dashboard.FilterState) error
	View(ctx context.Context, profile string) (prefs.ViewPrefs, error)
	SaveView(ctx context.Context, profile string, v prefs.ViewPrefs) error
	Reset(ctx context.Context, profile string) error
}

type DBPinger interface {
	Ping(ctx context.Context) (time.Time, error)
}

// Deps are the server's collaborators. Store routes are only mounted for
// the stores that are set.
type Deps struct {
	Trades     TradeStore
	Machines   MachineStore
	SignalLogs SignalLogStore
	BotEvents  BotEventStore
	Klines     KlineClient
	Snapshots  Snapshots
	Prefs      Preferences
	DB         DBPinger

	Registry     *dashboard.Registry
	TotalCapital float64
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
}

type Server struct {
	deps       Deps
	apiKey     string
	log        *zap.Logger
	hub        *hub
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(deps Deps, opts Options, log *zap.Logger) *Server {
	if deps.Registry == nil {
		deps.Registry = dashboard.DefaultRegistry()
	}
	s := &Server{
		deps:   deps,
		apiKey: opts.APIKey,
		log:    log.Named("api"),
	}
	s.hub = newHub(s, s.log)

	mux := http.NewServeMux()

	// Store routes
	if deps.Trades != nil {
		mux.HandleFunc("GET /api/trades", s.handleTrades)
		mux.HandleFunc("GET /api/trades/filtered", s.handleTradesFiltered)
	}
	if deps.Machines != nil {
		mux.HandleFunc("GET /api/machines", s.handleMachines)
	}
	if deps.SignalLogs != nil {
		mux.HandleFunc("GET /api/SignalProcessingLogs", s.handleSignalLogs)
		mux.HandleFunc("GET /api/SignalProcessingLogs/summary", s.handleSignalLogSummary)
		mux.HandleFunc("GET /api/SignalProcessingLogsWithUniqueId", s.handleSignalLogsWithUniqueID)
		mux.HandleFunc("GET /api/SignalProcessingLogsByUIDs", s.handleSignalLogsByUIDs)
	}
	if deps.BotEvents != nil {
		mux.HandleFunc("GET /api/bot-event-logs", s.handleBotEvents)
		mux.HandleFunc("GET /api/bot-event-logs/summary", s.handleBotEventSummary)
	}
	if deps.Klines != nil {
		mux.HandleFunc("GET /api/klines", s.handleKlines)
	}

	// Dashboard routes
	if deps.Snapshots != nil && deps.Prefs != nil {
		mux.HandleFunc("GET /api/dashboard/metrics", s.handleMetrics)
		mux.HandleFunc("GET /api/dashboard/buckets", s.handleBuckets)
		mux.HandleFunc("GET /api/dashboard/buckets/{name}", s.handleBucketRows)
		mux.HandleFunc("GET /api/dashboard/filters", s.handleGetFilters)
		mux.HandleFunc("PUT /api/dashboard/filters", s.handlePutFilters)
		mux.HandleFunc("POST /api/dashboard/filters/toggle", s.handleToggleFilter)
		mux.HandleFunc("POST /api/dashboard/filters/radio", s.handleRadioFilter)
		mux.HandleFunc("POST /api/dashboard/filters/all", s.handleAllFilter)
		mux.HandleFunc("POST /api/dashboard/selection", s.handleSelection)
		mux.HandleFunc("GET /api/dashboard/view", s.handleGetView)
		mux.HandleFunc("PUT /api/dashboard/view", s.handlePutView)
		mux.HandleFunc("DELETE /api/dashboard/preferences", s.handleResetPreferences)
		mux.HandleFunc("GET /api/dashboard/ws", s.handleWebSocket)
	}

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.handler = requestID(s.accessLog(corsMiddleware(s.authMiddleware(mux), opts.CORSOrigin)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown. It pushes fresh metrics to websocket clients
// after every refresh.
func (s *Server) Start() error {
	if s.deps.Snapshots != nil && s.deps.Prefs != nil {
		unsubscribe := s.deps.Snapshots.Subscribe(func(*scheduler.Snapshot) { s.hub.broadcast() })
		defer unsubscribe()
	}

	s.log.Info("listening",
		zap.String("addr", s.httpServer.Addr),
		zap.Bool("auth", s.apiKey != ""),
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// --- validation helpers ---

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	t, ok := models.ParseTime(v)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q, expected YYYY-MM-DD or an ISO timestamp", name, v)
	}
	return &t, nil
}

// parseLimit reads ?limit=. "all" yields 0 (no limit); missing or invalid
// values fall back to defaultLimit.
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return defaultLimit
	}
	if strings.EqualFold(v, "all") {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if maxLimit > 0 && n > maxLimit {
		return maxLimit
	}
	return n
}

func parsePage(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// splitList splits a comma separated parameter, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func profileOf(r *http.Request) string {
	p := strings.TrimSpace(r.URL.Query().Get("profile"))
	if p == "" {
		return prefs.DefaultProfile
	}
	return p
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
