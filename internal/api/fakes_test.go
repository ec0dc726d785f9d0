package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/kjannette/lab-dashboard/internal/prefs"
	"github.com/kjannette/lab-dashboard/internal/repository"
	"github.com/kjannette/lab-dashboard/internal/scheduler"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type fakeTrades struct {
	all      []models.Trade
	err      error
	gotPair  string
	gotLimit int
}

func (f *fakeTrades) GetAll(context.Context) ([]models.Trade, error) { return f.all, f.err }

func (f *fakeTrades) GetFiltered(_ context.Context, pair string, limit int) ([]models.Trade, error) {
	f.gotPair, f.gotLimit = pair, limit
	return f.all, f.err
}

type fakeMachines struct {
	out []models.Machine
	err error
}

func (f fakeMachines) GetAll(context.Context) ([]models.Machine, error) { return f.out, f.err }

type fakeSignalLogs struct {
	logs     []models.SignalLog
	total    int64
	gotF     repository.SignalLogFilter
	gotPage  int
	gotLimit int
	gotList  []string
}

func (f *fakeSignalLogs) List(_ context.Context, flt repository.SignalLogFilter, page, limit int) ([]models.SignalLog, int64, error) {
	f.gotF, f.gotPage, f.gotLimit = flt, page, limit
	return f.logs, f.total, nil
}

func (f *fakeSignalLogs) Summary(_ context.Context, flt repository.SignalLogFilter) (*models.SignalLogSummary, error) {
	f.gotF = flt
	return &models.SignalLogSummary{TotalLogs: f.total}, nil
}

func (f *fakeSignalLogs) WithUniqueID(_ context.Context, symbols []string, page, limit int) ([]models.SignalLog, int64, error) {
	f.gotList, f.gotPage, f.gotLimit = symbols, page, limit
	return f.logs, f.total, nil
}

func (f *fakeSignalLogs) ByUIDs(_ context.Context, uids []string) ([]models.SignalLog, error) {
	f.gotList = uids
	return f.logs, nil
}

type fakeBotEvents struct {
	events []models.BotEvent
	total  int64
	gotF   repository.BotEventFilter
}

func (f *fakeBotEvents) List(_ context.Context, flt repository.BotEventFilter, page, limit int) ([]models.BotEvent, int64, error) {
	f.gotF = flt
	return f.events, f.total, nil
}

func (f *fakeBotEvents) Summary(_ context.Context, flt repository.BotEventFilter) (*models.BotEventSummary, error) {
	f.gotF = flt
	return &models.BotEventSummary{TotalLogs: f.total, AvgPL: "0.00"}, nil
}

type fakeKlines struct {
	data json.RawMessage
	err  error
}

func (f fakeKlines) GetKlines(context.Context, string, string, int) (json.RawMessage, error) {
	return f.data, f.err
}

type fakeSnapshots struct {
	mu      sync.Mutex
	snap    *scheduler.Snapshot
	healthy bool
	reads   int
}

func (f *fakeSnapshots) set(s *scheduler.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeSnapshots) Latest() *scheduler.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.snap
}

func (f *fakeSnapshots) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeSnapshots) Healthy() bool { return f.healthy }

func (f *fakeSnapshots) Subscribe(func(*scheduler.Snapshot)) func() {
	return func() {}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) (time.Time, error) { return time.Now(), f.err }

func pl(v float64) *float64 { return &v }

func candle() *time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &t
}

// sampleTrades: two closed (one profit, one loss), one running, one assign.
func sampleTrades() []models.Trade {
	base := models.Trade{
		Action: models.ActionBuy, SignalFrom: "Spike", MachineID: "m1",
		Interval: "5m", CandelTime: candle(), Investment: 100,
	}
	a, b, c, d := base, base, base, base
	a.Type, a.PlAfterComm, a.Pair = models.TypeClose, pl(12.5), "BTCUSDT"
	b.Type, b.PlAfterComm, b.Pair = models.TypeClose, pl(-4), "ETHUSDT"
	c.Type, c.PlAfterComm, c.Pair = models.TypeRunning, pl(3), "SOLUSDT"
	d.Type, d.Pair, d.Action = models.TypeAssign, "XRPUSDT", models.ActionSell
	return []models.Trade{a, b, c, d}
}

func newTestServer(t *testing.T, deps Deps, apiKey string) *Server {
	t.Helper()
	return newTestServerWithLogger(t, deps, apiKey, zaptest.NewLogger(t))
}

// newTestServerWithLogger is for tests whose server goroutines can outlive
// the test, where a zaptest logger would fail.
func newTestServerWithLogger(t *testing.T, deps Deps, apiKey string, log *zap.Logger) *Server {
	t.Helper()
	if deps.Snapshots == nil {
		deps.Snapshots = &fakeSnapshots{
			snap: &scheduler.Snapshot{
				Generation: 1,
				Trades:     sampleTrades(),
				Machines:   []models.Machine{{MachineID: "m1", Active: true}},
				FetchedAt:  time.Date(2024, 5, 1, 12, 0, 20, 0, time.UTC),
			},
			healthy: true,
		}
	}
	if deps.Prefs == nil {
		deps.Prefs = prefs.NewService(prefs.NewMemoryStore(), 0, log)
	}
	if deps.TotalCapital == 0 {
		deps.TotalCapital = 1000
	}
	return NewServer(deps, Options{Port: 0, APIKey: apiKey}, log)
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func urlEscape(s string) string {
	return url.QueryEscape(s)
}
