package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kjannette/lab-dashboard/internal/config"
	"github.com/kjannette/lab-dashboard/internal/feed"
	"github.com/kjannette/lab-dashboard/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by FetchNow when a newer fetch won the race and
// this result was discarded.
var ErrSuperseded = errors.New("fetch superseded by a newer one")

// Snapshot is one applied fetch. It is never modified after publication.
type Snapshot struct {
	Generation uint64
	Trades     []models.Trade
	Machines   []models.Machine
	FetchedAt  time.Time
	TradesErr  error
	MachineErr error
}

// Notifier receives operator alerts.
type Notifier interface {
	Send(ctx context.Context, msg string)
}

type RefresherConfig struct {
	Schedule string        // cron expression, e.g. "@every 20s"
	Timeout  time.Duration // per fetch
	Notifier Notifier      // optional
}

// Refresher polls a feed.Source on a cron schedule and publishes snapshots.
// Each fetch cancels the one still in flight, and results only ever replace
// an older generation.
type Refresher struct {
	src feed.Source
	cfg RefresherConfig
	log *zap.Logger

	mu      sync.RWMutex
	snap    *Snapshot
	applied uint64

	fetchMu  sync.Mutex
	started  uint64
	inflight context.CancelFunc

	runMu   sync.Mutex
	running bool
	cron    *cron.Cron
	stop    context.CancelFunc
	wg      sync.WaitGroup

	healthMu sync.Mutex
	failing  bool

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(*Snapshot)
}

func NewRefresher(src feed.Source, cfg RefresherConfig, log *zap.Logger) *Refresher {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 20s"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Refresher{
		src:  src,
		cfg:  cfg,
		log:  log.Named("refresher"),
		subs: map[int]func(*Snapshot){},
	}
}

// Start schedules recurring fetches and runs one immediately.
func (r *Refresher) Start() error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		r.log.Info("already running")
		return nil
	}

	clog := newCronLogger(r.log)
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(r.cfg.Schedule, func() { r.refresh(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", r.cfg.Schedule, err)
	}

	r.cron, r.stop = c, cancel
	r.running = true
	c.Start()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refresh(ctx)
	}()

	r.log.Info("started", zap.String("schedule", r.cfg.Schedule), zap.Duration("timeout", r.cfg.Timeout))
	return nil
}

// Stop halts the schedule, cancels any in-flight fetch and waits for
// running jobs to return.
func (r *Refresher) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	r.running = false
	c, stop := r.cron, r.stop
	r.runMu.Unlock()

	stop()
	<-c.Stop().Done()
	r.wg.Wait()
	r.log.Info("stopped")
}

func (r *Refresher) Running() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.running
}

// Latest returns the newest applied snapshot, nil before the first fetch.
func (r *Refresher) Latest() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Healthy reports whether the last applied fetch succeeded for trades.
func (r *Refresher) Healthy() bool {
	r.healthMu.Lock()
	defer r.healthMu.Unlock()
	return !r.failing
}

// Subscribe registers fn to run after every applied snapshot. The returned
// function removes it.
func (r *Refresher) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.FetchNow(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		r.log.Warn("refresh incomplete", zap.Error(err))
	}
}

// FetchNow fetches trades and machines outside the schedule. A list whose
// fetch fails is published empty and its error returned alongside the
// snapshot.
func (r *Refresher) FetchNow(ctx context.Context) (*Snapshot, error) {
	gen, fctx, cancel := r.begin(ctx)
	defer r.finish(gen, cancel)

	start := time.Now()
	trades, terr := r.src.Trades(fctx)
	if terr != nil {
		trades = []models.Trade{}
	}
	machines, merr := r.src.Machines(fctx)
	if merr != nil {
		machines = []models.Machine{}
	}

	if fctx.Err() != nil && r.superseded(gen) {
		return nil, ErrSuperseded
	}

	snap := &Snapshot{
		Generation: gen,
		Trades:     trades,
		Machines:   machines,
		FetchedAt:  time.Now().UTC(),
		TradesErr:  terr,
		MachineErr: merr,
	}
	if !r.apply(snap) {
		return nil, ErrSuperseded
	}

	r.log.Debug("snapshot applied",
		zap.Uint64("generation", gen),
		zap.Int("trades", len(trades)),
		zap.Int("machines", len(machines)),
		zap.Duration("took", time.Since(start)),
	)
	r.trackHealth(terr)
	r.publish(snap)

	return snap, errors.Join(terr, merr)
}

// begin allocates a generation and cancels the previous in-flight fetch.
func (r *Refresher) begin(ctx context.Context) (uint64, context.Context, context.CancelFunc) {
	fctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)

	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()
	if r.inflight != nil {
		r.inflight()
	}
	r.started++
	r.inflight = cancel
	return r.started, fctx, cancel
}

func (r *Refresher) finish(gen uint64, cancel context.CancelFunc) {
	cancel()
	r.fetchMu.Lock()
	if r.started == gen {
		r.inflight = nil
	}
	r.fetchMu.Unlock()
}

func (r *Refresher) superseded(gen uint64) bool {
	r.fetchMu.Lock()
	defer r.fetchMu.Unlock()
	return r.started > gen
}

func (r *Refresher) apply(s *Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Generation <= r.applied {
		return false
	}
	r.applied = s.Generation
	r.snap = s
	return true
}

func (r *Refresher) publish(s *Snapshot) {
	r.subMu.Lock()
	fns := make([]func(*Snapshot), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// trackHealth alerts once when the trade feed starts failing and once when
// it recovers.
func (r *Refresher) trackHealth(terr error) {
	r.healthMu.Lock()
	was := r.failing
	r.failing = terr != nil
	now := r.failing
	r.healthMu.Unlock()

	if was == now {
		return
	}
	var msg string
	if now {
		r.log.Error("trade feed failing", zap.Error(terr))
		msg = fmt.Sprintf("Trade feed unavailable, dashboard showing empty data: %v", terr)
	} else {
		r.log.Info("trade feed recovered")
		msg = "Trade feed recovered"
	}
	if r.cfg.Notifier != nil {
		go r.cfg.Notifier.Send(context.Background(), msg)
	}
}
