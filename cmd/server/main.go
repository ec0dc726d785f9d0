package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kjannette/lab-dashboard/internal/api"
	"github.com/kjannette/lab-dashboard/internal/config"
	"github.com/kjannette/lab-dashboard/internal/dashboard"
	"github.com/kjannette/lab-dashboard/internal/db"
	"github.com/kjannette/lab-dashboard/internal/external"
	"github.com/kjannette/lab-dashboard/internal/feed"
	"github.com/kjannette/lab-dashboard/internal/logger"
	"github.com/kjannette/lab-dashboard/internal/notifications"
	"github.com/kjannette/lab-dashboard/internal/prefs"
	"github.com/kjannette/lab-dashboard/internal/repository"
	"github.com/kjannette/lab-dashboard/internal/scheduler"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	cfg.Print(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.Connect(ctx, cfg.DSN(), log.Named("db"))
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		pool.Close()
		log.Info("database pool closed")
	}()

	// Repos
	tradeRepo := repository.NewTradeRepo(pool)
	machineRepo := repository.NewMachineRepo(pool)

	// Trade feed: the upstream store when configured, otherwise the database
	var source feed.Source = feed.NewRepoSource(tradeRepo, machineRepo)
	if cfg.TradeStoreURL != "" {
		source = feed.NewHTTPSource(cfg.TradeStoreURL, cfg.TradeStoreAPIKey, cfg.FetchTimeout, log)
	}

	notify := notifications.NewSender(cfg.WebhookURL, cfg.BotName, log)

	refresher := scheduler.NewRefresher(source, scheduler.RefresherConfig{
		Schedule: cfg.RefreshSchedule,
		Timeout:  cfg.FetchTimeout,
		Notifier: notify,
	}, log)

	prefStore, closeStore, err := openPrefsStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	srv := api.NewServer(api.Deps{
		Trades:       tradeRepo,
		Machines:     machineRepo,
		SignalLogs:   repository.NewSignalLogRepo(pool),
		BotEvents:    repository.NewBotEventRepo(pool),
		Klines:       external.NewBinanceClient(cfg.BinanceBaseURL, log),
		Snapshots:    refresher,
		Prefs:        prefs.NewService(prefStore, cfg.PrefsTTL, log),
		DB:           db.Pinger{Pool: pool},
		Registry:     dashboard.DefaultRegistry(),
		TotalCapital: cfg.TotalCapital,
	}, api.Options{
		Port:       cfg.Port,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
	}, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if err := refresher.Start(); err != nil {
		return fmt.Errorf("refresher: %w", err)
	}
	log.Info("all services started")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			refresher.Stop()
			return fmt.Errorf("api: %w", err)
		}
	}

	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	log.Info("api server closed")
	return nil
}

// openPrefsStore returns Redis when REDIS_ADDR is set, memory otherwise.
func openPrefsStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (prefs.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return prefs.NewMemoryStore(), func() {}, nil
	}

	rs := prefs.NewRedisStore(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info("preferences stored in redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return rs, func() { rs.Close() }, nil
}

