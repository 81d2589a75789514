package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillm/volume-bot/internal/api"
	"github.com/kirillm/volume-bot/internal/audit"
	"github.com/kirillm/volume-bot/internal/botconfig"
	"github.com/kirillm/volume-bot/internal/config"
	"github.com/kirillm/volume-bot/internal/exchange"
	"github.com/kirillm/volume-bot/internal/execution"
	"github.com/kirillm/volume-bot/internal/metrics"
	"github.com/kirillm/volume-bot/internal/policy"
	"github.com/kirillm/volume-bot/internal/scheduler"
	"github.com/kirillm/volume-bot/internal/storage"
	"github.com/kirillm/volume-bot/internal/storage/memory"
	"github.com/kirillm/volume-bot/internal/strategy"
	"github.com/kirillm/volume-bot/internal/telegram"
	"github.com/kirillm/volume-bot/pkg/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "volbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting volume bot engine...")

	store, err := openStorage(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.InitMetrics()

	// Один лимитер на процесс: все боты делят одну квоту запросов к бирже
	limiter := exchange.NewLimiter(cfg.Exchange.MinSpacing)
	mexc := exchange.NewMEXCClient(exchange.MEXCConfig{
		BaseURL:        cfg.Exchange.MEXCBaseURL,
		RequestTimeout: cfg.Exchange.RequestTimeout,
		Retry: exchange.RetryPolicy{
			Attempts: cfg.Exchange.RetryAttempts,
			Delay:    cfg.Exchange.RetryDelay,
		},
	}, limiter, logger)
	registry := exchange.NewRegistry(mexc)

	killSwitch := execution.NewKillSwitch(logger)
	engine := execution.NewEngine(registry, store.Orders(), store.Bots(), killSwitch, logger)
	auditLog := audit.NewLog(store.AuditLogs(), logger)

	pol, err := policy.Load(cfg.Policy.Path, cfg.Policy.Profile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}
	logger.Info("Policy profile: %s (quote %s, min balance %.2f)", pol.ProfileName, pol.QuoteAsset, pol.MinQuoteBalance)

	alerts := telegram.NewAlerts(newNotifier(cfg.Telegram, logger), telegram.Lang(cfg.Telegram.Lang))

	sched := scheduler.New(
		store.Bots(),
		registry,
		engine,
		auditLog,
		pol,
		strategy.NewPlanner(nil),
		alerts,
		scheduler.Config{Tick: cfg.Scheduler.Tick, OptimisticCancel: cfg.Scheduler.OptimisticCancel},
		logger,
	)
	bots := botconfig.NewService(store.Bots(), store.ResetHistory(), registry, sched, pol.QuoteAsset, logger)
	server := api.NewServer(logger, engine, auditLog, bots, sched, alerts, cfg.API.Token, cfg.API.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("Shutdown signal received (%s), starting graceful shutdown", s)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	sched.Stop()
	cancel()

	logger.Info("Volume bot engine stopped")
	return nil
}

// openStorage memory драйвер работает без БД (dry-run)
func openStorage(cfg config.DatabaseConfig, logger *utils.Logger) (storage.Storage, error) {
	if cfg.Driver == "memory" {
		logger.Warn("Using in-memory storage, nothing will be persisted")
		return memory.New(), nil
	}

	db, err := storage.NewPostgresStorage(
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Connected to PostgreSQL %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return db, nil
}

func newNotifier(cfg config.TelegramConfig, logger *utils.Logger) telegram.Notifier {
	if !cfg.Enabled() {
		logger.Info("Telegram alerts disabled")
		return telegram.Nop{}
	}

	bot, err := telegram.NewBot(cfg.BotToken, cfg.ChatID, logger)
	if err != nil {
		logger.Error("Failed to start Telegram bot, alerts disabled: %v", err)
		return telegram.Nop{}
	}
	return bot
}
