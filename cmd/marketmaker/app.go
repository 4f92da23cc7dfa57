package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"backpack-mm/internal/alert"
	"backpack-mm/internal/config"
	"backpack-mm/internal/engine"
	"backpack-mm/internal/exchange/backpack"
	"backpack-mm/internal/instrument"
	"backpack-mm/internal/logging"
	"backpack-mm/internal/quote"
	"backpack-mm/internal/safety"
	"backpack-mm/internal/store"
)

// app holds everything a trading command needs. Every failure in newApp is a
// startup error; nothing here runs per cycle.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func() error
	lock     *store.InstanceLock
	client   *backpack.Client
	registry *instrument.Registry
	quoter   *quote.Quoter
	monitor  *safety.Monitor
	alerts   *alert.Manager
}

func newApp(ctx context.Context, opts *rootOptions) (a *app, err error) {
	cfg, err := config.Load(opts.configPath, opts.envFile)
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	a = &app{cfg: cfg, logger: logger, closeLog: closeLog}
	partial := a
	defer func() {
		if err != nil {
			partial.close()
		}
	}()

	takeover := true
	if cfg.State.LockTakeover != nil {
		takeover = *cfg.State.LockTakeover
	}
	a.lock, err = store.AcquireInstanceLock(cfg.State.Dir, cfg.Symbol, store.LockOptions{
		Takeover:   takeover,
		StaleAfter: time.Duration(cfg.State.LockStaleSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	a.client, err = backpack.NewClient(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("exchange client: %w", err)
	}
	a.quoter, err = quote.NewQuoter(cfg.Quote)
	if err != nil {
		return nil, err
	}

	a.registry = instrument.NewRegistry(a.client, logger)
	loadCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Exchange.HTTPTimeoutSec)*time.Second*2)
	err = a.registry.Refresh(loadCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("load instrument rules: %w", err)
	}
	rules, err := a.registry.Tradable(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	if err := a.quoter.CheckSize(rules); err != nil {
		logger.Warn("position_size_below_minimum",
			zap.String("symbol", cfg.Symbol),
			zap.String("position_size", a.quoter.Size().String()),
			zap.String("min_qty", rules.MinQty.String()),
		)
	}

	a.alerts = buildAlertManager(cfg, logger)
	a.monitor = safety.NewMonitor(cfg.FailureAlerts, logger)
	a.monitor.SetAlerter(a.alerts)

	logger.Info("startup_complete",
		zap.String("symbol", cfg.Symbol),
		zap.String("api_public_key", a.client.PublicKey()),
		zap.String("price_tick", rules.PriceTick.String()),
		zap.String("qty_step", rules.QtyStep.String()),
		zap.String("min_qty", rules.MinQty.String()),
		zap.String("lock", a.lock.Path()),
	)
	return a, nil
}

func (a *app) cycle() *engine.Cycle {
	return &engine.Cycle{
		Exchange:    a.client,
		Rules:       a.registry,
		Quoter:      a.quoter,
		Symbol:      a.cfg.Symbol,
		CallTimeout: time.Duration(a.cfg.Exchange.CallTimeoutSec) * time.Second,
		Monitor:     a.monitor,
		Logger:      a.logger.Named("cycle"),
	}
}

func (a *app) close() {
	if a.registry != nil {
		a.registry.Stop()
	}
	if a.alerts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.alerts.Close(ctx); err != nil {
			a.logger.Warn("alert_close_failed", zap.Error(err))
		}
		cancel()
	}
	if err := a.lock.Release(); err != nil {
		a.logger.Warn("instance_lock_release_failed", zap.Error(err))
	}
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", err)
		}
	}
}

func buildAlertManager(cfg config.Config, logger *zap.Logger) *alert.Manager {
	tg := cfg.Observability.Telegram
	if !tg.Enabled {
		return nil
	}
	notifier := alert.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBaseURL, time.Duration(tg.TimeoutSec)*time.Second)
	return alert.NewManager("backpack", cfg.Symbol, notifier, logger)
}
