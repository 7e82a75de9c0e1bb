// Package app assembles the pipeline: venue producers feeding the event bus,
// spread engines consuming it, and the alert sinks plus admin server around
// them. It owns startup ordering and the reverse shutdown sequence.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/premarket-labs/spreadbot/internal/bus"
	"github.com/premarket-labs/spreadbot/internal/config"
	"github.com/premarket-labs/spreadbot/internal/domain"
	"github.com/premarket-labs/spreadbot/internal/engine"
	"github.com/premarket-labs/spreadbot/internal/feed"
	"github.com/premarket-labs/spreadbot/internal/notify"
	"github.com/premarket-labs/spreadbot/internal/server"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	dryRun  bool
	closers []func()
}

// New creates an App. dryRun forces the Telegram sink into logging-only mode
// and activates it even when disabled in configuration.
func New(cfg *config.Config, logger *slog.Logger, dryRun bool) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		dryRun: dryRun,
	}
}

type namedEngine struct {
	name   string
	engine *engine.Engine
}

// Run wires everything and blocks until ctx is cancelled, then tears the
// pipeline down in order: producers, engines, bus, server.
func (a *App) Run(ctx context.Context) error {
	b := bus.New[domain.MarketUpdate]()

	recorder := notify.NewRecorder()
	telegram := a.buildTelegram()

	sinks := []domain.AlertSink{recorder}
	if telegram != nil {
		sinks = append(sinks, telegram)
	} else {
		sinks = append(sinks, notify.NewLogSink(a.logger))
	}
	if a.cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() { rdb.Close() })
		sinks = append(sinks, notify.NewRedisSink(rdb, a.cfg.Redis.Channel))
	}
	sink := notify.NewFanout(sinks, a.logger)

	engines := a.buildEngines(b, sink)
	if len(engines) == 0 {
		a.logger.Warn("no rule engines configured; nothing will alert")
	}

	producers := a.buildProducers(b)
	if len(producers) == 0 {
		a.logger.Warn("no venue producers enabled; runtime will idle")
	}

	// Engines run on their own context so producers can be stopped first
	// during shutdown while engines drain what is already on the bus.
	engineCtx, stopEngines := context.WithCancel(context.Background())
	defer stopEngines()
	g, gctx := errgroup.WithContext(engineCtx)
	engineNames := make([]string, 0, len(engines))
	for _, ne := range engines {
		engineNames = append(engineNames, ne.name)
		eng := ne.engine
		g.Go(func() error { return eng.Run(gctx) })
	}

	backoff := feed.BackoffConfig{
		Initial:    secondsToDuration(a.cfg.Backoff.InitialSeconds),
		Max:        secondsToDuration(a.cfg.Backoff.MaxSeconds),
		Multiplier: a.cfg.Backoff.Multiplier,
	}
	producerNames := make([]string, 0, len(producers))
	supervisors := make([]*feed.Supervisor, 0, len(producers))
	for _, p := range producers {
		producerNames = append(producerNames, p.Name())
		sup := feed.NewSupervisor(p, backoff, a.logger)
		sup.Start(ctx)
		supervisors = append(supervisors, sup)
	}

	var srv *server.Server
	if a.cfg.Server.Enabled {
		var muter server.Muter
		if telegram != nil {
			muter = telegram
		}
		srv = server.New(server.Options{
			Addr:      a.cfg.Server.Addr,
			Recorder:  recorder,
			Muter:     muter,
			Producers: producerNames,
			Engines:   engineNames,
		}, a.logger)
		go func() {
			if err := srv.Start(); err != nil {
				a.logger.Error("admin server failed", slog.String("error", err.Error()))
			}
		}()
	}

	a.logger.Info("pipeline running",
		slog.Int("producers", len(producers)),
		slog.Int("engines", len(engines)),
	)

	<-ctx.Done()
	a.logger.Info("shutdown requested")

	for _, sup := range supervisors {
		sup.Stop()
	}
	stopEngines()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("engine exited with error", slog.String("error", err.Error()))
	}
	b.Close()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("admin server shutdown failed", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("pipeline stopped")
	return ctx.Err()
}

// Close releases external resources in reverse registration order. Safe to
// call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildTelegram() *notify.TelegramSink {
	cfg := a.cfg.Telegram
	if !cfg.Enabled && !a.dryRun {
		a.logger.Info("telegram delivery disabled")
		return nil
	}
	if !a.dryRun && (cfg.BotToken == "" || cfg.ChatID == "") {
		a.logger.Warn("telegram enabled without credentials; disabling delivery")
		return nil
	}
	return notify.NewTelegramSink(notify.TelegramOptions{
		Token:         cfg.BotToken,
		ChatID:        cfg.ChatID,
		AlertPrefix:   cfg.AlertPrefix,
		RatePerMinute: cfg.RatePerMinute,
		DryRun:        a.dryRun,
	}, a.logger)
}

func (a *App) buildEngines(b *bus.Bus[domain.MarketUpdate], sink domain.AlertSink) []namedEngine {
	var engines []namedEngine

	if pairs := a.cfg.Rules.Spread.Pairs(); len(pairs) > 0 {
		engines = append(engines, namedEngine{
			name: "spread",
			engine: engine.New("spread", b, sink, a.cfg.Links,
				a.cfg.Rules.Spread.Thresholds(), engine.DirectPairs(pairs), a.logger),
		})
	} else {
		a.logger.Warn("no spread venue pairs configured; direct spread alerts disabled")
	}

	if a.cfg.Rules.Hedged.Enabled {
		if pairs := a.cfg.Rules.Hedged.HedgedPairs(); len(pairs) > 0 {
			engines = append(engines, namedEngine{
				name: "hedged_spread",
				engine: engine.New("hedged_spread", b, sink, a.cfg.Links,
					a.cfg.Rules.Hedged.Thresholds(), engine.HedgedPairs(pairs), a.logger),
			})
		} else {
			a.logger.Warn("hedged spreads enabled but no valid pairs supplied; disabling")
		}
	}
	return engines
}

func (a *App) buildProducers(b *bus.Bus[domain.MarketUpdate]) []feed.Producer {
	var producers []feed.Producer
	venues := a.cfg.Venues

	if venues.Mexc.Enabled {
		producers = append(producers, feed.NewMexcBookTicker(b, venues.Mexc.Symbols, a.logger))
	}
	if venues.MexcListing.Enabled {
		interval := secondsToDuration(venues.MexcListing.PollInterval)
		producers = append(producers, feed.NewMexcListingPoller(b, interval, a.logger))
	}
	if venues.Whales.Enabled {
		producers = append(producers, feed.NewWhalesMarket(b, venues.Whales.URL, venues.Whales.Tokens, a.logger))
	}
	if venues.Bybit.Enabled {
		producers = append(producers, feed.NewBybitTicker(b, venues.Bybit.Symbols, a.logger))
	}
	if venues.Hyperliquid.Enabled {
		producers = append(producers, feed.NewHyperliquidTicker(b, venues.Hyperliquid.Symbols, a.logger))
	}
	if venues.Binance.Enabled {
		producers = append(producers, feed.NewBinanceFuturesTicker(b, venues.Binance.Symbols, a.logger))
	}
	if venues.Synthetic.Enabled {
		interval := time.Duration(venues.Synthetic.IntervalMs) * time.Millisecond
		producers = append(producers, feed.NewSynthetic(b, venues.Synthetic.Tokens, venues.Synthetic.Venues, interval, a.logger))
	}
	return producers
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
