package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stockpulse/stockpulse/internal/application"
	"github.com/stockpulse/stockpulse/internal/broker"
	"github.com/stockpulse/stockpulse/internal/config"
	"github.com/stockpulse/stockpulse/internal/feed"
	opshttp "github.com/stockpulse/stockpulse/internal/interfaces/http"
	"github.com/stockpulse/stockpulse/internal/lifecycle"
	"github.com/stockpulse/stockpulse/internal/pricecache"
	"github.com/stockpulse/stockpulse/internal/scheduler"
	"github.com/stockpulse/stockpulse/internal/strategy"
	"github.com/stockpulse/stockpulse/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the engine: scheduler, sweeps, and ops server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			setLogLevel(cfg.LogLevel)
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := lifecycle.EnsureSchema(ctx, db); err != nil {
		return err
	}

	var warm *pricecache.WarmCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, warm quote tier disabled")
		} else {
			warm = pricecache.NewWarmCache(rdb, cfg.Prices.PullTTL.Std(), log.Logger)
		}
	}

	var push pricecache.PushFeed = noopFeed{}
	var wsFeed *pricecache.Feed
	if cfg.Prices.FeedURL != "" {
		wsFeed = pricecache.NewFeed(cfg.Prices.FeedURL, cfg.Prices.FeedKey, cfg.Prices.FeedSecret, log.Logger)
		push = wsFeed
	}

	cache := pricecache.New(pricecache.Options{
		MaxSymbols:  cfg.Prices.MaxSymbols,
		PullTTL:     cfg.Prices.PullTTL.Std(),
		PullTimeout: cfg.Prices.PullTimeout.Std(),
		HistoryDays: cfg.Prices.HistoryDays,
		PullRPS:     cfg.Prices.PullRPS,
		PullBurst:   cfg.Prices.PullBurst,
	}, push, pricecache.YahooSource{}, warm, metrics, log.Logger)

	if wsFeed != nil {
		wsFeed.OnTick(cache.Apply)
		if err := wsFeed.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("price feed unavailable, serving from pull path only")
		} else {
			defer wsFeed.Close()
		}
	}

	store := lifecycle.NewStore(db, cfg.Database.Timeout.Std())
	svc := lifecycle.NewService(store, broker.New(broker.Config{
		BaseURL:   cfg.Broker.BaseURL,
		APIKey:    cfg.Broker.APIKey,
		APISecret: cfg.Broker.APISecret,
		Timeout:   cfg.Broker.Timeout.Std(),
	}, log.Logger), lifecycle.Options{
		ShortTermTTL:        cfg.Engine.ShortTermTTL.Std(),
		LongTermTTL:         cfg.Engine.LongTermTTL.Std(),
		DefaultAmount:       cfg.Engine.DefaultAmount,
		RequiredAcceptances: cfg.Engine.RequiredAcceptances,
	}, metrics, log.Logger)

	manager := strategy.NewManager(store, metrics, log.Logger)
	if err := strategy.RegisterDefaults(ctx, manager); err != nil {
		return fmt.Errorf("register strategies: %w", err)
	}

	engine := application.NewEngine(
		feed.New(feed.Config{
			ArticlesURL:  cfg.Feed.ArticlesURL,
			SentimentURL: cfg.Feed.SentimentURL,
			Timeout:      cfg.Feed.Timeout.Std(),
		}, log.Logger),
		cache, manager, svc,
		application.Options{Window: cfg.Feed.Window.Std(), MinConfidence: cfg.Engine.MinConfidence},
		log.Logger,
	)

	ops := opshttp.NewServer(cfg.Ops.Listen, manager, svc, registry, log.Logger)
	go func() {
		if err := ops.Start(); err != nil {
			log.Error().Err(err).Msg("ops server failed")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ops.Shutdown(shutdownCtx)
	}()

	err = scheduler.New(engine, svc, cfg.Engine.RunInterval.Std(), cfg.Engine.SweepInterval.Std(), log.Logger).Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

// noopFeed stands in when no push feed is configured; every quote then goes
// through the warm and pull tiers.
type noopFeed struct{}

func (noopFeed) Subscribe(string) error   { return nil }
func (noopFeed) Unsubscribe(string) error { return nil }
