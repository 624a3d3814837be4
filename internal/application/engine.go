// Package application wires one engine tick: fetch articles and sentiment,
// assemble the price snapshot, run the strategies, and persist the drafts
// that clear the confidence bar.
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpulse/stockpulse/internal/domain"
	"github.com/stockpulse/stockpulse/internal/pricecache"
	"github.com/stockpulse/stockpulse/internal/strategy"
)

// Feed supplies recent articles and their sentiment scores.
type Feed interface {
	Articles(ctx context.Context, since time.Time) ([]domain.Article, error)
	Scores(ctx context.Context, articleIDs []string) (map[string]domain.Sentiment, error)
}

// Prices serves quotes and maintains the push subscription set.
type Prices interface {
	Subscribe(symbol string) error
	Quote(ctx context.Context, symbol string) pricecache.Entry
}

// Recommender persists accepted drafts.
type Recommender interface {
	Create(ctx context.Context, d domain.Draft) (domain.Recommendation, error)
}

// Options configures the engine tick.
type Options struct {
	Window        time.Duration
	MinConfidence float64
}

// Engine runs the article-to-recommendation pipeline once per tick.
type Engine struct {
	feed        Feed
	prices      Prices
	manager     *strategy.Manager
	recommender Recommender
	opts        Options
	log         zerolog.Logger
	now         func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(feed Feed, prices Prices, manager *strategy.Manager, recommender Recommender, opts Options, log zerolog.Logger) *Engine {
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.7
	}
	return &Engine{
		feed:        feed,
		prices:      prices,
		manager:     manager,
		recommender: recommender,
		opts:        opts,
		log:         log.With().Str("component", "engine").Logger(),
		now:         time.Now,
	}
}

// Tick runs one full pipeline pass. Per-item gaps (unscored articles,
// unpriceable symbols) are skipped; only a failure to reach the feed at all
// is an error.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()

	articles, err := e.feed.Articles(ctx, now.Add(-e.opts.Window))
	if err != nil {
		return fmt.Errorf("engine tick: %w", err)
	}
	if len(articles) == 0 {
		e.log.Debug().Msg("no recent articles, skipping tick")
		return nil
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	scores, err := e.feed.Scores(ctx, ids)
	if err != nil {
		return fmt.Errorf("engine tick: %w", err)
	}

	snap := &domain.Snapshot{
		Articles:  articles,
		Sentiment: scores,
		Prices:    e.collectPrices(ctx, articles, scores),
		AsOf:      now,
	}

	drafts := e.manager.RunAll(ctx, snap)

	created, buys, sells := 0, 0, 0
	for _, d := range drafts {
		if d.Confidence < e.opts.MinConfidence {
			continue
		}
		if _, err := e.recommender.Create(ctx, d); err != nil {
			e.log.Error().Err(err).Str("symbol", d.Symbol).Str("strategy", d.StrategyName).
				Msg("recommendation create failed")
			continue
		}
		created++
		if d.Action == domain.ActionBuy {
			buys++
		} else {
			sells++
		}
	}

	e.log.Info().
		Int("articles", len(articles)).Int("scored", len(scores)).
		Int("symbols", len(snap.Prices)).Int("drafts", len(drafts)).
		Int("created", created).Int("buys", buys).Int("sells", sells).
		Msg("engine tick complete")
	return nil
}

// collectPrices quotes every symbol mentioned by a scored article. Each
// symbol is also (re-)subscribed so hot symbols stay in the push set.
// Degraded entries are left out of the snapshot.
func (e *Engine) collectPrices(ctx context.Context, articles []domain.Article, scores map[string]domain.Sentiment) map[string]domain.PriceView {
	symbols := make(map[string]struct{})
	for _, a := range articles {
		if _, ok := scores[a.ID]; !ok {
			continue
		}
		for _, sym := range a.Symbols {
			symbols[sym] = struct{}{}
		}
	}

	prices := make(map[string]domain.PriceView, len(symbols))
	for sym := range symbols {
		if err := e.prices.Subscribe(sym); err != nil {
			e.log.Warn().Err(err).Str("symbol", sym).Msg("price subscription failed")
		}
		entry := e.prices.Quote(ctx, sym)
		if !entry.OK() {
			e.log.Debug().Str("symbol", sym).Str("status", entry.Status).Msg("symbol left out of snapshot")
			continue
		}
		prices[sym] = domain.PriceView{
			Symbol:        entry.Symbol,
			Price:         entry.Price,
			ChangePercent: entry.ChangePercent,
			Volume:        entry.Volume,
			Closes:        entry.Closes,
			Volumes:       entry.Volumes,
			DataSource:    entry.DataSource,
			MarketClosed:  entry.MarketClosed,
			AsOf:          entry.LastUpdated,
		}
	}
	return prices
}
