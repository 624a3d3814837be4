// Package pricecache keeps a bounded set of live prices. Symbols the engine
// is watching get push updates over the websocket feed; everything else is
// answered from a warm Redis tier or pulled on demand from the quote source.
package pricecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/stockpulse/stockpulse/internal/telemetry"
)

// Data source labels recorded on entries.
const (
	SourcePush  = "websocket"
	SourcePull  = "rest"
	SourceCache = "cache"
)

// Entry status markers. Error statuses carry the failure message after the
// prefix so callers can surface it without a second lookup.
const (
	StatusOK           = "ok"
	StatusMarketClosed = "market_closed"
	StatusErrorPrefix  = "error: "
)

// pushStaleAfter bounds how long a push entry is trusted without a new tick
// before Quote falls back to the pull path.
const pushStaleAfter = time.Minute

// Entry is one cached price. Closes and Volumes hold recent daily bars
// oldest-first; they are filled on the pull path and kept across push ticks.
type Entry struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	Closes        []float64 `json:"closes,omitempty"`
	Volumes       []int64   `json:"volumes,omitempty"`
	Status        string    `json:"status"`
	DataSource    string    `json:"data_source"`
	MarketClosed  bool      `json:"market_closed"`
	LastUpdated   time.Time `json:"last_updated"`
}

// OK reports whether the entry carries a usable price.
func (e Entry) OK() bool {
	return e.Status == StatusOK || e.Status == StatusMarketClosed
}

// Tick is one trade update from the push feed.
type Tick struct {
	Symbol string
	Price  float64
	Size   int64
	At     time.Time
}

// PushFeed is the subscription side of the websocket feed. Calls may block
// on network writes, so the cache never invokes them under its lock.
type PushFeed interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string) error
}

// Quote is a single pulled quote.
type Quote struct {
	Price         float64
	ChangePercent float64
	Volume        int64
	PrevClose     float64
	MarketClosed  bool
}

// History is a run of recent daily bars, oldest-first.
type History struct {
	Closes  []float64
	Volumes []int64
}

// QuoteSource is the pull-side price provider.
type QuoteSource interface {
	Latest(ctx context.Context, symbol string) (Quote, error)
	Daily(ctx context.Context, symbol string, days int) (History, error)
}

// Options configures a Cache.
type Options struct {
	MaxSymbols  int
	PullTTL     time.Duration
	PullTimeout time.Duration
	HistoryDays int
	PullRPS     float64
	PullBurst   int
}

// Cache is the bounded live price cache. One mutex guards both the entry map
// and the active subscription list; the push apply path and the read paths
// are short enough that finer locking buys nothing.
type Cache struct {
	feed    PushFeed
	source  QuoteSource
	warm    *WarmCache
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *telemetry.Metrics
	log     zerolog.Logger

	maxSymbols  int
	pullTTL     time.Duration
	pullTimeout time.Duration
	historyDays int
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]Entry
	active  []string            // subscription order, oldest first
	actives map[string]struct{} // membership of active
}

// New builds a Cache. warm may be nil to disable the Redis tier.
func New(opts Options, feed PushFeed, source QuoteSource, warm *WarmCache, metrics *telemetry.Metrics, log zerolog.Logger) *Cache {
	if opts.MaxSymbols <= 0 {
		opts.MaxSymbols = 30
	}
	if opts.PullTTL <= 0 {
		opts.PullTTL = 15 * time.Minute
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = 10 * time.Second
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 6
	}
	if opts.PullRPS <= 0 {
		opts.PullRPS = 2
	}
	if opts.PullBurst <= 0 {
		opts.PullBurst = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "quote-pull",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("quote pull breaker state change")
		},
	})

	return &Cache{
		feed:        feed,
		source:      source,
		warm:        warm,
		limiter:     rate.NewLimiter(rate.Limit(opts.PullRPS), opts.PullBurst),
		breaker:     breaker,
		metrics:     metrics,
		log:         log.With().Str("component", "pricecache").Logger(),
		maxSymbols:  opts.MaxSymbols,
		pullTTL:     opts.PullTTL,
		pullTimeout: opts.PullTimeout,
		historyDays: opts.HistoryDays,
		now:         time.Now,
		entries:     make(map[string]Entry),
		actives:     make(map[string]struct{}),
	}
}

// Get returns the cached entry for symbol without touching the network.
func (c *Cache) Get(symbol string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	return e, ok
}

// Subscribe adds symbol to the push set. Re-subscribing an active symbol
// refreshes its position so hot symbols are not evicted by churn. When the
// set is full the oldest subscription is evicted, its push entry dropped,
// and the feed told to stop sending it.
func (c *Cache) Subscribe(symbol string) error {
	c.mu.Lock()

	if _, ok := c.actives[symbol]; ok {
		c.touchLocked(symbol)
		c.mu.Unlock()
		return nil
	}

	var evicted string
	if len(c.active) >= c.maxSymbols {
		evicted = c.active[0]
		c.active = c.active[1:]
		delete(c.actives, evicted)
		if e, ok := c.entries[evicted]; ok && e.DataSource == SourcePush {
			delete(c.entries, evicted)
		}
	}
	c.active = append(c.active, symbol)
	c.actives[symbol] = struct{}{}
	c.metrics.ActiveSubscriptions.Set(float64(len(c.active)))
	c.mu.Unlock()

	if evicted != "" {
		c.metrics.CacheEvictions.Inc()
		c.log.Debug().Str("symbol", evicted).Msg("evicted oldest subscription")
		if err := c.feed.Unsubscribe(evicted); err != nil {
			c.log.Warn().Err(err).Str("symbol", evicted).Msg("feed unsubscribe failed")
		}
	}
	if err := c.feed.Subscribe(symbol); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	return nil
}

// Unsubscribe removes symbol from the push set and drops its push entry.
// Unknown symbols are a no-op.
func (c *Cache) Unsubscribe(symbol string) error {
	c.mu.Lock()
	if _, ok := c.actives[symbol]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.actives, symbol)
	for i, s := range c.active {
		if s == symbol {
			c.active = append(c.active[:i], c.active[i+1:]...)
			break
		}
	}
	if e, ok := c.entries[symbol]; ok && e.DataSource == SourcePush {
		delete(c.entries, symbol)
	}
	c.metrics.ActiveSubscriptions.Set(float64(len(c.active)))
	c.mu.Unlock()

	if err := c.feed.Unsubscribe(symbol); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbol, err)
	}
	return nil
}

// Active returns the current subscription set, oldest first.
func (c *Cache) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.active))
	copy(out, c.active)
	return out
}

// Apply folds one push tick into the cache. Ticks for symbols no longer in
// the active set are dropped; the feed can race an eviction.
func (c *Cache) Apply(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.actives[t.Symbol]; !ok {
		return
	}
	prev := c.entries[t.Symbol]
	e := Entry{
		Symbol:        t.Symbol,
		Price:         t.Price,
		ChangePercent: prev.ChangePercent,
		Volume:        t.Size,
		Closes:        prev.Closes,
		Volumes:       prev.Volumes,
		Status:        StatusOK,
		DataSource:    SourcePush,
		LastUpdated:   t.At,
	}
	if e.LastUpdated.IsZero() {
		e.LastUpdated = c.now()
	}
	c.entries[t.Symbol] = e
}

// Quote returns a usable entry for symbol, consulting tiers in order: fresh
// in-process entry, warm Redis tier, then a rate-limited pull through the
// circuit breaker. Failures degrade to an error-status entry rather than an
// error return so one bad symbol cannot stall a whole run.
func (c *Cache) Quote(ctx context.Context, symbol string) Entry {
	c.mu.Lock()
	if e, ok := c.entries[symbol]; ok && c.freshLocked(e) {
		c.mu.Unlock()
		c.metrics.CacheHits.WithLabelValues("memory").Inc()
		return e
	}
	c.mu.Unlock()
	c.metrics.CacheMisses.WithLabelValues("memory").Inc()

	if c.warm != nil {
		if e, ok := c.warm.Get(ctx, symbol); ok {
			c.metrics.CacheHits.WithLabelValues("warm").Inc()
			e.DataSource = SourceCache
			c.store(e)
			return e
		}
		c.metrics.CacheMisses.WithLabelValues("warm").Inc()
	}

	e := c.pull(ctx, symbol)
	if e.OK() {
		c.store(e)
		if c.warm != nil {
			if err := c.warm.Set(ctx, e); err != nil {
				c.log.Warn().Err(err).Str("symbol", symbol).Msg("warm cache write failed")
			}
		}
	}
	return e
}

// pull fetches a quote and recent history from the source. Market-closed
// responses degrade to the previous close; errors degrade to an error entry.
func (c *Cache) pull(ctx context.Context, symbol string) Entry {
	ctx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.errorEntry(symbol, err)
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		q, err := c.source.Latest(ctx, symbol)
		if err != nil {
			return nil, err
		}
		hist, err := c.source.Daily(ctx, symbol, c.historyDays)
		if err != nil {
			// A quote without history is still usable; strategies
			// that need bars treat the gap as no signal.
			c.log.Debug().Err(err).Str("symbol", symbol).Msg("daily history unavailable")
			hist = History{}
		}
		return pulled{quote: q, hist: hist}, nil
	})
	if err != nil {
		c.metrics.QuotePulls.WithLabelValues("error").Inc()
		return c.errorEntry(symbol, err)
	}
	p := res.(pulled)
	c.metrics.QuotePulls.WithLabelValues("ok").Inc()

	e := Entry{
		Symbol:        symbol,
		Price:         p.quote.Price,
		ChangePercent: p.quote.ChangePercent,
		Volume:        p.quote.Volume,
		Closes:        p.hist.Closes,
		Volumes:       p.hist.Volumes,
		Status:        StatusOK,
		DataSource:    SourcePull,
		MarketClosed:  p.quote.MarketClosed,
		LastUpdated:   c.now(),
	}
	if e.Price == 0 && p.quote.PrevClose > 0 {
		e.Price = p.quote.PrevClose
		e.ChangePercent = 0
		e.Status = StatusMarketClosed
		e.MarketClosed = true
	}
	return e
}

type pulled struct {
	quote Quote
	hist  History
}

func (c *Cache) errorEntry(symbol string, err error) Entry {
	c.log.Warn().Err(err).Str("symbol", symbol).Msg("quote pull failed")
	e := Entry{
		Symbol:      symbol,
		Status:      StatusErrorPrefix + err.Error(),
		DataSource:  SourcePull,
		LastUpdated: c.now(),
	}
	c.store(e)
	return e
}

func (c *Cache) store(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Never clobber a live push entry with pulled data.
	if cur, ok := c.entries[e.Symbol]; ok && cur.DataSource == SourcePush && c.freshLocked(cur) {
		return
	}
	c.entries[e.Symbol] = e
}

// freshLocked reports whether an entry can be returned without a pull.
// Push entries go stale quickly; pulled and warm entries live for the TTL.
// Error entries are never fresh.
func (c *Cache) freshLocked(e Entry) bool {
	if !e.OK() {
		return false
	}
	age := c.now().Sub(e.LastUpdated)
	if e.DataSource == SourcePush {
		return age < pushStaleAfter
	}
	return age < c.pullTTL
}

func (c *Cache) touchLocked(symbol string) {
	for i, s := range c.active {
		if s == symbol {
			c.active = append(c.active[:i], c.active[i+1:]...)
			c.active = append(c.active, symbol)
			return
		}
	}
}
