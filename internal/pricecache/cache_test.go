package pricecache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpulse/stockpulse/internal/telemetry"
)

type fakeFeed struct {
	subs   []string
	unsubs []string
	err    error
}

func (f *fakeFeed) Subscribe(symbol string) error {
	f.subs = append(f.subs, symbol)
	return f.err
}

func (f *fakeFeed) Unsubscribe(symbol string) error {
	f.unsubs = append(f.unsubs, symbol)
	return f.err
}

type fakeSource struct {
	quote   Quote
	hist    History
	err     error
	latests int
}

func (s *fakeSource) Latest(_ context.Context, _ string) (Quote, error) {
	s.latests++
	if s.err != nil {
		return Quote{}, s.err
	}
	return s.quote, nil
}

func (s *fakeSource) Daily(_ context.Context, _ string, _ int) (History, error) {
	return s.hist, nil
}

func newTestCache(t *testing.T, max int, feed *fakeFeed, source *fakeSource) *Cache {
	t.Helper()
	m := telemetry.New(prometheus.NewRegistry())
	c := New(Options{MaxSymbols: max, PullTTL: 15 * time.Minute}, feed, source, nil, m, zerolog.Nop())
	return c
}

func TestSubscribeEvictsOldest(t *testing.T) {
	feed := &fakeFeed{}
	c := newTestCache(t, 2, feed, &fakeSource{})

	require.NoError(t, c.Subscribe("AAPL"))
	require.NoError(t, c.Subscribe("MSFT"))
	c.Apply(Tick{Symbol: "AAPL", Price: 190, At: time.Now()})

	require.NoError(t, c.Subscribe("TSLA"))

	assert.Equal(t, []string{"MSFT", "TSLA"}, c.Active())
	assert.Equal(t, []string{"AAPL"}, feed.unsubs)

	_, ok := c.Get("AAPL")
	assert.False(t, ok, "evicted symbol should lose its push entry")
}

func TestResubscribeRefreshesPosition(t *testing.T) {
	feed := &fakeFeed{}
	c := newTestCache(t, 2, feed, &fakeSource{})

	require.NoError(t, c.Subscribe("AAPL"))
	require.NoError(t, c.Subscribe("MSFT"))
	require.NoError(t, c.Subscribe("AAPL")) // moves AAPL to the back
	require.NoError(t, c.Subscribe("TSLA"))

	assert.Equal(t, []string{"AAPL", "TSLA"}, c.Active())
	assert.Equal(t, []string{"MSFT"}, feed.unsubs)
}

func TestUnsubscribeDropsPushEntry(t *testing.T) {
	feed := &fakeFeed{}
	c := newTestCache(t, 2, feed, &fakeSource{})

	require.NoError(t, c.Subscribe("AAPL"))
	c.Apply(Tick{Symbol: "AAPL", Price: 190, At: time.Now()})
	require.NoError(t, c.Unsubscribe("AAPL"))

	_, ok := c.Get("AAPL")
	assert.False(t, ok)
	assert.Empty(t, c.Active())
	assert.NoError(t, c.Unsubscribe("AAPL"), "unknown symbol is a no-op")
}

func TestApplyIgnoresInactiveSymbol(t *testing.T) {
	c := newTestCache(t, 2, &fakeFeed{}, &fakeSource{})

	c.Apply(Tick{Symbol: "NVDA", Price: 900, At: time.Now()})

	_, ok := c.Get("NVDA")
	assert.False(t, ok)
}

func TestQuoteServesFreshPushEntry(t *testing.T) {
	source := &fakeSource{}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	require.NoError(t, c.Subscribe("AAPL"))
	c.Apply(Tick{Symbol: "AAPL", Price: 191.5, Size: 100, At: time.Now()})

	e := c.Quote(context.Background(), "AAPL")
	assert.Equal(t, 191.5, e.Price)
	assert.Equal(t, SourcePush, e.DataSource)
	assert.Zero(t, source.latests, "push entry must not trigger a pull")
}

func TestQuotePullsOnceWithinTTL(t *testing.T) {
	source := &fakeSource{
		quote: Quote{Price: 421.3, ChangePercent: 1.2, Volume: 1000},
		hist:  History{Closes: []float64{418, 419, 420}, Volumes: []int64{900, 950, 1000}},
	}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	first := c.Quote(context.Background(), "MSFT")
	second := c.Quote(context.Background(), "MSFT")

	assert.Equal(t, 1, source.latests, "second read inside TTL must hit the cache")
	assert.Equal(t, StatusOK, first.Status)
	assert.Equal(t, SourcePull, first.DataSource)
	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, []float64{418, 419, 420}, second.Closes)
}

func TestQuoteRepullsAfterTTL(t *testing.T) {
	source := &fakeSource{quote: Quote{Price: 10}}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Quote(context.Background(), "IBM")

	now = now.Add(16 * time.Minute)
	c.Quote(context.Background(), "IBM")

	assert.Equal(t, 2, source.latests)
}

func TestQuoteMarketClosedFallsBackToPreviousClose(t *testing.T) {
	source := &fakeSource{quote: Quote{Price: 0, PrevClose: 189.7, MarketClosed: true}}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	e := c.Quote(context.Background(), "AAPL")

	assert.Equal(t, StatusMarketClosed, e.Status)
	assert.Equal(t, 189.7, e.Price)
	assert.Zero(t, e.ChangePercent)
	assert.True(t, e.MarketClosed)
	assert.True(t, e.OK())
}

func TestQuoteErrorDegradesToMarker(t *testing.T) {
	source := &fakeSource{err: errors.New("upstream 503")}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	e := c.Quote(context.Background(), "AAPL")

	assert.False(t, e.OK())
	assert.True(t, strings.HasPrefix(e.Status, StatusErrorPrefix))
	assert.Contains(t, e.Status, "upstream 503")

	got, ok := c.Get("AAPL")
	require.True(t, ok, "error marker should be readable")
	assert.False(t, got.OK())

	// Error entries are never fresh, so the next read retries the source.
	source.err = nil
	source.quote = Quote{Price: 42}
	e = c.Quote(context.Background(), "AAPL")
	assert.Equal(t, StatusOK, e.Status)
	assert.Equal(t, 42.0, e.Price)
}

func TestStalePushEntryFallsThroughToPull(t *testing.T) {
	source := &fakeSource{quote: Quote{Price: 200}}
	c := newTestCache(t, 2, &fakeFeed{}, source)

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Subscribe("AAPL"))
	c.Apply(Tick{Symbol: "AAPL", Price: 195, At: now})

	now = now.Add(2 * time.Minute)
	e := c.Quote(context.Background(), "AAPL")

	assert.Equal(t, 1, source.latests)
	assert.Equal(t, 200.0, e.Price)
	assert.Equal(t, SourcePull, e.DataSource)
}
