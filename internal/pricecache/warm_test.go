package pricecache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpulse/stockpulse/internal/telemetry"
)

func TestWarmCacheRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewWarmCache(client, 15*time.Minute, zerolog.Nop())

	e := Entry{
		Symbol:      "AAPL",
		Price:       191.2,
		Status:      StatusOK,
		DataSource:  SourcePull,
		LastUpdated: time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	mock.ExpectSet("stockpulse:quote:AAPL", data, 15*time.Minute).SetVal("OK")
	require.NoError(t, w.Set(context.Background(), e))

	mock.ExpectGet("stockpulse:quote:AAPL").SetVal(string(data))
	got, ok := w.Get(context.Background(), "AAPL")
	require.True(t, ok)
	assert.Equal(t, e, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarmCacheMissAndErrorDegrade(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewWarmCache(client, time.Minute, zerolog.Nop())

	mock.ExpectGet("stockpulse:quote:MSFT").RedisNil()
	_, ok := w.Get(context.Background(), "MSFT")
	assert.False(t, ok)

	mock.ExpectGet("stockpulse:quote:MSFT").SetErr(assert.AnError)
	_, ok = w.Get(context.Background(), "MSFT")
	assert.False(t, ok, "redis errors degrade to misses")

	mock.ExpectGet("stockpulse:quote:MSFT").SetVal("{not json")
	_, ok = w.Get(context.Background(), "MSFT")
	assert.False(t, ok, "corrupt payloads degrade to misses")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuoteServesWarmTierWithoutPull(t *testing.T) {
	client, mock := redismock.NewClientMock()
	w := NewWarmCache(client, 15*time.Minute, zerolog.Nop())

	source := &fakeSource{}
	m := telemetry.New(prometheus.NewRegistry())
	c := New(Options{MaxSymbols: 2}, &fakeFeed{}, source, w, m, zerolog.Nop())

	cached := Entry{
		Symbol:      "TSLA",
		Price:       250.4,
		Status:      StatusOK,
		DataSource:  SourcePull,
		LastUpdated: time.Now(),
	}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	mock.ExpectGet("stockpulse:quote:TSLA").SetVal(string(data))

	e := c.Quote(context.Background(), "TSLA")

	assert.Equal(t, 250.4, e.Price)
	assert.Equal(t, SourceCache, e.DataSource)
	assert.Zero(t, source.latests, "warm hit must not pull")
	assert.NoError(t, mock.ExpectationsWereMet())
}
