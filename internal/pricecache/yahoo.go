package pricecache

import (
	"context"
	"fmt"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
)

// YahooSource pulls quotes and daily bars from Yahoo Finance. The upstream
// client manages its own HTTP transport, so the context only bounds the
// limiter wait upstream of it.
type YahooSource struct{}

// Latest fetches the current quote for symbol.
func (YahooSource) Latest(_ context.Context, symbol string) (Quote, error) {
	q, err := quote.Get(symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q == nil {
		return Quote{}, fmt.Errorf("quote %s: no data", symbol)
	}
	return Quote{
		Price:         q.RegularMarketPrice,
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        int64(q.RegularMarketVolume),
		PrevClose:     q.RegularMarketPreviousClose,
		MarketClosed:  string(q.MarketState) != "REGULAR",
	}, nil
}

// Daily fetches up to days of daily bars for symbol, oldest first.
func (YahooSource) Daily(_ context.Context, symbol string, days int) (History, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	iter := chart.Get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})

	var hist History
	for iter.Next() {
		bar := iter.Bar()
		c, _ := bar.Close.Float64()
		hist.Closes = append(hist.Closes, c)
		hist.Volumes = append(hist.Volumes, int64(bar.Volume))
	}
	if err := iter.Err(); err != nil {
		return History{}, fmt.Errorf("chart %s: %w", symbol, err)
	}
	return hist, nil
}
