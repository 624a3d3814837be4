// Package broker submits executed recommendations as notional market orders
// over the trading API.
package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// Config configures the broker client.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Client is the HTTP order-submission adapter, breaker-guarded so a dead
// broker fails fast instead of stalling every sweep.
type Client struct {
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds a broker client.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	log = log.With().Str("component", "broker").Logger()

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("APCA-API-KEY-ID", cfg.APIKey).
		SetHeader("APCA-API-SECRET-KEY", cfg.APISecret)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broker",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("broker breaker state change")
		},
	})

	return &Client{http: http, breaker: breaker, log: log}
}

type orderRequest struct {
	Symbol      string  `json:"symbol"`
	Notional    float64 `json:"notional"`
	Side        string  `json:"side"`
	Type        string  `json:"type"`
	TimeInForce string  `json:"time_in_force"`
}

type orderResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	FilledAvgPrice string `json:"filled_avg_price"`
}

// fillPrice parses the order's fill price, which the API sends as a string
// and leaves null until the fill settles.
func (o orderResponse) fillPrice() float64 {
	p, err := strconv.ParseFloat(o.FilledAvgPrice, 64)
	if err != nil {
		return 0
	}
	return p
}

// Submit places a notional market order for the recommendation.
func (c *Client) Submit(ctx context.Context, rec domain.Recommendation) (domain.Order, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		var out orderResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(orderRequest{
				Symbol:      rec.Symbol,
				Notional:    rec.Amount,
				Side:        string(rec.Action),
				Type:        "market",
				TimeInForce: "day",
			}).
			SetResult(&out).
			Post("/v2/orders")
		if err != nil {
			return nil, fmt.Errorf("submit order for %s: %w", rec.Symbol, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("submit order for %s: %s: %s", rec.Symbol, resp.Status(), resp.String())
		}
		return out, nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	out := res.(orderResponse)
	c.log.Info().
		Str("symbol", rec.Symbol).Str("order_id", out.ID).Str("status", out.Status).
		Msg("order submitted")
	return domain.Order{OrderID: out.ID, FillPrice: out.fillPrice(), Status: out.Status}, nil
}
