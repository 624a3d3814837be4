package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Feed is a websocket trade-stream client. It authenticates on connect,
// delivers ticks to a handler, and reconnects with backoff, replaying the
// subscription set after each reconnect.
type Feed struct {
	url    string
	key    string
	secret string
	log    zerolog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	closed     bool
	subscribed map[string]struct{}
	handler    func(Tick)
}

// NewFeed builds a Feed. Call OnTick before Start so no updates are lost.
func NewFeed(url, key, secret string, log zerolog.Logger) *Feed {
	return &Feed{
		url:        url,
		key:        key,
		secret:     secret,
		log:        log.With().Str("component", "pricefeed").Logger(),
		subscribed: make(map[string]struct{}),
	}
}

// OnTick sets the tick handler. The handler runs on the read loop goroutine
// and must not block.
func (f *Feed) OnTick(h func(Tick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// Start connects and runs the read loop until ctx is cancelled.
func (f *Feed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	go f.readLoop(ctx)
	return nil
}

// Subscribe asks the stream for trade updates on symbol.
func (f *Feed) Subscribe(symbol string) error {
	f.mu.Lock()
	f.subscribed[symbol] = struct{}{}
	f.mu.Unlock()
	return f.send(streamRequest{Action: "subscribe", Trades: []string{symbol}})
}

// Unsubscribe stops trade updates for symbol.
func (f *Feed) Unsubscribe(symbol string) error {
	f.mu.Lock()
	delete(f.subscribed, symbol)
	f.mu.Unlock()
	return f.send(streamRequest{Action: "unsubscribe", Trades: []string{symbol}})
}

// Close tears down the connection and stops the read loop for good; a
// closed feed never reconnects.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// dropConn closes the current connection without marking the feed closed,
// so the read loop is free to reconnect.
func (f *Feed) dropConn() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

type streamRequest struct {
	Action string   `json:"action"`
	Key    string   `json:"key,omitempty"`
	Secret string   `json:"secret,omitempty"`
	Trades []string `json:"trades,omitempty"`
}

// streamMessage is one element of the JSON arrays the stream sends. Only
// trade messages ("t") and errors are acted on.
type streamMessage struct {
	Type    string  `json:"T"`
	Symbol  string  `json:"S"`
	Price   float64 `json:"p"`
	Size    int64   `json:"s"`
	At      string  `json:"t"`
	Code    int     `json:"code"`
	Message string  `json:"msg"`
}

func (f *Feed) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}

	f.mu.Lock()
	f.conn = conn
	resub := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		resub = append(resub, s)
	}
	f.mu.Unlock()

	if err := f.send(streamRequest{Action: "auth", Key: f.key, Secret: f.secret}); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if len(resub) > 0 {
		if err := f.send(streamRequest{Action: "subscribe", Trades: resub}); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	f.log.Info().Int("symbols", len(resub)).Msg("price feed connected")
	return nil
}

func (f *Feed) send(req streamRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed not connected")
	}
	return f.conn.WriteJSON(req)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || f.isClosed() {
				return
			}
			f.log.Warn().Err(err).Msg("feed read failed, reconnecting")
			f.dropConn()
			if !f.reconnect(ctx) {
				return
			}
			continue
		}
		f.dispatch(data)
	}
}

// reconnect retries connect with exponential backoff until it succeeds or
// the feed is shut down.
func (f *Feed) reconnect(ctx context.Context) bool {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if f.isClosed() {
			return false
		}
		err := f.connect(ctx)
		if err == nil {
			return true
		}
		f.log.Error().Err(err).Dur("backoff", backoff).Msg("feed reconnect failed")
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) dispatch(data []byte) {
	var msgs []streamMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		f.log.Debug().Err(err).Msg("unparseable feed frame")
		return
	}

	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	for _, m := range msgs {
		switch m.Type {
		case "t":
			if handler == nil {
				continue
			}
			at, err := time.Parse(time.RFC3339Nano, m.At)
			if err != nil {
				at = time.Now()
			}
			handler(Tick{Symbol: m.Symbol, Price: m.Price, Size: m.Size, At: at})
		case "error":
			f.log.Error().Int("code", m.Code).Str("msg", m.Message).Msg("feed error message")
		}
	}
}
