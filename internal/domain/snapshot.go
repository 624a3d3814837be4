package domain

import "time"

// Prediction is the direction a sentiment score points.
type Prediction string

const (
	PredictionBullish Prediction = "bullish"
	PredictionBearish Prediction = "bearish"
)

// Sentiment is the opaque scorer's verdict on one article.
type Sentiment struct {
	Score      float64    // -1.0 .. 1.0
	Confidence float64    // 0.0 .. 1.0
	Prediction Prediction
}

// Article is one item from the article feed. An empty Symbols slice means
// the article carries no tradable signal.
type Article struct {
	ID          string
	Title       string
	Symbols     []string
	PublishedAt time.Time
}

// PriceView is the per-symbol market picture inside a snapshot. Closes and
// Volumes hold recent daily bars oldest-first and may be empty when history
// is unavailable.
type PriceView struct {
	Symbol        string
	Price         float64
	ChangePercent float64
	Volume        int64
	Closes        []float64
	Volumes       []int64
	DataSource    string
	MarketClosed  bool
	AsOf          time.Time
}

// Snapshot is the read-only bundle handed to strategies for one run. It is
// rebuilt every scheduler tick and never mutated by strategies.
type Snapshot struct {
	Articles  []Article
	Sentiment map[string]Sentiment // keyed by article ID
	Prices    map[string]PriceView // keyed by symbol
	AsOf      time.Time
}

// SentimentFor returns the sentiment for an article, if scored.
func (s *Snapshot) SentimentFor(articleID string) (Sentiment, bool) {
	sent, ok := s.Sentiment[articleID]
	return sent, ok
}

// PriceFor returns the price view for a symbol, if present.
func (s *Snapshot) PriceFor(symbol string) (PriceView, bool) {
	pv, ok := s.Prices[symbol]
	return pv, ok
}

// DraftMetadata carries the strategy-specific evidence behind a draft. Each
// strategy family fills exactly one field; the shapes are fixed at compile
// time instead of a stringly-typed bag.
type DraftMetadata struct {
	Consensus  *ConsensusMeta
	Momentum   *MomentumMeta
	PriceBased *PriceBasedMeta
	Volume     *VolumeMeta
	RareSurge  *RareSurgeMeta
	Reversal   *ReversalMeta
}

// ConsensusMeta backs drafts from the consensus strategy.
type ConsensusMeta struct {
	AgreeingArticles int
	Direction        Prediction
}

// MomentumMeta backs drafts from the momentum strategy.
type MomentumMeta struct {
	Momentum float64
	Lookback int
}

// PriceBasedMeta backs drafts from strategies keyed on price action
// (mean reversion, price confirmation, divergence).
type PriceBasedMeta struct {
	ChangePercent float64
	SMA           float64
	LastClose     float64
}

// VolumeMeta backs drafts from the volume spike strategy.
type VolumeMeta struct {
	LastVolume int64
	AvgVolume  float64
}

// RareSurgeMeta backs drafts from the rare-symbol surge strategy.
type RareSurgeMeta struct {
	RecentMentions int
	WindowDays     int
}

// ReversalMeta backs drafts from the sentiment reversal strategy.
type ReversalMeta struct {
	From Prediction
	To   Prediction
}

// Draft is an in-memory recommendation proposal from one strategy. Immutable
// once emitted; the lifecycle converts drafts into persisted rows.
type Draft struct {
	Symbol       string
	Action       Action
	Confidence   float64
	Reasoning    string
	Timeframe    Timeframe
	Metadata     DraftMetadata
	StrategyName string
	CreatedAt    time.Time
}
