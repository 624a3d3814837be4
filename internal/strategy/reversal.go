package strategy

import (
	"fmt"
	"sync"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// Reversal keeps a per-symbol history of sentiment directions across runs
// and flags a flip: mostly one-sided for the lookback, then a cluster of
// high-confidence articles pointing the other way.
type Reversal struct {
	tracker
	confidenceFloor float64
	lookback        int
	cluster         int

	stateMu sync.Mutex
	history map[string][]domain.Prediction
	seen    *seenSet
}

// NewReversal builds the sentiment-reversal variant with the default
// thresholds.
func NewReversal() *Reversal {
	return &Reversal{
		confidenceFloor: defaultConfidenceFloor,
		lookback:        10,
		cluster:         2,
		history:         make(map[string][]domain.Prediction),
		seen:            newSeenSet(seenLimit),
	}
}

func (r *Reversal) Name() string { return "sentiment_reversal" }

func (r *Reversal) Description() string {
	return "Flags a reversal when a stock mostly bearish for days suddenly gets a cluster of high-confidence bullish articles, or vice versa"
}

func (r *Reversal) RequiredInputs() []string { return requiredSentimentInputs() }

func (r *Reversal) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := r.clock()
	if snap == nil {
		r.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	r.stateMu.Lock()
	touched := make(map[string]struct{})
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < r.confidenceFloor || !r.seen.add(a.ID) {
			return
		}
		for _, sym := range a.Symbols {
			h := append(r.history[sym], s.Prediction)
			if len(h) > r.lookback {
				h = h[len(h)-r.lookback:]
			}
			r.history[sym] = h
			touched[sym] = struct{}{}
		}
	})

	var drafts []domain.Draft
	for sym := range touched {
		h := r.history[sym]
		if len(h) < r.lookback {
			continue
		}
		if from, to, ok := r.flip(h); ok {
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     actionFor(to),
				Confidence: 1.0,
				Reasoning:  fmt.Sprintf("Reversal: %d %s then %d %s articles", r.lookback-r.cluster, from, r.cluster, to),
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					Reversal: &domain.ReversalMeta{From: from, To: to},
				},
				StrategyName: r.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	}
	r.stateMu.Unlock()

	r.record(started, seen, drafts, nil)
	return drafts, nil
}

// flip reports a direction reversal in h: at least lookback-cluster entries
// of one direction and the trailing cluster all the other direction.
func (r *Reversal) flip(h []domain.Prediction) (from, to domain.Prediction, ok bool) {
	count := func(p domain.Prediction) int {
		n := 0
		for _, d := range h {
			if d == p {
				n++
			}
		}
		return n
	}
	tailAll := func(p domain.Prediction) bool {
		for _, d := range h[len(h)-r.cluster:] {
			if d != p {
				return false
			}
		}
		return true
	}

	switch {
	case count(domain.PredictionBearish) >= r.lookback-r.cluster && tailAll(domain.PredictionBullish):
		return domain.PredictionBearish, domain.PredictionBullish, true
	case count(domain.PredictionBullish) >= r.lookback-r.cluster && tailAll(domain.PredictionBearish):
		return domain.PredictionBullish, domain.PredictionBearish, true
	}
	return "", "", false
}
