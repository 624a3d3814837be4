package strategy

import (
	"fmt"
	"math"
	"sync"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// seenLimit bounds the article dedup set kept by the stateful variants.
const seenLimit = 1024

// Momentum tracks a rolling window of sentiment scores per symbol across
// runs and recommends when the window moves far enough end to end. Articles
// already folded into a window are not counted twice.
type Momentum struct {
	tracker
	confidenceFloor   float64
	lookback          int
	momentumThreshold float64

	stateMu sync.Mutex
	windows map[string][]float64
	seen    *seenSet
}

// NewMomentum builds the momentum variant with the default thresholds.
func NewMomentum() *Momentum {
	return &Momentum{
		confidenceFloor:   defaultConfidenceFloor,
		lookback:          5,
		momentumThreshold: 0.3,
		windows:           make(map[string][]float64),
		seen:              newSeenSet(seenLimit),
	}
}

func (m *Momentum) Name() string { return "sentiment_momentum" }

func (m *Momentum) Description() string {
	return "Tracks change in average sentiment for a ticker and recommends when sentiment is rapidly rising or falling"
}

func (m *Momentum) RequiredInputs() []string { return requiredSentimentInputs() }

func (m *Momentum) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := m.clock()
	if snap == nil {
		m.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	m.stateMu.Lock()
	touched := make(map[string]struct{})
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < m.confidenceFloor || !m.seen.add(a.ID) {
			return
		}
		for _, sym := range a.Symbols {
			w := append(m.windows[sym], s.Score)
			if len(w) > m.lookback {
				w = w[len(w)-m.lookback:]
			}
			m.windows[sym] = w
			touched[sym] = struct{}{}
		}
	})

	var drafts []domain.Draft
	for sym := range touched {
		w := m.windows[sym]
		if len(w) < m.lookback {
			continue
		}
		momentum := w[len(w)-1] - w[0]
		if math.Abs(momentum) < m.momentumThreshold {
			continue
		}
		action := domain.ActionBuy
		if momentum < 0 {
			action = domain.ActionSell
		}
		drafts = append(drafts, domain.Draft{
			Symbol:     sym,
			Action:     action,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("Sentiment momentum %+.2f over %d articles", momentum, m.lookback),
			Timeframe:  domain.TimeframeShortTerm,
			Metadata: domain.DraftMetadata{
				Momentum: &domain.MomentumMeta{Momentum: momentum, Lookback: m.lookback},
			},
			StrategyName: m.Name(),
			CreatedAt:    snap.AsOf,
		})
	}
	m.stateMu.Unlock()

	m.record(started, seen, drafts, nil)
	return drafts, nil
}

// seenSet is a FIFO-bounded membership set for article IDs.
type seenSet struct {
	limit int
	ids   map[string]struct{}
	order []string
}

func newSeenSet(limit int) *seenSet {
	return &seenSet{limit: limit, ids: make(map[string]struct{})}
}

// add reports whether id was new, evicting the oldest entry at the limit.
func (s *seenSet) add(id string) bool {
	if _, ok := s.ids[id]; ok {
		return false
	}
	if len(s.order) >= s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}
