package strategy

import (
	"errors"
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

var errNilSnapshot = errors.New("strategy: nil snapshot")

// Consensus recommends a trade when several high-confidence articles agree
// on direction for the same symbol. The agreement itself is the filter, so
// emitted drafts carry confidence 1.0.
type Consensus struct {
	tracker
	confidenceFloor float64
	minArticles     int
}

// NewConsensus builds the consensus variant with the default thresholds.
func NewConsensus() *Consensus {
	return &Consensus{confidenceFloor: defaultConfidenceFloor, minArticles: 3}
}

func (c *Consensus) Name() string { return "sentiment_consensus" }

func (c *Consensus) Description() string {
	return "Recommends trades only if multiple high-confidence articles agree on direction for the same ticker"
}

func (c *Consensus) RequiredInputs() []string { return requiredSentimentInputs() }

func (c *Consensus) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := c.clock()
	if snap == nil {
		c.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	directions := make(map[string]map[domain.Prediction]int)
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < c.confidenceFloor {
			return
		}
		for _, sym := range a.Symbols {
			if directions[sym] == nil {
				directions[sym] = make(map[domain.Prediction]int)
			}
			directions[sym][s.Prediction]++
		}
	})

	var drafts []domain.Draft
	for sym, counts := range directions {
		for dir, n := range counts {
			if n < c.minArticles {
				continue
			}
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     actionFor(dir),
				Confidence: 1.0,
				Reasoning:  fmt.Sprintf("%d high-confidence articles agree on %s for %s", n, dir, sym),
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					Consensus: &domain.ConsensusMeta{AgreeingArticles: n, Direction: dir},
				},
				StrategyName: c.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	}

	c.record(started, seen, drafts, nil)
	return drafts, nil
}
