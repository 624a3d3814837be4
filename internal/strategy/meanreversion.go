package strategy

import (
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// MeanReversion forwards high-confidence sentiment but refuses to chase:
// a bullish signal on a stock already up more than the threshold for the
// day is suppressed.
type MeanReversion struct {
	tracker
	confidenceFloor float64
	upThreshold     float64
}

// NewMeanReversion builds the mean-reversion filter with the default
// thresholds.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{confidenceFloor: defaultConfidenceFloor, upThreshold: 10.0}
}

func (m *MeanReversion) Name() string { return "mean_reversion_filter" }

func (m *MeanReversion) Description() string {
	return "Skips bullish recommendations on stocks already up sharply in the last day, buys when bullish and flat or down"
}

func (m *MeanReversion) RequiredInputs() []string {
	return append(requiredSentimentInputs(), "prices")
}

func (m *MeanReversion) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := m.clock()
	if snap == nil {
		m.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	var drafts []domain.Draft
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < m.confidenceFloor {
			return
		}
		for _, sym := range a.Symbols {
			pv, ok := snap.PriceFor(sym)
			if !ok {
				continue
			}
			var action domain.Action
			switch s.Prediction {
			case domain.PredictionBullish:
				if pv.ChangePercent > m.upThreshold {
					continue // overbought
				}
				action = domain.ActionBuy
			case domain.PredictionBearish:
				action = domain.ActionSell
			default:
				continue
			}
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     action,
				Confidence: s.Confidence,
				Reasoning:  fmt.Sprintf("Sentiment %s with price change %+.2f%% in last day", s.Prediction, pv.ChangePercent),
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					PriceBased: &domain.PriceBasedMeta{ChangePercent: pv.ChangePercent},
				},
				StrategyName: m.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	})

	m.record(started, seen, drafts, nil)
	return drafts, nil
}
