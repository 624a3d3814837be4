package strategy

import (
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// Divergence looks for sentiment and price moving in opposite directions:
// bullish news on a falling stock, or bearish news on a rising one.
type Divergence struct {
	tracker
	confidenceFloor float64
}

// NewDivergence builds the divergence variant with the default threshold.
func NewDivergence() *Divergence {
	return &Divergence{confidenceFloor: defaultConfidenceFloor}
}

func (d *Divergence) Name() string { return "sentiment_divergence" }

func (d *Divergence) Description() string {
	return "Recommends when sentiment and price diverge: bullish on a falling stock or bearish on a rising one"
}

func (d *Divergence) RequiredInputs() []string {
	return append(requiredSentimentInputs(), "prices")
}

func (d *Divergence) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := d.clock()
	if snap == nil {
		d.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	var drafts []domain.Draft
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < d.confidenceFloor {
			return
		}
		for _, sym := range a.Symbols {
			pv, ok := snap.PriceFor(sym)
			if !ok {
				continue
			}
			var action domain.Action
			var reasoning string
			switch {
			case s.Prediction == domain.PredictionBullish && pv.ChangePercent < 0:
				action = domain.ActionBuy
				reasoning = fmt.Sprintf("Bullish sentiment but price fell %+.2f%% in last day", pv.ChangePercent)
			case s.Prediction == domain.PredictionBearish && pv.ChangePercent > 0:
				action = domain.ActionSell
				reasoning = fmt.Sprintf("Bearish sentiment but price rose %+.2f%% in last day", pv.ChangePercent)
			default:
				continue
			}
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     action,
				Confidence: s.Confidence,
				Reasoning:  reasoning,
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					PriceBased: &domain.PriceBasedMeta{ChangePercent: pv.ChangePercent},
				},
				StrategyName: d.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	})

	d.record(started, seen, drafts, nil)
	return drafts, nil
}
