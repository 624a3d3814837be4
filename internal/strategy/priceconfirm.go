package strategy

import (
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// PriceConfirmation only forwards sentiment when recent price action agrees:
// bullish needs the last close above its short moving average, bearish below.
type PriceConfirmation struct {
	tracker
	confidenceFloor float64
	smaWindow       int
}

// NewPriceConfirmation builds the price-trend confirmation variant with the
// default thresholds.
func NewPriceConfirmation() *PriceConfirmation {
	return &PriceConfirmation{confidenceFloor: defaultConfidenceFloor, smaWindow: 5}
}

func (p *PriceConfirmation) Name() string { return "sentiment_price_confirmation" }

func (p *PriceConfirmation) Description() string {
	return "Only recommends when price action matches sentiment: bullish with an uptrend, bearish with a downtrend"
}

func (p *PriceConfirmation) RequiredInputs() []string {
	return append(requiredSentimentInputs(), "prices")
}

func (p *PriceConfirmation) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := p.clock()
	if snap == nil {
		p.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	var drafts []domain.Draft
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < p.confidenceFloor {
			return
		}
		for _, sym := range a.Symbols {
			pv, ok := snap.PriceFor(sym)
			if !ok || len(pv.Closes) < p.smaWindow+1 {
				continue
			}
			closes := pv.Closes
			last := closes[len(closes)-1]
			sma := mean(closes[len(closes)-1-p.smaWindow : len(closes)-1])

			var action domain.Action
			switch {
			case s.Prediction == domain.PredictionBullish && last > sma:
				action = domain.ActionBuy
			case s.Prediction == domain.PredictionBearish && last < sma:
				action = domain.ActionSell
			default:
				continue
			}
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     action,
				Confidence: s.Confidence,
				Reasoning:  fmt.Sprintf("Sentiment %s confirmed by last close %.2f vs %d-day SMA %.2f", s.Prediction, last, p.smaWindow, sma),
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					PriceBased: &domain.PriceBasedMeta{SMA: sma, LastClose: last},
				},
				StrategyName: p.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	})

	p.record(started, seen, drafts, nil)
	return drafts, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
