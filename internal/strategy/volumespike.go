package strategy

import (
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// VolumeSpike only forwards sentiment when trading volume spikes alongside
// it: the latest volume must beat the recent average by the spike factor.
type VolumeSpike struct {
	tracker
	confidenceFloor float64
	spikeFactor     float64
}

// NewVolumeSpike builds the volume-spike confirmation variant with the
// default thresholds.
func NewVolumeSpike() *VolumeSpike {
	return &VolumeSpike{confidenceFloor: defaultConfidenceFloor, spikeFactor: 2.0}
}

func (v *VolumeSpike) Name() string { return "volume_spike_sentiment" }

func (v *VolumeSpike) Description() string {
	return "Only recommends when a volume spike coincides with a sentiment spike"
}

func (v *VolumeSpike) RequiredInputs() []string {
	return append(requiredSentimentInputs(), "prices")
}

func (v *VolumeSpike) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := v.clock()
	if snap == nil {
		v.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	var drafts []domain.Draft
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < v.confidenceFloor {
			return
		}
		for _, sym := range a.Symbols {
			pv, ok := snap.PriceFor(sym)
			if !ok || len(pv.Volumes) < 2 {
				continue
			}
			last := pv.Volume
			if last == 0 {
				last = pv.Volumes[len(pv.Volumes)-1]
			}
			avg := meanInt64(pv.Volumes[:len(pv.Volumes)-1])
			if avg == 0 || float64(last) <= v.spikeFactor*avg {
				continue
			}
			drafts = append(drafts, domain.Draft{
				Symbol:     sym,
				Action:     actionFor(s.Prediction),
				Confidence: s.Confidence,
				Reasoning:  fmt.Sprintf("Volume spike: %d vs avg %.0f (factor %.1fx)", last, avg, v.spikeFactor),
				Timeframe:  domain.TimeframeShortTerm,
				Metadata: domain.DraftMetadata{
					Volume: &domain.VolumeMeta{LastVolume: last, AvgVolume: avg},
				},
				StrategyName: v.Name(),
				CreatedAt:    snap.AsOf,
			})
		}
	})

	v.record(started, seen, drafts, nil)
	return drafts, nil
}

func meanInt64(xs []int64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int64
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
