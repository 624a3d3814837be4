package strategy

import (
	"fmt"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// RareSurge flags obscure symbols: mentioned rarely across the whole feed,
// yet hit by a burst of recent high-confidence coverage.
type RareSurge struct {
	tracker
	confidenceFloor  float64
	rareThreshold    int
	recentWindowDays int
	minRecent        int
}

// NewRareSurge builds the rare-symbol surge variant with the default
// thresholds.
func NewRareSurge() *RareSurge {
	return &RareSurge{
		confidenceFloor:  defaultConfidenceFloor,
		rareThreshold:    2,
		recentWindowDays: 2,
		minRecent:        2,
	}
}

func (r *RareSurge) Name() string { return "rare_symbol_surge" }

func (r *RareSurge) Description() string {
	return "Flags obscure stocks that suddenly get multiple high-confidence articles in a short window"
}

func (r *RareSurge) RequiredInputs() []string { return requiredSentimentInputs() }

func (r *RareSurge) Analyze(snap *domain.Snapshot) ([]domain.Draft, error) {
	started := r.clock()
	if snap == nil {
		r.record(started, 0, nil, errNilSnapshot)
		return nil, errNilSnapshot
	}

	counts := make(map[string]int)
	for _, a := range snap.Articles {
		for _, sym := range a.Symbols {
			counts[sym]++
		}
	}

	cutoff := snap.AsOf.AddDate(0, 0, -r.recentWindowDays)
	recent := make(map[string]int)
	seen := eachScored(snap, func(a domain.Article, s domain.Sentiment) {
		if s.Confidence < r.confidenceFloor || a.PublishedAt.Before(cutoff) {
			return
		}
		for _, sym := range a.Symbols {
			if counts[sym] <= r.rareThreshold {
				recent[sym]++
			}
		}
	})

	var drafts []domain.Draft
	for sym, n := range recent {
		if n < r.minRecent {
			continue
		}
		drafts = append(drafts, domain.Draft{
			Symbol:     sym,
			Action:     domain.ActionBuy,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("Obscure stock %s got %d high-confidence articles in %d days", sym, n, r.recentWindowDays),
			Timeframe:  domain.TimeframeShortTerm,
			Metadata: domain.DraftMetadata{
				RareSurge: &domain.RareSurgeMeta{RecentMentions: n, WindowDays: r.recentWindowDays},
			},
			StrategyName: r.Name(),
			CreatedAt:    snap.AsOf,
		})
	}

	r.record(started, seen, drafts, nil)
	return drafts, nil
}
