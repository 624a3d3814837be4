// Package strategy holds the signal-generating strategies and the manager
// that runs them. A strategy is a scoring policy over one snapshot; the only
// state a strategy may keep between runs is its own rolling history (the
// momentum and reversal variants do) and its metrics.
package strategy

import (
	"sync"
	"time"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// defaultConfidenceFloor is the sentiment confidence below which articles
// are ignored by every variant.
const defaultConfidenceFloor = 0.8

// Strategy is the capability set every variant implements.
type Strategy interface {
	Name() string
	Description() string
	RequiredInputs() []string
	Analyze(snap *domain.Snapshot) ([]domain.Draft, error)
	Metrics() Report
}

// Report is a point-in-time view of one strategy's counters. Hourly fields
// reset on the hour boundary; Total fields accumulate forever.
type Report struct {
	TotalRuns      int64     `json:"total_runs"`
	TotalArticles  int64     `json:"total_articles"`
	TotalDrafts    int64     `json:"total_drafts"`
	BuySignals     int64     `json:"buy_signals"`
	SellSignals    int64     `json:"sell_signals"`
	AvgConfidence  float64   `json:"avg_confidence"`
	SuccessRate    float64   `json:"success_rate"`
	HourlyDrafts   int64     `json:"hourly_drafts"`
	LastRun        time.Time `json:"last_run"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorAt    time.Time `json:"last_error_at,omitempty"`
	LastDurationMS int64     `json:"last_duration_ms"`
}

// tracker is the counter state embedded by every strategy.
type tracker struct {
	mu          sync.Mutex
	runs        int64
	successRuns int64
	articles    int64
	drafts      int64
	buys        int64
	sells       int64
	confSum     float64
	hourly      int64
	hourStart   time.Time
	lastRun     time.Time
	lastErr     string
	lastErrAt   time.Time
	lastDur     time.Duration
	now         func() time.Time
}

func (t *tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// record folds one run's outcome into the counters.
func (t *tracker) record(started time.Time, articles int, drafts []domain.Draft, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()
	if hour := now.Truncate(time.Hour); hour != t.hourStart {
		t.hourStart = hour
		t.hourly = 0
	}

	t.runs++
	t.articles += int64(articles)
	t.drafts += int64(len(drafts))
	t.hourly += int64(len(drafts))
	t.lastRun = now
	t.lastDur = now.Sub(started)
	if len(drafts) > 0 {
		t.successRuns++
	}
	for _, d := range drafts {
		if d.Action == domain.ActionBuy {
			t.buys++
		} else {
			t.sells++
		}
		t.confSum += d.Confidence
	}
	if err != nil {
		t.lastErr = err.Error()
		t.lastErrAt = now
	}
}

// Metrics returns the current counters.
func (t *tracker) Metrics() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		TotalRuns:      t.runs,
		TotalArticles:  t.articles,
		TotalDrafts:    t.drafts,
		BuySignals:     t.buys,
		SellSignals:    t.sells,
		HourlyDrafts:   t.hourly,
		LastRun:        t.lastRun,
		LastError:      t.lastErr,
		LastErrorAt:    t.lastErrAt,
		LastDurationMS: t.lastDur.Milliseconds(),
	}
	if t.drafts > 0 {
		r.AvgConfidence = t.confSum / float64(t.drafts)
	}
	if t.runs > 0 {
		r.SuccessRate = float64(t.successRuns) / float64(t.runs) * 100
	}
	return r
}

// requiredSentimentInputs is the input set shared by the sentiment-driven
// variants.
func requiredSentimentInputs() []string {
	return []string{"articles", "sentiment"}
}

// eachScored walks articles that carry a sentiment score, reporting how many
// were seen. Articles without sentiment are input gaps and skipped.
func eachScored(snap *domain.Snapshot, fn func(a domain.Article, s domain.Sentiment)) int {
	seen := 0
	for _, a := range snap.Articles {
		s, ok := snap.SentimentFor(a.ID)
		if !ok {
			continue
		}
		seen++
		fn(a, s)
	}
	return seen
}

func actionFor(p domain.Prediction) domain.Action {
	if p == domain.PredictionBullish {
		return domain.ActionBuy
	}
	return domain.ActionSell
}
