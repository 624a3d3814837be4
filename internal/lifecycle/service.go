package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stockpulse/stockpulse/internal/domain"
	"github.com/stockpulse/stockpulse/internal/telemetry"
)

// Broker submits an executable recommendation as a market order.
type Broker interface {
	Submit(ctx context.Context, rec domain.Recommendation) (domain.Order, error)
}

// Options configures the lifecycle service.
type Options struct {
	ShortTermTTL        time.Duration
	LongTermTTL         time.Duration
	DefaultAmount       float64
	RequiredAcceptances int
}

// Service drives the recommendation state machine over the store.
type Service struct {
	store   *Store
	broker  Broker
	metrics *telemetry.Metrics
	log     zerolog.Logger
	opts    Options
	now     func() time.Time
}

// NewService wires the lifecycle service.
func NewService(store *Store, broker Broker, opts Options, metrics *telemetry.Metrics, log zerolog.Logger) *Service {
	if opts.ShortTermTTL <= 0 {
		opts.ShortTermTTL = time.Hour
	}
	if opts.LongTermTTL <= 0 {
		opts.LongTermTTL = 7 * 24 * time.Hour
	}
	if opts.DefaultAmount <= 0 {
		opts.DefaultAmount = 100
	}
	if opts.RequiredAcceptances <= 0 {
		opts.RequiredAcceptances = 2
	}
	return &Service{
		store:   store,
		broker:  broker,
		metrics: metrics,
		log:     log.With().Str("component", "lifecycle").Logger(),
		opts:    opts,
		now:     time.Now,
	}
}

// Create persists a draft as a PENDING recommendation. The expiry deadline
// is fixed here and never extended.
func (s *Service) Create(ctx context.Context, d domain.Draft) (domain.Recommendation, error) {
	now := s.now()
	ttl := s.opts.ShortTermTTL
	if d.Timeframe == domain.TimeframeLongTerm {
		ttl = s.opts.LongTermTTL
	}

	rec := domain.Recommendation{
		ID:                  uuid.NewString(),
		Symbol:              d.Symbol,
		Action:              d.Action,
		Amount:              s.opts.DefaultAmount,
		Timeframe:           d.Timeframe,
		Status:              domain.RecommendationPending,
		Reasoning:           d.Reasoning,
		StrategyName:        d.StrategyName,
		Confidence:          d.Confidence,
		ExpiresAt:           now.Add(ttl),
		RequiredAcceptances: s.opts.RequiredAcceptances,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.InsertRecommendation(ctx, rec); err != nil {
		return domain.Recommendation{}, err
	}
	s.log.Info().
		Str("id", rec.ID).Str("symbol", rec.Symbol).Str("action", string(rec.Action)).
		Str("strategy", rec.StrategyName).Float64("confidence", rec.Confidence).
		Time("expires_at", rec.ExpiresAt).
		Msg("recommendation created")
	return rec, nil
}

// Accept records one user's response. An ACCEPTED response requires a
// positive allocation; resubmitting overwrites the earlier response.
// Only PENDING recommendations take responses; acceptances never execute
// anything, the sweep does.
func (s *Service) Accept(ctx context.Context, recommendationID string, userID int64, allocation float64, status domain.AcceptanceStatus) error {
	switch status {
	case domain.AcceptanceAccepted, domain.AcceptanceDenied, domain.AcceptancePending:
	default:
		return fmt.Errorf("invalid acceptance status %q", status)
	}
	if status == domain.AcceptanceAccepted && allocation <= 0 {
		return fmt.Errorf("acceptance for %s requires a positive allocation, got %.2f", recommendationID, allocation)
	}

	rec, err := s.store.GetRecommendation(ctx, recommendationID)
	if err != nil {
		return err
	}
	if rec.Status != domain.RecommendationPending {
		return fmt.Errorf("recommendation %s is %s, responses are closed", recommendationID, rec.Status)
	}

	now := s.now()
	return s.store.UpsertAcceptance(ctx, domain.Acceptance{
		RecommendationID: recommendationID,
		UserID:           userID,
		AllocationAmount: allocation,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// SweepExpire flips overdue PENDING rows to EXPIRED.
func (s *Service) SweepExpire(ctx context.Context) (int64, error) {
	started := s.now()
	n, err := s.store.ExpirePending(ctx, started)
	s.metrics.SweepDuration.WithLabelValues("expire").Observe(s.now().Sub(started).Seconds())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("expired", n).Msg("expired recommendations")
	}
	return n, nil
}

// SweepExecute submits every quorum-reaching PENDING recommendation to the
// broker. Broker failures leave the row PENDING and retryable with a FAILED
// log entry; a successful submission is claimed with a status-predicated
// update so a racing sweep's duplicate result is discarded.
func (s *Service) SweepExecute(ctx context.Context) (int, error) {
	started := s.now()
	defer func() {
		s.metrics.SweepDuration.WithLabelValues("execute").Observe(s.now().Sub(started).Seconds())
	}()

	pending, err := s.store.ListPending(ctx, started)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, rec := range pending {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}
		accepted, err := s.store.CountAccepted(ctx, rec.ID)
		if err != nil {
			s.log.Error().Err(err).Str("id", rec.ID).Msg("acceptance count failed")
			continue
		}
		if accepted < rec.RequiredAcceptances {
			continue
		}
		if s.execute(ctx, rec, accepted) {
			executed++
		}
	}
	return executed, nil
}

func (s *Service) execute(ctx context.Context, rec domain.Recommendation, accepted int) bool {
	s.log.Info().
		Str("id", rec.ID).Str("symbol", rec.Symbol).
		Int("accepted", accepted).Int("required", rec.RequiredAcceptances).
		Msg("quorum reached, submitting order")

	order, err := s.broker.Submit(ctx, rec)
	if err != nil {
		s.metrics.Executions.WithLabelValues("failed").Inc()
		s.log.Error().Err(err).Str("id", rec.ID).Msg("broker submission failed")
		s.appendLog(ctx, rec.ID, domain.ExecutionFailed, err.Error())
		return false
	}

	var shares float64
	if order.FillPrice > 0 {
		shares = rec.Amount / order.FillPrice
	}
	claimed, err := s.store.ClaimExecuted(ctx, rec.ID, shares, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("id", rec.ID).Msg("execution claim failed")
		return false
	}
	if !claimed {
		// Another sweep won the race; its log entry stands.
		s.metrics.Executions.WithLabelValues("duplicate").Inc()
		s.log.Warn().Str("id", rec.ID).Str("order_id", order.OrderID).Msg("execution claim lost, discarding result")
		return false
	}

	s.metrics.Executions.WithLabelValues("success").Inc()
	s.appendLog(ctx, rec.ID, domain.ExecutionSuccess,
		fmt.Sprintf("order %s filled at %.2f, %.4f shares", order.OrderID, order.FillPrice, shares))
	s.log.Info().
		Str("id", rec.ID).Str("order_id", order.OrderID).
		Float64("fill_price", order.FillPrice).Float64("shares", shares).
		Msg("recommendation executed")
	return true
}

func (s *Service) appendLog(ctx context.Context, recommendationID string, status domain.ExecutionStatus, details string) {
	err := s.store.AppendExecutionLog(ctx, domain.ExecutionLogEntry{
		RecommendationID: recommendationID,
		ExecutedAt:       s.now(),
		Status:           status,
		Details:          details,
	})
	if err != nil {
		s.log.Error().Err(err).Str("id", recommendationID).Msg("execution log append failed")
	}
}

// Pending lists live PENDING recommendations for the status surfaces.
func (s *Service) Pending(ctx context.Context) ([]domain.Recommendation, error) {
	return s.store.ListPending(ctx, s.now())
}

// Counts reports recommendation totals per lifecycle state.
func (s *Service) Counts(ctx context.Context) (map[domain.RecommendationStatus]int, error) {
	return s.store.CountByStatus(ctx)
}
