package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stockpulse/stockpulse/internal/domain"
)

// Store is the Postgres persistence layer for recommendations, acceptances,
// the execution log, and strategy settings.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewStore wraps db with per-call timeouts.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// InsertRecommendation persists a new PENDING recommendation row.
func (s *Store) InsertRecommendation(ctx context.Context, rec domain.Recommendation) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO trade_recommendations
			(id, symbol, action, amount, shares, timeframe, status, reasoning,
			 strategy_name, confidence, expires_at, required_acceptances,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Symbol, rec.Action, rec.Amount, rec.Shares, rec.Timeframe,
		rec.Status, rec.Reasoning, rec.StrategyName, rec.Confidence,
		rec.ExpiresAt, rec.RequiredAcceptances, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert recommendation %s: %w", rec.ID, err)
	}
	return nil
}

// GetRecommendation fetches one row by id.
func (s *Store) GetRecommendation(ctx context.Context, id string) (domain.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rec domain.Recommendation
	err := s.db.GetContext(ctx, &rec,
		`SELECT * FROM trade_recommendations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("recommendation %s: %w", id, err)
	}
	if err != nil {
		return rec, fmt.Errorf("get recommendation %s: %w", id, err)
	}
	return rec, nil
}

// ListByStatus returns recommendations in a given state, newest first.
func (s *Store) ListByStatus(ctx context.Context, status domain.RecommendationStatus, limit int) ([]domain.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var recs []domain.Recommendation
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM trade_recommendations
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list %s recommendations: %w", status, err)
	}
	return recs, nil
}

// CountByStatus returns row counts per lifecycle state.
func (s *Store) CountByStatus(ctx context.Context) (map[domain.RecommendationStatus]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM trade_recommendations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count recommendations: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RecommendationStatus]int)
	for rows.Next() {
		var status domain.RecommendationStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpsertAcceptance records one user's response, overwriting any earlier
// response for the same (recommendation, user) pair.
func (s *Store) UpsertAcceptance(ctx context.Context, a domain.Acceptance) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		INSERT INTO trade_acceptances
			(recommendation_id, user_id, allocation_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (recommendation_id, user_id) DO UPDATE SET
			allocation_amount = EXCLUDED.allocation_amount,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		a.RecommendationID, a.UserID, a.AllocationAmount, a.Status, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert acceptance %s/%d: %w", a.RecommendationID, a.UserID, err)
	}
	return nil
}

// CountAccepted returns how many distinct users have accepted.
func (s *Store) CountAccepted(ctx context.Context, recommendationID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM trade_acceptances
		WHERE recommendation_id = $1 AND status = $2`,
		recommendationID, domain.AcceptanceAccepted)
	if err != nil {
		return 0, fmt.Errorf("count acceptances for %s: %w", recommendationID, err)
	}
	return n, nil
}

// ExpirePending flips every overdue PENDING row to EXPIRED in one statement
// and returns how many rows changed.
func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE trade_recommendations
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at <= $2`,
		domain.RecommendationExpired, now, domain.RecommendationPending)
	if err != nil {
		return 0, fmt.Errorf("expire pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire pending rows affected: %w", err)
	}
	return n, nil
}

// ListPending returns live PENDING rows, oldest first, for the execute sweep.
func (s *Store) ListPending(ctx context.Context, now time.Time) ([]domain.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var recs []domain.Recommendation
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM trade_recommendations
		WHERE status = $1 AND expires_at > $2
		ORDER BY created_at ASC`,
		domain.RecommendationPending, now)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	return recs, nil
}

// ClaimExecuted flips one row PENDING -> EXECUTED. The status predicate makes
// the claim at-most-once: a false return means another sweep already won.
func (s *Store) ClaimExecuted(ctx context.Context, id string, shares float64, now time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE trade_recommendations
		SET status = $1, shares = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		domain.RecommendationExecuted, shares, now, id, domain.RecommendationPending)
	if err != nil {
		return false, fmt.Errorf("claim executed %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim executed %s rows affected: %w", id, err)
	}
	return n == 1, nil
}

// AppendExecutionLog writes one audit entry.
func (s *Store) AppendExecutionLog(ctx context.Context, e domain.ExecutionLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_execution_log (recommendation_id, executed_at, status, details)
		VALUES ($1, $2, $3, $4)`,
		e.RecommendationID, e.ExecutedAt, e.Status, e.Details)
	if err != nil {
		return fmt.Errorf("append execution log for %s: %w", e.RecommendationID, err)
	}
	return nil
}

// StrategyActive loads a persisted strategy flag.
func (s *Store) StrategyActive(ctx context.Context, name string) (bool, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var active bool
	err := s.db.GetContext(ctx, &active,
		`SELECT active FROM strategy_settings WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("load strategy setting %s: %w", name, err)
	}
	return active, true, nil
}

// SetStrategyActive persists a strategy flag.
func (s *Store) SetStrategyActive(ctx context.Context, name string, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategy_settings (name, active, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET active = EXCLUDED.active, updated_at = now()`,
		name, active)
	if err != nil {
		return fmt.Errorf("persist strategy setting %s: %w", name, err)
	}
	return nil
}
