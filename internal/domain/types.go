// Package domain holds the core types shared across the recommendation
// engine: the snapshot handed to strategies, the drafts they emit, and the
// persisted recommendation/acceptance/execution records.
package domain

import "time"

// Action is the trade direction of a recommendation.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Timeframe is the horizon a recommendation targets.
type Timeframe string

const (
	TimeframeShortTerm Timeframe = "short_term"
	TimeframeLongTerm  Timeframe = "long_term"
)

// RecommendationStatus is the lifecycle state of a persisted recommendation.
// Transitions are one-way: PENDING -> EXECUTED | EXPIRED | FAILED.
type RecommendationStatus string

const (
	RecommendationPending  RecommendationStatus = "PENDING"
	RecommendationExecuted RecommendationStatus = "EXECUTED"
	RecommendationExpired  RecommendationStatus = "EXPIRED"
	RecommendationFailed   RecommendationStatus = "FAILED"
)

// AcceptanceStatus is a user's response to a recommendation.
type AcceptanceStatus string

const (
	AcceptancePending  AcceptanceStatus = "PENDING"
	AcceptanceAccepted AcceptanceStatus = "ACCEPTED"
	AcceptanceDenied   AcceptanceStatus = "DENIED"
)

// ExecutionStatus is the outcome of one broker submission attempt.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// Recommendation is the persisted unit the lifecycle manages. Owned
// exclusively by the lifecycle; strategies only ever emit Drafts.
type Recommendation struct {
	ID                  string               `db:"id"`
	Symbol              string               `db:"symbol"`
	Action              Action               `db:"action"`
	Amount              float64              `db:"amount"`
	Shares              float64              `db:"shares"`
	Timeframe           Timeframe            `db:"timeframe"`
	Status              RecommendationStatus `db:"status"`
	Reasoning           string               `db:"reasoning"`
	StrategyName        string               `db:"strategy_name"`
	Confidence          float64              `db:"confidence"`
	ExpiresAt           time.Time            `db:"expires_at"`
	RequiredAcceptances int                  `db:"required_acceptances"`
	CreatedAt           time.Time            `db:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at"`
}

// Acceptance records one user's response to one recommendation. Unique per
// (recommendation, user); resubmission overwrites in place.
type Acceptance struct {
	RecommendationID string           `db:"recommendation_id"`
	UserID           int64            `db:"user_id"`
	AllocationAmount float64          `db:"allocation_amount"`
	Status           AcceptanceStatus `db:"status"`
	CreatedAt        time.Time        `db:"created_at"`
	UpdatedAt        time.Time        `db:"updated_at"`
}

// ExecutionLogEntry is an append-only audit record of one execution attempt.
// A SUCCESS entry is terminal for its recommendation.
type ExecutionLogEntry struct {
	ID               int64           `db:"id"`
	RecommendationID string          `db:"recommendation_id"`
	ExecutedAt       time.Time       `db:"executed_at"`
	Status           ExecutionStatus `db:"status"`
	Details          string          `db:"details"`
}

// Order is what the broker collaborator returns for a submission.
type Order struct {
	OrderID   string
	FillPrice float64
	Status    string
}
