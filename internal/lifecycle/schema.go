// Package lifecycle persists trade recommendations and drives their state
// machine: PENDING rows gather user acceptances until a sweep expires them
// or, once quorum is reached, executes them through the broker exactly once.
package lifecycle

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS trade_recommendations (
	id UUID PRIMARY KEY,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	amount DOUBLE PRECISION NOT NULL,
	shares DOUBLE PRECISION NOT NULL DEFAULT 0,
	timeframe TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PENDING',
	reasoning TEXT NOT NULL DEFAULT '',
	strategy_name TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	expires_at TIMESTAMPTZ NOT NULL,
	required_acceptances INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trade_recommendations_status
	ON trade_recommendations (status, expires_at);

CREATE TABLE IF NOT EXISTS trade_acceptances (
	recommendation_id UUID NOT NULL REFERENCES trade_recommendations(id),
	user_id BIGINT NOT NULL,
	allocation_amount DOUBLE PRECISION NOT NULL,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (recommendation_id, user_id)
);

CREATE TABLE IF NOT EXISTS trade_execution_log (
	id BIGSERIAL PRIMARY KEY,
	recommendation_id UUID NOT NULL REFERENCES trade_recommendations(id),
	executed_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS strategy_settings (
	name TEXT PRIMARY KEY,
	active BOOLEAN NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema applies the lifecycle tables. A failure here is structural
// and must abort startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("lifecycle: apply schema: %w", err)
	}
	return nil
}
