package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpulse/stockpulse/internal/domain"
	"github.com/stockpulse/stockpulse/internal/telemetry"
)

var testNow = time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)

type fakeBroker struct {
	order domain.Order
	err   error
	calls int
}

func (b *fakeBroker) Submit(_ context.Context, _ domain.Recommendation) (domain.Order, error) {
	b.calls++
	if b.err != nil {
		return domain.Order{}, b.err
	}
	return b.order, nil
}

func newTestService(t *testing.T, broker Broker) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	store := NewStore(db, time.Second)
	svc := NewService(store, broker, Options{
		ShortTermTTL:        time.Hour,
		LongTermTTL:         7 * 24 * time.Hour,
		DefaultAmount:       100,
		RequiredAcceptances: 2,
	}, telemetry.New(prometheus.NewRegistry()), zerolog.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, mock
}

var recColumns = []string{
	"id", "symbol", "action", "amount", "shares", "timeframe", "status",
	"reasoning", "strategy_name", "confidence", "expires_at",
	"required_acceptances", "created_at", "updated_at",
}

func pendingRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows(recColumns).AddRow(
		id, "XYZ", "buy", 100.0, 0.0, "short_term", "PENDING",
		"because", "sentiment_consensus", 1.0, testNow.Add(time.Hour),
		2, testNow.Add(-time.Minute), testNow.Add(-time.Minute),
	)
}

func TestCreateInsertsPendingRow(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	mock.ExpectExec("INSERT INTO trade_recommendations").
		WithArgs(sqlmock.AnyArg(), "XYZ", "buy", 100.0, 0.0, "short_term",
			"PENDING", "because", "sentiment_consensus", 1.0,
			testNow.Add(time.Hour), 2, testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := svc.Create(context.Background(), domain.Draft{
		Symbol:       "XYZ",
		Action:       domain.ActionBuy,
		Confidence:   1.0,
		Reasoning:    "because",
		Timeframe:    domain.TimeframeShortTerm,
		StrategyName: "sentiment_consensus",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, domain.RecommendationPending, rec.Status)
	assert.Equal(t, testNow.Add(time.Hour), rec.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLongTermUsesLongTTL(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	mock.ExpectExec("INSERT INTO trade_recommendations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec, err := svc.Create(context.Background(), domain.Draft{
		Symbol:    "XYZ",
		Action:    domain.ActionSell,
		Timeframe: domain.TimeframeLongTerm,
	})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(7*24*time.Hour), rec.ExpiresAt)
}

func TestAcceptRequiresPositiveAllocation(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	err := svc.Accept(context.Background(), "rec-1", 7, 0, domain.AcceptanceAccepted)
	assert.Error(t, err, "zero allocation must be rejected")

	err = svc.Accept(context.Background(), "rec-1", 7, -5, domain.AcceptanceAccepted)
	assert.Error(t, err)

	err = svc.Accept(context.Background(), "rec-1", 7, 50, "MAYBE")
	assert.Error(t, err, "unknown status must be rejected")

	assert.NoError(t, mock.ExpectationsWereMet(), "invalid input must not reach the store")
}

func TestAcceptUpsertsResponse(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	mock.ExpectQuery("SELECT \\* FROM trade_recommendations WHERE id").
		WithArgs("rec-1").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectExec("INSERT INTO trade_acceptances").
		WithArgs("rec-1", int64(7), 50.0, "ACCEPTED", testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Accept(context.Background(), "rec-1", 7, 50, domain.AcceptanceAccepted))

	// Denial needs no allocation and overwrites in place.
	mock.ExpectQuery("SELECT \\* FROM trade_recommendations WHERE id").
		WithArgs("rec-1").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectExec("INSERT INTO trade_acceptances").
		WithArgs("rec-1", int64(7), 0.0, "DENIED", testNow, testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, svc.Accept(context.Background(), "rec-1", 7, 0, domain.AcceptanceDenied))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptRejectsSettledRecommendation(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	executed := sqlmock.NewRows(recColumns).AddRow(
		"rec-1", "XYZ", "buy", 100.0, 2.0, "short_term", "EXECUTED",
		"because", "sentiment_consensus", 1.0, testNow.Add(time.Hour),
		2, testNow.Add(-time.Minute), testNow,
	)
	mock.ExpectQuery("SELECT \\* FROM trade_recommendations WHERE id").
		WithArgs("rec-1").
		WillReturnRows(executed)

	err := svc.Accept(context.Background(), "rec-1", 7, 50, domain.AcceptanceAccepted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXECUTED")
	assert.NoError(t, mock.ExpectationsWereMet(), "settled rows take no responses")
}

func TestSweepExpireFlipsOverdueRows(t *testing.T) {
	svc, mock := newTestService(t, &fakeBroker{})

	mock.ExpectExec("UPDATE trade_recommendations").
		WithArgs("EXPIRED", testNow, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := svc.SweepExpire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExecuteReachesQuorum(t *testing.T) {
	broker := &fakeBroker{order: domain.Order{OrderID: "ord-9", FillPrice: 50, Status: "filled"}}
	svc, mock := newTestService(t, broker)

	mock.ExpectQuery("SELECT \\* FROM trade_recommendations").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs("rec-1", "ACCEPTED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("UPDATE trade_recommendations").
		WithArgs("EXECUTED", 2.0, testNow, "rec-1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO trade_execution_log").
		WithArgs("rec-1", testNow, "SUCCESS", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	executed, err := svc.SweepExecute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, executed)
	assert.Equal(t, 1, broker.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExecuteBelowQuorumSkips(t *testing.T) {
	broker := &fakeBroker{}
	svc, mock := newTestService(t, broker)

	mock.ExpectQuery("SELECT \\* FROM trade_recommendations").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	executed, err := svc.SweepExecute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, executed)
	assert.Zero(t, broker.calls, "below quorum must not touch the broker")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExecuteBrokerFailureStaysPending(t *testing.T) {
	broker := &fakeBroker{err: errors.New("market closed")}
	svc, mock := newTestService(t, broker)

	mock.ExpectQuery("SELECT \\* FROM trade_recommendations").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("INSERT INTO trade_execution_log").
		WithArgs("rec-1", testNow, "FAILED", "market closed").
		WillReturnResult(sqlmock.NewResult(1, 1))

	executed, err := svc.SweepExecute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, executed, "row stays PENDING and retryable")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExecuteLostClaimDiscardsResult(t *testing.T) {
	broker := &fakeBroker{order: domain.Order{OrderID: "ord-9", FillPrice: 50}}
	svc, mock := newTestService(t, broker)

	mock.ExpectQuery("SELECT \\* FROM trade_recommendations").
		WillReturnRows(pendingRow("rec-1"))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectExec("UPDATE trade_recommendations").
		WillReturnResult(sqlmock.NewResult(0, 0)) // another sweep won

	executed, err := svc.SweepExecute(context.Background())
	require.NoError(t, err)
	assert.Zero(t, executed, "no second SUCCESS entry after a lost claim")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategySettings(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	store := NewStore(sqlx.NewDb(mockDB, "sqlmock"), time.Second)

	mock.ExpectQuery("SELECT active FROM strategy_settings").
		WithArgs("sentiment_momentum").
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.StrategyActive(context.Background(), "sentiment_momentum")
	require.NoError(t, err)
	assert.False(t, found)

	mock.ExpectExec("INSERT INTO strategy_settings").
		WithArgs("sentiment_momentum", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.SetStrategyActive(context.Background(), "sentiment_momentum", false))

	mock.ExpectQuery("SELECT active FROM strategy_settings").
		WithArgs("sentiment_momentum").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(false))

	active, found, err := store.StrategyActive(context.Background(), "sentiment_momentum")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
