package circuitbreaker

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const dbService = "persistence"

// DatabaseWrapper guards the persistence store. Write failures behind an
// open breaker surface immediately instead of piling up on a dead
// connection pool.
type DatabaseWrapper struct {
	db     *sqlx.DB
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewDatabaseWrapper creates a database wrapper with circuit breaker
func NewDatabaseWrapper(db *sqlx.DB, logger *zap.Logger) *DatabaseWrapper {
	cb := NewCircuitBreaker("postgresql", GetDatabaseConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("postgresql", dbService, cb)

	return &DatabaseWrapper{
		db:     db,
		cb:     cb,
		logger: logger,
	}
}

// DB exposes the underlying pool for callers that manage their own
// queries, such as the API key service.
func (dw *DatabaseWrapper) DB() *sqlx.DB {
	return dw.db
}

// PingContext wraps database ping with the breaker.
func (dw *DatabaseWrapper) PingContext(ctx context.Context) error {
	var err error
	cbErr := dw.cb.Execute(ctx, func() error {
		err = dw.db.PingContext(ctx)
		return err
	})
	dw.record(cbErr == nil && err == nil)
	if cbErr != nil {
		return cbErr
	}
	return err
}

// ExecContext wraps Exec with the breaker.
func (dw *DatabaseWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	var res sql.Result
	var err error
	cbErr := dw.cb.Execute(ctx, func() error {
		res, err = dw.db.ExecContext(ctx, query, args...)
		return err
	})
	dw.record(cbErr == nil && err == nil)
	if cbErr != nil {
		return nil, cbErr
	}
	return res, err
}

// NamedExecContext wraps sqlx NamedExec with the breaker.
func (dw *DatabaseWrapper) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	var res sql.Result
	var err error
	cbErr := dw.cb.Execute(ctx, func() error {
		res, err = dw.db.NamedExecContext(ctx, query, arg)
		return err
	})
	dw.record(cbErr == nil && err == nil)
	if cbErr != nil {
		return nil, cbErr
	}
	return res, err
}

// GetContext wraps sqlx Get with the breaker. sql.ErrNoRows is the
// caller's business, not a breaker failure.
func (dw *DatabaseWrapper) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var err error
	cbErr := dw.cb.Execute(ctx, func() error {
		err = dw.db.GetContext(ctx, dest, query, args...)
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	})
	dw.record(cbErr == nil && (err == nil || err == sql.ErrNoRows))
	if cbErr != nil {
		return cbErr
	}
	return err
}

// SelectContext wraps sqlx Select with the breaker.
func (dw *DatabaseWrapper) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	var err error
	cbErr := dw.cb.Execute(ctx, func() error {
		err = dw.db.SelectContext(ctx, dest, query, args...)
		return err
	})
	dw.record(cbErr == nil && err == nil)
	if cbErr != nil {
		return cbErr
	}
	return err
}

// IsCircuitBreakerOpen reports whether the store is currently cut off.
func (dw *DatabaseWrapper) IsCircuitBreakerOpen() bool {
	return dw.cb.State() == StateOpen
}

func (dw *DatabaseWrapper) record(success bool) {
	GlobalMetricsCollector.RecordRequest("postgresql", dbService, dw.cb.State(), success)
}
