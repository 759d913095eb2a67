package circuitbreaker

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return sqlx.NewDb(db, "postgres"), mock
}

func TestDatabaseWrapperExec(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	wrapper := NewDatabaseWrapper(db, zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO decomposition_results").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := wrapper.ExecContext(ctx, "INSERT INTO decomposition_results (decomposition_id) VALUES ($1)", "abc"); err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDatabaseWrapperOpensAfterFailures(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	wrapper := NewDatabaseWrapper(db, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		mock.ExpectExec("INSERT").WillReturnError(errors.New("connection refused"))
	}
	for i := 0; i < 5; i++ {
		_, _ = wrapper.ExecContext(ctx, "INSERT INTO decomposition_results (decomposition_id) VALUES ($1)", "x")
	}

	if !wrapper.IsCircuitBreakerOpen() {
		t.Fatal("breaker should open after repeated exec failures")
	}
	if _, err := wrapper.ExecContext(ctx, "INSERT INTO decomposition_results (decomposition_id) VALUES ($1)", "x"); !errors.Is(err, ErrCircuitBreakerOpen) {
		t.Fatalf("expected ErrCircuitBreakerOpen, got %v", err)
	}
}

func TestDatabaseWrapperGetNoRowsIsNotFailure(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	wrapper := NewDatabaseWrapper(db, zaptest.NewLogger(t))
	ctx := context.Background()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"decomposition_id"}))

	var id string
	err := wrapper.GetContext(ctx, &id, "SELECT decomposition_id FROM decomposition_results WHERE decomposition_id = $1", "missing")
	if err == nil {
		t.Fatal("expected sql.ErrNoRows")
	}
	if wrapper.IsCircuitBreakerOpen() {
		t.Fatal("no-rows must not trip the breaker")
	}
}
