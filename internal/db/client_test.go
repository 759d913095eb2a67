package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/circuitbreaker"
	"github.com/praxis-lab/Polya/go/decomposer/internal/config"
	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
)

func testClient(t *testing.T, pcfg config.PersistenceConfig) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	wrapped := circuitbreaker.NewDatabaseWrapper(sqlx.NewDb(raw, "postgres"), zap.NewNop())
	c := newClientWith(wrapped, pcfg, zap.NewNop())
	t.Cleanup(c.Close)
	return c, mock
}

func sampleInvocation(t *testing.T) (contracts.DecisionEvent, decompose.Result) {
	t.Helper()
	subs := decompose.Decompose("build an api service", decompose.DefaultOptions())
	res := decompose.NewResult("build an api service", subs,
		decompose.Analyze(subs, decompose.AssumptionContext{}))
	evt, err := contracts.NewDecisionEvent("decomposer", "1.0.0",
		contracts.DecisionDecomposition, res, 0.9)
	require.NoError(t, err)
	return evt, res
}

func expectBothInserts(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO decomposition_results").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO decision_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestBuildWriteRequest(t *testing.T) {
	evt, res := sampleInvocation(t)

	req, err := buildWriteRequest(evt, res)
	require.NoError(t, err)
	assert.Equal(t, res.DecompositionID, req.dec.DecompositionID)
	assert.Equal(t, res.Analysis.TotalSubObjectives, req.dec.NodeCount)
	assert.Equal(t, evt.Confidence, req.dec.Confidence)
	assert.Equal(t, evt.ID, req.evt.ID)
	assert.Equal(t, "decomposition", req.evt.DecisionType)
	assert.NotEmpty(t, req.dec.Payload)
	assert.NotEmpty(t, req.evt.Payload)
}

func TestWriteInsertsResultAndEvent(t *testing.T) {
	c, mock := testClient(t, config.PersistenceConfig{QueueSize: 1, Workers: 1})
	evt, res := sampleInvocation(t)
	req, err := buildWriteRequest(evt, res)
	require.NoError(t, err)

	expectBothInserts(mock)
	require.NoError(t, c.write(context.Background(), req))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDecompositionAsync(t *testing.T) {
	c, mock := testClient(t, config.PersistenceConfig{QueueSize: 8, Workers: 1})
	evt, res := sampleInvocation(t)

	expectBothInserts(mock)
	require.NoError(t, c.SaveDecomposition(context.Background(), evt, res))

	// The worker picks the request up asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("async write never happened: %v", mock.ExpectationsWereMet())
}

func TestCloseDrainsQueue(t *testing.T) {
	c, mock := testClient(t, config.PersistenceConfig{QueueSize: 8, Workers: 1})
	evt, res := sampleInvocation(t)

	expectBothInserts(mock)
	require.NoError(t, c.SaveDecomposition(context.Background(), evt, res))
	c.Close()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecomposition(t *testing.T) {
	c, mock := testClient(t, config.PersistenceConfig{QueueSize: 1, Workers: 1})

	cols := []string{"decomposition_id", "objective", "node_count", "max_depth",
		"atomic_count", "coverage_score", "confidence", "execution_ref", "payload", "created_at"}
	mock.ExpectQuery("SELECT .* FROM decomposition_results WHERE").
		WithArgs("dec-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("dec-1", "build an api", 8, 1, 6, 0.95, 0.95, "ref-1", []byte(`{}`), time.Now()))

	rec, err := c.GetDecomposition(context.Background(), "dec-1")
	require.NoError(t, err)
	assert.Equal(t, "dec-1", rec.DecompositionID)
	assert.Equal(t, 8, rec.NodeCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentClampsLimit(t *testing.T) {
	c, mock := testClient(t, config.PersistenceConfig{QueueSize: 1, Workers: 1})

	cols := []string{"decomposition_id", "objective", "node_count", "max_depth",
		"atomic_count", "coverage_score", "confidence", "execution_ref", "payload", "created_at"}
	mock.ExpectQuery("SELECT .* FROM decomposition_results ORDER BY").
		WithArgs(20).
		WillReturnRows(sqlmock.NewRows(cols))

	_, err := c.ListRecent(context.Background(), -5)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
