package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/circuitbreaker"
	"github.com/praxis-lab/Polya/go/decomposer/internal/config"
	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/decompose"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// Client persists finished invocations. Writes are best-effort: they ride
// an async queue drained by a small worker pool, and a full queue falls
// back to one synchronous attempt so bursts degrade to slower writes, not
// silent loss.
type Client struct {
	db     *circuitbreaker.DatabaseWrapper
	logger *zap.Logger

	writeTimeout time.Duration
	queue        chan writeRequest
	stopCh       chan struct{}
	stopOnce     sync.Once
	workerWg     sync.WaitGroup
}

type writeRequest struct {
	dec DecompositionRecord
	evt DecisionEventRecord
}

// ErrNotFound is returned by read paths when no row matches.
var ErrNotFound = errors.New("decomposition not found")

// NewClient opens the pool, verifies connectivity, and starts the write
// workers.
func NewClient(cfg config.PostgresConfig, pcfg config.PersistenceConfig, logger *zap.Logger) (*Client, error) {
	raw, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	raw.SetMaxOpenConns(cfg.MaxConns)
	raw.SetMaxIdleConns(cfg.MaxConns / 2)
	raw.SetConnMaxLifetime(5 * time.Minute)

	wrapped := circuitbreaker.NewDatabaseWrapper(raw, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapped.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := newClientWith(wrapped, pcfg, logger)
	logger.Info("Persistence client initialized",
		zap.String("host", cfg.Host),
		zap.Int("workers", pcfg.Workers),
		zap.Int("queue_size", pcfg.QueueSize))
	return c, nil
}

// newClientWith wires a client around an already-wrapped pool; tests use
// it to inject sqlmock.
func newClientWith(wrapped *circuitbreaker.DatabaseWrapper, pcfg config.PersistenceConfig, logger *zap.Logger) *Client {
	workers := pcfg.Workers
	if workers < 1 {
		workers = 1
	}
	queueSize := pcfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	writeTimeout := pcfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	c := &Client{
		db:           wrapped,
		logger:       logger,
		writeTimeout: writeTimeout,
		queue:        make(chan writeRequest, queueSize),
		stopCh:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
	return c
}

// SaveDecomposition queues the result and its decision event for
// persistence. When the queue is full the write happens synchronously on
// the caller's deadline instead of being dropped.
func (c *Client) SaveDecomposition(ctx context.Context, evt contracts.DecisionEvent, res decompose.Result) error {
	req, err := buildWriteRequest(evt, res)
	if err != nil {
		return err
	}

	select {
	case c.queue <- req:
		metrics.PersistenceQueueDepth.Set(float64(len(c.queue)))
		return nil
	default:
		metrics.PersistenceQueueDrops.Inc()
		c.logger.Warn("Persistence queue full, writing synchronously",
			zap.String("decomposition_id", req.dec.DecompositionID))
		return c.write(ctx, req)
	}
}

// GetDecomposition loads one persisted result by id.
func (c *Client) GetDecomposition(ctx context.Context, id string) (*DecompositionRecord, error) {
	var rec DecompositionRecord
	err := c.db.GetContext(ctx, &rec,
		`SELECT decomposition_id, objective, node_count, max_depth, atomic_count,
		        coverage_score, confidence, execution_ref, payload, created_at
		   FROM decomposition_results WHERE decomposition_id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ListRecent returns the newest persisted results, newest first.
func (c *Client) ListRecent(ctx context.Context, limit int) ([]DecompositionRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var recs []DecompositionRecord
	err := c.db.SelectContext(ctx, &recs,
		`SELECT decomposition_id, objective, node_count, max_depth, atomic_count,
		        coverage_score, confidence, execution_ref, payload, created_at
		   FROM decomposition_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// Ping reports store connectivity for health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB exposes the underlying pool for components that run their own
// queries against the same database.
func (c *Client) DB() *sqlx.DB {
	return c.db.DB()
}

// IsCircuitBreakerOpen reports whether the store breaker is open.
func (c *Client) IsCircuitBreakerOpen() bool {
	return c.db.IsCircuitBreakerOpen()
}

// Close drains the queue and stops the workers.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.workerWg.Wait()
	})
}

func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	for {
		select {
		case req := <-c.queue:
			metrics.PersistenceQueueDepth.Set(float64(len(c.queue)))
			ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
			if err := c.write(ctx, req); err != nil {
				c.logger.Error("Async persistence write failed",
					zap.Int("worker", id),
					zap.String("decomposition_id", req.dec.DecompositionID),
					zap.Error(err))
			}
			cancel()
		case <-c.stopCh:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case req := <-c.queue:
					ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
					if err := c.write(ctx, req); err != nil {
						c.logger.Error("Drain write failed",
							zap.String("decomposition_id", req.dec.DecompositionID),
							zap.Error(err))
					}
					cancel()
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(ctx context.Context, req writeRequest) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO decomposition_results
		   (decomposition_id, objective, node_count, max_depth, atomic_count,
		    coverage_score, confidence, execution_ref, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (decomposition_id) DO NOTHING`,
		req.dec.DecompositionID, req.dec.Objective, req.dec.NodeCount,
		req.dec.MaxDepth, req.dec.AtomicCount, req.dec.CoverageScore,
		req.dec.Confidence, req.dec.ExecutionRef, req.dec.Payload, req.dec.CreatedAt)
	if err != nil {
		metrics.PersistenceWrites.WithLabelValues("failure").Inc()
		return fmt.Errorf("insert decomposition result: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO decision_events
		   (id, agent_id, decision_type, inputs_hash, confidence, execution_ref,
		    payload, trace_id, span_id, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		req.evt.ID, req.evt.AgentID, req.evt.DecisionType, req.evt.InputsHash,
		req.evt.Confidence, req.evt.ExecutionRef, req.evt.Payload,
		req.evt.TraceID, req.evt.SpanID, req.evt.DurationMs, req.evt.CreatedAt)
	if err != nil {
		metrics.PersistenceWrites.WithLabelValues("failure").Inc()
		return fmt.Errorf("insert decision event: %w", err)
	}

	metrics.PersistenceWrites.WithLabelValues("success").Inc()
	return nil
}

func buildWriteRequest(evt contracts.DecisionEvent, res decompose.Result) (writeRequest, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return writeRequest{}, fmt.Errorf("serialize result payload: %w", err)
	}
	evtPayload, err := json.Marshal(evt)
	if err != nil {
		return writeRequest{}, fmt.Errorf("serialize event payload: %w", err)
	}

	now := time.Now().UTC()
	return writeRequest{
		dec: DecompositionRecord{
			DecompositionID: res.DecompositionID,
			Objective:       res.OriginalObjective,
			NodeCount:       res.Analysis.TotalSubObjectives,
			MaxDepth:        res.Analysis.MaxDepthReached,
			AtomicCount:     res.Analysis.AtomicCount,
			CoverageScore:   res.Analysis.CoverageScore,
			Confidence:      evt.Confidence,
			ExecutionRef:    evt.ExecutionRef,
			Payload:         payload,
			CreatedAt:       now,
		},
		evt: DecisionEventRecord{
			ID:           evt.ID,
			AgentID:      evt.AgentID,
			DecisionType: string(evt.DecisionType),
			InputsHash:   evt.InputsHash,
			Confidence:   evt.Confidence,
			ExecutionRef: evt.ExecutionRef,
			Payload:      evtPayload,
			TraceID:      evt.Telemetry.TraceID,
			SpanID:       evt.Telemetry.SpanID,
			DurationMs:   evt.Telemetry.DurationMs,
			CreatedAt:    now,
		},
	}, nil
}
