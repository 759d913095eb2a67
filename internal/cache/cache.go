package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/circuitbreaker"
	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// Key prefixes in the shared Redis keyspace.
const (
	resultKeyPrefix = "polya:result:"
	byIDKeyPrefix   = "polya:byid:"
)

// ResultCache is a two-tier cache for finished invocations: a local LRU in
// front of a circuit-breaker wrapped Redis tier. Identical inputs hash to
// the same key, so a hit returns the earlier envelope without re-running
// the engine. The decomposition is deterministic, which makes replaying a
// cached result indistinguishable from recomputing it apart from timing.
type ResultCache struct {
	local  *localLRU
	remote *circuitbreaker.RedisWrapper
	ttl    time.Duration
	logger *zap.Logger
}

// New builds the cache. remote may be nil, leaving the local tier alone to
// serve the process.
func New(localSize int, ttl time.Duration, remote *circuitbreaker.RedisWrapper, logger *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ResultCache{
		local:  newLocalLRU(localSize),
		remote: remote,
		ttl:    ttl,
		logger: logger,
	}
}

// NewWithRedis is New plus Redis client construction and a connectivity
// probe. A dead Redis is tolerated: the wrapper's breaker opens and the
// local tier carries on.
func NewWithRedis(localSize int, ttl time.Duration, addr, password string, db int, logger *zap.Logger) *ResultCache {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	wrapper := circuitbreaker.NewRedisWrapper(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := wrapper.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis cache tier unreachable at startup, local tier only for now",
			zap.String("addr", addr), zap.Error(err))
	}
	return New(localSize, ttl, wrapper, logger)
}

// Get returns the cached envelope for an inputs hash.
func (c *ResultCache) Get(ctx context.Context, inputsHash string) (*contracts.SuccessEnvelope, bool) {
	key := resultKeyPrefix + inputsHash

	if raw, ok := c.local.get(key); ok {
		metrics.CacheHits.Inc()
		return decodeEnvelope(raw, c.logger)
	}

	if c.remote != nil {
		raw, err := c.remote.Get(ctx, key).Bytes()
		if err == nil {
			c.local.set(key, raw, c.ttl)
			metrics.CacheHits.Inc()
			return decodeEnvelope(raw, c.logger)
		}
	}

	metrics.CacheMisses.Inc()
	return nil, false
}

// Set stores the envelope under its inputs hash in both tiers.
func (c *ResultCache) Set(ctx context.Context, inputsHash string, env contracts.SuccessEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("Failed to serialize envelope for cache", zap.Error(err))
		return
	}

	key := resultKeyPrefix + inputsHash
	c.local.set(key, raw, c.ttl)
	if c.remote != nil {
		if err := c.remote.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Debug("Redis cache write failed", zap.Error(err))
		}
	}

	// Secondary index so GET-by-id can skip the store on recent results.
	idKey := byIDKeyPrefix + env.Event.ID
	if decID := decompositionID(env); decID != "" {
		idKey = byIDKeyPrefix + decID
	}
	c.local.set(idKey, raw, c.ttl)
	if c.remote != nil {
		_ = c.remote.Set(ctx, idKey, raw, c.ttl).Err()
	}
}

// GetByID returns the cached envelope for a decomposition id.
func (c *ResultCache) GetByID(ctx context.Context, decompositionID string) (*contracts.SuccessEnvelope, bool) {
	key := byIDKeyPrefix + decompositionID

	if raw, ok := c.local.get(key); ok {
		metrics.CacheHits.Inc()
		return decodeEnvelope(raw, c.logger)
	}
	if c.remote != nil {
		raw, err := c.remote.Get(ctx, key).Bytes()
		if err == nil {
			c.local.set(key, raw, c.ttl)
			metrics.CacheHits.Inc()
			return decodeEnvelope(raw, c.logger)
		}
	}
	metrics.CacheMisses.Inc()
	return nil, false
}

// Ping reports remote tier connectivity for health checks. A cache without
// a remote tier is always healthy.
func (c *ResultCache) Ping(ctx context.Context) error {
	if c.remote == nil {
		return nil
	}
	return c.remote.Ping(ctx).Err()
}

// IsCircuitBreakerOpen reports whether the remote tier is cut off. A
// cache without a remote tier never opens.
func (c *ResultCache) IsCircuitBreakerOpen() bool {
	return c.remote != nil && c.remote.IsCircuitBreakerOpen()
}

func decodeEnvelope(raw []byte, logger *zap.Logger) (*contracts.SuccessEnvelope, bool) {
	var env contracts.SuccessEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Warn("Dropping undecodable cache entry", zap.Error(err))
		return nil, false
	}
	return &env, true
}

// decompositionID digs the decomposition id out of the opaque outputs
// payload. Best-effort; an empty string skips the by-id index.
func decompositionID(env contracts.SuccessEnvelope) string {
	var partial struct {
		DecompositionID string `json:"decomposition_id"`
	}
	if err := json.Unmarshal(env.Event.Outputs, &partial); err != nil {
		return ""
	}
	return partial.DecompositionID
}

// localLRU is an in-process LRU with per-entry TTL. Front of the list is
// most recently used.
type localLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List
	m    map[string]*list.Element
}

type lruEntry struct {
	key string
	raw []byte
	exp time.Time
}

func newLocalLRU(capacity int) *localLRU {
	if capacity <= 0 {
		capacity = 512
	}
	return &localLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity)}
}

func (l *localLRU) get(key string) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(time.Now()) {
			l.list.MoveToFront(el)
			return ent.raw, true
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	return nil, false
}

func (l *localLRU) set(key string, raw []byte, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		el.Value = lruEntry{key: key, raw: raw, exp: time.Now().Add(ttl)}
		l.list.MoveToFront(el)
		return
	}
	el := l.list.PushFront(lruEntry{key: key, raw: raw, exp: time.Now().Add(ttl)})
	l.m[key] = el
	if l.list.Len() > l.cap {
		back := l.list.Back()
		if back != nil {
			ent := back.Value.(lruEntry)
			delete(l.m, ent.key)
			l.list.Remove(back)
			metrics.CacheEvictions.Inc()
		}
	}
}
