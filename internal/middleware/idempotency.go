package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/auth"
	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

// IdempotencyMiddleware replays the stored response for repeated POSTs
// carrying the same Idempotency-Key. Keys are scoped to the authenticated
// principal so callers cannot read each other's responses.
type IdempotencyMiddleware struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewIdempotencyMiddleware(rdb *redis.Client, logger *zap.Logger, ttl time.Duration) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyMiddleware{
		redis:  rdb,
		logger: logger,
		ttl:    ttl,
	}
}

// storedResponse is the cached outcome of an idempotent request.
type storedResponse struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
	Timestamp  time.Time           `json:"timestamp"`
}

// responseRecorder captures the response for caching.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	written    bool
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		body:           &bytes.Buffer{},
	}
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware returns the HTTP middleware function.
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if im.redis == nil || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		cacheKey := im.cacheKey(r, idempotencyKey)

		if cached, err := im.getStored(ctx, cacheKey); err == nil && cached != nil {
			metrics.IdempotencyHits.Inc()
			im.logger.Debug("Replaying idempotent response",
				zap.String("idempotency_key", idempotencyKey),
				zap.String("path", r.URL.Path),
			)
			for key, values := range cached.Headers {
				for _, value := range values {
					w.Header().Add(key, value)
				}
			}
			w.Header().Set("X-Idempotency-Cached", "true")
			w.Header().Set("X-Idempotency-Key", idempotencyKey)
			w.WriteHeader(cached.StatusCode)
			_, _ = w.Write(cached.Body)
			return
		}

		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		// Only successful responses are worth replaying; a failed attempt
		// should be retried for real.
		if recorder.statusCode >= 200 && recorder.statusCode < 300 {
			stored := &storedResponse{
				StatusCode: recorder.statusCode,
				Headers:    recorder.Header(),
				Body:       recorder.body.Bytes(),
				Timestamp:  time.Now().UTC(),
			}
			if err := im.store(ctx, cacheKey, stored); err != nil {
				im.logger.Warn("Failed to store idempotent response",
					zap.Error(err),
					zap.String("idempotency_key", idempotencyKey),
				)
			}
		}
	})
}

// cacheKey hashes key, principal, path, and body so the same Idempotency-Key
// with a different payload does not replay a stale response.
func (im *IdempotencyMiddleware) cacheKey(r *http.Request, idempotencyKey string) string {
	principalID := ""
	if p, err := auth.PrincipalFrom(r.Context()); err == nil {
		principalID = p.ID.String()
	}

	h := sha256.New()
	h.Write([]byte(idempotencyKey))
	h.Write([]byte(principalID))
	h.Write([]byte(r.URL.Path))
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		h.Write(body)
	}

	return "polya:idem:" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (im *IdempotencyMiddleware) getStored(ctx context.Context, key string) (*storedResponse, error) {
	data, err := im.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var stored storedResponse
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

func (im *IdempotencyMiddleware) store(ctx context.Context, key string, stored *storedResponse) error {
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return im.redis.Set(ctx, key, data, im.ttl).Err()
}
