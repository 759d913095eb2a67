package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/cache"
	"github.com/praxis-lab/Polya/go/decomposer/internal/contracts"
	"github.com/praxis-lab/Polya/go/decomposer/internal/db"
	"github.com/praxis-lab/Polya/go/decomposer/internal/registry"
)

const maxRequestBody = 1 << 20 // 1 MiB

// API serves the decomposition REST surface. Reads prefer the result
// cache and fall back to the store; writes go through the registered
// capability, which owns validation and persistence.
type API struct {
	registry *registry.Registry
	store    *db.Client
	cache    *cache.ResultCache
	logger   *zap.Logger
}

func NewAPI(reg *registry.Registry, store *db.Client, rc *cache.ResultCache, logger *zap.Logger) *API {
	return &API{
		registry: reg,
		store:    store,
		cache:    rc,
		logger:   logger,
	}
}

// RegisterRoutes registers the REST routes on the provided mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/decompositions", a.handleCreate)
	mux.HandleFunc("GET /api/v1/decompositions", a.handleList)
	mux.HandleFunc("GET /api/v1/decompositions/{id}", a.handleGet)
	mux.HandleFunc("GET /api/v1/agents", a.handleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{slug}", a.handleGetAgent)
	mux.HandleFunc("GET /api/v1/openapi.json", a.handleOpenAPI)
}

// handleCreate runs one decomposition.
// POST /api/v1/decompositions
func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input contracts.InvocationInput
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		a.writeError(w, contracts.NewErrorEnvelope(
			contracts.CodeValidationFailed, "invalid JSON body: "+err.Error(), ""))
		return
	}

	executionRef := input.ExecutionRef
	if executionRef == "" {
		executionRef = uuid.New().String()
	}

	capability, ok := a.registry.Get(agentSlug(r))
	if !ok {
		a.writeError(w, contracts.NewErrorEnvelope(
			contracts.CodeValidationFailed, "unknown agent", executionRef))
		return
	}

	validated, err := capability.Validate(input)
	if err != nil {
		a.writeError(w, envelopeFor(err, executionRef))
		return
	}

	env, err := capability.Invoke(r.Context(), validated, executionRef)
	if err != nil {
		a.logger.Warn("Invocation failed",
			zap.String("execution_ref", executionRef),
			zap.Error(err))
		a.writeError(w, envelopeFor(err, executionRef))
		return
	}

	a.writeJSON(w, http.StatusOK, env)
}

// handleGet returns one decomposition by id, cache first.
// GET /api/v1/decompositions/{id}
func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if a.cache != nil {
		if env, ok := a.cache.GetByID(r.Context(), id); ok {
			a.writeJSON(w, http.StatusOK, map[string]any{
				"source":   "cache",
				"envelope": env,
			})
			return
		}
	}

	if a.store == nil {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	rec, err := a.store.GetDecomposition(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error("Lookup failed", zap.String("decomposition_id", id), zap.Error(err))
		a.writeError(w, contracts.NewErrorEnvelope(
			contracts.CodePersistenceError, "lookup failed", ""))
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"source": "store",
		"record": recordView(rec),
	})
}

// handleList returns recent decompositions, newest first.
// GET /api/v1/decompositions?limit=20
func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		a.writeJSON(w, http.StatusOK, map[string]any{"decompositions": []any{}})
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	recs, err := a.store.ListRecent(r.Context(), limit)
	if err != nil {
		a.logger.Error("List failed", zap.Error(err))
		a.writeError(w, contracts.NewErrorEnvelope(
			contracts.CodePersistenceError, "list failed", ""))
		return
	}

	views := make([]map[string]any, 0, len(recs))
	for i := range recs {
		views = append(views, recordView(&recs[i]))
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"decompositions": views})
}

// handleListAgents returns all registered capabilities.
// GET /api/v1/agents
func (a *API) handleListAgents(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{"agents": a.registry.List()})
}

// handleGetAgent returns one capability description.
// GET /api/v1/agents/{slug}
func (a *API) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	capability, ok := a.registry.Get(r.PathValue("slug"))
	if !ok {
		http.Error(w, `{"error":"unknown agent"}`, http.StatusNotFound)
		return
	}
	a.writeJSON(w, http.StatusOK, capability.Describe())
}

// agentSlug resolves which capability a create request targets; the
// decomposer is the default.
func agentSlug(r *http.Request) string {
	if slug := r.URL.Query().Get("agent"); slug != "" {
		return slug
	}
	return "decomposer"
}

// recordView flattens a stored row for API output; the full result stays
// under "payload".
func recordView(rec *db.DecompositionRecord) map[string]any {
	return map[string]any{
		"decomposition_id": rec.DecompositionID,
		"objective":        rec.Objective,
		"node_count":       rec.NodeCount,
		"max_depth":        rec.MaxDepth,
		"atomic_count":     rec.AtomicCount,
		"coverage_score":   rec.CoverageScore,
		"confidence":       rec.Confidence,
		"execution_ref":    rec.ExecutionRef,
		"created_at":       rec.CreatedAt.Format(time.RFC3339),
		"payload":          json.RawMessage(rec.Payload),
	}
}

// envelopeFor maps a failure to the wire error envelope. Unclassified
// errors are processing errors unless the message points at the
// persistence layer.
func envelopeFor(err error, executionRef string) contracts.ErrorEnvelope {
	var ae *contracts.AgentError
	if errors.As(err, &ae) {
		return contracts.NewErrorEnvelope(ae.Code, ae.Message, executionRef)
	}
	code := contracts.CodeProcessingError
	if isPersistenceMessage(err.Error()) {
		code = contracts.CodePersistenceError
	}
	return contracts.NewErrorEnvelope(code, err.Error(), executionRef)
}

func isPersistenceMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"persist", "database", "sql:"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError picks the HTTP status from the envelope's error code.
func (a *API) writeError(w http.ResponseWriter, env contracts.ErrorEnvelope) {
	status := http.StatusInternalServerError
	switch env.ErrorCode {
	case contracts.CodeValidationFailed:
		status = http.StatusBadRequest
	case contracts.CodePersistenceError:
		status = http.StatusServiceUnavailable
	}
	a.writeJSON(w, status, env)
}
