package middleware

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ValidationMiddleware performs cheap shape checks on common parameters
// before a handler runs. Anything semantic stays in the handlers.
type ValidationMiddleware struct {
	logger *zap.Logger
}

func NewValidationMiddleware(logger *zap.Logger) *ValidationMiddleware {
	return &ValidationMiddleware{logger: logger}
}

func (vm *ValidationMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		switch {
		case method == http.MethodGet && path == "/api/v1/decompositions":
			if !vm.validatePagination(w, r, 1, 100) {
				return
			}

		case method == http.MethodGet && strings.HasPrefix(path, "/api/v1/decompositions/"):
			if !vm.validatePathID(w, r) {
				return
			}

		case strings.HasPrefix(path, "/api/v1/stream/sse") || strings.HasPrefix(path, "/api/v1/stream/ws"):
			if !vm.validateExecutionRef(w, r) {
				return
			}
			if !vm.validateOptionalLastEventID(w, r) {
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

var idRe = regexp.MustCompile(`^[A-Za-z0-9:_\-\.]{1,128}$`)

func (vm *ValidationMiddleware) validatePathID(w http.ResponseWriter, r *http.Request) bool {
	id := r.PathValue("id")
	if id == "" || !idRe.MatchString(id) {
		vm.sendBadRequest(w, "Invalid decomposition ID format")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validateExecutionRef(w http.ResponseWriter, r *http.Request) bool {
	ref := r.URL.Query().Get("execution_ref")
	if ref == "" || !idRe.MatchString(ref) {
		vm.sendBadRequest(w, "Invalid or missing execution_ref")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) validatePagination(w http.ResponseWriter, r *http.Request, minLimit, maxLimit int) bool {
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < minLimit || n > maxLimit {
			vm.sendBadRequest(w, "Invalid limit parameter")
			return false
		}
	}
	if o := q.Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 {
			vm.sendBadRequest(w, "Invalid offset parameter")
			return false
		}
	}
	return true
}

func (vm *ValidationMiddleware) validateOptionalLastEventID(w http.ResponseWriter, r *http.Request) bool {
	v := r.URL.Query().Get("last_event_id")
	if v == "" {
		return true
	}
	if _, err := strconv.ParseUint(v, 10, 64); err != nil {
		vm.sendBadRequest(w, "Invalid last_event_id")
		return false
	}
	return true
}

func (vm *ValidationMiddleware) sendBadRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
