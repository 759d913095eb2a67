package middleware

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/auth"
)

// AuthMiddleware authenticates requests with either a bearer JWT or an
// API key. Keys are recognized by their "pk_" prefix regardless of which
// header carried them.
type AuthMiddleware struct {
	apiKeys *auth.Service
	jwt     *auth.JWTManager
	logger  *zap.Logger
}

func NewAuthMiddleware(apiKeys *auth.Service, jwt *auth.JWTManager, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		apiKeys: apiKeys,
		jwt:     jwt,
		logger:  logger,
	}
}

// Middleware returns the HTTP middleware function.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Development bypass only; never set in deployed environments.
		if os.Getenv("POLYA_SKIP_AUTH") == "1" {
			p := &auth.Principal{
				ID:        uuid.MustParse("00000000-0000-0000-0000-000000000001"),
				Name:      "dev",
				Role:      auth.RoleAdmin,
				TokenType: "api_key",
			}
			m.logger.Debug("Auth skipped (POLYA_SKIP_AUTH=1)", zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
			return
		}

		credential := m.extractCredential(r)
		if credential == "" {
			m.sendUnauthorized(w, "credentials are required")
			return
		}

		var (
			principal *auth.Principal
			err       error
		)
		if strings.HasPrefix(credential, "pk_") {
			if m.apiKeys == nil {
				m.sendUnauthorized(w, "API key auth is not enabled")
				return
			}
			principal, err = m.apiKeys.ValidateAPIKey(r.Context(), credential)
		} else {
			if m.jwt == nil {
				m.sendUnauthorized(w, "token auth is not enabled")
				return
			}
			principal, err = m.jwt.Verify(credential)
		}
		if err != nil {
			m.logger.Debug("Authentication failed",
				zap.Error(err),
				zap.String("credential_prefix", credentialPrefix(credential)),
				zap.String("path", r.URL.Path),
			)
			m.sendUnauthorized(w, "invalid credentials")
			return
		}

		m.logger.Debug("Request authenticated",
			zap.String("principal_id", principal.ID.String()),
			zap.String("role", principal.Role),
			zap.String("path", r.URL.Path),
		)

		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// extractCredential pulls the API key or JWT from the request.
func (m *AuthMiddleware) extractCredential(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if header := r.Header.Get("Authorization"); header != "" {
		if token, err := auth.ExtractBearerToken(header); err == nil {
			return token
		}
	}
	// Query fallback exists for EventSource clients, which cannot set headers.
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}
	return ""
}

// credentialPrefix keeps log lines from leaking whole secrets.
func credentialPrefix(credential string) string {
	if len(credential) > 8 {
		return credential[:8] + "..."
	}
	return "***"
}

func (m *AuthMiddleware) sendUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="Polya API"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
