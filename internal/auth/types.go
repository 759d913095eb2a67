package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Principal is the authenticated caller attached to request contexts.
type Principal struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Team      string    `json:"team,omitempty"`
	TokenType string    `json:"token_type"` // "jwt" or "api_key"
}

// Roles accepted on tokens and keys.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
	RoleUser    = "user"
)

// APIKey is one stored key row. Only the bcrypt hash is persisted; the
// plaintext key is shown once at creation.
type APIKey struct {
	ID        uuid.UUID  `db:"id"`
	Name      string     `db:"name"`
	KeyPrefix string     `db:"key_prefix"`
	KeyHash   string     `db:"key_hash"`
	Role      string     `db:"role"`
	Team      string     `db:"team"`
	IsActive  bool       `db:"is_active"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	LastUsed  *time.Time `db:"last_used"`
}

type contextKey string

const principalKey contextKey = "polya_principal"

// WithPrincipal attaches the caller to a context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the caller attached by the auth middleware.
func PrincipalFrom(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalKey).(*Principal)
	if !ok || p == nil {
		return nil, fmt.Errorf("no principal in context")
	}
	return p, nil
}
