package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// API keys look like pk_<32 hex chars>. The prefix (pk_ plus the first 8
// hex chars) is stored in clear for lookup; the full key only as a bcrypt
// hash.
const (
	apiKeyPrefix    = "pk_"
	apiKeyRandBytes = 16
	keyPrefixLen    = 11 // len("pk_") + 8
)

// Service validates and mints API keys against the auth tables.
type Service struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewService creates the API-key service.
func NewService(db *sqlx.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// ValidateAPIKey checks a presented key and returns its principal.
func (s *Service) ValidateAPIKey(ctx context.Context, apiKey string) (*Principal, error) {
	if len(apiKey) < keyPrefixLen || apiKey[:len(apiKeyPrefix)] != apiKeyPrefix {
		return nil, fmt.Errorf("invalid API key format")
	}
	prefix := apiKey[:keyPrefixLen]

	var keys []APIKey
	err := s.db.SelectContext(ctx, &keys,
		`SELECT id, name, key_prefix, key_hash, role, team, is_active, expires_at, created_at, last_used
		   FROM api_keys WHERE key_prefix = $1 AND is_active = true`, prefix)
	if err != nil {
		return nil, fmt.Errorf("query API keys: %w", err)
	}

	var match *APIKey
	for i := range keys {
		if bcrypt.CompareHashAndPassword([]byte(keys[i].KeyHash), []byte(apiKey)) == nil {
			match = &keys[i]
			break
		}
	}
	if match == nil {
		return nil, fmt.Errorf("invalid API key")
	}
	if match.ExpiresAt != nil && match.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("API key expired")
	}

	// Touch last_used off the request path.
	go func(id uuid.UUID) {
		if _, err := s.db.Exec("UPDATE api_keys SET last_used = NOW() WHERE id = $1", id); err != nil {
			s.logger.Warn("Failed to update API key last_used", zap.Error(err))
		}
	}(match.ID)

	return &Principal{
		ID:        match.ID,
		Name:      match.Name,
		Role:      match.Role,
		Team:      match.Team,
		TokenType: "api_key",
	}, nil
}

// CreateAPIKey mints a key and stores its hash. The plaintext key is
// returned exactly once.
func (s *Service) CreateAPIKey(ctx context.Context, name, role, team string, expiresAt *time.Time) (string, *APIKey, error) {
	if role == "" {
		role = RoleService
	}

	buf := make([]byte, apiKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate API key: %w", err)
	}
	plaintext := apiKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash API key: %w", err)
	}

	key := &APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyPrefix: plaintext[:keyPrefixLen],
		KeyHash:   string(hash),
		Role:      role,
		Team:      team,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_prefix, key_hash, role, team, is_active, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		key.ID, key.Name, key.KeyPrefix, key.KeyHash, key.Role, key.Team,
		key.IsActive, key.ExpiresAt, key.CreatedAt)
	if err != nil {
		return "", nil, fmt.Errorf("store API key: %w", err)
	}

	s.logger.Info("API key created",
		zap.String("name", name),
		zap.String("prefix", key.KeyPrefix))
	return plaintext, key, nil
}
