package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const sessionKeyPrefix = "session:"

// ErrSessionNotFound means the session id is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps login sessions in Redis so every replica sees the
// same sessions and revocation takes effect immediately.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store. ttl is the session lifetime;
// it also drives the expiry stamped into the claims.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Create stores the claims under a fresh opaque session id and returns
// the id for the cookie.
func (s *SessionStore) Create(ctx context.Context, claims SessionClaims) (string, error) {
	now := time.Now().UTC()
	claims.IssuedAt = now
	claims.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	if err := s.client.Set(ctx, sessionKeyPrefix+id, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return id, nil
}

// Get resolves a session id to its claims.
func (s *SessionStore) Get(ctx context.Context, id string) (SessionClaims, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return SessionClaims{}, ErrSessionNotFound
	} else if err != nil {
		return SessionClaims{}, fmt.Errorf("failed to load session: %w", err)
	}

	var claims SessionClaims
	if err := json.Unmarshal([]byte(data), &claims); err != nil {
		// Corrupt payload: drop it rather than serve garbage claims.
		s.client.Del(ctx, sessionKeyPrefix+id)
		return SessionClaims{}, ErrSessionNotFound
	}
	if claims.Expired(time.Now()) {
		return SessionClaims{}, ErrSessionNotFound
	}
	return claims, nil
}

// Destroy removes a session. Destroying an unknown session is not an
// error.
func (s *SessionStore) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, sessionKeyPrefix+id).Err()
}
