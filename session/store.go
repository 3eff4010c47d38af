package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrEmptySessionID is an exported constant or variable used by the email authentication engine.
var ErrEmptySessionID = errors.New("session id empty")

// ErrNotFound is an exported constant or variable used by the email authentication engine.
var ErrNotFound = errors.New("session not found")

// ErrRedisUnavailable is an exported constant or variable used by the email authentication engine.
var ErrRedisUnavailable = errors.New("session redis unavailable")

const keyPrefix = "session-"

// Store defines a public type used by emailauth APIs.
//
// Store instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Store struct {
	redis  *redis.Client
	prefix string
}

// NewStore describes the newstore operation and its observable behavior.
//
// NewStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{
		redis:  redisClient,
		prefix: keyPrefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Create mints a fresh random session identifier, persists the mapping to the
// account id, and returns the identifier.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Create(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", errors.New("account id empty")
	}

	sessionID := uuid.NewString()

	// Sessions have no server-side expiry; removal is explicit.
	if err := s.redis.Set(ctx, s.key(sessionID), accountID, 0).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sessionID, nil
}

// Get resolves a session identifier to its account id, or ErrNotFound.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
// Get does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Get(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrEmptySessionID
	}

	accountID, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return accountID, nil
}

// Remove deletes a session mapping. An empty session id is an input error.
// Removing an absent session is a no-op, never an error.
//
// Remove may return an error when input validation, dependency calls, or security checks fail.
// Remove does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Remove(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}
