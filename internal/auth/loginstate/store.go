// Package loginstate guards the federated login round trip. A one-shot state
// token is issued when the login starts and must be redeemed exactly once on
// the callback, which closes the replay window on captured assertions.
package loginstate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"mercato/pkg/platform/sentinel"
	"mercato/pkg/secrets"
)

// Store issues and redeems one-shot login state tokens.
type Store interface {
	Issue(ctx context.Context) (string, error)
	Redeem(ctx context.Context, token string) error
}

// RedisStore keeps state tokens in Redis with a TTL. Redemption uses GETDEL
// so exactly one caller wins even across processes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context) (string, error) {
	token, err := secrets.GenerateStateToken()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, key(token), "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store login state: %w: %w", sentinel.ErrUnavailable, err)
	}
	return token, nil
}

func (s *RedisStore) Redeem(ctx context.Context, token string) error {
	err := s.client.GetDel(ctx, key(token)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("redeem login state: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func key(token string) string {
	return "loginstate:" + token
}

// MemoryStore is the broker-less fallback, suitable for a single process.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	ttl    time.Duration
}

func NewMemory(ttl time.Duration) *MemoryStore {
	return &MemoryStore{tokens: make(map[string]time.Time), ttl: ttl}
}

func (s *MemoryStore) Issue(_ context.Context) (string, error) {
	token, err := secrets.GenerateStateToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Expired tokens that were never redeemed would otherwise accumulate;
	// issuing is the natural moment to drop them.
	now := time.Now()
	for existing, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, existing)
		}
	}
	s.tokens[token] = now.Add(s.ttl)
	return token, nil
}

func (s *MemoryStore) Redeem(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.tokens[token]
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	delete(s.tokens, token)
	if time.Now().After(expiry) {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}
