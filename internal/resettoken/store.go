// Package resettoken keeps the single pending password-reset token per email.
package resettoken

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when no token is pending for the email.
var ErrNotFound = errors.New("reset token not found")

// Store maps an email to its pending reset token. Set overwrites any
// previous token; Delete of a missing entry is not an error. Consume removes
// the entry only if it still holds token, and reports whether it did; at most
// one concurrent caller wins.
type Store interface {
	Get(ctx context.Context, email string) (string, error)
	Set(ctx context.Context, email, token string, ttl time.Duration) error
	Delete(ctx context.Context, email string) error
	Consume(ctx context.Context, email, token string) (bool, error)
}

// MemoryStore is a process-local Store. Entries are dropped only when
// consumed or overwritten; the token's own expiry claim bounds their use.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, email string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[email]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (s *MemoryStore) Set(_ context.Context, email, token string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[email] = token
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, email)
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, email, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tokens[email]
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return false, nil
	}
	delete(s.tokens, email)
	return true, nil
}

// consumeScript deletes KEYS[1] only while it still equals ARGV[1].
var consumeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore keeps tokens under reset_token:<email> and lets Redis expire them.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(email string) string {
	return "reset_token:" + email
}

func (s *RedisStore) Get(ctx context.Context, email string) (string, error) {
	token, err := s.client.Get(ctx, key(email)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return token, err
}

func (s *RedisStore) Set(ctx context.Context, email, token string, ttl time.Duration) error {
	return s.client.Set(ctx, key(email), token, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, email string) error {
	return s.client.Del(ctx, key(email)).Err()
}

func (s *RedisStore) Consume(ctx context.Context, email, token string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{key(email)}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
