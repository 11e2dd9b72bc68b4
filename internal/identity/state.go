package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateTTL bounds how long a login redirect may take.
const StateTTL = 10 * time.Minute

// StateStore remembers CSRF state values between the login redirect and
// the callback.  Consume succeeds at most once per state.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (bool, error)
}

// NewState produces a cryptographically random base64-URL-encoded token.
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewStateStore returns a Redis-backed store when rdb is non-nil, and a
// process-local store otherwise.
func NewStateStore(rdb *redis.Client, prefix string) StateStore {
	if rdb == nil {
		return NewMemoryStateStore()
	}
	return &RedisStateStore{rdb: rdb, prefix: prefix}
}

// RedisStateStore keeps states as expiring keys so every replica sees them.
type RedisStateStore struct {
	rdb    *redis.Client
	prefix string
}

func (s *RedisStateStore) key(state string) string { return s.prefix + ":" + state }

func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(state), "1", ttl).Err()
}

// Consume deletes the key atomically with GETDEL so two callbacks cannot
// both succeed.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	_, err := s.rdb.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryStateStore is a mutex-guarded map with expiry.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purge()
	s.states[state] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) (bool, error) {
	if state == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	if !ok {
		return false, nil
	}
	delete(s.states, state)
	return s.now().Before(exp), nil
}

// purge removes expired entries; must be called under s.mu.
func (s *MemoryStateStore) purge() {
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
}
