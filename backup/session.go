package backup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps reconciliation sessions between validate and import.
// Sessions expire after ttl so an abandoned reconciliation is dropped.
type SessionStore interface {
	Save(ctx context.Context, s *Session, ttl time.Duration) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

const sessionKeyPrefix = "ReconcileSession:"

type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKeyPrefix+s.ID, data, ttl).Err()
}

func (r *RedisSessionStore) Load(ctx context.Context, id string) (*Session, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, utils.ErrSessionNotFound
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKeyPrefix+id).Err()
}

type memorySession struct {
	data      []byte
	expiresAt time.Time
}

// MemorySessionStore is the single-process fallback when Redis is absent.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]memorySession{}, now: time.Now}
}

func (m *MemorySessionStore) Save(ctx context.Context, s *Session, ttl time.Duration) error {
	// stored encoded so callers never share a Session with the store
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.sessions[s.ID] = memorySession{data: data, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok && !m.now().Before(entry.expiresAt) {
		delete(m.sessions, id)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, utils.ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(entry.data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) sweepLocked() {
	now := m.now()
	for id, entry := range m.sessions {
		if !now.Before(entry.expiresAt) {
			delete(m.sessions, id)
		}
	}
}
