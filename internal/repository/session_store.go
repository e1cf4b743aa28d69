package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"coach-llm/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore guarda el contexto de cada sesion hasta que expira.
type SessionStore interface {
	Get(ctx context.Context, id string) (domain.Session, error)
	Save(ctx context.Context, session domain.Session) error
	Delete(ctx context.Context, id string) error
}

type MemorySessionStore struct {
	mu    sync.Mutex
	items map[string]domain.Session
	ttl   time.Duration
	now   func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemorySessionStore{
		items: make(map[string]domain.Session),
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.items[id]
	if !ok {
		return domain.Session{}, ErrSessionNotFound
	}
	if !session.ExpiresAt.IsZero() && s.now().After(session.ExpiresAt) {
		delete(s.items, id)
		return domain.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) Save(_ context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ExpiresAt.IsZero() {
		session.ExpiresAt = s.now().Add(s.ttl)
	}
	s.items[session.ID] = session.Clone()
	s.sweepLocked()
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemorySessionStore) sweepLocked() {
	now := s.now()
	for id, session := range s.items {
		if !session.ExpiresAt.IsZero() && now.After(session.ExpiresAt) {
			delete(s.items, id)
		}
	}
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisSessionStore serializa la sesion como JSON con TTL.
type RedisSessionStore struct {
	client redisKV
	ttl    time.Duration
	prefix string
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if client == nil {
		return nil
	}
	return newRedisSessionStore(client, ttl)
}

func newRedisSessionStore(client redisKV, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessionStore{
		client: client,
		ttl:    ttl,
		prefix: "coach:session:",
	}
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (domain.Session, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Session{}, ErrSessionNotFound
	}
	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session domain.Session) error {
	if strings.TrimSpace(session.ID) == "" {
		return errors.New("session id required")
	}
	ttl := s.ttl
	if !session.ExpiresAt.IsZero() {
		if remaining := time.Until(session.ExpiresAt); remaining > 0 {
			ttl = remaining
		}
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, s.prefix+session.ID, raw, ttl).Err()
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+id).Err()
}
