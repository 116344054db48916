package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maisonvoile/storefront-backend/internal/app/model"
	"github.com/redis/go-redis/v9"
)

const guestKeyPrefix = "cart:guest:"

// DefaultGuestTTL is how long an untouched guest cart survives.
const DefaultGuestTTL = 30 * 24 * time.Hour

// RedisGuestStore keeps each guest cart as a JSON array under
// cart:guest:<session>. Every save renews the ttl.
type RedisGuestStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuestStore(client *redis.Client, ttl time.Duration) *RedisGuestStore {
	if ttl <= 0 {
		ttl = DefaultGuestTTL
	}
	return &RedisGuestStore{client: client, ttl: ttl}
}

func (s *RedisGuestStore) Load(ctx context.Context, sessionID string) ([]model.CartLineItem, error) {
	raw, err := s.client.Get(ctx, guestKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return []model.CartLineItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	var items []model.CartLineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return items, nil
}

func (s *RedisGuestStore) Save(ctx context.Context, sessionID string, items []model.CartLineItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.client.Set(ctx, guestKeyPrefix+sessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save guest cart: %w", err)
	}
	return nil
}

func (s *RedisGuestStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, guestKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete guest cart: %w", err)
	}
	return nil
}

// MemoryGuestStore is a GuestStore for single-instance runs without Redis.
// Carts do not expire.
type MemoryGuestStore struct {
	mu    sync.Mutex
	carts map[string][]model.CartLineItem
}

func NewMemoryGuestStore() *MemoryGuestStore {
	return &MemoryGuestStore{carts: make(map[string][]model.CartLineItem)}
}

func (s *MemoryGuestStore) Load(_ context.Context, sessionID string) ([]model.CartLineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]model.CartLineItem, len(s.carts[sessionID]))
	copy(items, s.carts[sessionID])
	return items, nil
}

func (s *MemoryGuestStore) Save(_ context.Context, sessionID string, items []model.CartLineItem) error {
	stored := make([]model.CartLineItem, len(items))
	copy(stored, items)

	s.mu.Lock()
	s.carts[sessionID] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryGuestStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.carts, sessionID)
	s.mu.Unlock()
	return nil
}
