package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mural-api/domain"
)

type backend interface {
	FetchColumns(ctx context.Context) ([]domain.Column, error)
	FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error)
	InsertCard(ctx context.Context, card domain.Card) (domain.Card, error)
	UpdateCardContent(ctx context.Context, scopeTag, id, content string) error
	UpdateCardPosition(ctx context.Context, scopeTag, id, columnID string, order int) error
	DeleteCard(ctx context.Context, scopeTag, id string) error
}

// Cache wraps a Storage instance with Redis-backed caching for board reads.
// Card writes pass through and evict the affected scope tag so other
// instances reload a fresh board.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchColumns(ctx context.Context) ([]domain.Column, error) {
	if columns, ok := loadCached[[]domain.Column](ctx, c, columnsCacheKey()); ok {
		return columns, nil
	}

	columns, err := c.base.FetchColumns(ctx)
	if err != nil {
		return nil, err
	}

	c.store(ctx, columnsCacheKey(), columns)
	return columns, nil
}

func (c *Cache) FetchCards(ctx context.Context, scopeTag string) ([]domain.Card, error) {
	if cards, ok := loadCached[[]domain.Card](ctx, c, cardsCacheKey(scopeTag)); ok {
		return cards, nil
	}

	cards, err := c.base.FetchCards(ctx, scopeTag)
	if err != nil {
		return nil, err
	}

	c.store(ctx, cardsCacheKey(scopeTag), cards)
	return cards, nil
}

func (c *Cache) InsertCard(ctx context.Context, card domain.Card) (domain.Card, error) {
	created, err := c.base.InsertCard(ctx, card)
	if err != nil {
		return domain.Card{}, err
	}
	c.Evict(ctx, created.ScopeTag)
	return created, nil
}

func (c *Cache) UpdateCardContent(ctx context.Context, scopeTag, id, content string) error {
	if err := c.base.UpdateCardContent(ctx, scopeTag, id, content); err != nil {
		return err
	}
	c.Evict(ctx, scopeTag)
	return nil
}

func (c *Cache) UpdateCardPosition(ctx context.Context, scopeTag, id, columnID string, order int) error {
	if err := c.base.UpdateCardPosition(ctx, scopeTag, id, columnID, order); err != nil {
		return err
	}
	c.Evict(ctx, scopeTag)
	return nil
}

func (c *Cache) DeleteCard(ctx context.Context, scopeTag, id string) error {
	if err := c.base.DeleteCard(ctx, scopeTag, id); err != nil {
		return err
	}
	c.Evict(ctx, scopeTag)
	return nil
}

// Evict drops the cached board for the given scope tag.
func (c *Cache) Evict(ctx context.Context, scopeTag string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, cardsCacheKey(scopeTag)).Result()
}

func loadCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func columnsCacheKey() string {
	return "board:columns"
}

func cardsCacheKey(scopeTag string) string {
	return "board:cards:" + scopeTag
}
