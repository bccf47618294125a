package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"practiceapi/internal/config"
	"practiceapi/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore caches settled listings and keeps per-key call counters in Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a client from the redis config section.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "practiceapi:",
	}
}

func (r *RedisStore) listingKey(id int64) string {
	return fmt.Sprintf("%slisting:%d", r.prefix, id)
}

func (r *RedisStore) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, r.listingKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing from redis: %w", err)
	}

	var listing models.Listing
	if err := json.Unmarshal([]byte(val), &listing); err != nil {
		return nil, fmt.Errorf("failed to unmarshal listing: %w", err)
	}

	return &listing, nil
}

func (r *RedisStore) SetListing(ctx context.Context, listing *models.Listing, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	if err := r.client.Set(ctx, r.listingKey(listing.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set listing in redis: %w", err)
	}

	return nil
}

func (r *RedisStore) DeleteListing(ctx context.Context, id int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, r.listingKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete listing from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	k := r.prefix + "rate_limit:" + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, k, window)
	}

	return count <= int64(limit), nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the client.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
