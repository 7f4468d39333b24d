package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis for the two pieces of shared soft state: short-lived
// image payloads and rate-limit windows. Neither is authoritative; the
// relational store owns everything that matters.
type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// StoredImage is a short-lived image payload shared between the generate and
// download flows.
type StoredImage struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
}

func imageKey(id string) string {
	return "tempimage:" + id
}

// SetImage stores an image payload under the given id with a TTL.
func (c *Cache) SetImage(ctx context.Context, id string, img *StoredImage, ttl time.Duration) error {
	data, err := json.Marshal(img)
	if err != nil {
		return fmt.Errorf("marshal image: %w", err)
	}
	if err := c.client.Set(ctx, imageKey(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	return nil
}

// GetImage retrieves an image payload; nil means miss or expired.
func (c *Cache) GetImage(ctx context.Context, id string) (*StoredImage, error) {
	data, err := c.client.Get(ctx, imageKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("get image: %w", err)
	}
	var img StoredImage
	if err := json.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("unmarshal image: %w", err)
	}
	return &img, nil
}

// DeleteImage removes an image payload.
func (c *Cache) DeleteImage(ctx context.Context, id string) error {
	return c.client.Del(ctx, imageKey(id)).Err()
}

// Allow implements a fixed-window rate limit: at most limit calls per window
// per key. The window state lives in Redis so it holds across instances.
func (c *Cache) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "ratelimit:" + key
	count, err := c.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("increment rate limit: %w", err)
	}
	if count == 1 {
		if err := c.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return false, fmt.Errorf("set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}
