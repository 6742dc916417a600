// Package cache abstracts the volatile accelerator in front of the durable
// store. The only structure it holds is a single hash mapping event id to a
// serialized record; the whole thing is disposable and rebuilt write by
// write.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// ErrUnavailable is returned when the cache cannot be reached. Reads degrade
// to the durable store; writes are logged and dropped.
var ErrUnavailable = errors.New("cache unavailable")

// Store is the key/value accelerator holding serialized events. GetAll
// returns the full hash keyed by event id; Put overwrites a single entry.
// Neither operation is transactional.
type Store interface {
	GetAll(ctx context.Context) (map[string][]byte, error)
	Put(ctx context.Context, eventID int64, value []byte) error
}

// Config holds Redis connection settings read from environment variables.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// ConfigFromEnv reads cache config from well-known environment variables,
// falling back to local-development defaults.
func ConfigFromEnv() Config {
	db := 1
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			db = n
		}
	}
	return Config{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewClient creates a Redis client. The connection is established lazily; a
// cache that is down at startup only means every read falls back until it
// returns.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Redis implements Store on a Redis hash.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis constructs a Redis-backed Store over the named hash.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// GetAll fetches every entry of the hash. An empty hash is a valid result
// (no events yet) and is distinct from an unreachable cache.
func (r *Redis) GetAll(ctx context.Context) (map[string][]byte, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: hgetall %s: %v", ErrUnavailable, r.key, err)
	}
	entries := make(map[string][]byte, len(fields))
	for id, raw := range fields {
		entries[id] = []byte(raw)
	}
	return entries, nil
}

// Put overwrites the entry for one event.
func (r *Redis) Put(ctx context.Context, eventID int64, value []byte) error {
	field := strconv.FormatInt(eventID, 10)
	if err := r.client.HSet(ctx, r.key, field, value).Err(); err != nil {
		return fmt.Errorf("%w: hset %s %s: %v", ErrUnavailable, r.key, field, err)
	}
	return nil
}
