package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/reefcast/pkg/sst"
)

const redisKeyPrefix = "reefcast:series:"

// RedisStore implements Store using Redis, letting several reefcast replicas
// share fetched series. Snapshots expire after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

// NewRedisStore connects to Redis at addr and verifies the connection.
// A zero ttl defaults to 24 hours.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func redisKey(locationID string) string {
	return redisKeyPrefix + locationID
}

// Put stores a snapshot under "reefcast:series:{locationID}".
func (r *RedisStore) Put(ctx context.Context, s sst.Snapshot) error {
	if s.LocationID == "" {
		return errors.New("location id required")
	}
	if !sst.ValidID(s.LocationID) {
		return fmt.Errorf("invalid location id %q", s.LocationID)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	c, err := r.conn()
	if err != nil {
		return err
	}
	if err := c.Set(ctx, redisKey(s.LocationID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}

	return nil
}

// GetLatest retrieves the snapshot for a location. A missing key is reported
// as found=false with a nil error.
func (r *RedisStore) GetLatest(ctx context.Context, locationID string) (sst.Snapshot, bool, error) {
	if locationID == "" {
		return sst.Snapshot{}, false, errors.New("location id required")
	}

	c, err := r.conn()
	if err != nil {
		return sst.Snapshot{}, false, err
	}

	data, err := c.Get(ctx, redisKey(locationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return sst.Snapshot{}, false, nil
		}
		return sst.Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot sst.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return sst.Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, true, nil
}

func (r *RedisStore) conn() (*redis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.client == nil {
		return nil, redis.ErrClosed
	}
	return r.client, nil
}

// Close closes the Redis client connection. It is idempotent.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	c, err := r.conn()
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}
