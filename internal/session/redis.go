package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "session:"

// redisClient is the subset of *redis.Client used by RedisStore.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps sessions in Redis under session:<key> with a TTL that
// matches the session expiry.
type RedisStore struct {
	rdb redisClient
	now func() time.Time
}

// NewRedisStore returns a store backed by rdb.
func NewRedisStore(rdb redisClient) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// NewRedisClient connects to the Redis instance at url and pings it.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type redisRecord struct {
	Values    string    `json:"values"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Load returns the session stored under key.
func (s *RedisStore) Load(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if !rec.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	values, err := decodeValues(rec.Values)
	if err != nil {
		return nil, err
	}
	return &Session{Key: key, Values: values, ExpiresAt: rec.ExpiresAt}, nil
}

// Save writes the session with a TTL ending at its expiry.
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, sess.Key)
	}
	values, err := encodeValues(sess.Values)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(redisRecord{Values: values, ExpiresAt: sess.ExpiresAt})
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+sess.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the session stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
