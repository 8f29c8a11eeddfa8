package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "pricebot:session:"

// RedisOptions configures the Redis backed store.
type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps contexts as JSON values in Redis so several bot
// processes can share them.
type RedisStore struct {
	client redis.Cmdable
	now    func() time.Time
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps a Redis client. A zero TTL keeps sessions forever.
func NewRedisStore(client redis.Cmdable, opts RedisOptions) *RedisStore {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		now:    time.Now,
	}
}

func (r *RedisStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", r.prefix, userID)
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, userID int64) (Context, error) {
	if err := validateUser(userID); err != nil {
		return Context{}, err
	}

	raw, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return New(userID), nil
	}
	if err != nil {
		return Context{}, fmt.Errorf("failed to load session %d: %w", userID, err)
	}

	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return Context{}, fmt.Errorf("failed to decode session %d: %w", userID, err)
	}
	c.UserID = userID
	return c, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, c Context) error {
	if err := validateUser(c.UserID); err != nil {
		return err
	}

	c.UpdatedAt = r.now().UTC()
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode session %d: %w", c.UserID, err)
	}

	if err := r.client.Set(ctx, r.key(c.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %d: %w", c.UserID, err)
	}
	return nil
}

// Reset implements Store.
func (r *RedisStore) Reset(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to reset session %d: %w", userID, err)
	}
	return nil
}

// NewRedisClient builds a client and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}
