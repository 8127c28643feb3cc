package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	redis "github.com/redis/go-redis/v9"

	"dukaan/backend/internal/cart"
)

const keyPrefix = "dukaan:cart:"

// RedisStore shares carts across server instances. Each cart is one JSON
// value whose TTL is reset on every save.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(addr string, password string, db int, ttl time.Duration) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Load(ctx context.Context, id string) (cart.Snapshot, bool, error) {
	val, err := r.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Snapshot{}, false, nil
	}
	if err != nil {
		return cart.Snapshot{}, false, errors.Wrap(err, "get cart")
	}

	var snapshot cart.Snapshot
	if err := json.Unmarshal(val, &snapshot); err != nil {
		return cart.Snapshot{}, false, errors.Wrap(err, "decode cart")
	}
	return snapshot, true, nil
}

func (r *RedisStore) Save(ctx context.Context, id string, snapshot cart.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := r.client.Set(ctx, keyPrefix+id, payload, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "set cart")
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	return nil
}
