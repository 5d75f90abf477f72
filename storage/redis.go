package storage

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by the provider
const DefaultKeyPrefix = "oidc:"

// Redis stores entries under "<prefix><Kind>:<id>" with a native expiry
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

var _ Adapter = (*Redis)(nil)

// NewRedis creates an adapter writing keys under prefix
func NewRedis(redisClient redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{redis: redisClient, prefix: prefix}
}

// Key returns the Redis key of an entry
func (r *Redis) Key(kind Kind, id string) string {
	return r.prefix + string(kind) + ":" + id
}

func (r *Redis) Upsert(ctx context.Context, kind Kind, id string, payload []byte, ttl time.Duration) error {
	if err := r.redis.Set(ctx, r.Key(kind, id), payload, ttl).Err(); err != nil {
		return errors.Wrapf(err, "[Redis.Upsert] %s", kind)
	}
	return nil
}

func (r *Redis) Find(ctx context.Context, kind Kind, id string) ([]byte, error) {
	payload, err := r.redis.Get(ctx, r.Key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Redis.Find] %s", kind)
	}
	return payload, nil
}

func (r *Redis) Consume(ctx context.Context, kind Kind, id string) ([]byte, error) {
	payload, err := r.redis.GetDel(ctx, r.Key(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[Redis.Consume] %s", kind)
	}
	return payload, nil
}

func (r *Redis) Destroy(ctx context.Context, kind Kind, id string) error {
	if err := r.redis.Del(ctx, r.Key(kind, id)).Err(); err != nil {
		return errors.Wrapf(err, "[Redis.Destroy] %s", kind)
	}
	return nil
}
