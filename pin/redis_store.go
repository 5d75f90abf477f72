package pin

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix is shared with the provider's storage keys
const DefaultKeyPrefix = "oidc:"

// consumePinLua deletes the entry only when it holds the submitted code.
// KEYS[1] = entry key
// ARGV[1] = submitted code
//
// Returns 1 when the code matched and was consumed, 0 otherwise.
var consumePinLua = redis.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// RedisStore keeps codes in Redis with a native expiry
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	opts   storeOptions
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store writing keys under prefix
func NewRedisStore(redisClient redis.UniversalClient, prefix string, options ...StoreOption) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	s := &RedisStore{
		redis:  redisClient,
		prefix: prefix,
		opts:   defaultStoreOptions(),
	}
	for _, opt := range options {
		opt(&s.opts)
	}
	return s
}

// Key returns the Redis key holding the code for (handle, uid)
func (s *RedisStore) Key(handle, uid string) string {
	return s.prefix + entryKey(handle, uid)
}

func (s *RedisStore) Issue(ctx context.Context, handle, uid string) (string, error) {
	code, err := s.opts.generate()
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.Key(handle, uid), code, s.opts.ttl).Err(); err != nil {
		return "", errors.Wrap(err, "[RedisStore.Issue] set")
	}
	return code, nil
}

func (s *RedisStore) VerifyAndConsume(ctx context.Context, handle, uid, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return false, nil
	}
	consumed, err := consumePinLua.Run(ctx, s.redis, []string{s.Key(handle, uid)}, code).Int()
	if err != nil {
		return false, errors.Wrap(err, "[RedisStore.VerifyAndConsume] consume")
	}
	return consumed == 1, nil
}
