package config

import "time"

type StoreConfig interface {
	GetRedisURL() string
	GetRedisPrefix() string
	GetPinTTL() time.Duration
}

type Store struct{}

var _ StoreConfig = Store{}

// GetRedisURL returns the Redis connection URL. Empty means in-memory stores.
func (Store) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

func (Store) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "oidc:")
}

func (Store) GetPinTTL() time.Duration {
	return 600 * time.Second
}
