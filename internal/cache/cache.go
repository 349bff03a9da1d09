// Package cache provides the read cache for user views.
//
// Two engines exist, an in-process map for single node setups and a
// redis client for multi node setups. The daemon picks one via config.
package cache

import (
	"context"
	"time"
)

const (
	// EngineMemory selects the in-process cache.
	EngineMemory = "memory"

	// EngineRedis selects the redis backed cache.
	EngineRedis = "redis"
)

// Config implements the cache config.
type Config struct {
	// Engine is one of "memory" or "redis". Empty selects memory.
	Engine   string        `toml:"engine"`
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	TTL      time.Duration `toml:"ttl"`
}

// Store is implemented by both cache engines.
type Store interface {
	// Get returns the cached value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl <= 0 stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
