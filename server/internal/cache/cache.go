package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/cardiosense/cardiosense/server/internal/config"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = errors.New("cache: miss")

// Cache stores JSON-encodable values by key.
type Cache interface {
	// Get decodes the cached value into dest, or returns ErrMiss.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Nop never stores anything; every Get misses.
type Nop struct{}

func (Nop) Get(context.Context, string, any) error { return ErrMiss }
func (Nop) Set(context.Context, string, any) error { return nil }
func (Nop) Delete(context.Context, string) error   { return nil }
func (Nop) Close() error                           { return nil }

// New returns the cache selected by cfg.
func New(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "redis":
		return NewRedis(ctx, cfg.Addr, cfg.Password(), cfg.DB, cfg.TTL)
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
	}
}
