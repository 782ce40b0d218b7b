package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// Keys lists unprefixed keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Increment adds one to key. The expiration applies only when the
	// counter is created, so the window is anchored at the first hit.
	Increment(ctx context.Context, key string, expiration time.Duration) (int64, error)
	Close() error
}
