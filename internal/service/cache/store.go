package cache

import (
	"context"
	"errors"
	"time"

	pkgcache "TokenPulse/pkg/cache"
	applogger "TokenPulse/pkg/logger"
)

// Store adapts a pkg/cache backend to the degrade-gracefully contract used
// by the domain: backend errors are logged and read as a miss.
type Store struct {
	backend pkgcache.Service
	log     *applogger.Logger
	timeout time.Duration
}

// NewStore wraps backend. Each call is bounded by opTimeout when positive.
func NewStore(backend pkgcache.Service, l *applogger.Logger, opTimeout time.Duration) *Store {
	return &Store{backend: backend, log: l, timeout: opTimeout}
}

func (s *Store) Get(ctx context.Context, key string, dest interface{}) bool {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.backend.Get(ctx, key, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, pkgcache.ErrCacheMiss):
		return false
	default:
		s.log.Warn("cache.get_failed", applogger.String("key", key), applogger.Error(err))
		return false
	}
}

func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.backend.Set(ctx, key, value, ttl); err != nil {
		s.log.Warn("cache.set_failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (s *Store) Delete(ctx context.Context, key string) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if err := s.backend.Delete(ctx, key); err != nil {
		s.log.Warn("cache.delete_failed", applogger.String("key", key), applogger.Error(err))
	}
}

// Increment returns 0 when the backend is unavailable.
func (s *Store) Increment(ctx context.Context, key string, ttl time.Duration) int64 {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	n, err := s.backend.Increment(ctx, key, ttl)
	if err != nil {
		s.log.Warn("cache.increment_failed", applogger.String("key", key), applogger.Error(err))
		return 0
	}
	return n
}

func (s *Store) Keys(ctx context.Context, pattern string) []string {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	keys, err := s.backend.Keys(ctx, pattern)
	if err != nil {
		s.log.Warn("cache.keys_failed", applogger.String("pattern", pattern), applogger.Error(err))
		return nil
	}
	return keys
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
