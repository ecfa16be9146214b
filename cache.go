package portal

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// cacheGetJSON loads a cached value into dest. Returns false on miss, on
// decode failure, or when no Redis client is configured.
func (s *Service) cacheGetJSON(ctx context.Context, key string, dest interface{}) bool {
	if s.redis == nil {
		return false
	}

	raw, err := s.redis.Get(ctx, s.cachePrefix+key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

// cacheSetJSON stores a value under the prefixed key. Best effort; cache
// write failures never fail the operation.
func (s *Service) cacheSetJSON(ctx context.Context, key string, value interface{}) {
	if s.redis == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.redis.Set(ctx, s.cachePrefix+key, raw, s.cacheTTL)
}

// cacheInvalidate removes a single cache key.
func (s *Service) cacheInvalidate(ctx context.Context, key string) {
	if s.redis == nil {
		return
	}
	s.redis.Del(ctx, s.cachePrefix+key)
}

// cacheInvalidatePattern removes all keys matching the prefixed pattern.
// Used after role/privilege mutations, which may affect any cached layout
// or privilege set, and after storage write errors, where cached state can
// no longer be trusted.
func (s *Service) cacheInvalidatePattern(ctx context.Context, pattern string) {
	if s.redis == nil {
		return
	}

	keys, err := s.redis.Keys(ctx, s.cachePrefix+pattern).Result()
	if err != nil {
		return
	}
	if len(keys) > 0 {
		s.redis.Del(ctx, keys...)
	}
}

// ClearAllCache drops every key under the service's prefix.
func (s *Service) ClearAllCache(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}

	keys, err := s.redis.Keys(ctx, s.cachePrefix+"*").Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return s.redis.Del(ctx, keys...).Err()
	}
	return nil
}

// CacheStats returns basic cache statistics.
func (s *Service) CacheStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"redis_enabled":     s.redis != nil,
		"cache_ttl_minutes": s.cacheTTL.Minutes(),
	}

	if s.redis != nil {
		if keys, err := s.redis.Keys(ctx, s.cachePrefix+"*").Result(); err == nil {
			stats["cache_keys_count"] = len(keys)
		}
	}

	return stats
}
