package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache is the byte store CachedSource keeps reference data in.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisCache(rdb *goredis.Client, prefix string) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: prefix}
}

// NewRedisClient connects to the server at url (redis://...) and pings it.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, r.prefix+key, value, ttl).Err()
}

// CachedSource decorates a Source with a shared cache. Concurrent misses for
// the same key are collapsed into one upstream call. Cache failures are
// logged and fall through to the upstream Source.
type CachedSource struct {
	next   Source
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
	group  singleflight.Group
}

func NewCachedSource(next Source, cache Cache, ttl time.Duration, logger zerolog.Logger) *CachedSource {
	return &CachedSource{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "dictionary_cache").Logger(),
	}
}

// cached loads key from the cache or fills it with load.
func cached[T any](ctx context.Context, s *CachedSource, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	if b, err := s.cache.Get(ctx, key); err == nil {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		s.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(v); err == nil {
			if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (s *CachedSource) FetchFieldDictionary(ctx context.Context) ([]SearchField, error) {
	return cached(ctx, s, "fields", s.next.FetchFieldDictionary)
}

func (s *CachedSource) FetchDepartments(ctx context.Context) ([]Department, error) {
	return cached(ctx, s, "departments", s.next.FetchDepartments)
}

func (s *CachedSource) FetchResearchHotspots(ctx context.Context) ([]ResearchHotspot, error) {
	return cached(ctx, s, "hotspots", s.next.FetchResearchHotspots)
}

func (s *CachedSource) FetchCategories(ctx context.Context) ([]Category, error) {
	return cached(ctx, s, "categories", s.next.FetchCategories)
}

func (s *CachedSource) FetchCategoryFields(ctx context.Context, categoryID string) ([]Field, error) {
	return cached(ctx, s, "category_fields:"+categoryID, func(ctx context.Context) ([]Field, error) {
		return s.next.FetchCategoryFields(ctx, categoryID)
	})
}

func (s *CachedSource) FetchIndicators(ctx context.Context) ([]Indicator, error) {
	return cached(ctx, s, "indicators", s.next.FetchIndicators)
}
