package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/types"
)

// TTLs per namespace. The cache is a derived view: any entry may be evicted
// at any time and the authoritative truth lives in the metadata store.
const (
	TTLMetadata   = time.Hour
	TTLVerse      = time.Hour
	TTLDailyVerse = 24 * time.Hour
	TTLConfig     = 7 * 24 * time.Hour

	// Per-call deadline. A slow cache degrades to the authoritative store,
	// it never stalls a request.
	callTimeout = time.Second
)

const (
	nsMetadata    = "metadata"
	nsVerse       = "verse"
	nsConfig      = "config"
	dailyVerseKey = "daily-verse:current"
)

// MetadataSource is the authoritative fallback consulted on metadata cache
// misses. Implemented by the metastore.
type MetadataSource interface {
	GetImage(ctx context.Context, id string) (*types.Image, error)
}

// Cache is a namespaced TTL cache over Redis with JSON-encoded values.
type Cache struct {
	rdb    *redis.Client
	source MetadataSource
	logger zerolog.Logger
}

// New creates a cache backed by the given Redis client. source is consulted
// on metadata misses and may not be nil.
func New(rdb *redis.Client, source MetadataSource) *Cache {
	return &Cache{
		rdb:    rdb,
		source: source,
		logger: log.WithComponent("cache"),
	}
}

// NormalizeReference canonicalises a verse reference for cache keys so that
// casing and padding are transparent.
func NormalizeReference(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// GetMetadata is cache-through: on a miss (or any cache failure) it falls
// back to the metadata store, hydrates the cache, and returns the value.
func (c *Cache) GetMetadata(ctx context.Context, imageID string) (*types.Image, error) {
	var img types.Image
	if c.getJSON(ctx, nsMetadata, nsMetadata+":"+imageID, &img) {
		return &img, nil
	}

	fetched, err := c.source.GetImage(ctx, imageID)
	if err != nil {
		return nil, err
	}
	c.setJSON(ctx, nsMetadata, nsMetadata+":"+imageID, fetched, TTLMetadata)
	return fetched, nil
}

// PeekMetadata checks only the cache, without the authoritative fallback.
// Absence here says nothing about the store; use GetMetadata for reads
// that must be authoritative.
func (c *Cache) PeekMetadata(ctx context.Context, imageID string) (*types.Image, bool) {
	var img types.Image
	if c.getJSON(ctx, nsMetadata, nsMetadata+":"+imageID, &img) {
		return &img, true
	}
	return nil, false
}

// SetMetadata populates the metadata namespace for an image
func (c *Cache) SetMetadata(ctx context.Context, imageID string, img *types.Image) {
	c.setJSON(ctx, nsMetadata, nsMetadata+":"+imageID, img, TTLMetadata)
}

// InvalidateImage drops the cached metadata for an image
func (c *Cache) InvalidateImage(ctx context.Context, imageID string) {
	c.del(ctx, nsMetadata+":"+imageID)
}

// GetVerse returns a cached verse by normalised reference
func (c *Cache) GetVerse(ctx context.Context, ref string) (*types.Verse, bool) {
	var v types.Verse
	if c.getJSON(ctx, nsVerse, nsVerse+":"+NormalizeReference(ref), &v) {
		return &v, true
	}
	return nil, false
}

// SetVerse caches a verse under its normalised reference
func (c *Cache) SetVerse(ctx context.Context, ref string, v *types.Verse) {
	c.setJSON(ctx, nsVerse, nsVerse+":"+NormalizeReference(ref), v, TTLVerse)
}

// GetDailyVerse returns the image ID of the current daily verse, if set
func (c *Cache) GetDailyVerse(ctx context.Context) (string, bool) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	val, err := c.rdb.Get(cctx, dailyVerseKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("daily verse lookup failed")
		}
		metrics.CacheOps.WithLabelValues("daily-verse", "miss").Inc()
		return "", false
	}
	metrics.CacheOps.WithLabelValues("daily-verse", "hit").Inc()
	return val, true
}

// SetDailyVerse records the image ID of today's daily verse
func (c *Cache) SetDailyVerse(ctx context.Context, imageID string) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.rdb.Set(cctx, dailyVerseKey, imageID, TTLDailyVerse).Err(); err != nil {
		c.logger.Warn().Err(err).Str("image_id", imageID).Msg("failed to set daily verse")
	}
}

// GetConfig unmarshals a config namespace entry into out
func (c *Cache) GetConfig(ctx context.Context, key string, out any) bool {
	return c.getJSON(ctx, nsConfig, nsConfig+":"+key, out)
}

// SetConfig stores a config namespace entry
func (c *Cache) SetConfig(ctx context.Context, key string, val any) {
	c.setJSON(ctx, nsConfig, nsConfig+":"+key, val, TTLConfig)
}

// ClearConfigCache drops all config namespace entries
func (c *Cache) ClearConfigCache(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	iter := c.rdb.Scan(cctx, 0, nsConfig+":*", 100).Iterator()
	for iter.Next(cctx) {
		c.del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("config cache scan failed")
	}
}

// Ping verifies the Redis connection at bootstrap
func (c *Cache) Ping(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.rdb.Ping(cctx).Err()
}

func (c *Cache) getJSON(ctx context.Context, namespace, key string, out any) bool {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	data, err := c.rdb.Get(cctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		metrics.CacheOps.WithLabelValues(namespace, "miss").Inc()
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry corrupt, dropping")
		c.del(ctx, key)
		metrics.CacheOps.WithLabelValues(namespace, "miss").Inc()
		return false
	}
	metrics.CacheOps.WithLabelValues(namespace, "hit").Inc()
	return true
}

func (c *Cache) setJSON(ctx context.Context, namespace, key string, val any, ttl time.Duration) {
	data, err := json.Marshal(val)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache encode failed")
		return
	}

	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.rdb.Set(cctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return
	}
	metrics.CacheOps.WithLabelValues(namespace, "set").Inc()
}

func (c *Cache) del(ctx context.Context, key string) {
	cctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := c.rdb.Del(cctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}
