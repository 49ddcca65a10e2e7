package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/cache"
)

// =============================================================================
// 💾 转换结果缓存
// =============================================================================

// DefaultCacheTTL 转换结果缓存 7 天
const DefaultCacheTTL = 7 * 24 * time.Hour

// Store is the subset of cache.Manager used for results.
type Store interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CacheObserver receives hit/miss outcomes.
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedResult is the cached form of a Result.
type CachedResult struct {
	ID          string    `json:"transformation_id"`
	Provider    string    `json:"provider"`
	ImageURL    string    `json:"url,omitempty"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	MimeType    string    `json:"mime_type,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
}

// Result converts the cached entry back to a Result.
func (c *CachedResult) Result() *Result {
	return &Result{
		ID:          c.ID,
		Provider:    c.Provider,
		ImageURL:    c.ImageURL,
		ImageBase64: c.ImageBase64,
		MimeType:    c.MimeType,
	}
}

// ResultCache stores finished transformations keyed by image and style.
// Store failures are logged and reported as misses; they never fail the
// caller.
type ResultCache struct {
	store    Store
	ttl      time.Duration
	logger   *zap.Logger
	observer CacheObserver
}

// NewResultCache creates a ResultCache. ttl <= 0 uses DefaultCacheTTL.
func NewResultCache(store Store, ttl time.Duration, observer CacheObserver, logger *zap.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		store:    store,
		ttl:      ttl,
		logger:   logger.With(zap.String("component", "result_cache")),
		observer: observer,
	}
}

// CacheKey builds the cache key for an image and style.
func CacheKey(imageKey, styleID string) string {
	return "transform:" + imageKey + ":" + styleID
}

// ImageKey derives a stable key from the source when the caller has none.
func ImageKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16])
}

// Get returns the cached result, or nil on miss or store failure.
func (c *ResultCache) Get(ctx context.Context, imageKey, styleID string) *CachedResult {
	key := CacheKey(imageKey, styleID)

	var entry CachedResult
	if err := c.store.GetJSON(ctx, key, &entry); err != nil {
		if !cache.IsCacheMiss(err) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.miss()
		return nil
	}
	c.hit()
	return &entry
}

// Set stores a finished result.
func (c *ResultCache) Set(ctx context.Context, imageKey, styleID string, res *Result) {
	if res == nil {
		return
	}
	key := CacheKey(imageKey, styleID)
	entry := CachedResult{
		ID:          res.ID,
		Provider:    res.Provider,
		ImageURL:    res.ImageURL,
		ImageBase64: res.ImageBase64,
		MimeType:    res.MimeType,
		CachedAt:    time.Now().UTC(),
	}
	if err := c.store.SetJSON(ctx, key, entry, c.ttl); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes the cached result for an image and style.
func (c *ResultCache) Invalidate(ctx context.Context, imageKey, styleID string) {
	key := CacheKey(imageKey, styleID)
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *ResultCache) hit() {
	if c.observer != nil {
		c.observer.RecordCacheHit("transform")
	}
}

func (c *ResultCache) miss() {
	if c.observer != nil {
		c.observer.RecordCacheMiss("transform")
	}
}
