package transform_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/cache"
	"github.com/footprint-studio/styleflow/transform"
)

type countingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
}

func (o *countingObserver) RecordCacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func (o *countingObserver) RecordCacheMiss(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses++
}

// brokenStore 模拟 Redis 不可用
type brokenStore struct{}

var errStoreDown = errors.New("connection refused")

func (brokenStore) GetJSON(context.Context, string, interface{}) error { return errStoreDown }
func (brokenStore) SetJSON(context.Context, string, interface{}, time.Duration) error {
	return errStoreDown
}
func (brokenStore) Delete(context.Context, ...string) error { return errStoreDown }

func newRedisCache(t *testing.T) (*transform.ResultCache, *miniredis.Miniredis, *countingObserver) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := cache.DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 0
	mgr, err := cache.NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	obs := &countingObserver{}
	return transform.NewResultCache(mgr, 0, obs, zap.NewNop()), mr, obs
}

func TestResultCache_RoundTrip(t *testing.T) {
	rc, mr, obs := newRedisCache(t)
	ctx := context.Background()

	assert.Nil(t, rc.Get(ctx, "img-1", "pop_art"))

	rc.Set(ctx, "img-1", "pop_art", &transform.Result{
		ID:               "tr-1",
		Provider:         "replicate",
		ImageURL:         "https://replicate.delivery/out.png",
		MimeType:         "image/png",
		TokensUsed:       10,
		ProcessingTimeMs: 1200,
	})

	got := rc.Get(ctx, "img-1", "pop_art")
	require.NotNil(t, got)
	assert.Equal(t, "tr-1", got.ID)
	assert.Equal(t, "replicate", got.Provider)
	assert.Equal(t, "https://replicate.delivery/out.png", got.Result().ImageURL)
	assert.False(t, got.CachedAt.IsZero())

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)

	ttl := mr.TTL(transform.CacheKey("img-1", "pop_art"))
	assert.Equal(t, transform.DefaultCacheTTL, ttl)
}

func TestResultCache_StyleIsPartOfKey(t *testing.T) {
	rc, _, _ := newRedisCache(t)
	ctx := context.Background()

	rc.Set(ctx, "img-1", "pop_art", &transform.Result{ID: "a", Provider: "nano-banana"})
	assert.Nil(t, rc.Get(ctx, "img-1", "watercolor"))
	assert.NotNil(t, rc.Get(ctx, "img-1", "pop_art"))
}

func TestResultCache_Invalidate(t *testing.T) {
	rc, mr, _ := newRedisCache(t)
	ctx := context.Background()

	rc.Set(ctx, "img-1", "wpap", &transform.Result{ID: "a"})
	require.True(t, mr.Exists(transform.CacheKey("img-1", "wpap")))

	rc.Invalidate(ctx, "img-1", "wpap")
	assert.False(t, mr.Exists(transform.CacheKey("img-1", "wpap")))
}

func TestResultCache_ExpiredEntryIsMiss(t *testing.T) {
	rc, mr, _ := newRedisCache(t)
	ctx := context.Background()

	rc.Set(ctx, "img-1", "vintage", &transform.Result{ID: "a"})
	mr.FastForward(transform.DefaultCacheTTL + time.Second)
	assert.Nil(t, rc.Get(ctx, "img-1", "vintage"))
}

func TestResultCache_StoreFailuresNeverSurface(t *testing.T) {
	obs := &countingObserver{}
	rc := transform.NewResultCache(brokenStore{}, time.Hour, obs, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		rc.Set(ctx, "img", "pop_art", &transform.Result{ID: "a"})
		rc.Set(ctx, "img", "pop_art", nil)
		rc.Invalidate(ctx, "img", "pop_art")
	})
	assert.Nil(t, rc.Get(ctx, "img", "pop_art"))
	assert.Equal(t, 1, obs.misses)
}

func TestImageKey(t *testing.T) {
	a := transform.ImageKey("data:image/png;base64,AAAA")
	b := transform.ImageKey("data:image/png;base64,AAAB")

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, transform.ImageKey("data:image/png;base64,AAAA"))
	assert.Equal(t, "transform:k:pop_art", transform.CacheKey("k", "pop_art"))
}
