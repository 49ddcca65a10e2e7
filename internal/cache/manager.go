package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager wraps the Redis client shared by the result cache and the
// concurrency limiter.
type Manager struct {
	client  *redis.Client
	config  Config
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
	healthy atomic.Bool
}

// Config Redis 连接配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr" env:"ADDR"`
	Password string `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" json:"db" env:"DB"`

	// KeyPrefix 加在所有键之前，与店面共用 Redis 时隔离命名空间
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// DefaultTTL 调用方未指定 TTL 时使用
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	MaxRetries   int           `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout" env:"DIAL_TIMEOUT"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled" env:"TLS_ENABLED"`

	// HealthCheckInterval 后台 Ping 间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		DefaultTTL:          24 * time.Hour,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeout:         5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager connects to Redis and fails if the first ping does not answer.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
	}
	if config.TLSEnabled {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		client: client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}
	m.healthy.Store(true)

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Bool("tls", config.TLSEnabled),
	)
	return m, nil
}

func (m *Manager) key(k string) string {
	return m.config.KeyPrefix + k
}

// guard 在读锁内执行 fn，管理器关闭后返回 ErrClosed
func (m *Manager) guard(fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return fn()
}

// =============================================================================
// 📦 JSON 读写
// =============================================================================

// GetJSON decodes the value stored under key into dest. A missing key
// returns ErrCacheMiss.
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	var raw []byte
	err := m.guard(func() error {
		var err error
		raw, err = m.client.Get(ctx, m.key(key)).Bytes()
		return err
	})
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON stores value as JSON. ttl 0 uses Config.DefaultTTL.
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	return m.guard(func() error {
		if err := m.client.Set(ctx, m.key(key), data, ttl).Err(); err != nil {
			return fmt.Errorf("cache set %s: %w", key, err)
		}
		return nil
	})
}

// Delete removes keys; no keys is a no-op.
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = m.key(k)
	}
	return m.guard(func() error {
		if err := m.client.Del(ctx, prefixed...).Err(); err != nil {
			return fmt.Errorf("cache delete: %w", err)
		}
		return nil
	})
}

// =============================================================================
// 🎟️ 并发名额
// =============================================================================

// acquireScript 原子地占用名额：超过上限时回滚并拒绝，接受时刷新兜底 TTL。
// 返回 {当前计数, 是否接受}
var acquireScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n > tonumber(ARGV[1]) then
	redis.call('DECR', KEYS[1])
	return {n - 1, 0}
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return {n, 1}
`)

// releaseScript 归还名额，计数归零时删除键
var releaseScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
	redis.call('DEL', KEYS[1])
end
return n
`)

// AcquireSlot increments the counter at key unless it would exceed limit.
// It returns the resulting count and whether the slot was granted.
func (m *Manager) AcquireSlot(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	var reply []any
	err := m.guard(func() error {
		var err error
		reply, err = acquireScript.Run(ctx, m.client, []string{m.key(key)}, limit, ttl.Milliseconds()).Slice()
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("acquire slot %s: %w", key, err)
	}
	if len(reply) != 2 {
		return 0, false, fmt.Errorf("acquire slot %s: unexpected reply %v", key, reply)
	}
	count, _ := reply[0].(int64)
	granted, _ := reply[1].(int64)
	return count, granted == 1, nil
}

// ReleaseSlot gives one slot back and returns the remaining count.
func (m *Manager) ReleaseSlot(ctx context.Context, key string) (int64, error) {
	var n int64
	err := m.guard(func() error {
		var err error
		n, err = releaseScript.Run(ctx, m.client, []string{m.key(key)}).Int64()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("release slot %s: %w", key, err)
	}
	return n, nil
}

// =============================================================================
// 🏥 健康状态
// =============================================================================

// Ping checks the Redis connection and updates Healthy.
func (m *Manager) Ping(ctx context.Context) error {
	err := m.guard(func() error { return m.client.Ping(ctx).Err() })
	if !errors.Is(err, ErrClosed) {
		m.setHealthy(err == nil, err)
	}
	return err
}

// Healthy reports the outcome of the most recent ping.
func (m *Manager) Healthy() bool {
	return m.healthy.Load()
}

func (m *Manager) setHealthy(ok bool, err error) {
	if m.healthy.Swap(ok) == ok {
		return
	}
	if ok {
		m.logger.Info("redis recovered")
	} else {
		m.logger.Warn("redis unavailable", zap.Error(err))
	}
}

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.config.DialTimeout)
		_ = m.Ping(ctx)
		cancel()
	}
}

// Close stops the health loop and closes the client. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.healthy.Store(false)
	close(m.stop)
	m.logger.Info("closing cache manager")
	return m.client.Close()
}

// ErrCacheMiss 键不存在
var ErrCacheMiss = errors.New("cache miss")

// ErrClosed 管理器已关闭
var ErrClosed = errors.New("cache manager is closed")

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
