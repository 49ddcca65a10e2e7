package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Counter 是 cache.Manager 中的原子名额操作
type Counter interface {
	AcquireSlot(ctx context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error)
	ReleaseSlot(ctx context.Context, key string) (int64, error)
}

// healthReporter 由 cache.Manager 实现；已知不可用时跳过 Redis 往返
type healthReporter interface {
	Healthy() bool
}

// Config 并发限制配置
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
	// MaxConcurrent 每个用户允许同时进行的转换数
	MaxConcurrent int `yaml:"max_concurrent" json:"max_concurrent" env:"MAX_CONCURRENT"`
	// SafetyTTL 计数器兜底过期时间，进程崩溃时防止计数永久残留
	SafetyTTL time.Duration `yaml:"safety_ttl" json:"safety_ttl" env:"SAFETY_TTL"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		MaxConcurrent: 3,
		SafetyTTL:     120 * time.Second,
		KeyPrefix:     "concurrent",
	}
}

// Result 一次占位尝试的结果
type Result struct {
	Allowed bool `json:"allowed"`
	Current int  `json:"current"`
	// Held 为 true 时确实占用了计数，调用方必须且只能在此时 Release
	Held bool `json:"held"`
}

// Observer 接收拒绝事件
type Observer interface {
	RecordConcurrencyRejected()
}

// Limiter 基于 Redis INCR/DECR 的每用户并发限制。
// 计数存储不可用时放行请求（fail open）。
type Limiter struct {
	counter  Counter
	cfg      Config
	observer Observer
	logger   *zap.Logger
}

// New 创建 Limiter。counter 为 nil 时所有请求直接放行
func New(counter Counter, cfg Config, observer Observer, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.SafetyTTL <= 0 {
		cfg.SafetyTTL = def.SafetyTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	return &Limiter{
		counter:  counter,
		cfg:      cfg,
		observer: observer,
		logger:   logger.With(zap.String("component", "concurrency_limiter")),
	}
}

// Key 返回用户的计数键
func (l *Limiter) Key(userID string) string {
	return l.cfg.KeyPrefix + ":" + userID
}

func (l *Limiter) active() bool {
	if !l.cfg.Enabled || l.counter == nil {
		return false
	}
	if h, ok := l.counter.(healthReporter); ok && !h.Healthy() {
		return false
	}
	return true
}

// Acquire 为 userID 占用一个转换名额
func (l *Limiter) Acquire(ctx context.Context, userID string) Result {
	if !l.active() {
		return Result{Allowed: true}
	}

	count, ok, err := l.counter.AcquireSlot(ctx, l.Key(userID), int64(l.cfg.MaxConcurrent), l.cfg.SafetyTTL)
	if err != nil {
		l.logger.Warn("concurrency check failed, allowing request",
			zap.String("user_id", userID), zap.Error(err))
		return Result{Allowed: true}
	}
	if !ok {
		if l.observer != nil {
			l.observer.RecordConcurrencyRejected()
		}
		l.logger.Info("concurrency limit reached",
			zap.String("user_id", userID),
			zap.Int("max", l.cfg.MaxConcurrent))
		return Result{Allowed: false, Current: int(count)}
	}
	return Result{Allowed: true, Current: int(count), Held: true}
}

// Release gives back a slot taken by an Acquire whose Result.Held was true.
// It does not consult Redis health: a slot taken while healthy must be
// returned even if a later health check has failed.
func (l *Limiter) Release(ctx context.Context, userID string) {
	if l.counter == nil {
		return
	}
	if _, err := l.counter.ReleaseSlot(ctx, l.Key(userID)); err != nil {
		l.logger.Warn("concurrency release failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// MaxConcurrent 返回每用户上限
func (l *Limiter) MaxConcurrent() int {
	return l.cfg.MaxConcurrent
}
