package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/footprint-studio/styleflow/internal/cache"
	"github.com/footprint-studio/styleflow/internal/limiter"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/providers/gemini"
	"github.com/footprint-studio/styleflow/transform/providers/removebg"
	"github.com/footprint-studio/styleflow/transform/providers/replicate"
	"github.com/footprint-studio/styleflow/transform/reference"
)

// =============================================================================
// 🎯 配置结构
// =============================================================================

// Config is the full styleflow configuration. The env tag of each field is
// one segment of its STYLEFLOW_* override key.
type Config struct {
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Transform 重试预算与首选后端
	Transform  transform.Config `yaml:"transform" env:"TRANSFORM"`
	Gemini     gemini.Config    `yaml:"gemini" env:"GEMINI"`
	Replicate  replicate.Config `yaml:"replicate" env:"REPLICATE"`
	References reference.Config `yaml:"references" env:"REFERENCES"`

	// RemoveBG 去背景接口；凭证缺失时接口返回 503
	RemoveBG removebg.Config `yaml:"remove_bg" env:"REMOVE_BG"`

	// Redis 由结果缓存与并发限制共用
	Redis   cache.Config   `yaml:"redis" env:"REDIS"`
	Cache   CacheConfig    `yaml:"cache" env:"CACHE"`
	Limiter limiter.Config `yaml:"limiter" env:"LIMITER"`

	JWT       JWTConfig       `yaml:"jwt" env:"JWT"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig covers the API listener, its guards and the metrics port.
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`

	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// WriteTimeout 必须覆盖一次含重试与降级的完整转换
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// MaxBodyBytes 限制 base64 图片请求体
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`

	// 每 IP 令牌桶，RPS 为 0 时关闭
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// APIKeys 为空时不启用 API Key 认证
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	// ReferenceDir 挂载在 /style-references/
	ReferenceDir string `yaml:"reference_dir" env:"REFERENCE_DIR"`

	// 证书与私钥同时设置时 API 端口走 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// CacheConfig controls the transform result cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// JWTConfig holds the token verification keys. Secret verifies HS256 and
// PublicKey (PEM) verifies RS256.
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled reports whether any verification key is configured.
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// LogConfig 日志配置
type LogConfig struct {
	// debug / info / warn / error
	Level string `yaml:"level" env:"LEVEL"`
	// json / console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 配置 OTLP 导出
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// Insecure 使用明文 gRPC，适用于本机 collector
	Insecure    bool   `yaml:"insecure" env:"INSECURE"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// ServiceVersion 为空时取构建信息
	ServiceVersion string  `yaml:"service_version" env:"SERVICE_VERSION"`
	SampleRate     float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// UsesRedis reports whether the cache or the limiter needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Cache.Enabled || c.Limiter.Enabled
}

// =============================================================================
// ✅ 校验
// =============================================================================

// FieldError describes one invalid setting by its YAML path.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks cross-field constraints. All problems are reported
// together as joined *FieldError values.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field, reason string, args ...any) {
		if !ok {
			errs = append(errs, &FieldError{Field: field, Reason: fmt.Sprintf(reason, args...)})
		}
	}

	s := c.Server
	check(s.HTTPPort > 0 && s.HTTPPort <= 65535, "server.http_port", "%d is not a valid port", s.HTTPPort)
	check(s.MetricsPort >= 0 && s.MetricsPort <= 65535, "server.metrics_port", "%d is not a valid port", s.MetricsPort)
	check(s.MetricsPort == 0 || s.MetricsPort != s.HTTPPort, "server.metrics_port", "must differ from server.http_port")
	check((s.TLSCertFile == "") == (s.TLSKeyFile == ""), "server.tls_cert_file", "must be set together with server.tls_key_file")
	check(s.MaxBodyBytes > 0, "server.max_body_bytes", "must be positive")
	check(s.RateLimitRPS >= 0, "server.rate_limit_rps", "must not be negative")

	t := c.Transform
	check(t.MaxAttempts > 0, "transform.max_attempts", "must be positive")
	check(t.InitialDelay >= 0, "transform.initial_delay", "must not be negative")
	check(t.Multiplier >= 1, "transform.multiplier", "must be at least 1, got %g", t.Multiplier)
	switch t.DefaultProvider {
	case "", gemini.Name, replicate.Name:
	default:
		check(false, "transform.default_provider", "unknown backend %q", t.DefaultProvider)
	}

	if c.Limiter.Enabled {
		check(c.Limiter.MaxConcurrent > 0, "limiter.max_concurrent", "must be positive when the limiter is enabled")
	}
	if c.Cache.Enabled {
		check(c.Cache.TTL > 0, "cache.ttl", "must be positive when the cache is enabled")
	}

	check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "telemetry.sample_rate", "must be within [0, 1]")
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		check(false, "log.level", "unknown level %q", c.Log.Level)
	}
	check(c.Log.Format == "json" || c.Log.Format == "console", "log.format", "unknown format %q", c.Log.Format)

	return errors.Join(errs...)
}
