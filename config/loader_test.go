// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/footprint-studio/styleflow/transform/providers/gemini"
	"github.com/footprint-studio/styleflow/transform/providers/replicate"
)

func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithEnvLookup(mapEnv(nil)).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 3, cfg.Transform.MaxAttempts)
	assert.Equal(t, "AI_PROVIDER", cfg.Transform.ProviderEnvKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

transform:
  default_provider: replicate
  max_attempts: 5
  initial_delay: 500ms

gemini:
  model: gemini-custom
  timeout: 90s

replicate:
  poll_interval: 2s
  guidance_scale: 3.5

references:
  max_concurrency: 8

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

cache:
  enabled: true
  ttl: 24h

limiter:
  max_concurrent: 5

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnvLookup(mapEnv(nil)).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	assert.Equal(t, replicate.Name, cfg.Transform.DefaultProvider)
	assert.Equal(t, 5, cfg.Transform.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Transform.InitialDelay)
	// 未出现在 YAML 中的字段保持默认值
	assert.Equal(t, 2.0, cfg.Transform.Multiplier)

	assert.Equal(t, "gemini-custom", cfg.Gemini.Model)
	assert.Equal(t, 90*time.Second, cfg.Gemini.Timeout)
	assert.Equal(t, "GOOGLE_AI_API_KEY", cfg.Gemini.APIKeyEnv)

	assert.Equal(t, 2*time.Second, cfg.Replicate.PollInterval)
	assert.Equal(t, 3.5, cfg.Replicate.GuidanceScale)
	assert.Equal(t, "black-forest-labs/flux-kontext-pro", cfg.Replicate.Model)

	assert.Equal(t, 8, cfg.References.MaxConcurrency)

	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Limiter.MaxConcurrent)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	env := map[string]string{
		"STYLEFLOW_SERVER_HTTP_PORT":            "7777",
		"STYLEFLOW_SERVER_CORS_ALLOWED_ORIGINS": "https://a.example, https://b.example,",
		"STYLEFLOW_TRANSFORM_MAX_ATTEMPTS":      "2",
		"STYLEFLOW_TRANSFORM_MULTIPLIER":        "3",
		"STYLEFLOW_GEMINI_API_KEY":              "static-key",
		"STYLEFLOW_REPLICATE_MAX_POLLS":         "10",
		"STYLEFLOW_REMOVE_BG_API_KEY_ENV":       "RBG_KEY",
		"STYLEFLOW_REFERENCES_TIMEOUT":          "3s",
		"STYLEFLOW_REDIS_ADDR":                  "env-redis:6379",
		"STYLEFLOW_LIMITER_ENABLED":             "false",
		"STYLEFLOW_JWT_SECRET":                  "s3cret",
		"STYLEFLOW_TELEMETRY_SAMPLE_RATE":       "0.5",
		"STYLEFLOW_LOG_LEVEL":                   "warn",
	}

	cfg, err := NewLoader().WithEnvLookup(mapEnv(env)).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 2, cfg.Transform.MaxAttempts)
	assert.Equal(t, 3.0, cfg.Transform.Multiplier)
	assert.Equal(t, "static-key", cfg.Gemini.APIKey)
	assert.Equal(t, 10, cfg.Replicate.MaxPolls)
	assert.Equal(t, "RBG_KEY", cfg.RemoveBG.APIKeyEnv)
	assert.Equal(t, 3*time.Second, cfg.References.Timeout)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Limiter.Enabled)
	assert.True(t, cfg.JWT.Enabled())
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_ProcessEnv(t *testing.T) {
	t.Setenv("STYLEFLOW_SERVER_HTTP_PORT", "9999")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
gemini:
  model: yaml-model
  base_url: https://yaml.example
`)

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnvLookup(mapEnv(map[string]string{
			"STYLEFLOW_SERVER_HTTP_PORT": "9999",
			"STYLEFLOW_GEMINI_MODEL":     "env-model",
		})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.Gemini.Model)
	assert.Equal(t, "https://yaml.example", cfg.Gemini.BaseURL)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		WithEnvLookup(mapEnv(map[string]string{
			"MYAPP_SERVER_HTTP_PORT":      "6666",
			"STYLEFLOW_SERVER_HTTP_PORT": "1111",
		})).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	_, err := NewLoader().
		WithEnvLookup(mapEnv(map[string]string{
			"STYLEFLOW_TRANSFORM_INITIAL_DELAY": "soon",
			"STYLEFLOW_SERVER_HTTP_PORT":        "eighty",
		})).
		Load()
	require.Error(t, err)
	// 所有错误一次性报告
	assert.Contains(t, err.Error(), "STYLEFLOW_TRANSFORM_INITIAL_DELAY")
	assert.Contains(t, err.Error(), "STYLEFLOW_SERVER_HTTP_PORT")
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Server.HTTPPort < 1024 {
			return assert.AnError
		}
		return nil
	}

	_, err := NewLoader().
		WithEnvLookup(mapEnv(map[string]string{"STYLEFLOW_SERVER_HTTP_PORT": "80"})).
		WithValidator(validator).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		WithEnvLookup(mapEnv(nil)).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: [invalid
  this is not valid yaml
`)

	_, err := NewLoader().WithConfigPath(path).Load()
	assert.ErrorContains(t, err, path)
}

func TestLoader_EmptyFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(writeConfig(t, "")).WithEnvLookup(mapEnv(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_Strict(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  htp_timeout: 5s
`)

	// 非严格模式忽略未知键
	cfg, err := NewLoader().WithConfigPath(path).WithEnvLookup(mapEnv(nil)).Load()
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Server.HTTPPort)

	_, err = NewLoader().WithConfigPath(path).WithEnvLookup(mapEnv(nil)).Strict().Load()
	assert.ErrorContains(t, err, "htp_timeout")
}

func TestLoader_ExpandsPlaceholders(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: ${FOOTPRINT_JWT_SECRET}
  issuer: footprint-${STAGE}
redis:
  password: "p$ss"
  addr: "${UNSET_REDIS_ADDR}"
`)

	cfg, err := NewLoader().
		WithConfigPath(path).
		WithEnvLookup(mapEnv(map[string]string{
			"FOOTPRINT_JWT_SECRET": "from-env",
			"STAGE":                "prod",
		})).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "footprint-prod", cfg.JWT.Issuer)
	// 只有 ${NAME} 形式会被替换
	assert.Equal(t, "p$ss", cfg.Redis.Password)
	assert.Empty(t, cfg.Redis.Addr)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{name: "gemini default provider", modify: func(c *Config) { c.Transform.DefaultProvider = gemini.Name }},
		{name: "invalid HTTP port (negative)", modify: func(c *Config) { c.Server.HTTPPort = -1 }, wantErr: "server.http_port"},
		{name: "invalid HTTP port (too large)", modify: func(c *Config) { c.Server.HTTPPort = 70000 }, wantErr: "70000 is not a valid port"},
		{name: "port clash", modify: func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, wantErr: "server.metrics_port"},
		{name: "tls cert without key", modify: func(c *Config) { c.Server.TLSCertFile = "/etc/tls/cert.pem" }, wantErr: "tls_cert_file"},
		{name: "zero attempts", modify: func(c *Config) { c.Transform.MaxAttempts = 0 }, wantErr: "max_attempts"},
		{name: "shrinking backoff", modify: func(c *Config) { c.Transform.Multiplier = 0.5 }, wantErr: "multiplier"},
		{name: "unknown provider", modify: func(c *Config) { c.Transform.DefaultProvider = "dalle" }, wantErr: "dalle"},
		{name: "limiter without slots", modify: func(c *Config) { c.Limiter.MaxConcurrent = 0 }, wantErr: "max_concurrent"},
		{name: "disabled limiter ignores slots", modify: func(c *Config) {
			c.Limiter.Enabled = false
			c.Limiter.MaxConcurrent = 0
		}},
		{name: "cache without ttl", modify: func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.TTL = 0
		}, wantErr: "cache.ttl"},
		{name: "sample rate", modify: func(c *Config) { c.Telemetry.SampleRate = 1.5 }, wantErr: "sample_rate"},
		{name: "log format", modify: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "log level", modify: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "log.level"},
		{name: "negative rate limit", modify: func(c *Config) { c.Server.RateLimitRPS = -1 }, wantErr: "rate_limit_rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsEveryField(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Transform.MaxAttempts = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)

	var fe *FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "server.http_port", fe.Field)
	for _, field := range []string{"server.http_port", "transform.max_attempts", "log.format"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestConfig_UsesRedis(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Enabled = false
	cfg.Limiter.Enabled = false
	assert.False(t, cfg.UsesRedis())

	cfg.Cache.Enabled = true
	assert.True(t, cfg.UsesRedis())
}
