package config

import (
	"time"

	"github.com/footprint-studio/styleflow/internal/cache"
	"github.com/footprint-studio/styleflow/internal/limiter"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/providers/gemini"
	"github.com/footprint-studio/styleflow/transform/providers/removebg"
	"github.com/footprint-studio/styleflow/transform/providers/replicate"
	"github.com/footprint-studio/styleflow/transform/reference"
)

// DefaultConfig returns a configuration that passes Validate. Only the
// concurrency limiter expects Redis, and it lets requests through while
// Redis is unreachable.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:    8080,
			MetricsPort: 9091,
			ReadTimeout: 30 * time.Second,
			// 2 个后端 × 3 次尝试，外加退避
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    25 << 20,
			RateLimitRPS:    10,
			RateLimitBurst:  20,
			ReferenceDir:    "public/style-references",
		},

		Transform:  transform.DefaultConfig(),
		Gemini:     gemini.DefaultConfig(),
		Replicate:  replicate.DefaultConfig(),
		References: reference.DefaultConfig(),
		RemoveBG:   removebg.DefaultConfig(),

		Redis:   cache.DefaultConfig(),
		Cache:   CacheConfig{TTL: transform.DefaultCacheTTL},
		Limiter: limiter.DefaultConfig(),

		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultTelemetryConfig 默认关闭，采样 10%
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "styleflow",
		SampleRate:   0.1,
	}
}
