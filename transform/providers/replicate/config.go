package replicate

import "time"

// Name 是 Replicate 后端在注册表中的名称
const Name = "replicate"

// Config Replicate 后端配置
type Config struct {
	// APIToken 静态令牌；为空时每次调用读取 APITokenEnv
	APIToken       string        `json:"api_token,omitempty" yaml:"api_token,omitempty" env:"API_TOKEN"`
	APITokenEnv    string        `json:"api_token_env" yaml:"api_token_env" env:"API_TOKEN_ENV"`
	BaseURL        string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model          string        `json:"model" yaml:"model" env:"MODEL"` // owner/name
	GuidanceScale  float64       `json:"guidance_scale" yaml:"guidance_scale" env:"GUIDANCE_SCALE"`
	InferenceSteps int           `json:"inference_steps" yaml:"inference_steps" env:"INFERENCE_STEPS"`
	OutputFormat   string        `json:"output_format" yaml:"output_format" env:"OUTPUT_FORMAT"`
	OutputQuality  int           `json:"output_quality" yaml:"output_quality" env:"OUTPUT_QUALITY"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	PollInterval   time.Duration `json:"poll_interval" yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxPolls       int           `json:"max_polls" yaml:"max_polls" env:"MAX_POLLS"`
}

// DefaultConfig 返回默认 Replicate 配置
func DefaultConfig() Config {
	return Config{
		APITokenEnv:    "REPLICATE_API_TOKEN",
		BaseURL:        "https://api.replicate.com",
		Model:          "black-forest-labs/flux-kontext-pro",
		GuidanceScale:  7.5,
		InferenceSteps: 28,
		OutputFormat:   "png",
		OutputQuality:  100,
		Timeout:        120 * time.Second,
		PollInterval:   time.Second,
		MaxPolls:       120,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.APITokenEnv == "" {
		c.APITokenEnv = def.APITokenEnv
	}
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.GuidanceScale <= 0 {
		c.GuidanceScale = def.GuidanceScale
	}
	if c.InferenceSteps <= 0 {
		c.InferenceSteps = def.InferenceSteps
	}
	if c.OutputFormat == "" {
		c.OutputFormat = def.OutputFormat
	}
	if c.OutputQuality <= 0 {
		c.OutputQuality = def.OutputQuality
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = def.MaxPolls
	}
	return c
}
