package gemini

import "time"

// Name 是 Gemini 后端在注册表中的名称
const Name = "nano-banana"

// Config Gemini 图像后端配置
type Config struct {
	// APIKey 静态密钥；为空时每次调用读取 APIKeyEnv
	APIKey               string        `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"API_KEY"`
	APIKeyEnv            string        `json:"api_key_env" yaml:"api_key_env" env:"API_KEY_ENV"`
	BaseURL              string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Model                string        `json:"model" yaml:"model" env:"MODEL"`
	Timeout              time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
	MaxOutputTokens      int           `json:"max_output_tokens" yaml:"max_output_tokens" env:"MAX_OUTPUT_TOKENS"`
	DefaultTokens        int           `json:"default_tokens" yaml:"default_tokens" env:"DEFAULT_TOKENS"`
	CostPerMillionTokens float64       `json:"cost_per_million_tokens" yaml:"cost_per_million_tokens" env:"COST_PER_MILLION_TOKENS"`
	// ReferenceBaseURL 相对参考图路径的解析基址
	ReferenceBaseURL string `json:"reference_base_url" yaml:"reference_base_url" env:"REFERENCE_BASE_URL"`
}

// DefaultConfig 返回默认 Gemini 配置
func DefaultConfig() Config {
	return Config{
		APIKeyEnv:            "GOOGLE_AI_API_KEY",
		BaseURL:              "https://generativelanguage.googleapis.com/v1beta",
		Model:                "gemini-2.5-flash-preview-image-generation",
		Timeout:              120 * time.Second,
		MaxOutputTokens:      8192,
		DefaultTokens:        1290,
		CostPerMillionTokens: 30,
	}
}

// withDefaults 补全零值字段
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = def.APIKeyEnv
	}
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = def.MaxOutputTokens
	}
	if c.DefaultTokens <= 0 {
		c.DefaultTokens = def.DefaultTokens
	}
	if c.CostPerMillionTokens <= 0 {
		c.CostPerMillionTokens = def.CostPerMillionTokens
	}
	return c
}
