package removebg

import "time"

// Name 是 Remove.bg 客户端在日志与结果中的名称
const Name = "remove-bg"

// Config Remove.bg 客户端配置
type Config struct {
	// APIKey 静态密钥；为空时每次调用读取 APIKeyEnv
	APIKey    string        `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"API_KEY"`
	APIKeyEnv string        `json:"api_key_env" yaml:"api_key_env" env:"API_KEY_ENV"`
	BaseURL   string        `json:"base_url" yaml:"base_url" env:"BASE_URL"`
	Size      string        `json:"size" yaml:"size" env:"SIZE"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" env:"TIMEOUT"`
}

// DefaultConfig 返回默认 Remove.bg 配置
func DefaultConfig() Config {
	return Config{
		APIKeyEnv: "REMOVEBG_API_KEY",
		BaseURL:   "https://api.remove.bg/v1.0",
		Size:      "auto",
		Timeout:   60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = def.APIKeyEnv
	}
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Size == "" {
		c.Size = def.Size
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}
