package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/footprint-studio/styleflow/types"
)

// maxErrorText 非 JSON 错误体截断长度
const maxErrorText = 200

// ReadErrorMessage 从非 2xx 响应体中提取错误消息
// 依次尝试 JSON errors[0].title、error.message、字符串 error、截断后的原始文本，
// 最后回退到 "HTTP {status}"
func ReadErrorMessage(body []byte, status int) string {
	var errResp struct {
		Error  json.RawMessage `json:"error"`
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		if len(errResp.Errors) > 0 && errResp.Errors[0].Title != "" {
			return errResp.Errors[0].Title
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(errResp.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
		var msg string
		if json.Unmarshal(errResp.Error, &msg) == nil && msg != "" {
			return msg
		}
	}

	text := strings.TrimSpace(string(body))
	if text != "" {
		return truncate(text, maxErrorText)
	}
	return fmt.Sprintf("HTTP %d", status)
}

// truncate 按字节上限截断，不拆分多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// MapHTTPError 将上游 HTTP 失败映射为 PROVIDER_ERROR
// 429 与 5xx 标记为可重试；其余状态码仅作记录，重试策略由 retry 包决定
func MapHTTPError(status int, msg, provider string) *types.Error {
	e := types.NewProviderError(provider, msg, status)
	e.Retryable = status == http.StatusTooManyRequests || status >= 500
	return e
}

// =============================================================================
// 🔑 凭证读取
// =============================================================================

// Credential 解析后端凭证：静态值优先，否则每次调用时读取环境变量
type Credential struct {
	Static string
	EnvKey string
	Lookup func(string) string
}

// Value 返回当前凭证，未配置时返回空串
func (c Credential) Value() string {
	if c.Static != "" {
		return c.Static
	}
	if c.EnvKey == "" {
		return ""
	}
	lookup := c.Lookup
	if lookup == nil {
		lookup = os.Getenv
	}
	return strings.TrimSpace(lookup(c.EnvKey))
}

// NotConfigured 构造缺少凭证时的错误
func (c Credential) NotConfigured(provider string) *types.Error {
	return types.NewNotConfiguredError(provider, fmt.Sprintf("%s is not configured", c.EnvKey))
}
