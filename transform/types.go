package transform

import (
	"context"
	"time"

	"github.com/footprint-studio/styleflow/transform/codec"
)

// Adapter is one generative-image backend.
type Adapter interface {
	// Name 返回后端标识（注册表键）
	Name() string

	// IsConfigured reports whether credentials are present. It is read on
	// every call and never cached.
	IsConfigured() bool

	// Transform runs a single backend call; retries are the caller's job.
	Transform(ctx context.Context, req *Request) (*Result, error)
}

// Preparer is implemented by adapters that need one-time input work before
// the retry loop starts: input-shape validation, inlining a URL source,
// loading reference images. Errors from Prepare are not retried.
type Preparer interface {
	Prepare(ctx context.Context, req *Request) (*Request, error)
}

// Request is the per-backend view of a transformation.
type Request struct {
	// Source 为 data URI、原始 base64 或 http(s) URL
	Source  string
	StyleID string

	// Image 为内联后的源图（主后端使用），由 Prepare 填充
	Image *codec.Image

	// References 已加载的参考图，按顺序放在源图之前
	References []codec.Image

	// ReferencePaths 待加载的参考图位置
	ReferencePaths []string

	// Instructions 追加在风格提示词之后的自定义指令
	Instructions string
}

// Clone returns a copy safe to hand to another backend.
func (r *Request) Clone() *Request {
	c := *r
	if r.Image != nil {
		img := *r.Image
		c.Image = &img
	}
	c.References = append([]codec.Image(nil), r.References...)
	c.ReferencePaths = append([]string(nil), r.ReferencePaths...)
	return &c
}

// Options tune a single orchestrated call.
type Options struct {
	// Provider 显式指定首选后端，为空时读取配置
	Provider string
	// MaxAttempts 覆盖每个后端的重试预算，<=0 使用默认值
	MaxAttempts int
	// References 调用方已加载的参考图
	References []codec.Image
	// ReferencePaths 需要加载的参考图位置
	ReferencePaths []string
	// Instructions 自定义补充指令
	Instructions string
}

// Result is the outcome of a successful transformation. Exactly one of
// ImageURL or ImageBase64 is set.
type Result struct {
	ID               string        `json:"id"`
	Provider         string        `json:"provider"`
	ImageURL         string        `json:"image_url,omitempty"`
	ImageBase64      string        `json:"image_base64,omitempty"`
	MimeType         string        `json:"mime_type"`
	TokensUsed       int           `json:"tokens_used,omitempty"`
	EstimatedCost    float64       `json:"estimated_cost,omitempty"`
	ProcessingTime   time.Duration `json:"-"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
}

// DataURI returns the inline output as a data URI, or the output URL.
func (r *Result) DataURI() string {
	if r.ImageBase64 != "" {
		return codec.Encode(r.ImageBase64, r.MimeType)
	}
	return r.ImageURL
}

// ProviderStatus describes backend availability at one point in time.
type ProviderStatus struct {
	Name       string `json:"name"`
	Configured bool   `json:"configured"`
	Priority   int    `json:"priority"`
}
