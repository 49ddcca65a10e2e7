package api

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/codec"
	"github.com/footprint-studio/styleflow/transform/style"
	"github.com/footprint-studio/styleflow/types"
)

// =============================================================================
// 🎨 转换类型
// =============================================================================

// TransformRequest 表示一次风格转换请求。
// @Description 风格转换请求结构
type TransformRequest struct {
	// 源图：data URI、原始 base64 或公网 URL
	Image string `json:"image,omitempty" example:"https://images.example.com/uploads/me.jpg"`
	// 源图 URL（与 image 二选一）
	ImageURL string `json:"image_url,omitempty"`
	// 风格 ID
	Style string `json:"style" example:"watercolor" binding:"required"`
	// 首选后端（nano-banana / replicate），为空时读取 AI_PROVIDER
	Provider string `json:"provider,omitempty" example:"nano-banana"`
	// 每个后端的最大尝试次数，0 表示默认
	MaxAttempts int `json:"max_attempts,omitempty" example:"3"`
	// 自定义参考图位置，覆盖风格自带的参考图
	ReferencePaths []string `json:"reference_paths,omitempty"`
	// 缓存键；为空时由源图内容派生
	ImageKey string `json:"image_key,omitempty"`
	// 跳过结果缓存
	NoCache bool `json:"no_cache,omitempty"`
	// 追加在风格提示词之后的自定义指令；非空时不读写缓存
	Instructions string `json:"instructions,omitempty" example:"keep the red scarf"`
}

// Source 返回实际使用的源图
func (r *TransformRequest) Source() string {
	if s := strings.TrimSpace(r.Image); s != "" {
		return s
	}
	return strings.TrimSpace(r.ImageURL)
}

// Validate 校验请求字段；风格 ID 的合法性由编排器判定
func (r *TransformRequest) Validate() error {
	if r.Source() == "" {
		return types.NewInvalidRequestError("missing required field: image")
	}
	if strings.TrimSpace(r.Style) == "" {
		return types.NewInvalidRequestError("missing required field: style")
	}
	if r.MaxAttempts < 0 || r.MaxAttempts > 10 {
		return types.NewInvalidRequestError("max_attempts must be between 0 and 10")
	}
	if utf8.RuneCountInString(r.Instructions) > MaxInstructionsLength {
		return types.NewInvalidRequestError(fmt.Sprintf("instructions exceed %d characters", MaxInstructionsLength))
	}
	src := r.Source()
	if codec.IsDataURI(src) {
		if _, err := codec.DecodeStrict(src); err != nil {
			return types.NewInvalidRequestError("image is not a valid data URI").WithCause(err)
		}
	}
	return nil
}

// MaxInstructionsLength 自定义指令的最大字符数
const MaxInstructionsLength = 1000

// validateEditSource 编辑接口只接受公网 URL 或 data URI
func validateEditSource(src string) error {
	switch {
	case src == "":
		return types.NewInvalidRequestError("missing required field: image_url")
	case codec.IsURL(src):
		return nil
	case codec.IsDataURI(src):
		if _, err := codec.DecodeStrict(src); err != nil {
			return types.NewInvalidRequestError("image is not a valid data URI").WithCause(err)
		}
		return nil
	}
	return types.NewInvalidRequestError("image must be an http(s) URL or a data URI")
}

// TransformResponse 表示风格转换结果。
// @Description 风格转换响应结构
type TransformResponse struct {
	// 转换 ID
	ID string `json:"transformation_id" example:"6f1c2c1e-2b0e-4c55-9a51-6b1f3f7f1d2a"`
	// 实际完成转换的后端
	Provider string `json:"provider" example:"nano-banana"`
	// 风格 ID
	Style string `json:"style" example:"watercolor"`
	// 输出图像：data URI（内联输出）或 URL
	Image string `json:"image"`
	// 输出 URL（仅 URL 输出时）
	ImageURL string `json:"image_url,omitempty"`
	// MIME 类型
	MimeType string `json:"mime_type,omitempty" example:"image/png"`
	// Token 用量
	TokensUsed int `json:"tokens_used,omitempty" example:"1290"`
	// 预估成本（USD）
	EstimatedCost float64 `json:"estimated_cost,omitempty" example:"0.0387"`
	// 处理耗时（毫秒）
	ProcessingTimeMs int64 `json:"processing_time_ms" example:"6500"`
	// 是否命中缓存
	Cached bool `json:"cached"`
}

// NewTransformResponse 从编排结果构建响应
func NewTransformResponse(styleID string, res *transform.Result, cached bool) TransformResponse {
	return TransformResponse{
		ID:               res.ID,
		Provider:         res.Provider,
		Style:            styleID,
		Image:            res.DataURI(),
		ImageURL:         res.ImageURL,
		MimeType:         res.MimeType,
		TokensUsed:       res.TokensUsed,
		EstimatedCost:    res.EstimatedCost,
		ProcessingTimeMs: res.ProcessingTimeMs,
		Cached:           cached,
	}
}

// =============================================================================
// ✏️ 编辑类型
// =============================================================================

// TweakRequest 按自由文本指令编辑一张图。
// @Description 自由编辑请求结构
type TweakRequest struct {
	// 待编辑图像 URL
	ImageURL string `json:"imageUrl,omitempty" example:"https://images.example.com/results/abc.png"`
	// 待编辑图像（data URI，与 imageUrl 二选一）
	Image string `json:"image,omitempty"`
	// 编辑指令
	Prompt string `json:"prompt" example:"make the background a sunset" binding:"required"`
}

// Source 返回实际使用的源图
func (r *TweakRequest) Source() string {
	if s := strings.TrimSpace(r.ImageURL); s != "" {
		return s
	}
	return strings.TrimSpace(r.Image)
}

// Validate 校验源图与指令
func (r *TweakRequest) Validate() error {
	if err := validateEditSource(r.Source()); err != nil {
		return err
	}
	prompt := strings.TrimSpace(r.Prompt)
	if prompt == "" {
		return types.NewInvalidRequestError("missing required field: prompt")
	}
	if utf8.RuneCountInString(prompt) > MaxInstructionsLength {
		return types.NewInvalidRequestError(fmt.Sprintf("prompt exceeds %d characters", MaxInstructionsLength))
	}
	return nil
}

// WantsBackgroundRemoval 指令同时提到 remove 与 background 时视为去背景
func (r *TweakRequest) WantsBackgroundRemoval() bool {
	p := strings.ToLower(r.Prompt)
	return strings.Contains(p, "remove") && strings.Contains(p, "background")
}

// RemoveBackgroundRequest 去背景请求
// @Description 去背景请求结构
type RemoveBackgroundRequest struct {
	ImageURL string `json:"imageUrl,omitempty" example:"https://images.example.com/uploads/me.jpg"`
	Image    string `json:"image,omitempty"`
}

// Source 返回实际使用的源图
func (r *RemoveBackgroundRequest) Source() string {
	if s := strings.TrimSpace(r.ImageURL); s != "" {
		return s
	}
	return strings.TrimSpace(r.Image)
}

// Validate 校验源图
func (r *RemoveBackgroundRequest) Validate() error {
	return validateEditSource(r.Source())
}

// EditResponse 编辑或去背景的结果
// @Description 编辑响应结构
type EditResponse struct {
	// 输出图像 data URI
	Image string `json:"imageUrl"`
	// MIME 类型
	MimeType string `json:"mime_type" example:"image/png"`
	// 完成编辑的后端
	Provider string `json:"provider" example:"remove-bg"`
	// 处理耗时（毫秒）
	ProcessingTimeMs int64 `json:"processingTime" example:"3200"`
}

// NewEditResponse 从编辑结果构建响应
func NewEditResponse(res *transform.Result, elapsed time.Duration) EditResponse {
	return EditResponse{
		Image:            res.DataURI(),
		MimeType:         res.MimeType,
		Provider:         res.Provider,
		ProcessingTimeMs: elapsed.Milliseconds(),
	}
}

// =============================================================================
// 🖼️ 风格目录类型
// =============================================================================

// StyleSummary 风格列表中的单项（不含提示词）
// @Description 风格摘要
type StyleSummary struct {
	ID            string    `json:"id" example:"watercolor"`
	NameHe        string    `json:"name_he"`
	NameEn        string    `json:"name_en" example:"Watercolor"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	CSSFilter     string    `json:"css_filter"`
	Gradient      [2]string `json:"gradient"`
	Badge         string    `json:"badge,omitempty"`
	HasReferences bool      `json:"has_references"`
}

// NewStyleSummary 从风格定义构建摘要
func NewStyleSummary(def style.Definition) StyleSummary {
	return StyleSummary{
		ID:            def.ID,
		NameHe:        def.NameHe,
		NameEn:        def.NameEn,
		Description:   def.Description,
		Icon:          def.Icon,
		CSSFilter:     def.CSSFilter,
		Gradient:      def.Gradient,
		Badge:         def.Badge,
		HasReferences: def.HasReferences(),
	}
}

// StyleListResponse 风格列表
type StyleListResponse struct {
	Styles []StyleSummary `json:"styles"`
	Total  int            `json:"total"`
}

// =============================================================================
// 🔌 后端类型
// =============================================================================

// ProvidersResponse 后端可用性
// @Description 已注册后端及当前首选后端
type ProvidersResponse struct {
	// 当前首选后端（AI_PROVIDER 或默认）
	Current string `json:"current" example:"nano-banana"`
	// 按优先级排序的后端
	Providers []transform.ProviderStatus `json:"providers"`
	// 是否至少有一个后端可用
	Available bool `json:"available"`
}
