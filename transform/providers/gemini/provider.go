package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/codec"
	"github.com/footprint-studio/styleflow/transform/providers"
	"github.com/footprint-studio/styleflow/transform/reference"
	"github.com/footprint-studio/styleflow/transform/style"
	"github.com/footprint-studio/styleflow/types"
)

// Provider 使用 Gemini 原生多模态能力进行风格转换
type Provider struct {
	cfg       Config
	client    *http.Client
	loader    *reference.Loader
	catalog   *style.Catalog
	lookupEnv func(string) string
	logger    *zap.Logger
}

// Option 配置 Provider
type Option func(*Provider)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLoader 设置参考图加载器
func WithLoader(l *reference.Loader) Option {
	return func(p *Provider) { p.loader = l }
}

// WithCatalog 设置风格目录
func WithCatalog(c *style.Catalog) Option {
	return func(p *Provider) { p.catalog = c }
}

// WithEnv 替换 os.Getenv
func WithEnv(lookup func(string) string) Option {
	return func(p *Provider) { p.lookupEnv = lookup }
}

// New 创建 Gemini Provider
func New(cfg Config, logger *zap.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	p := &Provider{
		cfg:       cfg,
		client:    tlsutil.SecureHTTPClient(cfg.Timeout),
		catalog:   style.Default(),
		lookupEnv: os.Getenv,
		logger:    logger.With(zap.String("provider", Name)),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.loader == nil {
		p.loader = reference.NewLoader(reference.DefaultConfig(), logger)
	}
	return p
}

// Name 实现 transform.Adapter
func (p *Provider) Name() string { return Name }

// IsConfigured 每次调用时读取凭证
func (p *Provider) IsConfigured() bool {
	return p.credential().Value() != ""
}

func (p *Provider) credential() providers.Credential {
	return providers.Credential{Static: p.cfg.APIKey, EnvKey: p.cfg.APIKeyEnv, Lookup: p.lookupEnv}
}

// =============================================================================
// 📥 输入准备
// =============================================================================

// Prepare 将源图内联为 base64，并加载参考图。在重试循环之前执行一次。
// 未显式给出参考图路径时，使用风格目录中登记的参考图。
func (p *Provider) Prepare(ctx context.Context, req *transform.Request) (*transform.Request, error) {
	out := req.Clone()

	if out.Image == nil {
		img, err := p.inline(ctx, out.Source)
		if err != nil {
			return nil, err
		}
		out.Image = &img
	}

	paths := out.ReferencePaths
	if len(paths) == 0 && len(out.References) == 0 {
		paths = p.catalog.ReferencePaths(out.StyleID)
	}
	if len(paths) > 0 {
		out.References = append(out.References, p.loader.Load(ctx, paths, p.cfg.ReferenceBaseURL)...)
		out.ReferencePaths = nil
	}
	return out, nil
}

// inline 将 data URI、远程 URL 或裸 base64 转为内联图像
func (p *Provider) inline(ctx context.Context, source string) (codec.Image, error) {
	switch {
	case codec.IsDataURI(source):
		return codec.Decode(source), nil
	case codec.IsURL(source):
		img, err := p.loader.Fetch(ctx, source)
		if err != nil {
			return codec.Image{}, types.NewProviderError(Name, "failed to fetch source image", 0).WithCause(err)
		}
		return img, nil
	default:
		return codec.Decode(source), nil
	}
}

// =============================================================================
// 🎨 转换
// =============================================================================

type part struct {
	Text       string  `json:"text,omitempty"`
	InlineData *inline `json:"inlineData,omitempty"`
}

type inline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities"`
	Temperature        float64      `json:"temperature,omitempty"`
	MaxOutputTokens    int          `json:"maxOutputTokens,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
	SafetySettings   []safetySetting  `json:"safetySettings"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *apiError `json:"error,omitempty"`
}

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// Transform 实现 transform.Adapter
func (p *Provider) Transform(ctx context.Context, req *transform.Request) (*transform.Result, error) {
	cred := p.credential()
	key := cred.Value()
	if key == "" {
		return nil, cred.NotConfigured(Name)
	}

	def, err := p.catalog.Get(req.StyleID)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidStyle, fmt.Sprintf("invalid style: %q", req.StyleID)).
			WithHTTPStatus(http.StatusBadRequest).
			WithProvider(Name)
	}

	if req.Image == nil {
		if req, err = p.Prepare(ctx, req); err != nil {
			return nil, err
		}
	}

	return p.generate(ctx, key, p.buildRequest(def, req))
}

// Edit 按自由文本指令编辑单张图像，不套用风格模板
func (p *Provider) Edit(ctx context.Context, source, instructions string) (*transform.Result, error) {
	cred := p.credential()
	key := cred.Value()
	if key == "" {
		return nil, cred.NotConfigured(Name)
	}
	if strings.TrimSpace(instructions) == "" {
		return nil, types.NewInvalidRequestError("edit instructions are required")
	}

	img, err := p.inline(ctx, source)
	if err != nil {
		return nil, err
	}

	res, err := p.generate(ctx, key, generateRequest{
		Contents: []content{{Parts: []part{
			{InlineData: &inline{MimeType: img.MimeType, Data: img.Data}},
			{Text: editPrompt(instructions)},
		}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			MaxOutputTokens:    p.cfg.MaxOutputTokens,
		},
		SafetySettings: safetySettings(),
	})
	if err != nil {
		return nil, err
	}
	res.Provider = Name
	return res, nil
}

// generate 发送 generateContent 请求并解析图像结果
func (p *Provider) generate(ctx context.Context, key string, gr generateRequest) (*transform.Result, error) {
	payload, err := json.Marshal(gr)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewProviderError(Name, "Nano Banana request failed", 0).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(Name, "failed to read Nano Banana response", resp.StatusCode).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := providers.ReadErrorMessage(body, resp.StatusCode)
		return nil, providers.MapHTTPError(resp.StatusCode, "Nano Banana API error: "+msg, Name)
	}

	var gResp generateResponse
	if err := json.Unmarshal(body, &gResp); err != nil {
		return nil, types.NewProviderError(Name, "failed to decode Nano Banana response", resp.StatusCode).WithCause(err)
	}
	return p.toResult(&gResp)
}

func (p *Provider) buildRequest(def style.Definition, req *transform.Request) generateRequest {
	parts := make([]part, 0, len(req.References)+2)
	for _, ref := range req.References {
		parts = append(parts, part{InlineData: &inline{MimeType: ref.MimeType, Data: ref.Data}})
	}
	parts = append(parts,
		part{InlineData: &inline{MimeType: req.Image.MimeType, Data: req.Image.Data}},
		part{Text: buildPrompt(def, len(req.References), req.Instructions)},
	)

	gen := generationConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Temperature:        def.Parameters.Temperature,
		MaxOutputTokens:    p.cfg.MaxOutputTokens,
	}
	if def.Parameters.AspectRatio != "" {
		gen.ImageConfig = &imageConfig{AspectRatio: def.Parameters.AspectRatio}
	}

	return generateRequest{
		Contents:         []content{{Parts: parts}},
		GenerationConfig: gen,
		SafetySettings:   safetySettings(),
	}
}

func safetySettings() []safetySetting {
	safety := make([]safetySetting, len(safetyCategories))
	for i, c := range safetyCategories {
		safety[i] = safetySetting{Category: c, Threshold: "BLOCK_MEDIUM_AND_ABOVE"}
	}
	return safety
}

// =============================================================================
// 📤 响应分类
// =============================================================================

type responseKind int

const (
	kindImage responseKind = iota
	kindAPIError
	kindNoCandidates
	kindNoImage
)

// classify 将响应归入四种互斥结果之一
func classify(r *generateResponse) (responseKind, *inline) {
	if r.Error != nil {
		return kindAPIError, nil
	}
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return kindNoCandidates, nil
	}
	for _, pt := range r.Candidates[0].Content.Parts {
		if pt.InlineData != nil && pt.InlineData.Data != "" {
			return kindImage, pt.InlineData
		}
	}
	return kindNoImage, nil
}

func (p *Provider) toResult(r *generateResponse) (*transform.Result, error) {
	kind, img := classify(r)
	switch kind {
	case kindAPIError:
		return nil, types.NewProviderError(Name, "Nano Banana API error: "+r.Error.Message, r.Error.Code)
	case kindNoCandidates:
		return nil, types.NewError(types.ErrEmptyOutput, "No output returned from Nano Banana").WithProvider(Name)
	case kindNoImage:
		return nil, types.NewError(types.ErrEmptyOutput, "No image in Nano Banana response").WithProvider(Name)
	}

	tokens := r.UsageMetadata.TotalTokenCount
	if tokens <= 0 {
		tokens = p.cfg.DefaultTokens
	}
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}

	p.logger.Debug("gemini transform succeeded", zap.Int("tokens", tokens))
	return &transform.Result{
		ImageBase64:   img.Data,
		MimeType:      mime,
		TokensUsed:    tokens,
		EstimatedCost: float64(tokens) / 1_000_000 * p.cfg.CostPerMillionTokens,
	}, nil
}

var (
	_ transform.Adapter  = (*Provider)(nil)
	_ transform.Preparer = (*Provider)(nil)
)
