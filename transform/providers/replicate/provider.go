package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/codec"
	"github.com/footprint-studio/styleflow/transform/providers"
	"github.com/footprint-studio/styleflow/transform/style"
	"github.com/footprint-studio/styleflow/types"
)

// Provider 通过 Replicate predictions API 调用 flux-kontext-pro
// API Docs: https://replicate.com/docs/reference/http
type Provider struct {
	cfg       Config
	client    *http.Client
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

// WithCatalog 设置风格目录
func WithCatalog(c *style.Catalog) Option {
	return func(p *Provider) { p.catalog = c }
}

// WithEnv 替换 os.Getenv
func WithEnv(lookup func(string) string) Option {
	return func(p *Provider) { p.lookupEnv = lookup }
}

// New 创建 Replicate Provider
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
	return p
}

// Name 实现 transform.Adapter
func (p *Provider) Name() string { return Name }

// IsConfigured 每次调用时读取凭证
func (p *Provider) IsConfigured() bool {
	return p.credential().Value() != ""
}

func (p *Provider) credential() providers.Credential {
	return providers.Credential{Static: p.cfg.APIToken, EnvKey: p.cfg.APITokenEnv, Lookup: p.lookupEnv}
}

// Prepare 校验输入形态：Replicate 只接受公网可访问的图像 URL
func (p *Provider) Prepare(_ context.Context, req *transform.Request) (*transform.Request, error) {
	if err := requireURL(req.Source); err != nil {
		return nil, err
	}
	return req, nil
}

func requireURL(source string) error {
	if codec.IsURL(source) {
		return nil
	}
	return types.NewError(types.ErrProviderError, "replicate requires a publicly accessible image URL").
		WithProvider(Name).
		WithHTTPStatus(http.StatusBadRequest)
}

// =============================================================================
// 🎨 预测
// =============================================================================

type predictionInput struct {
	Image             string  `json:"image"`
	Prompt            string  `json:"prompt"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	OutputFormat      string  `json:"output_format"`
	OutputQuality     int     `json:"output_quality"`
}

type predictionRequest struct {
	Input predictionInput `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  any             `json:"error,omitempty"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

// 预测状态
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

func (pr *prediction) pending() bool {
	return pr.Status == statusStarting || pr.Status == statusProcessing || pr.Status == ""
}

// Transform 实现 transform.Adapter
// Endpoint: POST /v1/models/{owner}/{name}/predictions，Prefer: wait 同步等待，
// 超时仍未结束时轮询 urls.get
func (p *Provider) Transform(ctx context.Context, req *transform.Request) (*transform.Result, error) {
	cred := p.credential()
	token := cred.Value()
	if token == "" {
		return nil, cred.NotConfigured(Name)
	}

	def, err := p.catalog.Get(req.StyleID)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidStyle, fmt.Sprintf("invalid style: %q", req.StyleID)).
			WithHTTPStatus(http.StatusBadRequest).
			WithProvider(Name)
	}
	if err := requireURL(req.Source); err != nil {
		return nil, err
	}

	prompt := def.Prompt
	if extra := strings.TrimSpace(req.Instructions); extra != "" {
		prompt += "\n\n" + extra
	}

	body := predictionRequest{Input: predictionInput{
		Image:             req.Source,
		Prompt:            prompt,
		GuidanceScale:     p.cfg.GuidanceScale,
		NumInferenceSteps: p.cfg.InferenceSteps,
		OutputFormat:      p.cfg.OutputFormat,
		OutputQuality:     p.cfg.OutputQuality,
	}}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal replicate request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	pred, err := p.do(httpReq, token)
	if err != nil {
		return nil, err
	}

	if pred.pending() {
		if pred, err = p.poll(ctx, pred, token); err != nil {
			return nil, err
		}
	}
	return p.toResult(pred)
}

// do 发送请求并解码 prediction
func (p *Provider) do(httpReq *http.Request, token string) (*prediction, error) {
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewProviderError(Name, "replicate request failed", 0).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(Name, "failed to read replicate response", resp.StatusCode).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readDetail(data, resp.StatusCode)
		return nil, providers.MapHTTPError(resp.StatusCode, "Replicate API error: "+msg, Name)
	}

	var pred prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return nil, types.NewProviderError(Name, "failed to decode replicate response", resp.StatusCode).WithCause(err)
	}
	return &pred, nil
}

// readDetail Replicate 错误体使用 {"detail": "..."}，其余格式交给通用解析
func readDetail(data []byte, status int) string {
	var d struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &d); err == nil && d.Detail != "" {
		return d.Detail
	}
	return providers.ReadErrorMessage(data, status)
}

// poll 轮询 urls.get 直到预测结束
func (p *Provider) poll(ctx context.Context, pred *prediction, token string) (*prediction, error) {
	getURL := pred.URLs.Get
	if getURL == "" {
		getURL = fmt.Sprintf("%s/v1/predictions/%s", strings.TrimRight(p.cfg.BaseURL, "/"), pred.ID)
	}

	for i := 0; i < p.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, getURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create poll request: %w", err)
		}
		next, err := p.do(httpReq, token)
		if err != nil {
			return nil, err
		}
		if !next.pending() {
			return next, nil
		}
		p.logger.Debug("prediction pending",
			zap.String("id", next.ID),
			zap.String("status", next.Status),
			zap.Int("poll", i+1))
	}

	return nil, types.NewError(types.ErrTimeout,
		fmt.Sprintf("replicate prediction %s did not finish after %d polls", pred.ID, p.cfg.MaxPolls)).
		WithProvider(Name).
		WithRetryable(true)
}

func (p *Provider) toResult(pred *prediction) (*transform.Result, error) {
	switch pred.Status {
	case statusFailed, statusCanceled:
		msg := fmt.Sprintf("prediction %s", pred.Status)
		if pred.Error != nil {
			msg = fmt.Sprintf("%s: %v", msg, pred.Error)
		}
		return nil, types.NewProviderError(Name, "Replicate "+msg, 0)
	case statusSucceeded:
	default:
		return nil, types.NewProviderError(Name, fmt.Sprintf("unexpected prediction status %q", pred.Status), 0)
	}

	url, ok := firstOutput(pred.Output)
	if !ok {
		return nil, types.NewError(types.ErrEmptyOutput, "No output returned from Replicate").WithProvider(Name)
	}
	return &transform.Result{
		ID:       pred.ID,
		ImageURL: url,
		MimeType: "image/" + p.cfg.OutputFormat,
	}, nil
}

// firstOutput 支持裸字符串与字符串数组两种输出形态
func firstOutput(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0], list[0] != ""
	}
	return "", false
}

var (
	_ transform.Adapter  = (*Provider)(nil)
	_ transform.Preparer = (*Provider)(nil)
)
