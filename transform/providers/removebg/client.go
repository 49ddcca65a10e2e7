package removebg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/codec"
	"github.com/footprint-studio/styleflow/transform/providers"
	"github.com/footprint-studio/styleflow/types"
)

// Client 调用 Remove.bg
// API Docs: https://www.remove.bg/api
type Client struct {
	cfg       Config
	client    *http.Client
	lookupEnv func(string) string
	logger    *zap.Logger
}

// Option 配置 Client
type Option func(*Client)

// WithHTTPClient 替换 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithEnv 替换 os.Getenv
func WithEnv(lookup func(string) string) Option {
	return func(cl *Client) { cl.lookupEnv = lookup }
}

// New 创建 Remove.bg 客户端
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:       cfg,
		client:    tlsutil.SecureHTTPClient(cfg.Timeout),
		lookupEnv: os.Getenv,
		logger:    logger.With(zap.String("provider", Name)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConfigured 每次调用时读取凭证
func (c *Client) IsConfigured() bool {
	return c.credential().Value() != ""
}

func (c *Client) credential() providers.Credential {
	return providers.Credential{Static: c.cfg.APIKey, EnvKey: c.cfg.APIKeyEnv, Lookup: c.lookupEnv}
}

// RemoveBackground 移除源图背景，返回 PNG
// Endpoint: POST {BaseURL}/removebg，multipart/form-data
func (c *Client) RemoveBackground(ctx context.Context, source string) (*transform.Result, error) {
	cred := c.credential()
	key := cred.Value()
	if key == "" {
		return nil, cred.NotConfigured(Name)
	}
	if strings.TrimSpace(source) == "" {
		return nil, types.NewInvalidRequestError("image is required")
	}

	body, contentType, err := c.form(source)
	if err != nil {
		return nil, fmt.Errorf("build remove.bg form: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/removebg"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Api-Key", key)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewProviderError(Name, "Remove.bg request failed", 0).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(Name, "failed to read Remove.bg response", resp.StatusCode).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := providers.ReadErrorMessage(data, resp.StatusCode)
		return nil, providers.MapHTTPError(resp.StatusCode, "Remove.bg API error: "+msg, Name)
	}
	if len(data) == 0 {
		return nil, types.NewError(types.ErrEmptyOutput, "No image in Remove.bg response").WithProvider(Name)
	}

	c.logger.Debug("background removed",
		zap.Int("bytes", len(data)),
		zap.String("credits", resp.Header.Get("X-Credits-Charged")),
		zap.Duration("latency", time.Since(start)),
	)

	img := codec.FromBytes(data, "image/png")
	return &transform.Result{
		Provider:    Name,
		ImageBase64: img.Data,
		MimeType:    img.MimeType,
	}, nil
}

// form 构造 multipart 请求体
func (c *Client) form(source string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"size", c.cfg.Size}, {"format", "png"}}
	if codec.IsURL(source) {
		fields = append(fields, [2]string{"image_url", source})
	} else {
		fields = append(fields, [2]string{"image_file_b64", codec.Decode(source).Data})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
