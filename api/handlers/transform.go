package handlers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/internal/limiter"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/types"
)

// =============================================================================
// 🎨 风格转换 Handler
// =============================================================================

// Transformer 是编排器在 HTTP 层使用的子集
type Transformer interface {
	Transform(ctx context.Context, source, styleID string, opts transform.Options) (*transform.Result, error)
	IsKnownProvider(name string) bool
}

// ConcurrencyLimiter 每用户并发限制
type ConcurrencyLimiter interface {
	Acquire(ctx context.Context, userID string) limiter.Result
	Release(ctx context.Context, userID string)
}

// TransformHandler 处理 POST /api/v1/transform
type TransformHandler struct {
	transformer Transformer
	cache       *transform.ResultCache
	limiter     ConcurrencyLimiter
	maxBody     int64
	logger      *zap.Logger
}

// TransformHandlerOption 配置 TransformHandler
type TransformHandlerOption func(*TransformHandler)

// WithResultCache 启用结果缓存
func WithResultCache(c *transform.ResultCache) TransformHandlerOption {
	return func(h *TransformHandler) { h.cache = c }
}

// WithConcurrencyLimiter 启用每用户并发限制
func WithConcurrencyLimiter(l ConcurrencyLimiter) TransformHandlerOption {
	return func(h *TransformHandler) { h.limiter = l }
}

// WithMaxBodyBytes 设置请求体上限（内联 base64 图片较大）
func WithMaxBodyBytes(n int64) TransformHandlerOption {
	return func(h *TransformHandler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewTransformHandler 创建转换处理器
func NewTransformHandler(t Transformer, logger *zap.Logger, opts ...TransformHandlerOption) *TransformHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &TransformHandler{
		transformer: t,
		maxBody:     25 << 20,
		logger:      logger.With(zap.String("handler", "transform")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleTransform 执行一次风格转换
// @Summary 风格转换
// @Description 校验风格后按优先级尝试各后端，每个后端独立重试预算
// @Tags 转换
// @Accept json
// @Produce json
// @Param request body api.TransformRequest true "转换请求"
// @Success 200 {object} Response{data=api.TransformResponse}
// @Failure 400 {object} Response "无效请求或风格"
// @Failure 429 {object} Response "并发数超限"
// @Failure 502 {object} Response "后端失败"
// @Failure 503 {object} Response "无可用后端"
// @Router /api/v1/transform [post]
func (h *TransformHandler) HandleTransform(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.TransformRequest
	if err := DecodeJSONBodyLimit(w, r, &req, h.maxBody, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}
	if req.Provider != "" && !h.transformer.IsKnownProvider(req.Provider) {
		WriteError(w, r, types.NewInvalidRequestError(fmt.Sprintf("unknown provider %q", req.Provider)), h.logger)
		return
	}

	ctx := r.Context()
	source := req.Source()

	imageKey := req.ImageKey
	if imageKey == "" {
		imageKey = transform.ImageKey(source)
	}
	// 缓存键不含自定义指令，带指令的请求不读写缓存
	useCache := h.cache != nil && req.Instructions == ""
	if useCache && !req.NoCache {
		if cached := h.cache.Get(ctx, imageKey, req.Style); cached != nil {
			WriteSuccess(w, r, api.NewTransformResponse(req.Style, cached.Result(), true))
			return
		}
	}

	release, ok := acquireSlot(w, r, h.limiter, h.logger)
	if !ok {
		return
	}
	defer release()

	result, err := h.transformer.Transform(ctx, source, req.Style, transform.Options{
		Provider:       req.Provider,
		MaxAttempts:    req.MaxAttempts,
		ReferencePaths: req.ReferencePaths,
		Instructions:   req.Instructions,
	})
	if err != nil {
		WriteAnyError(w, r, contextError(err), h.logger)
		return
	}

	if useCache {
		h.cache.Set(context.WithoutCancel(ctx), imageKey, req.Style, result)
	}
	WriteSuccess(w, r, api.NewTransformResponse(req.Style, result, false))
}

// acquireSlot 占用一个每用户并发名额；超限时写出 429 并返回 false
func acquireSlot(w http.ResponseWriter, r *http.Request, l ConcurrencyLimiter, logger *zap.Logger) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	ctx := r.Context()
	userID := clientIdentity(r)
	res := l.Acquire(ctx, userID)
	if !res.Allowed {
		WriteError(w, r, types.NewError(types.ErrConcurrencyLimit,
			fmt.Sprintf("too many concurrent transformations (max %d)", res.Current)).
			WithRetryable(true), logger)
		return nil, false
	}
	// 放行但未计数（Redis 不可用）时不能 DECR，否则会扣掉别的请求的名额
	if !res.Held {
		return func() {}, true
	}
	// 请求 ctx 可能已取消，释放不应被跳过
	return func() { l.Release(context.WithoutCancel(ctx), userID) }, true
}

// contextError 将客户端断开或超时映射为结构化错误
func contextError(err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "transformation timed out").WithCause(err)
	case errors.Is(err, context.Canceled):
		return types.NewError(types.ErrServiceUnavailable, "transformation cancelled").WithCause(err)
	}
	return err
}

// clientIdentity JWT user_id 优先，否则使用客户端 IP
func clientIdentity(r *http.Request) string {
	if userID, ok := types.UserID(r.Context()); ok {
		return userID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}
