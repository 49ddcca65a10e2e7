package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/retry"
	"github.com/footprint-studio/styleflow/types"
)

// =============================================================================
// ✏️ 编辑 Handler
// =============================================================================

// ImageEditor 按自由文本指令编辑图像
type ImageEditor interface {
	Edit(ctx context.Context, source, instructions string) (*transform.Result, error)
	IsConfigured() bool
}

// BackgroundRemover 移除图像背景
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, source string) (*transform.Result, error)
	IsConfigured() bool
}

// EditHandler 处理 POST /api/v1/tweak 与 POST /api/v1/remove-bg
type EditHandler struct {
	editor    ImageEditor
	remover   BackgroundRemover
	limiter   ConcurrencyLimiter
	policy    retry.RetryPolicy
	retryOpts []retry.Option
	maxBody   int64
	now       func() time.Time
	logger    *zap.Logger
}

// EditHandlerOption 配置 EditHandler
type EditHandlerOption func(*EditHandler)

// WithEditLimiter 与转换共用每用户并发名额
func WithEditLimiter(l ConcurrencyLimiter) EditHandlerOption {
	return func(h *EditHandler) { h.limiter = l }
}

// WithEditRetry 设置编辑调用的重试策略；ShouldRetry 为空时只重试可重试错误
func WithEditRetry(policy retry.RetryPolicy, opts ...retry.Option) EditHandlerOption {
	return func(h *EditHandler) {
		if policy.ShouldRetry == nil {
			policy.ShouldRetry = types.IsRetryable
		}
		h.policy = policy
		h.retryOpts = opts
	}
}

// WithEditMaxBodyBytes 设置请求体上限
func WithEditMaxBodyBytes(n int64) EditHandlerOption {
	return func(h *EditHandler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// NewEditHandler 创建编辑处理器；remover 可以为 nil
func NewEditHandler(editor ImageEditor, remover BackgroundRemover, logger *zap.Logger, opts ...EditHandlerOption) *EditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := *retry.DefaultRetryPolicy()
	// 只重试上游标记为可重试的失败（429、5xx、网络错误）
	policy.ShouldRetry = types.IsRetryable
	h := &EditHandler{
		editor:  editor,
		remover: remover,
		policy:  policy,
		maxBody: 25 << 20,
		now:     time.Now,
		logger:  logger.With(zap.String("handler", "edit")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleTweak 按指令编辑图像；指令要求去背景且 Remove.bg 可用时改走 Remove.bg
// @Summary 自由编辑
// @Description 对已生成的图像应用自定义文本指令
// @Tags 编辑
// @Accept json
// @Produce json
// @Param request body api.TweakRequest true "编辑请求"
// @Success 200 {object} Response{data=api.EditResponse}
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "后端失败"
// @Failure 503 {object} Response "后端未配置"
// @Router /api/v1/tweak [post]
func (h *EditHandler) HandleTweak(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.TweakRequest
	if err := DecodeJSONBodyLimit(w, r, &req, h.maxBody, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}

	if req.WantsBackgroundRemoval() && h.removerReady() {
		h.logger.Debug("tweak routed to background removal")
		h.serve(w, r, func(ctx context.Context) (*transform.Result, error) {
			return h.remover.RemoveBackground(ctx, req.Source())
		})
		return
	}

	if !h.editor.IsConfigured() {
		WriteError(w, r, types.NewNotConfiguredError("", "AI service not configured"), h.logger)
		return
	}
	h.serve(w, r, func(ctx context.Context) (*transform.Result, error) {
		return h.editor.Edit(ctx, req.Source(), req.Prompt)
	})
}

// HandleRemoveBackground 移除图像背景，输出透明 PNG
// @Summary 去背景
// @Tags 编辑
// @Accept json
// @Produce json
// @Param request body api.RemoveBackgroundRequest true "去背景请求"
// @Success 200 {object} Response{data=api.EditResponse}
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "后端失败"
// @Failure 503 {object} Response "Remove.bg 未配置"
// @Router /api/v1/remove-bg [post]
func (h *EditHandler) HandleRemoveBackground(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.RemoveBackgroundRequest
	if err := DecodeJSONBodyLimit(w, r, &req, h.maxBody, h.logger); err != nil {
		return
	}
	if err := req.Validate(); err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}
	if !h.removerReady() {
		WriteError(w, r, types.NewNotConfiguredError("", "background removal not configured"), h.logger)
		return
	}
	h.serve(w, r, func(ctx context.Context) (*transform.Result, error) {
		return h.remover.RemoveBackground(ctx, req.Source())
	})
}

func (h *EditHandler) removerReady() bool {
	return h.remover != nil && h.remover.IsConfigured()
}

// serve 占用并发名额后带重试执行 fn 并写出结果
func (h *EditHandler) serve(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context) (*transform.Result, error)) {
	release, ok := acquireSlot(w, r, h.limiter, h.logger)
	if !ok {
		return
	}
	defer release()

	ctx := r.Context()
	start := h.now()
	policy := h.policy
	retryer := retry.NewBackoffRetryer(&policy, h.logger, h.retryOpts...)
	res, err := retry.DoWithResultTyped(retryer, ctx, func() (*transform.Result, error) {
		res, err := fn(ctx)
		if err == nil && (res == nil || res.DataURI() == "") {
			err = types.NewError(types.ErrEmptyOutput, "edit returned no image")
		}
		return res, err
	})
	if err != nil {
		WriteAnyError(w, r, contextError(err), h.logger)
		return
	}

	elapsed := h.now().Sub(start)
	h.logger.Info("edit completed",
		zap.String("provider", res.Provider),
		zap.Duration("duration", elapsed))
	WriteSuccess(w, r, api.NewEditResponse(res, elapsed))
}
