package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/style"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []registeredCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

type registeredCheck struct {
	HealthCheck
	// optional 失败时只降级，不影响就绪
	optional bool
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"

	checkPass = "pass"
	checkFail = "fail"
)

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger.With(zap.String("handler", "health")), timeout: 5 * time.Second}
}

// RegisterCheck adds a check whose failure makes the service unready.
func (h *HealthHandler) RegisterCheck(check HealthCheck) { h.register(check, false) }

// RegisterOptionalCheck adds a check whose failure only degrades readiness.
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) { h.register(check, true) }

func (h *HealthHandler) register(check HealthCheck, optional bool) {
	h.mu.Lock()
	h.checks = append(h.checks, registeredCheck{HealthCheck: check, optional: optional})
	h.mu.Unlock()
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 存活探针，不运行任何检查
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "进程存活"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{Status: statusHealthy, Timestamp: time.Now()})
}

// HandleHealthz is the Kubernetes liveness alias of HandleHealth.
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 并发运行全部检查
// @Summary 就绪检查
// @Description 必需检查失败返回 503；只有可选检查失败时返回 200 + degraded
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "可以接收转换请求"
// @Failure 503 {object} ServiceHealthResponse "风格目录不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]registeredCheck(nil), h.checks...)
	h.mu.RUnlock()

	results := h.runChecks(ctx, checks)

	resp := ServiceHealthResponse{
		Status:    statusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	code := http.StatusOK
	for i, c := range checks {
		res := results[i]
		resp.Checks[c.Name()] = res
		if res.Status == checkPass {
			continue
		}
		if !c.optional {
			resp.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
		} else if resp.Status == statusHealthy {
			resp.Status = statusDegraded
		}
	}
	WriteJSON(w, code, resp)
}

// runChecks 的结果与 checks 下标一一对应
func (h *HealthHandler) runChecks(ctx context.Context, checks []registeredCheck) []CheckResult {
	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			elapsed := time.Since(start)

			results[i] = CheckResult{Status: checkPass, Latency: elapsed.String(), Optional: c.optional}
			if err == nil {
				return
			}
			results[i].Status = checkFail
			results[i].Message = err.Error()
			h.logger.Warn("readiness check failed",
				zap.String("check", c.Name()),
				zap.Bool("optional", c.optional),
				zap.Duration("latency", elapsed),
				zap.Error(err),
			)
		}()
	}
	wg.Wait()
	return results
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// FuncCheck 以函数实现的健康检查
type FuncCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewFuncCheck 创建函数健康检查
func NewFuncCheck(name string, check func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, check: check}
}

func (c *FuncCheck) Name() string { return c.name }

func (c *FuncCheck) Check(ctx context.Context) error { return c.check(ctx) }

// NewRedisHealthCheck 创建 Redis 健康检查
func NewRedisHealthCheck(ping func(ctx context.Context) error) *FuncCheck {
	return NewFuncCheck("redis", ping)
}

// NewCatalogHealthCheck 风格目录非空
func NewCatalogHealthCheck(catalog *style.Catalog) *FuncCheck {
	return NewFuncCheck("catalog", func(context.Context) error {
		if catalog == nil || catalog.Len() == 0 {
			return errors.New("style catalog is empty")
		}
		return nil
	})
}

// NewProvidersHealthCheck 至少一个图像后端已配置凭证
func NewProvidersHealthCheck(providers func() []transform.ProviderStatus) *FuncCheck {
	return NewFuncCheck("providers", func(context.Context) error {
		for _, p := range providers() {
			if p.Configured {
				return nil
			}
		}
		return errors.New("no image backend configured")
	})
}
