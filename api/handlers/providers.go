package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/transform"
)

// ProviderLister 后端可用性查询，每次调用都重新读取凭证
type ProviderLister interface {
	CurrentProvider() string
	AvailableProviders() []transform.ProviderStatus
}

// ProviderHandler 处理 GET /api/v1/providers
type ProviderHandler struct {
	lister ProviderLister
	logger *zap.Logger
}

// NewProviderHandler 创建后端查询处理器
func NewProviderHandler(lister ProviderLister, logger *zap.Logger) *ProviderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderHandler{lister: lister, logger: logger.With(zap.String("handler", "providers"))}
}

// HandleList 列出已注册后端
// @Summary 后端列表
// @Tags 后端
// @Produce json
// @Success 200 {object} Response{data=api.ProvidersResponse}
// @Router /api/v1/providers [get]
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	providers := h.lister.AvailableProviders()
	available := false
	for _, p := range providers {
		if p.Configured {
			available = true
			break
		}
	}
	WriteSuccess(w, r, api.ProvidersResponse{
		Current:   h.lister.CurrentProvider(),
		Providers: providers,
		Available: available,
	})
}
