package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/transform/style"
	"github.com/footprint-studio/styleflow/types"
)

// maxStylePageSize 单页最多返回的风格数
const maxStylePageSize = 100

// StyleHandler 风格目录查询
type StyleHandler struct {
	catalog *style.Catalog
	logger  *zap.Logger
}

// NewStyleHandler 创建风格目录处理器
func NewStyleHandler(catalog *style.Catalog, logger *zap.Logger) *StyleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StyleHandler{
		catalog: catalog,
		logger:  logger.With(zap.String("handler", "styles")),
	}
}

// HandleList 列出风格
// @Summary 风格列表
// @Tags 风格
// @Produce json
// @Param search query string false "按 ID 或名称过滤"
// @Param limit query int false "返回数量（1-100）"
// @Param offset query int false "偏移量"
// @Success 200 {object} Response{data=api.StyleListResponse}
// @Failure 400 {object} Response "无效查询参数"
// @Router /api/v1/styles [get]
func (h *StyleHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := queryInt(q.Get("limit"), maxStylePageSize, 1, maxStylePageSize)
	if err != nil {
		WriteError(w, r, types.NewInvalidRequestError("limit must be between 1 and 100"), h.logger)
		return
	}
	offset, err := queryInt(q.Get("offset"), 0, 0, -1)
	if err != nil {
		WriteError(w, r, types.NewInvalidRequestError("offset must be a non-negative integer"), h.logger)
		return
	}
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	matched := make([]api.StyleSummary, 0, h.catalog.Len())
	for _, def := range h.catalog.All() {
		if search != "" && !matchesStyle(def, search) {
			continue
		}
		matched = append(matched, api.NewStyleSummary(def))
	}

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	WriteSuccess(w, r, api.StyleListResponse{
		Styles: matched[offset:end],
		Total:  total,
	})
}

// HandleGet 返回单个风格的完整定义
// @Summary 风格详情
// @Tags 风格
// @Produce json
// @Param id path string true "风格 ID"
// @Success 200 {object} Response{data=style.Definition}
// @Failure 404 {object} Response "风格不存在"
// @Router /api/v1/styles/{id} [get]
func (h *StyleHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.Get(r.PathValue("id"))
	if err != nil {
		WriteAnyError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, def)
}

func matchesStyle(def style.Definition, search string) bool {
	return strings.Contains(strings.ToLower(def.ID), search) ||
		strings.Contains(strings.ToLower(def.NameEn), search) ||
		strings.Contains(def.NameHe, search)
}

// queryInt 解析查询参数；max < 0 表示无上限
func queryInt(raw string, def, min, max int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < min || (max >= 0 && n > max) {
		return 0, strconv.ErrRange
	}
	return n, nil
}
