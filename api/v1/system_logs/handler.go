package system_logs

import (
	"context"

	"go_agentos/api/v1/middleware"
	"go_agentos/internal/apperr"
	"go_agentos/internal/httpx"
	"go_agentos/internal/model"
	"go_agentos/internal/store"

	"github.com/gin-gonic/gin"
)

// Lister reads audit entries
type Lister interface {
	ListSystemLogs(ctx context.Context, f store.LogFilter) ([]model.SystemLog, int64, error)
}

// ListRequest represents list system logs query
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Action   string `form:"action"`
	TenantID string `form:"tenantId"`
}

// Handler handles system log API
type Handler struct {
	logs Lister
}

// NewHandler creates a new system logs handler
func NewHandler(logs Lister) *Handler {
	return &Handler{logs: logs}
}

// List handles GET /api/v1/system-logs. Non-admins see their tenant only.
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > store.MaxPageSize {
		req.PageSize = store.DefaultPageSize
	}

	tenantID := middleware.TenantID(c)
	if middleware.IsAdmin(c) {
		tenantID = req.TenantID
	}

	items, total, err := h.logs.ListSystemLogs(c.Request.Context(), store.LogFilter{
		TenantID: tenantID,
		Action:   req.Action,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		httpx.FailErr(c, httpx.FromError(apperr.Store("listSystemLogs", err)))
		return
	}
	if items == nil {
		items = []model.SystemLog{}
	}

	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}
