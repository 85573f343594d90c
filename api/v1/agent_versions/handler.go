package agent_versions

import (
	"go_agentos/api/v1/middleware"
	"go_agentos/internal/agentversion"
	"go_agentos/internal/apperr"
	"go_agentos/internal/httpx"
	"go_agentos/internal/model"
	"go_agentos/internal/store"
	"go_agentos/internal/vote"

	"github.com/gin-gonic/gin"
)

// ListRequest represents list agent versions query
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	PluginID string `form:"pluginId"`
	Status   string `form:"status"`
	TenantID string `form:"tenantId"`
}

// CreateRequest represents create agent version request
type CreateRequest struct {
	PluginID string `json:"pluginId" binding:"required"`
	Version  string `json:"version" binding:"required"`
	TenantID string `json:"tenantId"`
}

// VoteRequest represents cast vote request
type VoteRequest struct {
	AgentVersionID string  `json:"agentVersionId" binding:"required"`
	VoteType       string  `json:"voteType" binding:"required,oneof=up down"`
	Comment        *string `json:"comment" binding:"omitempty,max=1000"`
}

// AwardXPRequest represents award XP request
type AwardXPRequest struct {
	ID     string `json:"id" binding:"required"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// Handler handles agent version API
type Handler struct {
	versions *agentversion.Service
	votes    *vote.Service
}

// NewHandler creates a new agent versions handler
func NewHandler(versions *agentversion.Service, votes *vote.Service) *Handler {
	return &Handler{versions: versions, votes: votes}
}

// List handles GET /api/v1/agent-versions
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
	if middleware.IsAdmin(c) && req.TenantID != "" {
		tenantID = req.TenantID
	}

	items, total, err := h.versions.List(c.Request.Context(), store.VersionFilter{
		TenantID: tenantID,
		PluginID: req.PluginID,
		Status:   model.AgentVersionStatus(req.Status),
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}
	if items == nil {
		items = []model.AgentVersion{}
	}

	httpx.OKItems(c, items, total, req.Page, req.PageSize)
}

// Get handles GET /api/v1/agent-versions/:id
func (h *Handler) Get(c *gin.Context) {
	v, ok := h.visibleVersion(c, c.Param("id"))
	if !ok {
		return
	}
	httpx.OK(c, v)
}

// Create handles POST /api/v1/agent-versions/create
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	tenantID := middleware.TenantID(c)
	if middleware.IsAdmin(c) && req.TenantID != "" {
		tenantID = req.TenantID
	}

	v, err := h.versions.Create(c.Request.Context(), agentversion.CreateRequest{
		TenantID: tenantID,
		PluginID: req.PluginID,
		Version:  req.Version,
		ActorID:  middleware.UserID(c),
	})
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}

	httpx.OKMsg(c, "agent version created", v)
}

// Vote handles POST /api/v1/agent-versions/vote. Failures carry a VoteResult
// with success=false in data.
func (h *Handler) Vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()).WithData(&vote.VoteResult{Error: err.Error()}))
		return
	}

	if _, ok := h.visibleVersion(c, req.AgentVersionID); !ok {
		return
	}

	res, err := h.votes.CastVote(c.Request.Context(), vote.CastVoteRequest{
		AgentVersionID: req.AgentVersionID,
		UserID:         middleware.UserID(c),
		VoteType:       model.VoteType(req.VoteType),
		Comment:        req.Comment,
	})
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err).WithData(&vote.VoteResult{Error: apperr.Message(err)}))
		return
	}

	httpx.OKMsg(c, res.Message, res)
}

// MyVote handles GET /api/v1/agent-versions/:id/my-vote
func (h *Handler) MyVote(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.visibleVersion(c, id); !ok {
		return
	}

	uv, err := h.votes.GetUserVote(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}
	httpx.OK(c, uv)
}

// Stats handles GET /api/v1/agent-versions/:id/stats
func (h *Handler) Stats(c *gin.Context) {
	id := c.Param("id")
	if _, ok := h.visibleVersion(c, id); !ok {
		return
	}

	stats, err := h.votes.GetVoteStats(c.Request.Context(), id)
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}
	httpx.OK(c, stats)
}

// AwardXP handles POST /api/v1/agent-versions/xp
func (h *Handler) AwardXP(c *gin.Context) {
	var req AwardXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}

	if _, ok := h.visibleVersion(c, req.ID); !ok {
		return
	}

	v, err := h.versions.AwardXP(c.Request.Context(), req.ID, req.Amount, middleware.UserID(c))
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return
	}
	httpx.OK(c, v)
}

// visibleVersion loads the version and hides other tenants' versions from
// non-admin callers. It writes the error response itself.
func (h *Handler) visibleVersion(c *gin.Context, id string) (*model.AgentVersion, bool) {
	v, err := h.versions.Get(c.Request.Context(), id)
	if err != nil {
		httpx.FailErr(c, httpx.FromError(err))
		return nil, false
	}
	if !middleware.IsAdmin(c) && v.TenantID != middleware.TenantID(c) {
		httpx.FailErr(c, httpx.ErrNotFound("agent version not found"))
		return nil, false
	}
	return v, true
}
