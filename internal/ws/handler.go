package ws

import (
	"context"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/sirupsen/logrus"

	"go_agentos/internal/auth"
	"go_agentos/internal/model"
	"go_agentos/internal/store"
)

const listTimeout = 5 * time.Second

// Lister serves the initial list a client requests after connecting
type Lister interface {
	ListAgentVersions(ctx context.Context, f store.VersionFilter) ([]model.AgentVersion, int64, error)
}

// ListRequest is the optional body of EventRequestAgentVersions
type ListRequest struct {
	PluginID string `json:"pluginId"`
	Status   string `json:"status"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// handleRequestAgentVersions answers with one page of the caller's tenant
func (s *Server) handleRequestAgentVersions(c socketio.Conn, data interface{}) {
	claims, ok := c.Context().(*auth.Claims)
	if !ok || claims == nil {
		c.Emit(EventAgentVersionsList, map[string]interface{}{"error": "unauthenticated"})
		return
	}
	if s.lister == nil {
		c.Emit(EventAgentVersionsList, map[string]interface{}{"error": "listing unavailable"})
		return
	}

	req := parseListRequest(data)
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	items, total, err := s.lister.ListAgentVersions(ctx, store.VersionFilter{
		TenantID: claims.TenantID,
		PluginID: req.PluginID,
		Status:   model.AgentVersionStatus(req.Status),
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		s.logger.WithError(err).WithField("conn", c.ID()).Warn("Failed to list agent versions")
		c.Emit(EventAgentVersionsList, map[string]interface{}{"error": "failed to list agent versions"})
		return
	}

	s.logger.WithFields(logrus.Fields{
		"conn":  c.ID(),
		"count": len(items),
	}).Debug("Sent agent version list")

	c.Emit(EventAgentVersionsList, map[string]interface{}{
		"items": items,
		"total": total,
	})
}

// parseListRequest reads the loosely-typed event body the client sent
func parseListRequest(data interface{}) ListRequest {
	var req ListRequest
	m, ok := data.(map[string]interface{})
	if !ok {
		return req
	}
	if v, ok := m["pluginId"].(string); ok {
		req.PluginID = v
	}
	if v, ok := m["status"].(string); ok {
		req.Status = v
	}
	if v, ok := m["page"].(float64); ok {
		req.Page = int(v)
	}
	if v, ok := m["pageSize"].(float64); ok {
		req.PageSize = int(v)
	}
	return req
}
