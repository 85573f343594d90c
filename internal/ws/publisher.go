package ws

import (
	"context"

	"github.com/sirupsen/logrus"

	"go_agentos/internal/model"
)

// Events emitted to clients
const (
	EventAgentVersionsUpdate  = "agent_versions:update"
	EventRequestAgentVersions = "request:agent_versions"
	EventAgentVersionsList    = "agent_versions:list"
)

// Update types carried in EventAgentVersionsUpdate
const (
	UpdateVotes    = "votes"
	UpdatePromoted = "promoted"
)

// Broadcaster is satisfied by *socketio.Server
type Broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// Publisher pushes agent-version changes to the owning tenant's room.
// Publishing is fire-and-forget.
type Publisher struct {
	b      Broadcaster
	logger *logrus.Entry
}

// NewPublisher creates a Publisher over b
func NewPublisher(b Broadcaster, logger *logrus.Entry) *Publisher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{b: b, logger: logger}
}

// UpdatePayload is the body of EventAgentVersionsUpdate
type UpdatePayload struct {
	Type       string   `json:"type"`
	ID         string   `json:"id"`
	PluginID   string   `json:"pluginId"`
	Status     string   `json:"status"`
	XP         int64    `json:"xp"`
	Upvotes    int64    `json:"upvotes"`
	Downvotes  int64    `json:"downvotes"`
	Deprecated []string `json:"deprecated,omitempty"`
}

// VotesChanged publishes the new counters of v
func (p *Publisher) VotesChanged(_ context.Context, v *model.AgentVersion) {
	if v == nil {
		return
	}
	p.publish(v.TenantID, UpdatePayload{
		Type:      UpdateVotes,
		ID:        v.ID,
		PluginID:  v.PluginID,
		Status:    string(v.Status),
		XP:        v.XP,
		Upvotes:   v.Upvotes,
		Downvotes: v.Downvotes,
	})
}

// VersionPromoted publishes a promotion and the siblings it deprecated
func (p *Publisher) VersionPromoted(_ context.Context, v model.AgentVersion, deprecated []string) {
	p.publish(v.TenantID, UpdatePayload{
		Type:       UpdatePromoted,
		ID:         v.ID,
		PluginID:   v.PluginID,
		Status:     string(v.Status),
		XP:         v.XP,
		Upvotes:    v.Upvotes,
		Downvotes:  v.Downvotes,
		Deprecated: deprecated,
	})
}

func (p *Publisher) publish(tenantID string, payload UpdatePayload) {
	if p.b == nil {
		return
	}
	if !p.b.BroadcastToRoom(namespace, tenantRoom(tenantID), EventAgentVersionsUpdate, payload) {
		p.logger.WithFields(logrus.Fields{
			"tenant_id":        tenantID,
			"agent_version_id": payload.ID,
		}).Debug("No room to broadcast to")
	}
}
