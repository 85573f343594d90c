package model

import "time"

// AgentVersionStatus represents the lifecycle state of an agent version
type AgentVersionStatus string

const (
	AgentVersionStatusTraining   AgentVersionStatus = "training"
	AgentVersionStatusActive     AgentVersionStatus = "active"
	AgentVersionStatusDeprecated AgentVersionStatus = "deprecated"
)

// Valid reports whether s is a known status
func (s AgentVersionStatus) Valid() bool {
	switch s {
	case AgentVersionStatusTraining, AgentVersionStatusActive, AgentVersionStatusDeprecated:
		return true
	}
	return false
}

// AgentVersion is a versioned, trainable implementation of a plugin.
// At most one version per plugin is active; the evolution sweep keeps it that way.
type AgentVersion struct {
	ID           string             `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	TenantID     string             `gorm:"column:tenant_id;type:varchar(64);not null;index:idx_agent_versions_tenant_status;uniqueIndex:uk_agent_versions_tenant_plugin_version" json:"tenantId"`
	PluginID     string             `gorm:"column:plugin_id;type:varchar(64);not null;index:idx_agent_versions_plugin_status;uniqueIndex:uk_agent_versions_tenant_plugin_version" json:"pluginId"`
	Version      string             `gorm:"column:version;type:varchar(64);not null;uniqueIndex:uk_agent_versions_tenant_plugin_version" json:"version"`
	Status       AgentVersionStatus `gorm:"column:status;type:varchar(16);not null;index:idx_agent_versions_tenant_status;index:idx_agent_versions_plugin_status" json:"status"`
	XP           int64              `gorm:"column:xp;not null;default:0" json:"xp"`
	Upvotes      int64              `gorm:"column:upvotes;not null;default:0" json:"upvotes"`
	Downvotes    int64              `gorm:"column:downvotes;not null;default:0" json:"downvotes"`
	PromotedAt   *time.Time         `gorm:"column:promoted_at" json:"promotedAt,omitempty"`
	DeprecatedAt *time.Time         `gorm:"column:deprecated_at" json:"deprecatedAt,omitempty"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for AgentVersion
func (AgentVersion) TableName() string {
	return "agent_versions"
}

// VoteStats is the aggregate vote view of an agent version
type VoteStats struct {
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

// Stats returns the vote counters of v
func (v *AgentVersion) Stats() VoteStats {
	return VoteStats{Upvotes: v.Upvotes, Downvotes: v.Downvotes}
}
