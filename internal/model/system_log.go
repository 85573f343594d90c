package model

import (
	"time"

	"gorm.io/datatypes"
)

// System log levels
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// System log actions
const (
	LogActionVoteCast       = "agent_vote_cast"
	LogActionAgentPromoted  = "agent_promoted"
	LogActionEvolutionSweep = "evolution_sweep"
	LogActionVersionCreated = "agent_version_created"
	LogActionXPAwarded      = "agent_xp_awarded"
)

// SystemLog is an append-only audit record
type SystemLog struct {
	ID        string         `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	TenantID  string         `gorm:"column:tenant_id;type:varchar(64);index" json:"tenantId"`
	Level     string         `gorm:"column:level;type:varchar(16);not null" json:"level"`
	Action    string         `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	ActorID   string         `gorm:"column:actor_id;type:varchar(64)" json:"actorId,omitempty"`
	Message   string         `gorm:"column:message;type:varchar(512);not null" json:"message"`
	Details   datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime;index" json:"createdAt"`
}

// TableName specifies the table name for SystemLog
func (SystemLog) TableName() string {
	return "system_logs"
}
