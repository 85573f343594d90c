package model

import "time"

// VoteType is the direction of a vote
type VoteType string

const (
	VoteTypeUp   VoteType = "up"
	VoteTypeDown VoteType = "down"
)

// Valid reports whether t is up or down
func (t VoteType) Valid() bool {
	return t == VoteTypeUp || t == VoteTypeDown
}

// AgentVote is one user's vote on one agent version
type AgentVote struct {
	ID             string    `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID         string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uk_agent_votes_user_version" json:"userId"`
	AgentVersionID string    `gorm:"column:agent_version_id;type:varchar(36);not null;uniqueIndex:uk_agent_votes_user_version;index" json:"agentVersionId"`
	VoteType       VoteType  `gorm:"column:vote_type;type:varchar(8);not null" json:"voteType"`
	Comment        *string   `gorm:"column:comment;type:text" json:"comment,omitempty"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName specifies the table name for AgentVote
func (AgentVote) TableName() string {
	return "agent_votes"
}
