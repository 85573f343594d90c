// Package store is the record store behind votes, agent versions and audit logs.
//
// The store offers keyed reads and writes, filtered listings and clamped
// counter increments. It does not group calls into transactions: callers
// sequence their reads and writes and live with interleavings.
package store

import (
	"context"
	"errors"

	"go_agentos/internal/model"
)

// ErrNotFound is returned when a keyed lookup matches no row
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a create collides with a unique key
var ErrDuplicate = errors.New("duplicate record")

// Counter names a numeric column of an agent version
type Counter string

const (
	CounterUpvotes   Counter = "upvotes"
	CounterDownvotes Counter = "downvotes"
	CounterXP        Counter = "xp"
)

// Valid reports whether c names a known counter
func (c Counter) Valid() bool {
	switch c {
	case CounterUpvotes, CounterDownvotes, CounterXP:
		return true
	}
	return false
}

// CounterFor returns the vote counter for a vote direction
func CounterFor(t model.VoteType) Counter {
	if t == model.VoteTypeDown {
		return CounterDownvotes
	}
	return CounterUpvotes
}

// VersionFilter narrows ListAgentVersions. Zero fields do not filter.
type VersionFilter struct {
	TenantID string
	PluginID string
	Status   model.AgentVersionStatus
	Page     int
	PageSize int
}

// LogFilter narrows ListSystemLogs. Zero fields do not filter.
type LogFilter struct {
	TenantID string
	Action   string
	Page     int
	PageSize int
}

// Store is the full record store contract
type Store interface {
	CreateAgentVersion(ctx context.Context, v *model.AgentVersion) error
	GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error)
	ListAgentVersions(ctx context.Context, f VersionFilter) ([]model.AgentVersion, int64, error)
	// FindAgentVersion looks a version up by its natural key
	FindAgentVersion(ctx context.Context, tenantID, pluginID, version string) (*model.AgentVersion, error)
	// ListPromotable returns training versions with xp >= minXP, lowest xp first.
	// An empty tenantID matches every tenant.
	ListPromotable(ctx context.Context, tenantID string, minXP int64) ([]model.AgentVersion, error)
	// ListActiveSiblings returns the tenant's active versions of pluginID other than excludeID
	ListActiveSiblings(ctx context.Context, tenantID, pluginID, excludeID string) ([]model.AgentVersion, error)
	SetAgentVersionStatus(ctx context.Context, id string, status model.AgentVersionStatus) error
	// IncrementCounter adds delta to a counter, flooring the result at zero
	IncrementCounter(ctx context.Context, id string, c Counter, delta int64) error

	FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error)
	CreateVote(ctx context.Context, v *model.AgentVote) error
	UpdateVote(ctx context.Context, v *model.AgentVote) error
	DeleteVote(ctx context.Context, id string) error

	CreateSystemLog(ctx context.Context, l *model.SystemLog) error
	ListSystemLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error)
}

// Paging bounds for list calls
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}
	return page, pageSize
}
