package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go_agentos/internal/model"
)

// MemoryStore is an in-process Store for local runs and tests.
// Each call is atomic on its own; like the database store, nothing spans calls.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string]model.AgentVersion
	votes    map[string]model.AgentVote
	logs     []model.SystemLog
	now      func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string]model.AgentVersion),
		votes:    make(map[string]model.AgentVote),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateAgentVersion(ctx context.Context, v *model.AgentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[v.ID]; ok {
		return fmt.Errorf("agent version %s already exists", v.ID)
	}
	for _, other := range s.versions {
		if other.TenantID == v.TenantID && other.PluginID == v.PluginID && other.Version == v.Version {
			return fmt.Errorf("version %s of plugin %s: %w", v.Version, v.PluginID, ErrDuplicate)
		}
	}
	now := s.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	s.versions[v.ID] = *v
	return nil
}

func (s *MemoryStore) GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) ListAgentVersions(ctx context.Context, f VersionFilter) ([]model.AgentVersion, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.AgentVersion
	for _, v := range s.versions {
		if f.TenantID != "" && v.TenantID != f.TenantID {
			continue
		}
		if f.PluginID != "" && v.PluginID != f.PluginID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	page, pageSize := normalizePage(f.Page, f.PageSize)
	return paginate(matched, page, pageSize), int64(len(matched)), nil
}

func (s *MemoryStore) FindAgentVersion(ctx context.Context, tenantID, pluginID, version string) (*model.AgentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions {
		if v.TenantID == tenantID && v.PluginID == pluginID && v.Version == version {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListPromotable(ctx context.Context, tenantID string, minXP int64) ([]model.AgentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.AgentVersion
	for _, v := range s.versions {
		if v.Status != model.AgentVersionStatusTraining || v.XP < minXP {
			continue
		}
		if tenantID != "" && v.TenantID != tenantID {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.XP != b.XP {
			return a.XP < b.XP
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return matched, nil
}

func (s *MemoryStore) ListActiveSiblings(ctx context.Context, tenantID, pluginID, excludeID string) ([]model.AgentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.AgentVersion
	for _, v := range s.versions {
		if v.TenantID == tenantID && v.PluginID == pluginID && v.Status == model.AgentVersionStatusActive && v.ID != excludeID {
			matched = append(matched, v)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return matched, nil
}

func (s *MemoryStore) SetAgentVersionStatus(ctx context.Context, id string, status model.AgentVersionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return ErrNotFound
	}
	now := s.now()
	v.Status = status
	v.UpdatedAt = now
	switch status {
	case model.AgentVersionStatusActive:
		v.PromotedAt = &now
	case model.AgentVersionStatusDeprecated:
		v.DeprecatedAt = &now
	}
	s.versions[id] = v
	return nil
}

func (s *MemoryStore) IncrementCounter(ctx context.Context, id string, c Counter, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.versions[id]
	if !ok {
		return nil
	}
	var field *int64
	switch c {
	case CounterUpvotes:
		field = &v.Upvotes
	case CounterDownvotes:
		field = &v.Downvotes
	case CounterXP:
		field = &v.XP
	default:
		return fmt.Errorf("unknown counter %q", c)
	}
	*field += delta
	if *field < 0 {
		*field = 0
	}
	v.UpdatedAt = s.now()
	s.versions[id] = v
	return nil
}

func (s *MemoryStore) FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.votes {
		if v.UserID == userID && v.AgentVersionID == agentVersionID {
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateVote(ctx context.Context, v *model.AgentVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.votes {
		if existing.UserID == v.UserID && existing.AgentVersionID == v.AgentVersionID {
			return fmt.Errorf("duplicate vote for user %s on agent version %s", v.UserID, v.AgentVersionID)
		}
	}
	now := s.now()
	v.CreatedAt = now
	v.UpdatedAt = now
	s.votes[v.ID] = *v
	return nil
}

func (s *MemoryStore) UpdateVote(ctx context.Context, v *model.AgentVote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.votes[v.ID]
	if !ok {
		return ErrNotFound
	}
	existing.VoteType = v.VoteType
	existing.Comment = v.Comment
	existing.UpdatedAt = s.now()
	s.votes[v.ID] = existing
	return nil
}

func (s *MemoryStore) DeleteVote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.votes, id)
	return nil
}

// CountVotes returns the number of stored votes for an agent version
func (s *MemoryStore) CountVotes(agentVersionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, v := range s.votes {
		if v.AgentVersionID == agentVersionID {
			n++
		}
	}
	return n
}

func (s *MemoryStore) CreateSystemLog(ctx context.Context, l *model.SystemLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	s.logs = append(s.logs, *l)
	return nil
}

func (s *MemoryStore) ListSystemLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.SystemLog
	for i := len(s.logs) - 1; i >= 0; i-- {
		l := s.logs[i]
		if f.TenantID != "" && l.TenantID != f.TenantID {
			continue
		}
		if f.Action != "" && l.Action != f.Action {
			continue
		}
		matched = append(matched, l)
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	return paginate(matched, page, pageSize), int64(len(matched)), nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
