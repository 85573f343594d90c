package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go_agentos/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const mysqlErrDupEntry = 1062

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDupEntry
}

// GormStore implements Store on a relational database through gorm
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateAgentVersion(ctx context.Context, v *model.AgentVersion) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("failed to create agent version: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create agent version: %w", err)
	}
	return nil
}

func (s *GormStore) GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error) {
	var v model.AgentVersion
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query agent version: %w", err)
	}
	return &v, nil
}

func (s *GormStore) ListAgentVersions(ctx context.Context, f VersionFilter) ([]model.AgentVersion, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.AgentVersion{})
	if f.TenantID != "" {
		query = query.Where("tenant_id = ?", f.TenantID)
	}
	if f.PluginID != "" {
		query = query.Where("plugin_id = ?", f.PluginID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count agent versions: %w", err)
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	var versions []model.AgentVersion
	if err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&versions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query agent versions: %w", err)
	}
	return versions, total, nil
}

func (s *GormStore) FindAgentVersion(ctx context.Context, tenantID, pluginID, version string) (*model.AgentVersion, error) {
	var v model.AgentVersion
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plugin_id = ? AND version = ?", tenantID, pluginID, version).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query agent version: %w", err)
	}
	return &v, nil
}

func (s *GormStore) ListPromotable(ctx context.Context, tenantID string, minXP int64) ([]model.AgentVersion, error) {
	query := s.db.WithContext(ctx).
		Where("status = ? AND xp >= ?", model.AgentVersionStatusTraining, minXP)
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}

	var versions []model.AgentVersion
	if err := query.Order("xp ASC, created_at ASC, id ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to query promotable agent versions: %w", err)
	}
	return versions, nil
}

func (s *GormStore) ListActiveSiblings(ctx context.Context, tenantID, pluginID, excludeID string) ([]model.AgentVersion, error) {
	var versions []model.AgentVersion
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND plugin_id = ? AND status = ? AND id <> ?", tenantID, pluginID, model.AgentVersionStatusActive, excludeID).
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active siblings: %w", err)
	}
	return versions, nil
}

func (s *GormStore) SetAgentVersionStatus(ctx context.Context, id string, status model.AgentVersionStatus) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": now,
	}
	switch status {
	case model.AgentVersionStatusActive:
		updates["promoted_at"] = now
	case model.AgentVersionStatusDeprecated:
		updates["deprecated_at"] = now
	}

	result := s.db.WithContext(ctx).Model(&model.AgentVersion{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update agent version status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) IncrementCounter(ctx context.Context, id string, c Counter, delta int64) error {
	if !c.Valid() {
		return fmt.Errorf("unknown counter %q", c)
	}
	col := string(c)
	expr := gorm.Expr(fmt.Sprintf("CASE WHEN %s + ? < 0 THEN 0 ELSE %s + ? END", col, col), delta, delta)

	err := s.db.WithContext(ctx).Model(&model.AgentVersion{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			col:          expr,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", col, err)
	}
	return nil
}

func (s *GormStore) FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error) {
	var v model.AgentVote
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND agent_version_id = ?", userID, agentVersionID).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query vote: %w", err)
	}
	return &v, nil
}

func (s *GormStore) CreateVote(ctx context.Context, v *model.AgentVote) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("failed to create vote: %w", err)
	}
	return nil
}

func (s *GormStore) UpdateVote(ctx context.Context, v *model.AgentVote) error {
	result := s.db.WithContext(ctx).Model(&model.AgentVote{}).
		Where("id = ?", v.ID).
		Updates(map[string]interface{}{
			"vote_type":  v.VoteType,
			"comment":    v.Comment,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update vote: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteVote(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.AgentVote{}).Error; err != nil {
		return fmt.Errorf("failed to delete vote: %w", err)
	}
	return nil
}

func (s *GormStore) CreateSystemLog(ctx context.Context, l *model.SystemLog) error {
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("failed to create system log: %w", err)
	}
	return nil
}

func (s *GormStore) ListSystemLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.SystemLog{})
	if f.TenantID != "" {
		query = query.Where("tenant_id = ?", f.TenantID)
	}
	if f.Action != "" {
		query = query.Where("action = ?", f.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count system logs: %w", err)
	}

	page, pageSize := normalizePage(f.Page, f.PageSize)
	var logs []model.SystemLog
	if err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query system logs: %w", err)
	}
	return logs, total, nil
}
