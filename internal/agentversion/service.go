// Package agentversion manages the lifecycle records of plugin versions:
// registration in training, lookups and XP awards.
package agentversion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go_agentos/internal/apperr"
	"go_agentos/internal/audit"
	"go_agentos/internal/model"
	"go_agentos/internal/store"
)

// Store is the part of the record store this service uses
type Store interface {
	CreateAgentVersion(ctx context.Context, v *model.AgentVersion) error
	GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error)
	ListAgentVersions(ctx context.Context, f store.VersionFilter) ([]model.AgentVersion, int64, error)
	FindAgentVersion(ctx context.Context, tenantID, pluginID, version string) (*model.AgentVersion, error)
	IncrementCounter(ctx context.Context, id string, c store.Counter, delta int64) error
}

// Recorder receives best-effort audit entries
type Recorder interface {
	Record(ctx context.Context, entry *model.SystemLog)
}

// Service manages agent versions
type Service struct {
	store    Store
	recorder Recorder
	logger   *logrus.Entry
}

// NewService creates an agent version service. recorder may be nil.
func NewService(st Store, recorder Recorder, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		store:    st,
		recorder: recorder,
		logger:   logger.WithField("component", "agent-version-service"),
	}
}

// CreateRequest registers a new version of a plugin
type CreateRequest struct {
	TenantID string
	PluginID string
	Version  string
	ActorID  string
}

// Create registers a version in training with zero counters. A tenant may
// hold each plugin version only once.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.AgentVersion, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.PluginID = strings.TrimSpace(req.PluginID)
	req.Version = strings.TrimSpace(req.Version)
	switch {
	case req.TenantID == "":
		return nil, apperr.Validation("createAgentVersion", "tenantId is required")
	case req.PluginID == "":
		return nil, apperr.Validation("createAgentVersion", "pluginId is required")
	case req.Version == "":
		return nil, apperr.Validation("createAgentVersion", "version is required")
	}

	duplicate := apperr.Conflict("createAgentVersion",
		fmt.Sprintf("version %s of plugin %s already exists", req.Version, req.PluginID))
	_, err := s.store.FindAgentVersion(ctx, req.TenantID, req.PluginID, req.Version)
	switch {
	case err == nil:
		return nil, duplicate
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Store("createAgentVersion", err)
	}

	v := &model.AgentVersion{
		ID:       uuid.NewString(),
		TenantID: req.TenantID,
		PluginID: req.PluginID,
		Version:  req.Version,
		Status:   model.AgentVersionStatusTraining,
	}
	if err := s.store.CreateAgentVersion(ctx, v); err != nil {
		// lost a race with a concurrent create of the same version
		if errors.Is(err, store.ErrDuplicate) {
			return nil, duplicate
		}
		return nil, apperr.Store("createAgentVersion", err)
	}

	s.record(ctx, audit.Entry(v.TenantID, model.LogLevelInfo, model.LogActionVersionCreated, req.ActorID,
		fmt.Sprintf("Agent version %s of plugin %s registered", v.Version, v.PluginID),
		map[string]interface{}{"agentVersionId": v.ID, "pluginId": v.PluginID, "version": v.Version}))

	s.logger.WithFields(logrus.Fields{
		"agent_version_id": v.ID,
		"plugin_id":        v.PluginID,
		"version":          v.Version,
	}).Info("Agent version created")
	return v, nil
}

// Get returns one agent version
func (s *Service) Get(ctx context.Context, id string) (*model.AgentVersion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("getAgentVersion", "id is required")
	}
	v, err := s.store.GetAgentVersion(ctx, id)
	if err != nil {
		return nil, storeErr("getAgentVersion", err)
	}
	return v, nil
}

// List returns one page of agent versions and the total match count
func (s *Service) List(ctx context.Context, f store.VersionFilter) ([]model.AgentVersion, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("listAgentVersions", "status must be training, active or deprecated")
	}
	items, total, err := s.store.ListAgentVersions(ctx, f)
	if err != nil {
		return nil, 0, apperr.Store("listAgentVersions", err)
	}
	return items, total, nil
}

// AwardXP adds amount to the version's XP. XP only grows, so amount must
// be positive.
func (s *Service) AwardXP(ctx context.Context, id string, amount int64, actorID string) (*model.AgentVersion, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("awardXP", "id is required")
	}
	if amount <= 0 {
		return nil, apperr.Validation("awardXP", "amount must be positive")
	}

	if _, err := s.store.GetAgentVersion(ctx, id); err != nil {
		return nil, storeErr("awardXP", err)
	}
	if err := s.store.IncrementCounter(ctx, id, store.CounterXP, amount); err != nil {
		return nil, apperr.Store("awardXP", err)
	}
	v, err := s.store.GetAgentVersion(ctx, id)
	if err != nil {
		return nil, storeErr("awardXP", err)
	}

	s.record(ctx, audit.Entry(v.TenantID, model.LogLevelInfo, model.LogActionXPAwarded, actorID,
		fmt.Sprintf("Awarded %d XP to agent version %s", amount, v.ID),
		map[string]interface{}{"agentVersionId": v.ID, "amount": amount, "xp": v.XP}))
	return v, nil
}

func (s *Service) record(ctx context.Context, entry *model.SystemLog) {
	if s.recorder != nil {
		s.recorder.Record(ctx, entry)
	}
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, "agent version not found")
	}
	return apperr.Store(op, err)
}
