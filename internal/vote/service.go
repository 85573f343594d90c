// Package vote reconciles user votes on agent versions.
//
// A vote call reads the caller's existing vote, picks one of three branches
// (new vote, same-direction retraction, direction switch) and applies the
// row and counter writes one after another. The writes are not transactional:
// a failure part-way leaves earlier writes in place, and concurrent calls for
// the same user and version can interleave unless Config.Locker is set.
package vote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go_agentos/internal/apperr"
	"go_agentos/internal/audit"
	"go_agentos/internal/metrics"
	"go_agentos/internal/model"
	"go_agentos/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the part of the record store the vote service uses
type Store interface {
	GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error)
	IncrementCounter(ctx context.Context, id string, c store.Counter, delta int64) error
	FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error)
	CreateVote(ctx context.Context, v *model.AgentVote) error
	UpdateVote(ctx context.Context, v *model.AgentVote) error
	DeleteVote(ctx context.Context, id string) error
}

// Recorder receives best-effort audit entries
type Recorder interface {
	Record(ctx context.Context, entry *model.SystemLog)
}

// Locker serializes votes per user and agent version
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// StatsCache caches vote counters for GetVoteStats
type StatsCache interface {
	Get(ctx context.Context, agentVersionID string) (*model.VoteStats, bool, error)
	Set(ctx context.Context, agentVersionID string, stats model.VoteStats) error
	Invalidate(ctx context.Context, agentVersionID string) error
}

// Notifier is told about counter changes after a successful vote
type Notifier interface {
	VotesChanged(ctx context.Context, v *model.AgentVersion)
}

// Messages describing the branch a vote took
const (
	MessageUpvoted     = "upvoted"
	MessageDownvoted   = "downvoted"
	MessageVoteRemoved = "vote removed"
)

// Config wires a Service. Only Store is required.
type Config struct {
	Store    Store
	Recorder Recorder
	Locker   Locker
	LockTTL  time.Duration
	Cache    StatsCache
	Notifier Notifier
	Logger   *logrus.Entry
}

// Service implements vote casting and vote reads
type Service struct {
	store    Store
	recorder Recorder
	locker   Locker
	lockTTL  time.Duration
	cache    StatsCache
	notifier Notifier
	logger   *logrus.Entry
}

// NewService creates a vote service
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &Service{
		store:    cfg.Store,
		recorder: cfg.Recorder,
		locker:   cfg.Locker,
		lockTTL:  lockTTL,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   logger.WithField("component", "vote-service"),
	}
}

// CastVoteRequest is one vote action
type CastVoteRequest struct {
	AgentVersionID string
	UserID         string
	VoteType       model.VoteType
	// Comment is kept only if the vote persists; nil leaves an existing comment alone
	Comment *string
}

// VoteResult reports the outcome of a vote and the counters after it
type VoteResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Upvotes   int64  `json:"upvotes"`
	Downvotes int64  `json:"downvotes"`
	Error     string `json:"error,omitempty"`
}

// UserVote is the caller's current vote on an agent version
type UserVote struct {
	HasVoted bool             `json:"hasVoted"`
	Vote     *model.AgentVote `json:"vote,omitempty"`
}

// ChangedVoteMessage is the message for a direction switch
func ChangedVoteMessage(to model.VoteType) string {
	return fmt.Sprintf("changed vote to %s", to)
}

func (r *CastVoteRequest) normalize() error {
	r.AgentVersionID = strings.TrimSpace(r.AgentVersionID)
	r.UserID = strings.TrimSpace(r.UserID)
	if r.AgentVersionID == "" {
		return apperr.Validation("castVote", "agentVersionId is required")
	}
	if r.UserID == "" {
		return apperr.Validation("castVote", "userId is required")
	}
	if !r.VoteType.Valid() {
		return apperr.Validation("castVote", "voteType must be \"up\" or \"down\"")
	}
	return nil
}

// CastVote reconciles req against the caller's existing vote and returns the
// updated counters. Validation failures happen before any store access.
func (s *Service) CastVote(ctx context.Context, req CastVoteRequest) (*VoteResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, lockKey(req.UserID, req.AgentVersionID), s.lockTTL)
		if err != nil {
			return nil, apperr.Store("castVote", err)
		}
		if !ok {
			return nil, apperr.Conflict("castVote", "another vote from this user on this agent version is in progress")
		}
		defer release()
	}

	version, err := s.store.GetAgentVersion(ctx, req.AgentVersionID)
	if err != nil {
		return nil, s.fail(storeErr("castVote", err, "agent version not found"))
	}

	message, err := s.reconcile(ctx, req)
	if err != nil {
		// writes before the failure stay, so cached counters may be stale
		s.invalidateStats(ctx, req.AgentVersionID)
		return nil, s.fail(err)
	}

	updated, err := s.store.GetAgentVersion(ctx, req.AgentVersionID)
	if err != nil {
		s.invalidateStats(ctx, req.AgentVersionID)
		return nil, s.fail(storeErr("castVote", err, "agent version not found"))
	}

	s.afterVote(ctx, req, version.TenantID, message, updated)

	return &VoteResult{
		Success:   true,
		Message:   message,
		Upvotes:   updated.Upvotes,
		Downvotes: updated.Downvotes,
	}, nil
}

// reconcile applies the branch for req and returns its message
func (s *Service) reconcile(ctx context.Context, req CastVoteRequest) (string, error) {
	existing, err := s.store.FindVote(ctx, req.UserID, req.AgentVersionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", apperr.Store("castVote", err)
	}

	switch {
	case existing == nil:
		vote := &model.AgentVote{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			AgentVersionID: req.AgentVersionID,
			VoteType:       req.VoteType,
			Comment:        req.Comment,
		}
		if err := s.store.CreateVote(ctx, vote); err != nil {
			return "", apperr.Store("castVote", err)
		}
		if err := s.store.IncrementCounter(ctx, req.AgentVersionID, store.CounterFor(req.VoteType), 1); err != nil {
			return "", apperr.Store("castVote", err)
		}
		if req.VoteType == model.VoteTypeUp {
			return MessageUpvoted, nil
		}
		return MessageDownvoted, nil

	case existing.VoteType == req.VoteType:
		if err := s.store.DeleteVote(ctx, existing.ID); err != nil {
			return "", apperr.Store("castVote", err)
		}
		if err := s.store.IncrementCounter(ctx, req.AgentVersionID, store.CounterFor(existing.VoteType), -1); err != nil {
			return "", apperr.Store("castVote", err)
		}
		return MessageVoteRemoved, nil

	default:
		previous := existing.VoteType
		existing.VoteType = req.VoteType
		if req.Comment != nil {
			existing.Comment = req.Comment
		}
		if err := s.store.UpdateVote(ctx, existing); err != nil {
			return "", apperr.Store("castVote", err)
		}
		if err := s.store.IncrementCounter(ctx, req.AgentVersionID, store.CounterFor(previous), -1); err != nil {
			return "", apperr.Store("castVote", err)
		}
		if err := s.store.IncrementCounter(ctx, req.AgentVersionID, store.CounterFor(req.VoteType), 1); err != nil {
			return "", apperr.Store("castVote", err)
		}
		return ChangedVoteMessage(req.VoteType), nil
	}
}

func (s *Service) invalidateStats(ctx context.Context, agentVersionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, agentVersionID); err != nil {
		s.logger.WithError(err).WithField("agent_version_id", agentVersionID).Warn("Failed to invalidate vote stats cache")
	}
}

// afterVote runs the side effects of a successful vote; none of them can fail the call
func (s *Service) afterVote(ctx context.Context, req CastVoteRequest, tenantID, message string, updated *model.AgentVersion) {
	metrics.VotesTotal.WithLabelValues(metricAction(message)).Inc()

	s.invalidateStats(ctx, req.AgentVersionID)

	if s.recorder != nil {
		details := map[string]interface{}{
			"agentVersionId": req.AgentVersionID,
			"pluginId":       updated.PluginID,
			"voteType":       req.VoteType,
			"action":         message,
			"upvotes":        updated.Upvotes,
			"downvotes":      updated.Downvotes,
		}
		entry := audit.Entry(tenantID, model.LogLevelInfo, model.LogActionVoteCast, req.UserID,
			fmt.Sprintf("User %s %s on agent version %s", req.UserID, message, req.AgentVersionID), details)
		s.recorder.Record(ctx, entry)
	}

	if s.notifier != nil {
		s.notifier.VotesChanged(ctx, updated)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":          req.UserID,
		"agent_version_id": req.AgentVersionID,
		"result":           message,
	}).Debug("Vote reconciled")
}

func (s *Service) fail(err error) error {
	metrics.VotesTotal.WithLabelValues("failed").Inc()
	if apperr.Is(err, apperr.KindStore) {
		s.logger.WithError(err).Error("Vote failed on store error")
	}
	return err
}

// GetUserVote returns the caller's vote on an agent version. No vote is not an error.
func (s *Service) GetUserVote(ctx context.Context, userID, agentVersionID string) (*UserVote, error) {
	userID = strings.TrimSpace(userID)
	agentVersionID = strings.TrimSpace(agentVersionID)
	if userID == "" {
		return nil, apperr.Validation("getUserVote", "userId is required")
	}
	if agentVersionID == "" {
		return nil, apperr.Validation("getUserVote", "agentVersionId is required")
	}

	vote, err := s.store.FindVote(ctx, userID, agentVersionID)
	if errors.Is(err, store.ErrNotFound) {
		return &UserVote{HasVoted: false}, nil
	}
	if err != nil {
		return nil, apperr.Store("getUserVote", err)
	}
	return &UserVote{HasVoted: true, Vote: vote}, nil
}

// GetVoteStats returns the counters of an agent version
func (s *Service) GetVoteStats(ctx context.Context, agentVersionID string) (*model.VoteStats, error) {
	agentVersionID = strings.TrimSpace(agentVersionID)
	if agentVersionID == "" {
		return nil, apperr.Validation("getVoteStats", "agentVersionId is required")
	}

	if s.cache != nil {
		stats, ok, err := s.cache.Get(ctx, agentVersionID)
		if err != nil {
			s.logger.WithError(err).Warn("Vote stats cache read failed")
		} else if ok {
			return stats, nil
		}
	}

	version, err := s.store.GetAgentVersion(ctx, agentVersionID)
	if err != nil {
		return nil, storeErr("getVoteStats", err, "agent version not found")
	}
	stats := version.Stats()

	if s.cache != nil {
		if err := s.cache.Set(ctx, agentVersionID, stats); err != nil {
			s.logger.WithError(err).Warn("Vote stats cache write failed")
		}
	}
	return &stats, nil
}

func lockKey(userID, agentVersionID string) string {
	return fmt.Sprintf("vote:%s:%s", agentVersionID, userID)
}

func metricAction(message string) string {
	switch message {
	case MessageUpvoted:
		return "upvoted"
	case MessageDownvoted:
		return "downvoted"
	case MessageVoteRemoved:
		return "removed"
	default:
		return "changed"
	}
}

// storeErr maps store.ErrNotFound to a NotFound error and everything else to a Store error
func storeErr(op string, err error, notFoundMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(op, notFoundMsg)
	}
	return apperr.Store(op, err)
}
