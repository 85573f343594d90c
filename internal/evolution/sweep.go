// Package evolution promotes training agent versions that have earned enough XP.
package evolution

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go_agentos/internal/apperr"
	"go_agentos/internal/audit"
	"go_agentos/internal/metrics"
	"go_agentos/internal/model"

	"github.com/sirupsen/logrus"
)

// DefaultXPThreshold is used when neither the sweeper nor the request sets one
const DefaultXPThreshold int64 = 1000

// Store is the part of the record store the sweep uses
type Store interface {
	ListPromotable(ctx context.Context, tenantID string, minXP int64) ([]model.AgentVersion, error)
	ListActiveSiblings(ctx context.Context, tenantID, pluginID, excludeID string) ([]model.AgentVersion, error)
	SetAgentVersionStatus(ctx context.Context, id string, status model.AgentVersionStatus) error
}

// Recorder receives best-effort audit entries
type Recorder interface {
	Record(ctx context.Context, entry *model.SystemLog)
}

// Notifier is told about each promotion
type Notifier interface {
	VersionPromoted(ctx context.Context, v model.AgentVersion, deprecated []string)
}

// Config wires a Sweeper. Only Store is required.
type Config struct {
	Store     Store
	Recorder  Recorder
	Notifier  Notifier
	Threshold int64
	Logger    *logrus.Entry
}

// Sweeper runs promotion sweeps
type Sweeper struct {
	store     Store
	recorder  Recorder
	notifier  Notifier
	threshold int64
	logger    *logrus.Entry
	now       func() time.Time
}

// NewSweeper creates a Sweeper. A non-positive threshold falls back to DefaultXPThreshold.
func NewSweeper(cfg Config) *Sweeper {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultXPThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sweeper{
		store:     cfg.Store,
		recorder:  cfg.Recorder,
		notifier:  cfg.Notifier,
		threshold: threshold,
		logger:    logger.WithField("component", "evolution-sweep"),
		now:       time.Now,
	}
}

// Threshold returns the default threshold of s
func (s *Sweeper) Threshold() int64 {
	return s.threshold
}

// SweepRequest selects what a sweep considers
type SweepRequest struct {
	// TenantID restricts the sweep to one tenant; empty means all tenants
	TenantID string
	// Threshold overrides the sweeper's threshold for this run
	Threshold *int64
}

// RowResult is the outcome for one eligible agent version
type RowResult struct {
	ID         string   `json:"id"`
	PluginID   string   `json:"pluginId"`
	Version    string   `json:"version"`
	XP         int64    `json:"xp"`
	Promoted   bool     `json:"promoted"`
	Deprecated []string `json:"deprecated,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// SweepResult summarizes a sweep. Success stays true when individual rows
// failed; their messages are in Errors.
type SweepResult struct {
	Success              bool        `json:"success"`
	PromotedCount        int         `json:"promotedCount"`
	TotalEligible        int         `json:"totalEligible"`
	Threshold            int64       `json:"threshold"`
	Results              []RowResult `json:"results"`
	Errors               []string    `json:"errors,omitempty"`
	ExecutionTimeSeconds float64     `json:"executionTimeSeconds"`
}

// ParseThreshold parses a caller-supplied threshold. An empty string means
// "use the default" and yields nil.
func ParseThreshold(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if v < 0 {
			return nil, apperr.Validation("runSweep", "customThreshold must not be negative")
		}
		return &v, nil
	}

	// exponent and fraction forms such as "2e3" or "1500.0"
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, apperr.Validation("runSweep", "customThreshold must be a number")
	}
	if f < 0 {
		return nil, apperr.Validation("runSweep", "customThreshold must not be negative")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit
	if f != math.Trunc(f) || f >= math.MaxInt64 {
		return nil, apperr.Validation("runSweep", "customThreshold must be a whole number")
	}
	v := int64(f)
	return &v, nil
}

// RunSweep promotes every training version whose XP reaches the threshold
// and deprecates the active siblings it replaces. Rows are processed one at
// a time; a failing row is recorded and the sweep moves on. Only a failure
// of the eligibility query fails the whole call.
func (s *Sweeper) RunSweep(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	threshold := s.threshold
	if req.Threshold != nil {
		if *req.Threshold < 0 {
			return nil, apperr.Validation("runSweep", "customThreshold must not be negative")
		}
		threshold = *req.Threshold
	}

	start := s.now()
	metrics.SweepRunsTotal.Inc()
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id": req.TenantID,
		"threshold": threshold,
	})

	eligible, err := s.store.ListPromotable(ctx, req.TenantID, threshold)
	if err != nil {
		log.WithError(err).Error("Failed to query eligible agent versions")
		return nil, apperr.Store("runSweep", err)
	}

	result := &SweepResult{
		Success:       true,
		TotalEligible: len(eligible),
		Threshold:     threshold,
		Results:       make([]RowResult, 0, len(eligible)),
	}

	for _, v := range eligible {
		if err := ctx.Err(); err != nil {
			row := rowFor(v)
			row.Error = err.Error()
			result.Results = append(result.Results, row)
			result.Errors = append(result.Errors, fmt.Sprintf("agent version %s: %v", v.ID, err))
			continue
		}

		row := s.promote(ctx, v, threshold)
		if row.Promoted {
			result.PromotedCount++
		} else {
			metrics.SweepRowErrorsTotal.Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("agent version %s: %s", v.ID, row.Error))
		}
		result.Results = append(result.Results, row)
	}

	elapsed := s.now().Sub(start)
	result.ExecutionTimeSeconds = elapsed.Seconds()
	metrics.SweepDuration.Observe(elapsed.Seconds())

	s.recordSummary(ctx, req.TenantID, threshold, result)

	log.WithFields(logrus.Fields{
		"eligible": result.TotalEligible,
		"promoted": result.PromotedCount,
		"errors":   len(result.Errors),
	}).Info("Evolution sweep completed")

	return result, nil
}

// promote runs the promote-then-deprecate sequence for one version
func (s *Sweeper) promote(ctx context.Context, v model.AgentVersion, threshold int64) RowResult {
	row := rowFor(v)
	log := s.logger.WithFields(logrus.Fields{
		"agent_version_id": v.ID,
		"plugin_id":        v.PluginID,
	})

	if err := s.store.SetAgentVersionStatus(ctx, v.ID, model.AgentVersionStatusActive); err != nil {
		row.Error = fmt.Sprintf("promote: %v", err)
		log.WithError(err).Warn("Failed to promote agent version")
		return row
	}

	siblings, err := s.store.ListActiveSiblings(ctx, v.TenantID, v.PluginID, v.ID)
	if err != nil {
		row.Error = fmt.Sprintf("list active siblings: %v", err)
		log.WithError(err).Warn("Failed to query active siblings")
		return row
	}

	for _, sib := range siblings {
		if err := s.store.SetAgentVersionStatus(ctx, sib.ID, model.AgentVersionStatusDeprecated); err != nil {
			row.Error = fmt.Sprintf("deprecate %s: %v", sib.ID, err)
			log.WithError(err).WithField("sibling_id", sib.ID).Warn("Failed to deprecate sibling")
			return row
		}
		row.Deprecated = append(row.Deprecated, sib.ID)
		metrics.SweepDeprecationsTotal.Inc()
	}

	row.Promoted = true
	metrics.SweepPromotionsTotal.Inc()

	if s.recorder != nil {
		details := map[string]interface{}{
			"agentVersionId": v.ID,
			"pluginId":       v.PluginID,
			"version":        v.Version,
			"xp":             v.XP,
			"threshold":      threshold,
			"deprecated":     row.Deprecated,
		}
		s.recorder.Record(ctx, audit.Entry(v.TenantID, model.LogLevelInfo, model.LogActionAgentPromoted, "",
			fmt.Sprintf("Agent version %s of plugin %s promoted to active at %d XP", v.Version, v.PluginID, v.XP), details))
	}

	if s.notifier != nil {
		promoted := v
		promoted.Status = model.AgentVersionStatusActive
		s.notifier.VersionPromoted(ctx, promoted, row.Deprecated)
	}

	log.WithFields(logrus.Fields{
		"xp":         v.XP,
		"deprecated": row.Deprecated,
	}).Info("Agent version promoted")
	return row
}

func (s *Sweeper) recordSummary(ctx context.Context, tenantID string, threshold int64, result *SweepResult) {
	if s.recorder == nil {
		return
	}
	level := model.LogLevelInfo
	if len(result.Errors) > 0 {
		level = model.LogLevelWarn
	}
	details := map[string]interface{}{
		"totalEligible": result.TotalEligible,
		"promotedCount": result.PromotedCount,
		"threshold":     threshold,
		"hasErrors":     len(result.Errors) > 0,
	}
	s.recorder.Record(ctx, audit.Entry(tenantID, level, model.LogActionEvolutionSweep, "",
		fmt.Sprintf("Evolution sweep promoted %d of %d eligible agent versions", result.PromotedCount, result.TotalEligible), details))
}

func rowFor(v model.AgentVersion) RowResult {
	return RowResult{
		ID:       v.ID,
		PluginID: v.PluginID,
		Version:  v.Version,
		XP:       v.XP,
	}
}
