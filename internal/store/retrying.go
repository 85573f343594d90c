package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"go_agentos/internal/model"
	"go_agentos/internal/retry"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQL server error numbers worth another attempt
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
	mysqlErrTooManyConns    = 1040
)

// IsTransient reports whether err is a store failure that may succeed on retry
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrLockWaitTimeout, mysqlErrDeadlock, mysqlErrTooManyConns:
			return true
		}
		return false
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// RetryingStore retries reads and idempotent writes of the wrapped store.
// Inserts and counter increments pass straight through: repeating them
// after an ambiguous failure could apply them twice.
type RetryingStore struct {
	Store
	cfg retry.Config
}

// WithRetry wraps s so that transient failures are retried with backoff
func WithRetry(s Store, cfg retry.Config, logger *logrus.Entry) *RetryingStore {
	cfg.Retryable = IsTransient
	if logger != nil {
		cfg.OnRetry = func(err error, wait time.Duration) {
			logger.WithError(err).WithField("wait", wait).Warn("Store call failed, retrying")
		}
	}
	return &RetryingStore{Store: s, cfg: cfg}
}

func (s *RetryingStore) GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error) {
	return retry.Do(ctx, s.cfg, func(ctx context.Context) (*model.AgentVersion, error) {
		return s.Store.GetAgentVersion(ctx, id)
	})
}

func (s *RetryingStore) ListAgentVersions(ctx context.Context, f VersionFilter) ([]model.AgentVersion, int64, error) {
	type page struct {
		items []model.AgentVersion
		total int64
	}
	p, err := retry.Do(ctx, s.cfg, func(ctx context.Context) (page, error) {
		items, total, err := s.Store.ListAgentVersions(ctx, f)
		return page{items, total}, err
	})
	return p.items, p.total, err
}

func (s *RetryingStore) FindAgentVersion(ctx context.Context, tenantID, pluginID, version string) (*model.AgentVersion, error) {
	return retry.Do(ctx, s.cfg, func(ctx context.Context) (*model.AgentVersion, error) {
		return s.Store.FindAgentVersion(ctx, tenantID, pluginID, version)
	})
}

func (s *RetryingStore) ListPromotable(ctx context.Context, tenantID string, minXP int64) ([]model.AgentVersion, error) {
	return retry.Do(ctx, s.cfg, func(ctx context.Context) ([]model.AgentVersion, error) {
		return s.Store.ListPromotable(ctx, tenantID, minXP)
	})
}

func (s *RetryingStore) ListActiveSiblings(ctx context.Context, tenantID, pluginID, excludeID string) ([]model.AgentVersion, error) {
	return retry.Do(ctx, s.cfg, func(ctx context.Context) ([]model.AgentVersion, error) {
		return s.Store.ListActiveSiblings(ctx, tenantID, pluginID, excludeID)
	})
}

func (s *RetryingStore) SetAgentVersionStatus(ctx context.Context, id string, status model.AgentVersionStatus) error {
	return retry.Run(ctx, s.cfg, func(ctx context.Context) error {
		return s.Store.SetAgentVersionStatus(ctx, id, status)
	})
}

func (s *RetryingStore) FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error) {
	return retry.Do(ctx, s.cfg, func(ctx context.Context) (*model.AgentVote, error) {
		return s.Store.FindVote(ctx, userID, agentVersionID)
	})
}

func (s *RetryingStore) UpdateVote(ctx context.Context, v *model.AgentVote) error {
	return retry.Run(ctx, s.cfg, func(ctx context.Context) error {
		return s.Store.UpdateVote(ctx, v)
	})
}

func (s *RetryingStore) DeleteVote(ctx context.Context, id string) error {
	return retry.Run(ctx, s.cfg, func(ctx context.Context) error {
		return s.Store.DeleteVote(ctx, id)
	})
}

func (s *RetryingStore) ListSystemLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error) {
	type page struct {
		items []model.SystemLog
		total int64
	}
	p, err := retry.Do(ctx, s.cfg, func(ctx context.Context) (page, error) {
		items, total, err := s.Store.ListSystemLogs(ctx, f)
		return page{items, total}, err
	})
	return p.items, p.total, err
}
