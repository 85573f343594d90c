package evolution

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const sweepLockKey = "evolution:sweep"

// Locker keeps replicas from sweeping at the same time
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// WorkerConfig holds the configuration for the scheduled sweep worker
type WorkerConfig struct {
	Sweeper     *Sweeper
	Locker      Locker
	Logger      *logrus.Entry
	IntervalSec int
	TenantID    string
}

// Worker runs the sweep on a fixed interval
type Worker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	sweeper  *Sweeper
	locker   Locker
	logger   *logrus.Entry
	interval time.Duration
	tenantID string
}

// NewWorker creates a scheduled sweep worker
func NewWorker(cfg *WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Worker{
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		sweeper:  cfg.Sweeper,
		locker:   cfg.Locker,
		logger:   logger.WithField("component", "evolution-worker"),
		interval: time.Duration(cfg.IntervalSec) * time.Second,
		tenantID: cfg.TenantID,
	}
}

// Start begins the periodic sweeps
func (w *Worker) Start() {
	w.logger.WithField("interval", w.interval).Info("Starting evolution worker...")
	ticker := time.NewTicker(w.interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.RunOnce()
			case <-w.ctx.Done():
				w.logger.Info("Stopping evolution worker...")
				return
			}
		}
	}()
}

// Stop stops the worker and waits for an in-flight sweep
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

// RunOnce runs a single sweep if no other replica holds the sweep lock.
// It reports whether a sweep ran.
func (w *Worker) RunOnce() bool {
	if w.locker != nil {
		release, ok, err := w.locker.Acquire(w.ctx, sweepLockKey, w.lockTTL())
		if err != nil {
			w.logger.WithError(err).Warn("Failed to acquire sweep lock")
			return false
		}
		if !ok {
			w.logger.Debug("Sweep lock held elsewhere, skipping")
			return false
		}
		defer release()
	}

	result, err := w.sweeper.RunSweep(w.ctx, SweepRequest{TenantID: w.tenantID})
	if err != nil {
		w.logger.WithError(err).Error("Scheduled sweep failed")
		return true
	}
	if len(result.Errors) > 0 {
		w.logger.WithField("errors", result.Errors).Warn("Scheduled sweep finished with row errors")
	}
	return true
}

func (w *Worker) lockTTL() time.Duration {
	// a sweep should finish well inside one interval
	if w.interval > 0 {
		return w.interval
	}
	return time.Minute
}
