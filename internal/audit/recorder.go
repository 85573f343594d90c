// Package audit records best-effort audit entries.
//
// Recording never fails the caller: write errors and queue overflow are
// logged and counted, then dropped.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go_agentos/internal/metrics"
	"go_agentos/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Writer persists audit entries
type Writer interface {
	CreateSystemLog(ctx context.Context, l *model.SystemLog) error
}

const writeTimeout = 5 * time.Second

// Recorder writes audit entries, inline or through a bounded queue
type Recorder struct {
	w      Writer
	logger *logrus.Entry
	queue  chan *model.SystemLog

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder creates a Recorder. With queueSize > 0 entries are queued and
// written by a background goroutine started with Start; otherwise Record
// writes inline.
func NewRecorder(w Writer, logger *logrus.Entry, queueSize int) *Recorder {
	r := &Recorder{
		w:      w,
		logger: logger.WithField("component", "audit"),
	}
	if queueSize > 0 {
		r.queue = make(chan *model.SystemLog, queueSize)
	}
	return r
}

// Start launches the queue writer. It is a no-op for inline recorders.
func (r *Recorder) Start() {
	if r.queue == nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for entry := range r.queue {
			r.write(entry)
		}
	}()
}

// Stop drains queued entries and stops the writer
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Record stores entry on a best-effort basis
func (r *Recorder) Record(ctx context.Context, entry *model.SystemLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = model.LogLevelInfo
	}

	if r.queue == nil {
		r.write(entry)
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(entry, "recorder stopped")
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.drop(entry, "queue full")
	}
}

func (r *Recorder) write(entry *model.SystemLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.w.CreateSystemLog(ctx, entry); err != nil {
		metrics.AuditDroppedTotal.Inc()
		r.logger.WithError(err).WithFields(logrus.Fields{
			"action":  entry.Action,
			"message": entry.Message,
		}).Warn("Failed to write audit entry")
	}
}

func (r *Recorder) drop(entry *model.SystemLog, reason string) {
	metrics.AuditDroppedTotal.Inc()
	r.logger.WithFields(logrus.Fields{
		"action":  entry.Action,
		"message": entry.Message,
		"reason":  reason,
	}).Warn("Audit entry dropped")
}

// Entry builds an audit entry; details are stored as a JSON document
func Entry(tenantID, level, action, actorID, message string, details map[string]interface{}) *model.SystemLog {
	entry := &model.SystemLog{
		TenantID: tenantID,
		Level:    level,
		Action:   action,
		ActorID:  actorID,
		Message:  message,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}
	return entry
}
