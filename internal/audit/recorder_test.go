package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go_agentos/internal/logging"
	"go_agentos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	mu      sync.Mutex
	entries []model.SystemLog
	err     error
	block   chan struct{}
}

func (w *captureWriter) CreateSystemLog(ctx context.Context, l *model.SystemLog) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.entries = append(w.entries, *l)
	return nil
}

func (w *captureWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func TestRecorder_Inline(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, logging.Discard(), 0)

	r.Record(context.Background(), Entry("t1", "", model.LogActionVoteCast, "u1", "upvoted", map[string]interface{}{"agentVersionId": "v1"}))

	require.Equal(t, 1, w.count())
	got := w.entries[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, model.LogLevelInfo, got.Level)
	assert.False(t, got.CreatedAt.IsZero())
	assert.JSONEq(t, `{"agentVersionId":"v1"}`, string(got.Details))
}

func TestRecorder_WriteFailureIsSwallowed(t *testing.T) {
	w := &captureWriter{err: errors.New("table is full")}
	r := NewRecorder(w, logging.Discard(), 0)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Entry("t1", model.LogLevelInfo, model.LogActionVoteCast, "u1", "upvoted", nil))
	})
	assert.Equal(t, 0, w.count())
}

func TestRecorder_QueuedDrainsOnStop(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, logging.Discard(), 16)
	r.Start()

	for i := 0; i < 10; i++ {
		r.Record(context.Background(), Entry("t1", model.LogLevelInfo, model.LogActionVoteCast, "u1", "upvoted", nil))
	}
	r.Stop()

	assert.Equal(t, 10, w.count())
}

func TestRecorder_DropsWhenFullOrStopped(t *testing.T) {
	w := &captureWriter{block: make(chan struct{})}
	r := NewRecorder(w, logging.Discard(), 1)
	r.Start()

	// first entry is taken by the writer and blocks, second fills the queue,
	// the rest are dropped
	for i := 0; i < 5; i++ {
		r.Record(context.Background(), Entry("t1", model.LogLevelInfo, model.LogActionVoteCast, "u1", "upvoted", nil))
	}
	close(w.block)
	r.Stop()

	assert.LessOrEqual(t, w.count(), 2)
	assert.GreaterOrEqual(t, w.count(), 1)

	r.Record(context.Background(), Entry("t1", model.LogLevelInfo, model.LogActionVoteCast, "u1", "late", nil))
	assert.LessOrEqual(t, w.count(), 2)
	r.Stop()
}
