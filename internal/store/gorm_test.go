package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"go_agentos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var sqliteSeq atomic.Int64

// openSQLiteStore returns a GormStore on a private in-memory SQLite database
func openSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:store_test_%d?mode=memory&cache=shared", sqliteSeq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&model.AgentVersion{}, &model.AgentVote{}, &model.SystemLog{}))
	return NewGormStore(gdb)
}

func TestGormStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return openSQLiteStore(t) })
}

func TestGormStore_IncrementUnknownCounter(t *testing.T) {
	s := openSQLiteStore(t)
	err := s.IncrementCounter(context.Background(), "v1", Counter("stars"), 1)
	assert.Error(t, err)
}

func TestGormStore_DetailsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLiteStore(t)

	entry := &model.SystemLog{
		ID:       "l1",
		TenantID: "t1",
		Level:    model.LogLevelInfo,
		Action:   model.LogActionAgentPromoted,
		Message:  "promoted",
		Details:  []byte(`{"xp":1200,"threshold":1000}`),
	}
	require.NoError(t, s.CreateSystemLog(ctx, entry))

	logs, _, err := s.ListSystemLogs(ctx, LogFilter{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"xp":1200,"threshold":1000}`, string(logs[0].Details))
}
