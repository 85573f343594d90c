package store

import (
	"context"
	"testing"

	"go_agentos/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVersion(id, tenant, plugin string, status model.AgentVersionStatus, xp int64) *model.AgentVersion {
	return &model.AgentVersion{
		ID:       id,
		TenantID: tenant,
		PluginID: plugin,
		Version:  "v-" + id,
		Status:   status,
		XP:       xp,
	}
}

func strPtr(s string) *string { return &s }

// runContract exercises the behavior every Store implementation must share
func runContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("get missing version", func(t *testing.T) {
		s := open(t)
		_, err := s.GetAgentVersion(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create and get version", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("v1", "t1", "p1", model.AgentVersionStatusTraining, 0)))

		got, err := s.GetAgentVersion(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, "p1", got.PluginID)
		assert.Equal(t, model.AgentVersionStatusTraining, got.Status)
		assert.Zero(t, got.Upvotes)
		assert.Zero(t, got.Downvotes)
	})

	t.Run("increment floors at zero", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("v1", "t1", "p1", model.AgentVersionStatusTraining, 0)))

		require.NoError(t, s.IncrementCounter(ctx, "v1", CounterUpvotes, 1))
		require.NoError(t, s.IncrementCounter(ctx, "v1", CounterUpvotes, -1))
		require.NoError(t, s.IncrementCounter(ctx, "v1", CounterUpvotes, -1))
		require.NoError(t, s.IncrementCounter(ctx, "v1", CounterDownvotes, 2))
		require.NoError(t, s.IncrementCounter(ctx, "v1", CounterXP, 150))

		got, err := s.GetAgentVersion(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Upvotes)
		assert.Equal(t, int64(2), got.Downvotes)
		assert.Equal(t, int64(150), got.XP)
	})

	t.Run("promotable respects threshold boundary and tenant", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("below", "t1", "p1", model.AgentVersionStatusTraining, 999)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("equal", "t1", "p1", model.AgentVersionStatusTraining, 1000)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("above", "t1", "p2", model.AgentVersionStatusTraining, 1500)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("active", "t1", "p3", model.AgentVersionStatusActive, 5000)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("other", "t2", "p4", model.AgentVersionStatusTraining, 2000)))

		all, err := s.ListPromotable(ctx, "", 1000)
		require.NoError(t, err)
		assert.Equal(t, []string{"equal", "above", "other"}, ids(all))

		t1, err := s.ListPromotable(ctx, "t1", 1000)
		require.NoError(t, err)
		assert.Equal(t, []string{"equal", "above"}, ids(t1))
	})

	t.Run("active siblings exclude self, other plugins and other tenants", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("a", "t1", "p1", model.AgentVersionStatusActive, 0)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("b", "t1", "p1", model.AgentVersionStatusActive, 0)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("c", "t1", "p1", model.AgentVersionStatusDeprecated, 0)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("d", "t1", "p2", model.AgentVersionStatusActive, 0)))
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("e", "t2", "p1", model.AgentVersionStatusActive, 0)))

		siblings, err := s.ListActiveSiblings(ctx, "t1", "p1", "b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(siblings))
	})

	t.Run("natural key is unique per tenant and plugin", func(t *testing.T) {
		s := open(t)
		v := newVersion("a", "t1", "p1", model.AgentVersionStatusTraining, 0)
		require.NoError(t, s.CreateAgentVersion(ctx, v))

		got, err := s.FindAgentVersion(ctx, "t1", "p1", v.Version)
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID)
		_, err = s.FindAgentVersion(ctx, "t2", "p1", v.Version)
		assert.ErrorIs(t, err, ErrNotFound)

		clash := newVersion("b", "t1", "p1", model.AgentVersionStatusTraining, 0)
		clash.Version = v.Version
		assert.ErrorIs(t, s.CreateAgentVersion(ctx, clash), ErrDuplicate)

		other := newVersion("c", "t2", "p1", model.AgentVersionStatusTraining, 0)
		other.Version = v.Version
		assert.NoError(t, s.CreateAgentVersion(ctx, other))
	})

	t.Run("set status stamps transition time", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("v1", "t1", "p1", model.AgentVersionStatusTraining, 0)))

		require.NoError(t, s.SetAgentVersionStatus(ctx, "v1", model.AgentVersionStatusActive))
		got, err := s.GetAgentVersion(ctx, "v1")
		require.NoError(t, err)
		assert.Equal(t, model.AgentVersionStatusActive, got.Status)
		assert.NotNil(t, got.PromotedAt)

		require.NoError(t, s.SetAgentVersionStatus(ctx, "v1", model.AgentVersionStatusDeprecated))
		got, err = s.GetAgentVersion(ctx, "v1")
		require.NoError(t, err)
		assert.NotNil(t, got.DeprecatedAt)

		assert.ErrorIs(t, s.SetAgentVersionStatus(ctx, "missing", model.AgentVersionStatusActive), ErrNotFound)
	})

	t.Run("vote lifecycle", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("v1", "t1", "p1", model.AgentVersionStatusTraining, 0)))

		_, err := s.FindVote(ctx, "u1", "v1")
		assert.ErrorIs(t, err, ErrNotFound)

		vote := &model.AgentVote{ID: "vote-1", UserID: "u1", AgentVersionID: "v1", VoteType: model.VoteTypeUp}
		require.NoError(t, s.CreateVote(ctx, vote))

		dup := &model.AgentVote{ID: "vote-2", UserID: "u1", AgentVersionID: "v1", VoteType: model.VoteTypeDown}
		assert.Error(t, s.CreateVote(ctx, dup))

		vote.VoteType = model.VoteTypeDown
		vote.Comment = strPtr("changed my mind")
		require.NoError(t, s.UpdateVote(ctx, vote))

		got, err := s.FindVote(ctx, "u1", "v1")
		require.NoError(t, err)
		assert.Equal(t, model.VoteTypeDown, got.VoteType)
		require.NotNil(t, got.Comment)
		assert.Equal(t, "changed my mind", *got.Comment)

		require.NoError(t, s.DeleteVote(ctx, "vote-1"))
		_, err = s.FindVote(ctx, "u1", "v1")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.ErrorIs(t, s.UpdateVote(ctx, vote), ErrNotFound)
	})

	t.Run("list versions filters and pages", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.CreateAgentVersion(ctx, newVersion(id, "t1", "p1", model.AgentVersionStatusTraining, 0)))
		}
		require.NoError(t, s.CreateAgentVersion(ctx, newVersion("d", "t2", "p1", model.AgentVersionStatusActive, 0)))

		items, total, err := s.ListAgentVersions(ctx, VersionFilter{TenantID: "t1", Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, items, 2)

		items, total, err = s.ListAgentVersions(ctx, VersionFilter{Status: model.AgentVersionStatusActive})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, []string{"d"}, ids(items))
	})

	t.Run("system logs filter by tenant and action", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.CreateSystemLog(ctx, &model.SystemLog{ID: "l1", TenantID: "t1", Level: model.LogLevelInfo, Action: model.LogActionVoteCast, Message: "upvoted"}))
		require.NoError(t, s.CreateSystemLog(ctx, &model.SystemLog{ID: "l2", TenantID: "t1", Level: model.LogLevelInfo, Action: model.LogActionAgentPromoted, Message: "promoted"}))
		require.NoError(t, s.CreateSystemLog(ctx, &model.SystemLog{ID: "l3", TenantID: "t2", Level: model.LogLevelInfo, Action: model.LogActionVoteCast, Message: "downvoted"}))

		logs, total, err := s.ListSystemLogs(ctx, LogFilter{TenantID: "t1", Action: model.LogActionVoteCast})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, logs, 1)
		assert.Equal(t, "l1", logs[0].ID)
	})
}

func ids(versions []model.AgentVersion) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.ID)
	}
	return out
}
