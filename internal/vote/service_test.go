package vote

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go_agentos/internal/apperr"
	"go_agentos/internal/logging"
	"go_agentos/internal/model"
	"go_agentos/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// faultyStore counts calls and fails IncrementCounter from the nth call on
type faultyStore struct {
	*store.MemoryStore
	calls         int
	failIncrAfter int
	incrCalls     int
}

func (f *faultyStore) GetAgentVersion(ctx context.Context, id string) (*model.AgentVersion, error) {
	f.calls++
	return f.MemoryStore.GetAgentVersion(ctx, id)
}

func (f *faultyStore) FindVote(ctx context.Context, userID, agentVersionID string) (*model.AgentVote, error) {
	f.calls++
	return f.MemoryStore.FindVote(ctx, userID, agentVersionID)
}

func (f *faultyStore) IncrementCounter(ctx context.Context, id string, c store.Counter, delta int64) error {
	f.calls++
	f.incrCalls++
	if f.failIncrAfter > 0 && f.incrCalls >= f.failIncrAfter {
		return errors.New("connection reset by peer")
	}
	return f.MemoryStore.IncrementCounter(ctx, id, c, delta)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []*model.SystemLog
}

func (r *captureRecorder) Record(ctx context.Context, entry *model.SystemLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type memCache struct {
	stats       map[string]model.VoteStats
	invalidated []string
}

func (c *memCache) Get(ctx context.Context, id string) (*model.VoteStats, bool, error) {
	s, ok := c.stats[id]
	if !ok {
		return nil, false, nil
	}
	return &s, true, nil
}

func (c *memCache) Set(ctx context.Context, id string, s model.VoteStats) error {
	c.stats[id] = s
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, id string) error {
	delete(c.stats, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type captureNotifier struct {
	versions []model.AgentVersion
}

func (n *captureNotifier) VotesChanged(ctx context.Context, v *model.AgentVersion) {
	n.versions = append(n.versions, *v)
}

func setup(t *testing.T) (*Service, *faultyStore, *captureRecorder) {
	t.Helper()
	st := &faultyStore{MemoryStore: store.NewMemoryStore()}
	require.NoError(t, st.CreateAgentVersion(context.Background(), &model.AgentVersion{
		ID:       "v1",
		TenantID: "t1",
		PluginID: "p1",
		Version:  "1.0.0",
		Status:   model.AgentVersionStatusTraining,
	}))
	rec := &captureRecorder{}
	svc := NewService(Config{Store: st, Recorder: rec, Logger: logging.Discard()})
	return svc, st, rec
}

func cast(t *testing.T, svc *Service, user string, vt model.VoteType) *VoteResult {
	t.Helper()
	res, err := svc.CastVote(context.Background(), CastVoteRequest{AgentVersionID: "v1", UserID: user, VoteType: vt})
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

func TestCastVote_ToggleAndSwitchScenario(t *testing.T) {
	svc, st, _ := setup(t)

	res := cast(t, svc, "U", model.VoteTypeUp)
	assert.Equal(t, MessageUpvoted, res.Message)
	assert.Equal(t, int64(1), res.Upvotes)
	assert.Equal(t, int64(0), res.Downvotes)

	res = cast(t, svc, "U", model.VoteTypeUp)
	assert.Equal(t, MessageVoteRemoved, res.Message)
	assert.Equal(t, int64(0), res.Upvotes)
	assert.Equal(t, int64(0), res.Downvotes)
	assert.Equal(t, 0, st.CountVotes("v1"))

	res = cast(t, svc, "U", model.VoteTypeDown)
	assert.Equal(t, MessageDownvoted, res.Message)
	assert.Equal(t, int64(0), res.Upvotes)
	assert.Equal(t, int64(1), res.Downvotes)

	vote, err := st.FindVote(context.Background(), "U", "v1")
	require.NoError(t, err)
	assert.Equal(t, model.VoteTypeDown, vote.VoteType)
	assert.Equal(t, 1, st.CountVotes("v1"))
}

func TestCastVote_SwitchMovesExactlyOneCount(t *testing.T) {
	svc, st, _ := setup(t)
	cast(t, svc, "A", model.VoteTypeUp)
	cast(t, svc, "B", model.VoteTypeUp)

	res := cast(t, svc, "A", model.VoteTypeDown)
	assert.Equal(t, "changed vote to down", res.Message)
	assert.Equal(t, int64(1), res.Upvotes)
	assert.Equal(t, int64(1), res.Downvotes)
	assert.Equal(t, 2, st.CountVotes("v1"))

	res = cast(t, svc, "A", model.VoteTypeUp)
	assert.Equal(t, "changed vote to up", res.Message)
	assert.Equal(t, int64(2), res.Upvotes)
	assert.Equal(t, int64(0), res.Downvotes)
}

func TestCastVote_ToggleIsNetZero(t *testing.T) {
	for _, vt := range []model.VoteType{model.VoteTypeUp, model.VoteTypeDown} {
		t.Run(string(vt), func(t *testing.T) {
			svc, st, _ := setup(t)
			cast(t, svc, "other", model.VoteTypeDown)
			before, err := svc.GetVoteStats(context.Background(), "v1")
			require.NoError(t, err)

			cast(t, svc, "U", vt)
			res := cast(t, svc, "U", vt)

			assert.Equal(t, before.Upvotes, res.Upvotes)
			assert.Equal(t, before.Downvotes, res.Downvotes)
			_, err = st.FindVote(context.Background(), "U", "v1")
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

func TestCastVote_CountersNeverNegative(t *testing.T) {
	svc, st, _ := setup(t)
	rng := rand.New(rand.NewSource(7))
	users := []string{"a", "b", "c", "d"}
	types := []model.VoteType{model.VoteTypeUp, model.VoteTypeDown}

	for i := 0; i < 200; i++ {
		res := cast(t, svc, users[rng.Intn(len(users))], types[rng.Intn(len(types))])
		require.GreaterOrEqual(t, res.Upvotes, int64(0))
		require.GreaterOrEqual(t, res.Downvotes, int64(0))
	}

	// sequential calls keep counters equal to the vote rows
	var up, down int64
	for _, u := range users {
		v, err := st.FindVote(context.Background(), u, "v1")
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		require.NoError(t, err)
		if v.VoteType == model.VoteTypeUp {
			up++
		} else {
			down++
		}
	}
	stats, err := svc.GetVoteStats(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, up, stats.Upvotes)
	assert.Equal(t, down, stats.Downvotes)
}

func TestCastVote_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  CastVoteRequest
	}{
		{"missing agent version", CastVoteRequest{UserID: "U", VoteType: model.VoteTypeUp}},
		{"blank agent version", CastVoteRequest{AgentVersionID: "  ", UserID: "U", VoteType: model.VoteTypeUp}},
		{"missing user", CastVoteRequest{AgentVersionID: "v1", VoteType: model.VoteTypeUp}},
		{"bad vote type", CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, rec := setup(t)
			_, err := svc.CastVote(context.Background(), tt.req)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Zero(t, st.calls, "validation must not touch the store")
			assert.Empty(t, rec.entries)
		})
	}
}

func TestCastVote_UnknownVersion(t *testing.T) {
	svc, st, _ := setup(t)
	_, err := svc.CastVote(context.Background(), CastVoteRequest{AgentVersionID: "missing", UserID: "U", VoteType: model.VoteTypeUp})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, 0, st.CountVotes("missing"))
}

func TestCastVote_StoreFailureIsNotRolledBack(t *testing.T) {
	svc, st, rec := setup(t)
	st.failIncrAfter = 1

	_, err := svc.CastVote(context.Background(), CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeUp})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStore))
	assert.Equal(t, "connection reset by peer", apperr.Message(err))

	// the vote row written before the failure stays
	assert.Equal(t, 1, st.CountVotes("v1"))
	v, err := st.GetAgentVersion(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Upvotes)
	assert.Empty(t, rec.entries, "no audit entry for a failed vote")
}

func TestCastVote_SwitchFailsBetweenCounterWrites(t *testing.T) {
	svc, st, _ := setup(t)
	cast(t, svc, "U", model.VoteTypeUp)
	st.failIncrAfter = 3 // 1 used by the first vote, 2 = decrement, 3 = increment

	_, err := svc.CastVote(context.Background(), CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeDown})
	require.Error(t, err)

	v, err := st.GetAgentVersion(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v.Upvotes)
	assert.Equal(t, int64(0), v.Downvotes)
	vote, err := st.FindVote(context.Background(), "U", "v1")
	require.NoError(t, err)
	assert.Equal(t, model.VoteTypeDown, vote.VoteType)
}

func TestCastVote_FailedSwitchInvalidatesStatsCache(t *testing.T) {
	svc, st, _ := setup(t)
	c := &memCache{stats: map[string]model.VoteStats{}}
	svc.cache = c
	ctx := context.Background()

	cast(t, svc, "U", model.VoteTypeUp)
	stats, err := svc.GetVoteStats(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Upvotes)
	c.invalidated = nil

	st.failIncrAfter = 3 // the decrement lands, the increment fails
	_, err = svc.CastVote(ctx, CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeDown})
	require.Error(t, err)
	assert.Equal(t, []string{"v1"}, c.invalidated)

	stats, err = svc.GetVoteStats(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Upvotes)
	assert.Equal(t, int64(0), stats.Downvotes)
}

func TestCastVote_Comments(t *testing.T) {
	svc, st, _ := setup(t)
	ctx := context.Background()
	first := "solid release"

	_, err := svc.CastVote(ctx, CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeUp, Comment: &first})
	require.NoError(t, err)
	vote, err := st.FindVote(ctx, "U", "v1")
	require.NoError(t, err)
	require.NotNil(t, vote.Comment)
	assert.Equal(t, first, *vote.Comment)

	// switching without a comment keeps the old one
	_, err = svc.CastVote(ctx, CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeDown})
	require.NoError(t, err)
	vote, err = st.FindVote(ctx, "U", "v1")
	require.NoError(t, err)
	require.NotNil(t, vote.Comment)
	assert.Equal(t, first, *vote.Comment)

	second := "regressed on long inputs"
	_, err = svc.CastVote(ctx, CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeUp, Comment: &second})
	require.NoError(t, err)
	vote, err = st.FindVote(ctx, "U", "v1")
	require.NoError(t, err)
	assert.Equal(t, second, *vote.Comment)

	// a comment on a retraction goes nowhere
	ignored := "bye"
	res, err := svc.CastVote(ctx, CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeUp, Comment: &ignored})
	require.NoError(t, err)
	assert.Equal(t, MessageVoteRemoved, res.Message)
	assert.Equal(t, 0, st.CountVotes("v1"))
}

func TestCastVote_AuditEntry(t *testing.T) {
	svc, _, rec := setup(t)
	cast(t, svc, "U", model.VoteTypeUp)

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, model.LogActionVoteCast, entry.Action)
	assert.Equal(t, "t1", entry.TenantID)
	assert.Equal(t, "U", entry.ActorID)
	assert.Contains(t, entry.Message, "upvoted")
}

func TestCastVote_LockHeld(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewService(Config{Store: st, Locker: busyLocker{}, Logger: logging.Discard()})

	_, err := svc.CastVote(context.Background(), CastVoteRequest{AgentVersionID: "v1", UserID: "U", VoteType: model.VoteTypeUp})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestCastVote_InvalidatesCacheAndNotifies(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.CreateAgentVersion(context.Background(), &model.AgentVersion{ID: "v1", TenantID: "t1", PluginID: "p1", Status: model.AgentVersionStatusTraining}))
	c := &memCache{stats: map[string]model.VoteStats{}}
	n := &captureNotifier{}
	svc := NewService(Config{Store: st, Cache: c, Notifier: n, Logger: logging.Discard()})

	stats, err := svc.GetVoteStats(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Upvotes)
	assert.Contains(t, c.stats, "v1")

	cast(t, svc, "U", model.VoteTypeUp)
	assert.Equal(t, []string{"v1"}, c.invalidated)
	require.Len(t, n.versions, 1)
	assert.Equal(t, int64(1), n.versions[0].Upvotes)

	stats, err = svc.GetVoteStats(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Upvotes)
}

func TestGetUserVote(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	got, err := svc.GetUserVote(ctx, "U", "v1")
	require.NoError(t, err)
	assert.False(t, got.HasVoted)
	assert.Nil(t, got.Vote)

	cast(t, svc, "U", model.VoteTypeDown)
	got, err = svc.GetUserVote(ctx, "U", "v1")
	require.NoError(t, err)
	assert.True(t, got.HasVoted)
	assert.Equal(t, model.VoteTypeDown, got.Vote.VoteType)

	_, err = svc.GetUserVote(ctx, "", "v1")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestGetVoteStats_NotFound(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.GetVoteStats(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
