package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go_agentos/internal/model"

	"github.com/go-redis/redis/v8"
)

// StatsCache keeps recently read vote counters of agent versions.
// Entries are invalidated on every vote; the database stays authoritative.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache creates a StatsCache with the given entry lifetime
func NewStatsCache(rdb *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{rdb: rdb, ttl: ttl}
}

func statsKey(agentVersionID string) string {
	return fmt.Sprintf("agent_version:stats:%s", agentVersionID)
}

// Get returns cached stats, or ok=false on a miss
func (c *StatsCache) Get(ctx context.Context, agentVersionID string) (*model.VoteStats, bool, error) {
	raw, err := c.rdb.Get(ctx, statsKey(agentVersionID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read stats cache: %w", err)
	}

	var stats model.VoteStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("failed to decode stats cache: %w", err)
	}
	return &stats, true, nil
}

// Set stores stats for the configured lifetime
func (c *StatsCache) Set(ctx context.Context, agentVersionID string, stats model.VoteStats) error {
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(agentVersionID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write stats cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached stats for an agent version
func (c *StatsCache) Invalidate(ctx context.Context, agentVersionID string) error {
	if err := c.rdb.Del(ctx, statsKey(agentVersionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate stats cache: %w", err)
	}
	return nil
}
