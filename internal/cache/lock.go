package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the key only if it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks stored in Redis
type Locker struct {
	rdb    *redis.Client
	prefix string
}

// NewLocker creates a Locker whose keys are namespaced under prefix
func NewLocker(rdb *redis.Client, prefix string) *Locker {
	return &Locker{rdb: rdb, prefix: prefix}
}

// Acquire tries once to take the lock for key. ok is false when another
// holder has it. The lock expires after ttl even if release is never called.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err = l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		// use a fresh context: the caller's may already be canceled
		releaseScript.Run(context.Background(), l.rdb, []string{fullKey}, token)
	}
	return release, true, nil
}
