package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the edit lock.
var ErrLockHeld = errors.New("transcript is being edited by another user")

// DefaultLockTTL bounds how long an abandoned edit lock survives.
const DefaultLockTTL = 10 * time.Minute

// EditLock is the record lock taken when a transcript enters editable mode.
type EditLock interface {
	Acquire(ctx context.Context, transcriptID, owner string) error
	Refresh(ctx context.Context, transcriptID, owner string) error
	Release(ctx context.Context, transcriptID, owner string) error
	Owner(ctx context.Context, transcriptID string) (string, error)
}

type redisEditLock struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewRedisEditLock(rdb redis.UniversalClient, ttl time.Duration) EditLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &redisEditLock{rdb: rdb, ttl: ttl}
}

// KEYS[1] = lockKey, ARGV[1] = owner, ARGV[2] = ttl in ms
// Re-acquiring an own lock extends it.
var acquireScript = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == false then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
if cur == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// KEYS[1] = lockKey, ARGV[1] = owner
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *redisEditLock) Acquire(ctx context.Context, transcriptID, owner string) error {
	ok, err := acquireScript.Run(ctx, l.rdb, []string{lockKey(transcriptID)}, owner, l.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrLockHeld
	}
	return nil
}

func (l *redisEditLock) Refresh(ctx context.Context, transcriptID, owner string) error {
	return l.Acquire(ctx, transcriptID, owner)
}

// Release drops the lock only if owner still holds it; releasing a lock that
// expired or moved on is not an error.
func (l *redisEditLock) Release(ctx context.Context, transcriptID, owner string) error {
	_, err := releaseScript.Run(ctx, l.rdb, []string{lockKey(transcriptID)}, owner).Int()
	return err
}

func (l *redisEditLock) Owner(ctx context.Context, transcriptID string) (string, error) {
	owner, err := l.rdb.Get(ctx, lockKey(transcriptID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return owner, err
}
