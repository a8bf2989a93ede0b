package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrNoPlayhead is returned when a user has not reported a media position.
var ErrNoPlayhead = errors.New("no playhead reported")

// PresenceCache tracks who has a transcript open and where their media
// player is.
type PresenceCache interface {
	AddMember(ctx context.Context, transcriptID string, userID uint64, username string, ttl time.Duration) error
	RemoveMember(ctx context.Context, transcriptID string, userID uint64) error
	AliveMembers(ctx context.Context, transcriptID string) ([]PresenceMember, error)
	SetPlayhead(ctx context.Context, transcriptID string, userID uint64, ms int64, ttl time.Duration) error
	Playhead(ctx context.Context, transcriptID string, userID uint64) (int64, error)
}

type redisPresence struct {
	rdb redis.UniversalClient
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
}

func NewRedisPresence(rdb redis.UniversalClient) PresenceCache {
	return &redisPresence{rdb: rdb}
}

// AddMember also refreshes the member's TTL.
func (p *redisPresence) AddMember(ctx context.Context, transcriptID string, userID uint64, username string, ttl time.Duration) error {
	tx := p.rdb.TxPipeline()
	// score is the logical expiry in unix seconds
	expireAt := time.Now().Add(ttl).Unix()
	tx.ZAdd(ctx, roomKey(transcriptID), redis.Z{Score: float64(expireAt), Member: userID})
	tx.HSet(ctx, namesKey(transcriptID), userID, username)
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) RemoveMember(ctx context.Context, transcriptID string, userID uint64) error {
	tx := p.rdb.TxPipeline()
	tx.ZRem(ctx, roomKey(transcriptID), userID)
	tx.HDel(ctx, namesKey(transcriptID), strconv.FormatUint(userID, 10))
	tx.Del(ctx, playheadKey(transcriptID, userID))
	_, err := tx.Exec(ctx)
	return err
}

func (p *redisPresence) SetPlayhead(ctx context.Context, transcriptID string, userID uint64, ms int64, ttl time.Duration) error {
	return p.rdb.Set(ctx, playheadKey(transcriptID, userID), ms, ttl).Err()
}

func (p *redisPresence) Playhead(ctx context.Context, transcriptID string, userID uint64) (int64, error) {
	ms, err := p.rdb.Get(ctx, playheadKey(transcriptID, userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNoPlayhead
	}
	return ms, err
}

// KEYS[1] = roomKey, KEYS[2] = namesKey, ARGV[1] = now (unix seconds)
var sweepScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if #expired > 0 then
	redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	redis.call("HDEL", KEYS[2], unpack(expired))
end
return #expired
`)

func (p *redisPresence) AliveMembers(ctx context.Context, transcriptID string) ([]PresenceMember, error) {
	now := time.Now().Unix()
	_, err := sweepScript.Run(ctx, p.rdb, []string{roomKey(transcriptID), namesKey(transcriptID)}, now).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	aliveIDs, err := p.rdb.ZRangeByScore(ctx, roomKey(transcriptID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10),
		Max: "+inf",
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if len(aliveIDs) == 0 {
		return nil, nil
	}

	names, err := p.rdb.HMGet(ctx, namesKey(transcriptID), aliveIDs...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	members := make([]PresenceMember, 0, len(aliveIDs))
	for i, raw := range aliveIDs {
		uid, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		name := ""
		if i < len(names) && names[i] != nil {
			name, _ = names[i].(string)
		}
		members = append(members, PresenceMember{UserID: uid, Username: name})
	}
	return members, nil
}
