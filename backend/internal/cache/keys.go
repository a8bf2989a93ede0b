package cache

import (
	"fmt"
	"strconv"
)

// Key layout, all keys of one transcript share the {transcriptID:...} hash tag
// so Lua scripts stay on one cluster slot:
// - lockKey(id):          edit record lock, value = owner token
// - roomKey(id):          members in the transcript (ZSet<userId, expireAtUnix>)
// - namesKey(id):         userId -> username (Hash)
// - playheadKey(id, uid): last reported media position in ms (String)

const (
	keyLockFmt     = "transcript:lock:{transcriptID:%s}"
	keyRoomFmt     = "presence:room:{transcriptID:%s}"
	keyNamesFmt    = "presence:room:names:{transcriptID:%s}"
	keyPlayheadFmt = "presence:playhead:{transcriptID:%s}:%s"
)

func lockKey(id string) string  { return fmt.Sprintf(keyLockFmt, id) }
func roomKey(id string) string  { return fmt.Sprintf(keyRoomFmt, id) }
func namesKey(id string) string { return fmt.Sprintf(keyNamesFmt, id) }

func playheadKey(id string, userID uint64) string {
	return fmt.Sprintf(keyPlayheadFmt, id, strconv.FormatUint(userID, 10))
}
