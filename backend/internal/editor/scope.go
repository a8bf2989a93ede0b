package editor

import (
	"fmt"

	"transcriptServer/backend/internal/timecode"
)

// ScopeKind tells what a transcript is attached to.
type ScopeKind uint8

const (
	ScopeEpisode ScopeKind = iota + 1
	ScopeClip
)

// Scope is the media range a transcript covers: a whole episode or a clip cut
// from one. End stands in for an open-ended "next marker".
type Scope struct {
	Kind       ScopeKind
	TapeLength int64
	ClipStart  int64
	ClipStop   int64
}

func EpisodeScope(tapeLength int64) Scope {
	return Scope{Kind: ScopeEpisode, TapeLength: tapeLength}
}

func ClipScope(clipStart, clipStop int64) Scope {
	return Scope{Kind: ScopeClip, ClipStart: clipStart, ClipStop: clipStop}
}

// End is the tape length of an episode or the stop point of a clip. Without a
// scope there is no known end and the largest marker time is used.
func (s Scope) End() int64 {
	switch s.Kind {
	case ScopeClip:
		return s.ClipStop
	case ScopeEpisode:
		return s.TapeLength
	default:
		return timecode.MaxTime
	}
}

// Start is zero for an episode and the clip start for a clip.
func (s Scope) Start() int64 {
	if s.Kind == ScopeClip {
		return s.ClipStart
	}
	return 0
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeClip:
		return fmt.Sprintf("clip[%d,%d]", s.ClipStart, s.ClipStop)
	case ScopeEpisode:
		return fmt.Sprintf("episode[%d]", s.TapeLength)
	default:
		return "unscoped"
	}
}
