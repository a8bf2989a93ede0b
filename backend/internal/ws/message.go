package ws

import (
	"transcriptServer/backend/internal/document"
	"transcriptServer/backend/internal/ot/delta"
)

// ClientMessage is everything a client may send. Fields that a message type
// does not use are ignored.
type ClientMessage struct {
	Type         string      `json:"type"`
	TranscriptID string      `json:"transcriptId"`
	Offset       int         `json:"offset"`
	Start        int         `json:"start"`
	End          int         `json:"end"`
	Text         string      `json:"text,omitempty"`
	Direction    int         `json:"direction,omitempty"`
	Confirmed    bool        `json:"confirmed,omitempty"`
	Ops          delta.Delta `json:"ops,omitempty"`
	// TimeMs nil on insertTimecode stamps the current playhead.
	TimeMs  *int64 `json:"timeMs,omitempty"`
	StartMs int64  `json:"startMs,omitempty"`
	EndMs   int64  `json:"endMs,omitempty"`
	DeltaMs int64  `json:"deltaMs,omitempty"`
}

type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

// Prompt is sent with confirm_required; the client re-sends the request with
// confirmed set once the user agrees.
type Prompt struct {
	Message string  `json:"message"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Times   []int64 `json:"times"`
	Request string  `json:"request"`
}

type ServerMessage struct {
	Type         string           `json:"type"`
	TranscriptID string           `json:"transcriptId,omitempty"`
	UserID       uint64           `json:"userId,omitempty"`
	Revision     uint64           `json:"revision,omitempty"`
	State        string           `json:"state,omitempty"`
	Event        string           `json:"event,omitempty"`
	Content      string           `json:"content,omitempty"`
	Times        []int64          `json:"times,omitempty"`
	Runs         []document.Run   `json:"runs,omitempty"`
	Range        *Range           `json:"range,omitempty"`
	StartMs      *int64           `json:"startMs,omitempty"`
	EndMs        *int64           `json:"endMs,omitempty"`
	Moved        bool             `json:"moved,omitempty"`
	Members      []PresenceMember `json:"members,omitempty"`
	Prompt       *Prompt          `json:"prompt,omitempty"`
}

// Message types sent by the server.
const (
	TypeWelcome         = "welcome"
	TypeFeedback        = "feedback"
	TypeError           = "error"
	TypeIgnored         = "ignored"
	TypePresence        = "presence"
	TypeTranscript      = "transcript"
	TypeChanged         = "transcript_changed"
	TypeApplied         = "applied"
	TypeConfirmRequired = "confirm_required"
	TypeScroll          = "scroll"
	TypeTimeRange       = "time_range"
)
