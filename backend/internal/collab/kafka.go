package collab

import (
	"time"

	"github.com/google/uuid"

	"transcriptServer/backend/internal/editor"
)

// EventType values carried on the transcript topic.
const (
	EventTypeEdited = "TRANSCRIPT_EDITED"
	EventTypeSaved  = "TRANSCRIPT_SAVED"
)

// TranscriptEvent is the record published to Kafka after a committed change.
type TranscriptEvent struct {
	EventType    string           `json:"eventType"`
	TranscriptID string           `json:"transcriptId"`
	OperationID  string           `json:"operationId"`
	Revision     uint64           `json:"revision"`
	UserID       uint64           `json:"userId"`
	Kind         editor.EventKind `json:"kind"`
	Start        int              `json:"start"`
	End          int              `json:"end"`
	Times        []int64          `json:"times,omitempty"`
	At           time.Time        `json:"at"`
}

func newTranscriptEvent(id string, userID uint64, ev editor.Event, times []int64) TranscriptEvent {
	typ := EventTypeEdited
	if ev.Kind == editor.EventSaved {
		typ = EventTypeSaved
	}
	out := TranscriptEvent{
		EventType:    typ,
		TranscriptID: id,
		OperationID:  uuid.NewString(),
		Revision:     ev.Revision,
		UserID:       userID,
		Kind:         ev.Kind,
		Start:        ev.Start,
		End:          ev.End,
		At:           time.Now().UTC(),
	}
	// marker list only travels when it changed
	if ev.Kind == editor.EventMarkerSetChanged || ev.Kind == editor.EventSaved {
		out.Times = times
	}
	return out
}
