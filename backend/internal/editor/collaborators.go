package editor

import "context"

// TimeSource is polled for the current media position whenever a decision
// depends on "now".
type TimeSource interface {
	CurrentTime() (int64, error)
}

// PlaybackSink receives seek and highlight commands. Seek plays from startMs
// and stops at endMs.
type PlaybackSink interface {
	Seek(startMs, endMs int64) error
	SetSelectionHighlight(startMs, endMs int64) error
}

// DeletionPrompt describes a deletion that would remove markers.
type DeletionPrompt struct {
	Start   int
	End     int
	Times   []int64
	Message string
}

// Confirmer decides whether a deletion that removes markers may go ahead.
type Confirmer interface {
	Confirm(p DeletionPrompt) bool
}

// Snapshot is the persisted form of a transcript: content with embedded
// markers plus the ordered marker list. Format is opaque to the editor.
type Snapshot struct {
	Content string
	Markers []int64
	Format  string
}

type Persistence interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

type Clipboard interface {
	ReadText() (string, error)
	WriteText(text string) error
}

// TimeSourceFunc adapts a function to TimeSource.
type TimeSourceFunc func() (int64, error)

func (f TimeSourceFunc) CurrentTime() (int64, error) { return f() }

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(p DeletionPrompt) bool

func (f ConfirmFunc) Confirm(p DeletionPrompt) bool { return f(p) }
