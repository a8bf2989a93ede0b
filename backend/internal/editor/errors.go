package editor

import (
	"errors"
	"fmt"

	"transcriptServer/backend/internal/timecode"
)

// Marker errors
var (
	// ErrTimeOrderingViolation indicates that a marker time does not fit between its neighbours.
	ErrTimeOrderingViolation = errors.New("time code sequence error")

	// ErrMalformedMarker indicates a sentinel glyph that does not start a well-formed marker.
	ErrMalformedMarker = errors.New("malformed time code")

	// ErrOutOfRange indicates a time outside [0, 2^31) or an offset outside the document.
	ErrOutOfRange = errors.New("value out of range")

	// ErrCorruptMarkerState indicates that the marker index and the document disagree.
	// Editing stays blocked until the session is reloaded.
	ErrCorruptMarkerState = errors.New("corrupt time code state")
)

// Session state errors
var (
	// ErrReadOnly indicates a mutation attempted outside edit mode.
	ErrReadOnly = errors.New("transcript is read-only")

	// ErrInvalidTransition indicates a state change not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrSaveInProgress indicates a second save while one is still running.
	ErrSaveInProgress = errors.New("save already in progress")

	// ErrSave is matched by every *SaveError.
	ErrSave = errors.New("save failed")

	// ErrClosed indicates use of a closed session.
	ErrClosed = errors.New("session closed")
)

// Collaborator errors
var (
	ErrNoTimeSource = errors.New("no time source attached")
	ErrNoPlayback   = errors.New("no playback sink attached")
	ErrNoClipboard  = errors.New("no clipboard attached")
)

// OrderingError carries the rejected time and the neighbours it was checked
// against. Next is timecode.OpenEnded when there is no later marker.
type OrderingError struct {
	Requested int64
	Prev      int64
	Next      int64
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("time code sequence error: you are trying to insert a time code at %s between time codes at %s and %s",
		timecode.Format(e.Requested), timecode.Format(e.Prev), timecode.Format(e.Next))
}

func (e *OrderingError) Unwrap() error { return ErrTimeOrderingViolation }

// SaveError wraps a persistence failure. In-memory state is untouched when it is returned.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return "save failed: " + e.Err.Error() }

func (e *SaveError) Unwrap() []error { return []error{ErrSave, e.Err} }
