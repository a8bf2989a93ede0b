// Package editor is the marker-aware editing core of a transcript: a session
// owns one document buffer and its marker index, keeps them consistent through
// every edit, and translates between text positions and media time.
//
// A Session is not safe for concurrent use. Callers serialise access, one
// logical editing thread per transcript.
package editor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"

	"transcriptServer/backend/internal/document"
	"transcriptServer/backend/internal/index"
)

// State is the edit mode of a session.
type State uint8

const (
	StateReadOnly State = iota
	StateEditable
)

func (s State) String() string {
	if s == StateEditable {
		return "editable"
	}
	return "read-only"
}

// Selection is a pair of document offsets. Callers may pass reversed pairs.
type Selection struct {
	Start int
	End   int
}

// Normalize orders the pair so that Start <= End.
func (sel Selection) Normalize() Selection {
	if sel.Start > sel.End {
		return Selection{Start: sel.End, End: sel.Start}
	}
	return sel
}

func (sel Selection) Empty() bool { return sel.Start == sel.End }

type Config struct {
	ID    string
	Scope Scope

	Persistence Persistence
	TimeSource  TimeSource
	Playback    PlaybackSink
	Confirmer   Confirmer
	Clipboard   Clipboard
	Observers   []Observer

	Logger zerolog.Logger

	// Tolerance overrides index.DefaultTolerance when positive.
	Tolerance int64
	// CodesVisible shows marker glyphs right after load.
	CodesVisible bool
}

type Session struct {
	id    string
	scope Scope
	log   zerolog.Logger

	doc *document.PieceTable
	idx *index.Index

	state          State
	codesVisible   bool
	hiddenRevealed bool
	corrupt        error
	closed         bool
	saving         bool
	modified       bool
	revision       uint64

	// last loaded or saved content, restored by Discard
	saved Snapshot

	selection   Selection
	currentTime int64

	tolerance int64
	tx        *txn

	persist   Persistence
	clock     TimeSource
	playback  PlaybackSink
	confirmer Confirmer
	clipboard Clipboard
	observers []Observer
}

// txn holds what is needed to undo an edit in progress.
type txn struct {
	name     string
	doc      *document.PieceTable
	idx      *index.Index
	revealed bool
	events   []Event
}

// errDeclined aborts an edit whose deletion the user did not confirm.
var errDeclined = errors.New("deletion declined")

// Open loads a transcript through cfg.Persistence and returns a read-only session.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Persistence == nil {
		return nil, errors.New("editor: persistence is required")
	}
	s := &Session{
		id:           cfg.ID,
		scope:        cfg.Scope,
		log:          cfg.Logger.With().Str("transcriptId", cfg.ID).Logger(),
		codesVisible: cfg.CodesVisible,
		tolerance:    cfg.Tolerance,
		persist:      cfg.Persistence,
		clock:        cfg.TimeSource,
		playback:     cfg.Playback,
		confirmer:    cfg.Confirmer,
		clipboard:    cfg.Clipboard,
		observers:    slices.Clone(cfg.Observers),
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transcript %s: %w", cfg.ID, err)
	}
	if err := s.install(snap); err != nil {
		return nil, err
	}
	return s, nil
}

// install replaces buffer and index with the content of snap.
func (s *Session) install(snap Snapshot) error {
	doc := document.NewPieceTable(snap.Content)
	idx, malformed := index.Rescan(doc, s.log)
	if s.tolerance > 0 {
		idx.Tolerance = s.tolerance
	}
	if snap.Markers != nil && !slices.Equal(snap.Markers, idx.Times()) {
		s.log.Warn().
			Int("stored", len(snap.Markers)).
			Int("scanned", idx.Len()).
			Msg("stored time code list disagrees with document, using document")
	}

	s.doc, s.idx = doc, idx
	for _, m := range idx.Markers(doc) {
		if err := s.styleMarker(m); err != nil {
			return fmt.Errorf("style time code at %d: %w", m.Offset, err)
		}
	}

	s.saved = Snapshot{Content: snap.Content, Markers: idx.Times(), Format: snap.Format}
	s.state = StateReadOnly
	s.corrupt = nil
	s.modified = false
	s.hiddenRevealed = false
	s.selection = Selection{}
	s.currentTime = 0

	s.log.Debug().
		Int("length", doc.Len()).
		Int("timecodes", idx.Len()).
		Int("malformed", len(malformed)).
		Msg("transcript loaded")
	return nil
}

func (s *Session) ID() string { return s.id }
func (s *Session) Scope() Scope { return s.scope }
func (s *Session) State() State { return s.state }
func (s *Session) Modified() bool { return s.modified }
func (s *Session) Revision() uint64 { return s.revision }
func (s *Session) Len() int { return s.doc.Len() }
func (s *Session) Text() string { return s.doc.String() }
func (s *Session) Runs() []document.Run { return s.doc.Runs() }
func (s *Session) Times() []int64 { return s.idx.Times() }
func (s *Session) CodesVisible() bool { return s.codesVisible }
func (s *Session) HiddenRevealed() bool { return s.hiddenRevealed }
func (s *Session) CurrentTime() int64 { return s.currentTime }
func (s *Session) Selection() Selection { return s.selection }

// Corrupt returns the error that halted editing, if any.
func (s *Session) Corrupt() error { return s.corrupt }

// Markers locates every marker in the document.
func (s *Session) Markers() []index.Marker { return s.idx.Markers(s.doc) }

// Snapshot returns the current content in persisted form.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{Content: s.doc.String(), Markers: s.idx.Times(), Format: s.saved.Format}
}

// SetSelection records the caller's selection, clamped to the document.
func (s *Session) SetSelection(sel Selection) {
	sel = sel.Normalize()
	sel.Start = min(max(sel.Start, 0), s.doc.Len())
	sel.End = min(max(sel.End, 0), s.doc.Len())
	s.selection = sel
}

func (s *Session) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// BeginEdit switches to edit mode. It is a no-op when already editable.
func (s *Session) BeginEdit() error {
	if s.closed {
		return ErrClosed
	}
	if s.state == StateEditable {
		return nil
	}
	s.state = StateEditable
	s.notify(Event{Kind: EventStateChanged})
	return nil
}

// Save persists the current content. A failed save returns *SaveError and
// leaves the session exactly as it was.
func (s *Session) Save(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.saving {
		return ErrSaveInProgress
	}
	s.saving = true
	defer func() { s.saving = false }()

	snap := s.Snapshot()
	if err := s.persist.Save(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("save transcript")
		return &SaveError{Err: err}
	}
	s.saved = snap
	s.modified = false
	s.notify(Event{Kind: EventSaved})
	return nil
}

// SaveAndEndEdit saves and leaves edit mode. The session stays editable when
// the save fails.
func (s *Session) SaveAndEndEdit(ctx context.Context) error {
	if s.state != StateEditable {
		return fmt.Errorf("%w: end edit from %s", ErrInvalidTransition, s.state)
	}
	if err := s.Save(ctx); err != nil {
		return err
	}
	s.state = StateReadOnly
	s.notify(Event{Kind: EventStateChanged})
	return nil
}

// Discard drops unsaved changes, restores the last saved content and leaves
// edit mode.
func (s *Session) Discard() error {
	if s.state != StateEditable {
		return fmt.Errorf("%w: discard from %s", ErrInvalidTransition, s.state)
	}
	if err := s.install(s.saved); err != nil {
		return err
	}
	s.revision++
	s.notify(Event{Kind: EventTextChanged, Start: 0, End: s.doc.Len()})
	s.notify(Event{Kind: EventMarkerSetChanged})
	s.notify(Event{Kind: EventStateChanged})
	return nil
}

// Reload reads the transcript again from persistence. It is the only way out
// of a corrupt state.
func (s *Session) Reload(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	snap, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload transcript %s: %w", s.id, err)
	}
	if err := s.install(snap); err != nil {
		return err
	}
	s.revision++
	s.notify(Event{Kind: EventTextChanged, Start: 0, End: s.doc.Len()})
	s.notify(Event{Kind: EventMarkerSetChanged})
	s.notify(Event{Kind: EventStateChanged})
	return nil
}

// Close flushes unsaved changes and marks the session unusable.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if s.modified {
		if err := s.Save(ctx); err != nil {
			return err
		}
	}
	s.closed = true
	return nil
}

// ShowCodes makes marker glyphs visible. Content and index are unchanged.
func (s *Session) ShowCodes() error { return s.setCodesVisible(true) }

// HideCodes collapses marker glyphs.
func (s *Session) HideCodes() error { return s.setCodesVisible(false) }

func (s *Session) setCodesVisible(visible bool) error {
	if s.closed {
		return ErrClosed
	}
	s.codesVisible = visible
	for _, m := range s.idx.Markers(s.doc) {
		if err := s.doc.SetHidden(m.Offset, m.Offset+1, !visible); err != nil {
			return err
		}
	}
	s.notify(Event{Kind: EventStyleChanged, Start: 0, End: s.doc.Len()})
	return nil
}

// ShowAllHidden reveals hidden-styled text, including marker data spans.
func (s *Session) ShowAllHidden() { s.setHiddenRevealed(true) }

func (s *Session) HideAllHidden() { s.setHiddenRevealed(false) }

func (s *Session) setHiddenRevealed(on bool) {
	if s.hiddenRevealed == on {
		return
	}
	s.hiddenRevealed = on
	s.notify(Event{Kind: EventStyleChanged, Start: 0, End: s.doc.Len()})
}

func (s *Session) writable() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.corrupt != nil:
		return s.corrupt
	case s.state != StateEditable:
		return ErrReadOnly
	}
	return nil
}

// edit runs fn as one all-or-nothing change. Any error restores buffer, index
// and visibility to their state before fn; events raised inside fn are only
// delivered after a successful commit.
func (s *Session) edit(name string, fn func() error) error {
	if err := s.writable(); err != nil {
		return err
	}
	tx := &txn{name: name, doc: s.doc.Clone(), idx: s.idx.Clone(), revealed: s.hiddenRevealed}
	s.tx = tx
	err := fn()
	s.tx = nil

	if err == nil {
		if verr := s.idx.Verify(s.doc); verr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrCorruptMarkerState, name, verr)
			s.corrupt = err
			s.log.Error().Err(verr).Str("op", name).Msg("time code index diverged, editing halted until reload")
		}
	}
	if err != nil {
		s.doc, s.idx, s.hiddenRevealed = tx.doc, tx.idx, tx.revealed
		if !errors.Is(err, errDeclined) {
			s.log.Debug().Err(err).Str("op", name).Msg("edit rolled back")
		}
		return err
	}

	s.revision++
	s.modified = true
	s.SetSelection(s.selection)
	for _, ev := range tx.events {
		s.deliver(ev)
	}
	return nil
}

func (s *Session) notify(ev Event) {
	if s.tx != nil {
		s.tx.events = append(s.tx.events, ev)
		return
	}
	s.deliver(ev)
}

func (s *Session) deliver(ev Event) {
	ev.Revision = s.revision
	for _, o := range s.observers {
		o.OnEvent(ev)
	}
}

func (s *Session) glyphStyle() document.Style {
	if s.codesVisible {
		return document.StyleTimecode
	}
	return document.StyleHidden
}

func (s *Session) styleMarker(m index.Marker) error {
	if err := s.doc.SetStyle(m.Offset, m.Offset+1, s.glyphStyle()); err != nil {
		return err
	}
	return s.doc.SetStyle(m.Offset+1, m.End(), document.StyleHidden)
}
