package editor

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptServer/backend/internal/document"
)

func TestOpen_RescansDocument(t *testing.T) {
	s, _ := openSession(t, "Hello¤<1000>World")

	assert.Equal(t, []int64{1000}, s.Times())
	assert.Equal(t, 5, s.TimeToOffset(1000))
	assert.Equal(t, StateReadOnly, s.State())
	assert.False(t, s.CodesVisible())
	assert.Equal(t, []document.Run{
		{Start: 0, Length: 5, Style: document.StyleText},
		{Start: 5, Length: 7, Style: document.StyleHidden},
		{Start: 12, Length: 5, Style: document.StyleText},
	}, s.Runs())
}

func TestOpen_StoredMarkersDisagreeWithDocument(t *testing.T) {
	var buf bytes.Buffer
	store := &memStore{snap: Snapshot{Content: "a¤<10>b¤<oops>", Markers: []int64{10, 20}}}

	s, err := Open(context.Background(), Config{Persistence: store, Logger: zerolog.New(&buf)})
	require.NoError(t, err)

	assert.Equal(t, []int64{10}, s.Times())
	assert.Contains(t, buf.String(), "disagrees with document")
	assert.Contains(t, buf.String(), "malformed time code")
}

func TestOpen_LoadError(t *testing.T) {
	_, err := Open(context.Background(), Config{Persistence: &memStore{loadErr: errBoom}, Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, errBoom)

	_, err = Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestSession_ReadOnlyRejectsEdits(t *testing.T) {
	s, _ := openSession(t, "abc")

	_, err := s.InsertMarker(1, 100)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.InsertText(0, "x")
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = s.DeleteRange(0, 1, true)
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, s.AdjustAllMarkers(10), ErrReadOnly)
	assert.Equal(t, "abc", s.Text())

	assert.ErrorIs(t, s.SaveAndEndEdit(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, s.Discard(), ErrInvalidTransition)
}

func TestSession_BeginEditIsIdempotent(t *testing.T) {
	s, _ := openSession(t, "abc")
	require.NoError(t, s.BeginEdit())
	require.NoError(t, s.BeginEdit())
	assert.Equal(t, StateEditable, s.State())
}

func TestSession_SaveAndEndEdit(t *testing.T) {
	s, store := openEditable(t, "ab")
	_, err := s.InsertMarker(1, 500)
	require.NoError(t, err)
	assert.True(t, s.Modified())

	require.NoError(t, s.SaveAndEndEdit(context.Background()))

	assert.Equal(t, StateReadOnly, s.State())
	assert.False(t, s.Modified())
	assert.Equal(t, "a¤<500>b", store.snap.Content)
	assert.Equal(t, []int64{500}, store.snap.Markers)
	assert.Equal(t, "text", store.snap.Format)
}

func TestSession_SaveErrorKeepsState(t *testing.T) {
	s, store := openEditable(t, "ab")
	_, err := s.InsertText(2, "c")
	require.NoError(t, err)
	store.saveErr = errBoom

	err = s.SaveAndEndEdit(context.Background())

	var saveErr *SaveError
	require.ErrorAs(t, err, &saveErr)
	assert.ErrorIs(t, err, ErrSave)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateEditable, s.State())
	assert.True(t, s.Modified())
	assert.Equal(t, "abc", s.Text())

	store.saveErr = nil
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, "abc", store.snap.Content)
}

func TestSession_SaveInProgress(t *testing.T) {
	s, _ := openEditable(t, "ab")
	s.saving = true
	assert.ErrorIs(t, s.Save(context.Background()), ErrSaveInProgress)
}

func TestSession_DiscardRestoresSaved(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b")
	_, err := s.InsertMarker(8, 200)
	require.NoError(t, err)
	_, err = s.InsertText(0, "zz")
	require.NoError(t, err)

	require.NoError(t, s.Discard())

	assert.Equal(t, "a¤<100>b", s.Text())
	assert.Equal(t, []int64{100}, s.Times())
	assert.Equal(t, StateReadOnly, s.State())
	assert.False(t, s.Modified())
}

func TestSession_CorruptStateHaltsUntilReload(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b")
	require.NoError(t, s.idx.Set(0, 999))

	_, err := s.InsertText(0, "x")
	require.ErrorIs(t, err, ErrCorruptMarkerState)
	assert.Equal(t, "a¤<100>b", s.Text())

	_, err = s.InsertText(0, "y")
	assert.ErrorIs(t, err, ErrCorruptMarkerState)
	assert.ErrorIs(t, s.Corrupt(), ErrCorruptMarkerState)

	require.NoError(t, s.Reload(context.Background()))
	assert.NoError(t, s.Corrupt())
	require.NoError(t, s.BeginEdit())
	_, err = s.InsertText(0, "x")
	require.NoError(t, err)
	assert.Equal(t, "xa¤<100>b", s.Text())
}

func TestSession_CloseFlushes(t *testing.T) {
	s, store := openEditable(t, "ab")
	_, err := s.InsertText(1, "-")
	require.NoError(t, err)

	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, "a-b", store.snap.Content)
	assert.Equal(t, 1, store.saves)
	assert.ErrorIs(t, s.BeginEdit(), ErrClosed)
	require.NoError(t, s.Close(context.Background()))
}

func TestSession_VisibilityTogglesOnlyStyle(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b¤<200>c")
	text, times := s.Text(), s.Times()

	require.NoError(t, s.ShowCodes())
	assert.True(t, s.CodesVisible())
	st, err := s.doc.StyleAt(1)
	require.NoError(t, err)
	assert.Equal(t, document.StyleTimecode, st)
	st, _ = s.doc.StyleAt(2)
	assert.Equal(t, document.StyleHidden, st)

	s.ShowAllHidden()
	assert.True(t, s.HiddenRevealed())
	s.HideAllHidden()
	require.NoError(t, s.HideCodes())
	st, _ = s.doc.StyleAt(1)
	assert.Equal(t, document.StyleHidden, st)

	assert.Equal(t, text, s.Text())
	assert.Equal(t, times, s.Times())
	assert.False(t, s.Modified())
}

func TestSession_ObserversSeeCommittedEditsOnly(t *testing.T) {
	var events []Event
	s, _ := openEditable(t, "ab¤<100>cd", func(c *Config) {
		c.Observers = []Observer{ObserverFunc(func(ev Event) { events = append(events, ev) })}
	})
	events = nil

	_, err := s.InsertMarker(0, 50)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventTextChanged, events[0].Kind)
	assert.Equal(t, EventMarkerSetChanged, events[1].Kind)
	assert.Equal(t, uint64(1), events[1].Revision)

	events = nil
	_, err = s.InsertMarker(0, 5000)
	require.Error(t, err)
	res, err := s.DeleteRange(0, 3, false)
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.Empty(t, events)
	assert.Equal(t, uint64(1), s.Revision())
}

func TestSession_InsertMarkerNow(t *testing.T) {
	now := int64(750)
	s, _ := openEditable(t, "ab", func(c *Config) {
		c.TimeSource = TimeSourceFunc(func() (int64, error) { return now, nil })
	})

	m, err := s.InsertMarkerNow(1)
	require.NoError(t, err)
	assert.Equal(t, int64(750), m.Time)

	s.clock = TimeSourceFunc(func() (int64, error) { return 0, errBoom })
	_, err = s.InsertMarkerNow(0)
	assert.True(t, errors.Is(err, errBoom))

	s.clock = nil
	_, err = s.InsertMarkerNow(0)
	assert.ErrorIs(t, err, ErrNoTimeSource)
}
