package editor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptServer/backend/internal/ot/delta"
	"transcriptServer/backend/internal/timecode"
)

func TestInsertMarker_BetweenNeighbours(t *testing.T) {
	s, _ := openEditable(t, "¤<0>ab¤<1000>cd")

	m, err := s.InsertMarker(5, 500)

	require.NoError(t, err)
	assert.Equal(t, 5, m.Offset)
	assert.Equal(t, []int64{0, 500, 1000}, s.Times())
	assert.Equal(t, "¤<0>a¤<500>b¤<1000>cd", s.Text())
	requireConsistent(t, s)
}

func TestInsertMarker_OrderingViolation(t *testing.T) {
	s, _ := openEditable(t, "¤<0>ab¤<1000>cd")

	_, err := s.InsertMarker(5, 1500)

	require.ErrorIs(t, err, ErrTimeOrderingViolation)
	var oe *OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, OrderingError{Requested: 1500, Prev: 0, Next: 1000}, *oe)
	assert.Contains(t, err.Error(), "0:00:01.5")
	assert.Equal(t, []int64{0, 1000}, s.Times())
	assert.Equal(t, "¤<0>ab¤<1000>cd", s.Text())
	assert.Equal(t, uint64(0), s.Revision())
}

func TestInsertMarker_EqualToNextIsRejected(t *testing.T) {
	s, _ := openEditable(t, "a¤<1000>b")

	_, err := s.InsertMarker(0, 1000)
	assert.ErrorIs(t, err, ErrTimeOrderingViolation)

	// equal to the previous marker is fine
	_, err = s.InsertMarker(8, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000, 1000}, s.Times())
}

func TestInsertMarker_ZeroAtVeryStart(t *testing.T) {
	s, _ := openEditable(t, "¤<0>abc")

	_, err := s.InsertMarker(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 0}, s.Times())

	_, err = s.InsertMarker(0, 5)
	assert.ErrorIs(t, err, ErrTimeOrderingViolation)
}

func TestInsertMarker_OpenEndedAndRange(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b")

	_, err := s.InsertMarker(8, timecode.MaxTime)
	require.NoError(t, err)

	_, err = s.InsertMarker(0, -1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.InsertMarker(0, timecode.MaxTime+1)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.InsertMarker(99, 10)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestInsertMarker_SnapsOutOfMarkerSpan(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b")

	m, err := s.InsertMarker(3, 200)

	require.NoError(t, err)
	assert.Equal(t, 7, m.Offset)
	assert.Equal(t, "a¤<100>¤<200>b", s.Text())
}

func TestInsertMarker_StylesFollowVisibility(t *testing.T) {
	s, _ := openEditable(t, "ab")
	require.NoError(t, s.ShowCodes())

	_, err := s.InsertMarker(1, 10)
	require.NoError(t, err)

	assert.Equal(t, "timecode", mustStyle(t, s, 1))
	assert.Equal(t, "hidden", mustStyle(t, s, 2))
	assert.Equal(t, "text", mustStyle(t, s, 6))
}

func mustStyle(t *testing.T, s *Session, pos int) string {
	t.Helper()
	st, err := s.doc.StyleAt(pos)
	require.NoError(t, err)
	return st.String()
}

func TestInsertMarker_MonotonicUnderRandomInserts(t *testing.T) {
	s, _ := openEditable(t, "the quick brown fox jumps over the lazy dog")
	rng := rand.New(rand.NewSource(7))

	accepted := 0
	for i := 0; i < 300; i++ {
		offset := rng.Intn(s.Len() + 1)
		ms := rng.Int63n(100_000)
		if _, err := s.InsertMarker(offset, ms); err == nil {
			accepted++
		} else {
			require.ErrorIs(t, err, ErrTimeOrderingViolation)
		}
		requireConsistent(t, s)
	}
	assert.Positive(t, accepted)
}

func TestInsertTimedSpan(t *testing.T) {
	s, _ := openEditable(t, "ab")

	sel, err := s.InsertTimedSpan(Selection{Start: 1, End: 1}, 1000, 3500)

	require.NoError(t, err)
	assert.Equal(t, "a¤<1000>(2.5)¤<3500>b", s.Text())
	assert.Equal(t, []int64{1000, 3500}, s.Times())
	assert.Equal(t, Selection{Start: 1, End: 20}, sel)
}

func TestInsertTimedSpan_Violations(t *testing.T) {
	s, _ := openEditable(t, "¤<5000>ab")

	_, err := s.InsertTimedSpan(Selection{Start: 8, End: 8}, 1000, 2000)
	var oe *OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, OrderingError{Requested: 1000, Prev: 5000, Next: 60_000}, *oe)

	// open end is bounded by the episode length
	_, err = s.InsertTimedSpan(Selection{Start: 8, End: 8}, 6000, 70_000)
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, int64(70_000), oe.Requested)
	assert.Equal(t, int64(60_000), oe.Next)

	_, err = s.InsertTimedSpan(Selection{Start: 8, End: 8}, 3000, 2000)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, "¤<5000>ab", s.Text())
	assert.Equal(t, []int64{5000}, s.Times())
}

func TestInsertTimedSpan_ClipScope(t *testing.T) {
	s, _ := openEditable(t, "ab", func(c *Config) { c.Scope = ClipScope(1000, 4000) })

	_, err := s.InsertTimedSpan(Selection{Start: 2, End: 2}, 1000, 4500)
	var oe *OrderingError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, int64(4000), oe.Next)

	_, err = s.InsertTimedSpan(Selection{Start: 2, End: 2}, 1000, 4000)
	require.NoError(t, err)
	assert.Equal(t, "ab¤<1000>(3.0)¤<4000>", s.Text())
}

func TestInsertText_EmbeddedMarkers(t *testing.T) {
	s, _ := openEditable(t, "a¤<100>b¤<900>c")

	sel, err := s.InsertText(8, "x¤<300>y¤<400>")
	require.NoError(t, err)
	assert.Equal(t, Selection{Start: 8, End: 22}, sel)
	assert.Equal(t, []int64{100, 300, 400, 900}, s.Times())
	requireConsistent(t, s)

	_, err = s.InsertText(0, "¤<50>")
	require.NoError(t, err)

	_, err = s.InsertText(s.Len(), "¤<500>")
	assert.ErrorIs(t, err, ErrTimeOrderingViolation)

	_, err = s.InsertText(1, "oops ¤ here")
	assert.ErrorIs(t, err, ErrMalformedMarker)

	assert.Equal(t, []int64{50, 100, 300, 400, 900}, s.Times())
}

func TestInsertText_CannotCompleteStraySentinel(t *testing.T) {
	s, _ := openEditable(t, "a¤b")

	_, err := s.InsertText(2, "<5>")

	assert.ErrorIs(t, err, ErrMalformedMarker)
	assert.Equal(t, "a¤b", s.Text())
	assert.NoError(t, s.Corrupt())
}

func TestDeleteRange_CannotCompleteStraySentinel(t *testing.T) {
	s, _ := openEditable(t, "¤x<5> tail")
	require.Empty(t, s.Times())

	_, err := s.DeleteRange(1, 2, false)

	assert.ErrorIs(t, err, ErrMalformedMarker)
	assert.Equal(t, "¤x<5> tail", s.Text())
	assert.NoError(t, s.Corrupt())

	_, err = s.InsertText(s.Len(), "!")
	require.NoError(t, err)
	assert.Equal(t, "¤x<5> tail!", s.Text())
}

func TestDeleteAdjacent_CannotCompleteStraySentinel(t *testing.T) {
	s, _ := openEditable(t, "¤<05>")
	require.Empty(t, s.Times())

	_, err := s.DeleteAdjacent(2, Forward, false)

	assert.ErrorIs(t, err, ErrMalformedMarker)
	assert.Equal(t, "¤<05>", s.Text())
	assert.NoError(t, s.Corrupt())
	assert.Equal(t, uint64(0), s.Revision())
}

func TestDeleteRange_ConfirmationFlow(t *testing.T) {
	rec := &promptRecorder{answer: false}
	s, _ := openEditable(t, "ab¤<100>cd", func(c *Config) { c.Confirmer = rec })

	res, err := s.DeleteRange(1, 9, false)
	require.NoError(t, err)
	assert.True(t, res.Declined)
	require.Len(t, rec.prompts, 1)
	assert.Equal(t, []int64{100}, rec.prompts[0].Times)
	assert.Contains(t, rec.prompts[0].Message, "at least one Time Code")
	assert.Equal(t, "ab¤<100>cd", s.Text())
	assert.Equal(t, []int64{100}, s.Times())

	rec.answer = true
	res, err = s.DeleteRange(1, 9, false)
	require.NoError(t, err)
	assert.False(t, res.Declined)
	assert.Equal(t, []int64{100}, res.Removed)
	assert.Equal(t, "ad", s.Text())
	assert.Empty(t, s.Times())
	assert.False(t, s.HiddenRevealed())
}

func TestDeleteRange_WidensToWholeMarkers(t *testing.T) {
	s, _ := openEditable(t, "ab¤<100>cd")

	res, err := s.DeleteRange(4, 9, true)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Start)
	assert.Equal(t, 9, res.End)
	assert.Equal(t, "abd", s.Text())
}

func TestDeleteRange_PlainTextNeedsNoConfirmation(t *testing.T) {
	rec := &promptRecorder{}
	s, _ := openEditable(t, "hello¤<1>world", func(c *Config) { c.Confirmer = rec })

	res, err := s.DeleteRange(5, 0, false)

	require.NoError(t, err)
	assert.Empty(t, rec.prompts)
	assert.Nil(t, res.Prompt)
	assert.Equal(t, "¤<1>world", s.Text())
}

func TestDeleteRange_ShiftsLaterMarkersBySpanLength(t *testing.T) {
	s, _ := openEditable(t, "x¤<10>y¤<20>z")
	before := s.Markers()

	res, err := s.DeleteAdjacent(1, Forward, true)

	require.NoError(t, err)
	assert.Equal(t, []int64{10}, res.Removed)
	after := s.Markers()
	require.Len(t, after, len(before)-1)
	assert.Equal(t, before[1].Offset-timecode.SpanLen(10), after[0].Offset)
	assert.Equal(t, []int64{20}, s.Times())
}

func TestDeleteAdjacent(t *testing.T) {
	s, _ := openEditable(t, "ab¤<100>cd")

	// backspace into the data span asks about the whole marker
	res, err := s.DeleteAdjacent(8, Backward, false)
	require.NoError(t, err)
	assert.True(t, res.Declined)
	require.NotNil(t, res.Prompt)
	assert.Equal(t, "Do you want to delete the Time Code at 0:00:00.1?", res.Prompt.Message)
	assert.Equal(t, "ab¤<100>cd", s.Text())

	res, err = s.DeleteAdjacent(8, Backward, true)
	require.NoError(t, err)
	assert.Equal(t, "abcd", s.Text())
	assert.Equal(t, 2, res.Start)

	_, err = s.DeleteAdjacent(0, Backward, false)
	require.NoError(t, err)
	_, err = s.DeleteAdjacent(4, Forward, false)
	require.NoError(t, err)
	assert.Equal(t, "abcd", s.Text())

	_, err = s.DeleteAdjacent(0, Forward, false)
	require.NoError(t, err)
	assert.Equal(t, "bcd", s.Text())
}

func TestReplaceSelection(t *testing.T) {
	s, _ := openEditable(t, "ab¤<100>cd")

	res, err := s.ReplaceSelection(Selection{Start: 9, End: 0}, "X", false)
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.Equal(t, "ab¤<100>cd", s.Text())

	res, err = s.ReplaceSelection(Selection{Start: 0, End: 1}, "Y", false)
	require.NoError(t, err)
	assert.Equal(t, "Yb¤<100>cd", s.Text())
	assert.Equal(t, Selection{Start: 0, End: 1}, res.Inserted)

	_, err = s.ReplaceSelection(Selection{Start: 1, End: 9}, "", true)
	require.NoError(t, err)
	assert.Equal(t, "Yd", s.Text())
	assert.Empty(t, s.Times())
}

func TestCutCopyPaste(t *testing.T) {
	clip := &fakeClipboard{}
	s, _ := openEditable(t, "ab¤<100>cd", func(c *Config) { c.Clipboard = clip })

	require.NoError(t, s.Copy(Selection{Start: 0, End: 2}))
	assert.Equal(t, "ab", clip.text)

	res, err := s.Cut(Selection{Start: 1, End: 9}, true)
	require.NoError(t, err)
	assert.Equal(t, "b¤<100>c", clip.text)
	assert.Equal(t, []int64{100}, res.Removed)
	assert.Equal(t, "ad", s.Text())

	sel, err := s.Paste(1)
	require.NoError(t, err)
	assert.Equal(t, "ab¤<100>cd", s.Text())
	assert.Equal(t, []int64{100}, s.Times())
	assert.Equal(t, Selection{Start: 1, End: 9}, sel)
	requireConsistent(t, s)
}

func TestCut_ClipboardFailureRollsBack(t *testing.T) {
	clip := &fakeClipboard{err: errBoom}
	s, _ := openEditable(t, "abcd", func(c *Config) { c.Clipboard = clip })

	_, err := s.Cut(Selection{Start: 1, End: 3}, true)

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, "abcd", s.Text())
}

func TestClipboardMissing(t *testing.T) {
	s, _ := openEditable(t, "abcd")

	assert.ErrorIs(t, s.Copy(Selection{Start: 0, End: 1}), ErrNoClipboard)
	_, err := s.Paste(0)
	assert.ErrorIs(t, err, ErrNoClipboard)
}

func TestAdjustAllMarkers_RoundTrip(t *testing.T) {
	s, _ := openEditable(t, "¤<0>a¤<999>b¤<5000>c")
	text, times := s.Text(), s.Times()

	require.NoError(t, s.AdjustAllMarkers(1))
	assert.Equal(t, "¤<1>a¤<1000>b¤<5001>c", s.Text())
	assert.Equal(t, []int64{1, 1000, 5001}, s.Times())
	requireConsistent(t, s)

	require.NoError(t, s.AdjustAllMarkers(-1))
	assert.Equal(t, text, s.Text())
	assert.Equal(t, times, s.Times())
}

func TestAdjustAllMarkers_RejectsWholeBatch(t *testing.T) {
	s, _ := openEditable(t, "¤<0>a¤<999>b")

	err := s.AdjustAllMarkers(-1)

	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, "¤<0>a¤<999>b", s.Text())
	assert.Equal(t, []int64{0, 999}, s.Times())

	assert.ErrorIs(t, s.AdjustAllMarkers(timecode.MaxTime), ErrOutOfRange)
	assert.Equal(t, uint64(0), s.Revision())
}

func TestAdjustAllMarkers_MayPassScopeEnd(t *testing.T) {
	s, _ := openEditable(t, "a¤<59000>b")

	require.NoError(t, s.AdjustAllMarkers(5000))

	assert.Equal(t, []int64{64_000}, s.Times())
	assert.Greater(t, s.Times()[0], s.Scope().End())
	requireConsistent(t, s)
}

func TestAdjustAllMarkers_KeepsGlyphStyle(t *testing.T) {
	s, _ := openEditable(t, "¤<9>a", func(c *Config) { c.CodesVisible = true })

	require.NoError(t, s.AdjustAllMarkers(1))

	assert.Equal(t, "timecode", mustStyle(t, s, 0))
	assert.Equal(t, "hidden", mustStyle(t, s, 3))
	assert.Equal(t, "text", mustStyle(t, s, 5))
}

func TestApplyDelta(t *testing.T) {
	s, _ := openEditable(t, "Hello ¤<100>world")

	_, err := s.ApplyDelta(delta.Delta{delta.Retain(5), delta.Insert(",")}, false)
	require.NoError(t, err)
	assert.Equal(t, "Hello, ¤<100>world", s.Text())

	res, err := s.ApplyDelta(delta.Delta{delta.Retain(6), delta.Delete(3)}, false)
	require.NoError(t, err)
	assert.True(t, res.Declined)
	assert.Equal(t, "Hello, ¤<100>world", s.Text())

	res, err = s.ApplyDelta(delta.Delta{delta.Retain(6), delta.Delete(3), delta.Insert("¤<200>")}, true)
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, res.Removed)
	assert.Equal(t, "Hello,¤<200>world", s.Text())
	assert.Equal(t, []int64{200}, s.Times())

	_, err = s.ApplyDelta(delta.Delta{delta.Retain(500)}, false)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = s.ApplyDelta(delta.Delta{{Kind: "bogus"}}, false)
	assert.ErrorIs(t, err, delta.ErrInvalidOp)
}
