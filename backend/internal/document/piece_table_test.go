package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPieceTable_BasicString(t *testing.T) {
	pt := NewPieceTable("Hello world")
	assert.Equal(t, "Hello world", pt.String())
	assert.Equal(t, 11, pt.Len())
	assert.Equal(t, []Run{{Start: 0, Length: 11, Style: StyleText}}, pt.Runs())
}

func TestPieceTable_Empty(t *testing.T) {
	pt := NewPieceTable("")
	assert.Equal(t, 0, pt.Len())
	assert.Empty(t, pt.Runs())

	require.NoError(t, pt.Insert(0, "abc", StyleText))
	assert.Equal(t, "abc", pt.String())
}

func TestPieceTable_InsertMiddle(t *testing.T) {
	pt := NewPieceTable("Hello world")

	require.NoError(t, pt.Insert(5, " collaborative", StyleText))

	assert.Equal(t, "Hello collaborative world", pt.String())
	assert.Equal(t, 25, pt.Len())
}

func TestPieceTable_InsertStyled(t *testing.T) {
	pt := NewPieceTable("Hello world")

	require.NoError(t, pt.Insert(5, "¤", StyleTimecode))
	require.NoError(t, pt.Insert(6, "<500>", StyleHidden))

	assert.Equal(t, "Hello¤<500> world", pt.String())
	assert.Equal(t, []Run{
		{Start: 0, Length: 5, Style: StyleText},
		{Start: 5, Length: 1, Style: StyleTimecode},
		{Start: 6, Length: 5, Style: StyleHidden},
		{Start: 11, Length: 6, Style: StyleText},
	}, pt.Runs())

	s, err := pt.StyleAt(7)
	require.NoError(t, err)
	assert.Equal(t, StyleHidden, s)
	r, err := pt.CharAt(5)
	require.NoError(t, err)
	assert.Equal(t, '¤', r)
}

func TestPieceTable_SequentialTypingExtendsPiece(t *testing.T) {
	pt := NewPieceTable("")
	for i, c := range "typing" {
		require.NoError(t, pt.Insert(i, string(c), StyleText))
	}
	assert.Equal(t, "typing", pt.String())
	assert.Len(t, pt.pieces, 1)
}

func TestPieceTable_DeleteMiddle(t *testing.T) {
	pt := NewPieceTable("Hello collaborative world")

	require.NoError(t, pt.Delete(5, 19))

	assert.Equal(t, "Hello world", pt.String())
	assert.Equal(t, 11, pt.Len())
}

func TestPieceTable_DeleteAcrossPieces(t *testing.T) {
	pt := NewPieceTable("abcdef")
	require.NoError(t, pt.Insert(3, "XYZ", StyleHidden))

	require.NoError(t, pt.Delete(2, 7))

	assert.Equal(t, "abef", pt.String())
	assert.Equal(t, []Run{{Start: 0, Length: 4, Style: StyleText}}, pt.Runs())
}

func TestPieceTable_SetStyleKeepsContent(t *testing.T) {
	pt := NewPieceTable("ab¤<1>cd")

	require.NoError(t, pt.SetStyle(2, 3, StyleTimecode))
	require.NoError(t, pt.SetStyle(3, 6, StyleHidden))
	require.NoError(t, pt.SetHidden(2, 3, true))

	assert.Equal(t, "ab¤<1>cd", pt.String())
	assert.Equal(t, []Run{
		{Start: 0, Length: 2, Style: StyleText},
		{Start: 2, Length: 4, Style: StyleHidden},
		{Start: 6, Length: 2, Style: StyleText},
	}, pt.Runs())

	require.NoError(t, pt.SetHidden(2, 3, false))
	s, _ := pt.StyleAt(2)
	assert.Equal(t, StyleTimecode, s)

	// relabelling back to text merges the pieces again
	require.NoError(t, pt.SetStyle(0, 8, StyleText))
	assert.Len(t, pt.pieces, 1)
}

func TestPieceTable_Slice(t *testing.T) {
	pt := NewPieceTable("Hello world")
	require.NoError(t, pt.Insert(5, ",", StyleText))

	s, err := pt.Slice(3, 8)
	require.NoError(t, err)
	assert.Equal(t, "lo, w", s)

	s, err = pt.Slice(4, 4)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestPieceTable_InvalidPositions(t *testing.T) {
	pt := NewPieceTable("abc")

	assert.ErrorIs(t, pt.Insert(4, "x", StyleText), ErrInvalidPosition)
	assert.ErrorIs(t, pt.Insert(-1, "x", StyleText), ErrInvalidPosition)
	assert.ErrorIs(t, pt.Delete(2, 5), ErrInvalidPosition)
	assert.ErrorIs(t, pt.Delete(2, 1), ErrInvalidPosition)
	assert.ErrorIs(t, pt.SetStyle(0, 4, StyleHidden), ErrInvalidPosition)
	_, err := pt.CharAt(3)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	_, err = pt.StyleAt(-1)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	_, err = pt.Slice(1, 9)
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.Equal(t, "abc", pt.String())
}

func TestPieceTable_CloneIsIndependent(t *testing.T) {
	pt := NewPieceTable("base")
	require.NoError(t, pt.Insert(4, "-one", StyleText))

	snap := pt.Clone()
	require.NoError(t, pt.Insert(8, "-two", StyleText))
	require.NoError(t, snap.Insert(8, "-alt", StyleHidden))
	require.NoError(t, pt.Delete(0, 1))

	assert.Equal(t, "ase-one-two", pt.String())
	assert.Equal(t, "base-one-alt", snap.String())
}
