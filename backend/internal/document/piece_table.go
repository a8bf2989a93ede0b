package document

import "strings"

type bufferKind int

const (
	bufOriginal bufferKind = iota
	bufAdd
)

type piece struct {
	buf    bufferKind
	offset int
	length int
	style  Style
}

// PieceTable is a rune piece table whose pieces also carry a style, so the piece
// list doubles as a run-length encoded style map.
type PieceTable struct {
	original []rune
	// append-only
	add    []rune
	pieces []piece
	length int
}

var _ Buffer = (*PieceTable)(nil)

// NewPieceTable creates a table holding initial as plain text.
func NewPieceTable(initial string) *PieceTable {
	r := []rune(initial)
	pt := &PieceTable{original: r, length: len(r)}
	if len(r) > 0 {
		pt.pieces = []piece{{buf: bufOriginal, offset: 0, length: len(r), style: StyleText}}
	}
	return pt
}

func (pt *PieceTable) Len() int { return pt.length }

func (pt *PieceTable) String() string {
	var sb strings.Builder
	for _, p := range pt.pieces {
		sb.WriteString(string(pt.source(p)))
	}
	return sb.String()
}

func (pt *PieceTable) Runes() []rune {
	out := make([]rune, 0, pt.length)
	for _, p := range pt.pieces {
		out = append(out, pt.source(p)...)
	}
	return out
}

// Slice returns the text in [start, end).
func (pt *PieceTable) Slice(start, end int) (string, error) {
	if err := pt.checkRange(start, end); err != nil {
		return "", err
	}
	var sb strings.Builder
	cur := 0
	for _, p := range pt.pieces {
		pStart, pEnd := cur, cur+p.length
		cur = pEnd
		if pEnd <= start {
			continue
		}
		if pStart >= end {
			break
		}
		from := max(start, pStart) - pStart
		to := min(end, pEnd) - pStart
		sb.WriteString(string(pt.source(p)[from:to]))
	}
	return sb.String(), nil
}

func (pt *PieceTable) CharAt(pos int) (rune, error) {
	if pos < 0 || pos >= pt.length {
		return 0, ErrInvalidPosition
	}
	idx, offset := pt.locate(pos)
	return pt.source(pt.pieces[idx])[offset], nil
}

func (pt *PieceTable) StyleAt(pos int) (Style, error) {
	if pos < 0 || pos >= pt.length {
		return StyleText, ErrInvalidPosition
	}
	idx, _ := pt.locate(pos)
	return pt.pieces[idx].style, nil
}

// Insert places text at pos with the given style.
func (pt *PieceTable) Insert(pos int, text string, style Style) error {
	if pos < 0 || pos > pt.length {
		return ErrInvalidPosition
	}
	r := []rune(text)
	if len(r) == 0 {
		return nil
	}
	start := len(pt.add)
	pt.add = append(pt.add, r...)
	newPiece := piece{buf: bufAdd, offset: start, length: len(r), style: style}

	idx := pt.split(pos)
	// typing at the end of the previous insertion just extends that piece
	if idx > 0 {
		prev := &pt.pieces[idx-1]
		if prev.buf == bufAdd && prev.style == style && prev.offset+prev.length == start {
			prev.length += len(r)
			pt.length += len(r)
			return nil
		}
	}

	newPieces := make([]piece, 0, len(pt.pieces)+1)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	newPieces = append(newPieces, newPiece)
	newPieces = append(newPieces, pt.pieces[idx:]...)
	pt.pieces = newPieces
	pt.length += len(r)
	return nil
}

// Delete removes the runes in [start, end).
func (pt *PieceTable) Delete(start, end int) error {
	if err := pt.checkRange(start, end); err != nil {
		return err
	}
	if start == end {
		return nil
	}
	i := pt.split(start)
	j := pt.split(end)
	pt.pieces = append(pt.pieces[:i], pt.pieces[j:]...)
	pt.length -= end - start
	return nil
}

// SetStyle relabels [start, end) without touching content.
func (pt *PieceTable) SetStyle(start, end int, style Style) error {
	if err := pt.checkRange(start, end); err != nil {
		return err
	}
	if start == end {
		return nil
	}
	i := pt.split(start)
	j := pt.split(end)
	for k := i; k < j; k++ {
		pt.pieces[k].style = style
	}
	pt.merge()
	return nil
}

// SetHidden switches [start, end) between the hidden and visible marker styles.
func (pt *PieceTable) SetHidden(start, end int, hidden bool) error {
	if hidden {
		return pt.SetStyle(start, end, StyleHidden)
	}
	return pt.SetStyle(start, end, StyleTimecode)
}

// Runs lists the style runs in document order.
func (pt *PieceTable) Runs() []Run {
	var runs []Run
	cur := 0
	for _, p := range pt.pieces {
		if n := len(runs); n > 0 && runs[n-1].Style == p.style {
			runs[n-1].Length += p.length
		} else {
			runs = append(runs, Run{Start: cur, Length: p.length, Style: p.style})
		}
		cur += p.length
	}
	return runs
}

// Clone returns an independent copy. The rune buffers are shared; the copy's add
// buffer is capped so that appends on either side never overwrite the other.
func (pt *PieceTable) Clone() *PieceTable {
	pieces := make([]piece, len(pt.pieces))
	copy(pieces, pt.pieces)
	return &PieceTable{
		original: pt.original,
		add:      pt.add[:len(pt.add):len(pt.add)],
		pieces:   pieces,
		length:   pt.length,
	}
}

func (pt *PieceTable) source(p piece) []rune {
	if p.buf == bufOriginal {
		return pt.original[p.offset : p.offset+p.length]
	}
	return pt.add[p.offset : p.offset+p.length]
}

func (pt *PieceTable) checkRange(start, end int) error {
	if start < 0 || end > pt.length || start > end {
		return ErrInvalidPosition
	}
	return nil
}

// locate maps a logical position to a piece index and the offset inside that piece.
func (pt *PieceTable) locate(pos int) (idx int, offset int) {
	cur := 0
	for i, p := range pt.pieces {
		if pos < cur+p.length {
			return i, pos - cur
		}
		cur += p.length
	}
	return len(pt.pieces), 0
}

// split makes pos fall on a piece boundary and returns the index of the piece
// starting at pos (len(pieces) when pos is the end of the document).
func (pt *PieceTable) split(pos int) int {
	idx, offset := pt.locate(pos)
	if idx >= len(pt.pieces) || offset == 0 {
		return idx
	}
	cur := pt.pieces[idx]
	left := piece{buf: cur.buf, offset: cur.offset, length: offset, style: cur.style}
	right := piece{buf: cur.buf, offset: cur.offset + offset, length: cur.length - offset, style: cur.style}

	newPieces := make([]piece, 0, len(pt.pieces)+1)
	newPieces = append(newPieces, pt.pieces[:idx]...)
	newPieces = append(newPieces, left, right)
	newPieces = append(newPieces, pt.pieces[idx+1:]...)
	pt.pieces = newPieces
	return idx + 1
}

// merge joins neighbouring pieces that are contiguous in the same buffer and
// share a style.
func (pt *PieceTable) merge() {
	if len(pt.pieces) < 2 {
		return
	}
	out := pt.pieces[:1]
	for _, p := range pt.pieces[1:] {
		last := &out[len(out)-1]
		if last.buf == p.buf && last.style == p.style && last.offset+last.length == p.offset {
			last.length += p.length
			continue
		}
		out = append(out, p)
	}
	pt.pieces = out
}
