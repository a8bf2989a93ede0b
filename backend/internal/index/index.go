// Package index keeps the ordered list of marker times of one transcript.
//
// Only times are stored. Offsets always come from the document, so an edit that
// shifts text never has to touch the index; an edit that adds or removes a
// marker updates exactly one entry.
package index

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"transcriptServer/backend/internal/timecode"
)

// DefaultTolerance is the forward slack applied by NearestAtOrBefore. Playback
// positions reported by the media layer are occasionally a millisecond or two
// short of the marker they were seeked to.
const DefaultTolerance int64 = 2

var (
	ErrOutOfSync  = errors.New("marker index out of sync with document")
	ErrIndexRange = errors.New("marker index out of range")
)

// Source is the read side of a document the index scans.
type Source interface {
	Runes() []rune
}

// Marker is a marker located in the document.
type Marker struct {
	Offset int   `json:"offset"`
	Length int   `json:"length"`
	Time   int64 `json:"timeMs"`
}

// End is the offset just past the marker's data span.
func (m Marker) End() int { return m.Offset + m.Length }

// Found reports whether m refers to a real marker rather than a boundary sentinel.
func (m Marker) Found() bool { return m.Offset >= 0 }

var (
	// DocumentStart is returned as prev when no marker precedes an offset.
	DocumentStart = Marker{Offset: -1, Time: 0}
	// MediaEnd is returned as next when no marker follows an offset.
	MediaEnd = Marker{Offset: -1, Time: timecode.OpenEnded}
)

type Index struct {
	times []int64

	// Tolerance overrides DefaultTolerance for NearestAtOrBefore.
	Tolerance int64
}

// New builds an index from times already in document order.
func New(times []int64) *Index {
	cp := make([]int64, len(times))
	copy(cp, times)
	return &Index{times: cp, Tolerance: DefaultTolerance}
}

// Rescan rebuilds the index from the document text. Malformed spans are skipped
// and logged; their offsets are returned so callers can report them.
func Rescan(doc Source, log zerolog.Logger) (*Index, []int) {
	matches, malformed := timecode.Scan(doc.Runes())
	for _, off := range malformed {
		log.Warn().Int("offset", off).Msg("skipping malformed time code")
	}
	times := make([]int64, len(matches))
	for i, m := range matches {
		times[i] = m.Time
	}
	return &Index{times: times, Tolerance: DefaultTolerance}, malformed
}

func (x *Index) Len() int { return len(x.times) }

func (x *Index) At(i int) (int64, error) {
	if i < 0 || i >= len(x.times) {
		return 0, fmt.Errorf("%w: %d of %d", ErrIndexRange, i, len(x.times))
	}
	return x.times[i], nil
}

// Times returns a copy of the stored times.
func (x *Index) Times() []int64 {
	out := make([]int64, len(x.times))
	copy(out, x.times)
	return out
}

func (x *Index) Clone() *Index {
	c := New(x.times)
	c.Tolerance = x.Tolerance
	return c
}

// Insert places t at ordinal position i, shifting later entries.
func (x *Index) Insert(i int, t int64) error {
	if i < 0 || i > len(x.times) {
		return fmt.Errorf("%w: insert at %d of %d", ErrIndexRange, i, len(x.times))
	}
	x.times = append(x.times, 0)
	copy(x.times[i+1:], x.times[i:])
	x.times[i] = t
	return nil
}

// Remove deletes the entry at ordinal position i and returns its time.
func (x *Index) Remove(i int) (int64, error) {
	if i < 0 || i >= len(x.times) {
		return 0, fmt.Errorf("%w: remove at %d of %d", ErrIndexRange, i, len(x.times))
	}
	t := x.times[i]
	x.times = append(x.times[:i], x.times[i+1:]...)
	return t, nil
}

func (x *Index) Set(i int, t int64) error {
	if i < 0 || i >= len(x.times) {
		return fmt.Errorf("%w: set at %d of %d", ErrIndexRange, i, len(x.times))
	}
	x.times[i] = t
	return nil
}

// Markers locates every indexed marker in doc. Offsets come from the document;
// times come from the index for each ordinal it covers.
func (x *Index) Markers(doc Source) []Marker {
	matches, _ := timecode.Scan(doc.Runes())
	out := make([]Marker, len(matches))
	for i, m := range matches {
		t := m.Time
		if i < len(x.times) {
			t = x.times[i]
		}
		out[i] = Marker{Offset: m.Offset, Length: m.Length, Time: t}
	}
	return out
}

// Verify checks that the index and the document agree marker for marker.
func (x *Index) Verify(doc Source) error {
	matches, _ := timecode.Scan(doc.Runes())
	if len(matches) != len(x.times) {
		return fmt.Errorf("%w: document has %d markers, index has %d", ErrOutOfSync, len(matches), len(x.times))
	}
	for i, m := range matches {
		if m.Time != x.times[i] {
			return fmt.Errorf("%w: marker %d at offset %d is %d, index has %d", ErrOutOfSync, i, m.Offset, m.Time, x.times[i])
		}
	}
	return nil
}

// Ordinal is the number of markers whose glyph lies before offset, which is
// also the index position a marker inserted at offset takes.
func (x *Index) Ordinal(offset int, doc Source) int {
	return OrdinalIn(x.Markers(doc), offset)
}

// OrdinalIn is Ordinal over an already located marker list.
func OrdinalIn(markers []Marker, offset int) int {
	n := 0
	for _, m := range markers {
		if m.Offset >= offset {
			break
		}
		n++
	}
	return n
}

// FindBounding returns the last marker whose glyph is before offset and the
// first marker whose glyph is at or after it. Missing neighbours are reported
// as DocumentStart and MediaEnd.
func (x *Index) FindBounding(offset int, doc Source) (prev, next Marker) {
	return Bounding(x.Markers(doc), offset)
}

// Bounding is FindBounding over an already located marker list.
func Bounding(markers []Marker, offset int) (prev, next Marker) {
	k := OrdinalIn(markers, offset)
	prev, next = DocumentStart, MediaEnd
	if k > 0 {
		prev = markers[k-1]
	}
	if k < len(markers) {
		next = markers[k]
	}
	return prev, next
}

// NearestAtOrBefore returns the greatest recorded time not later than t plus the
// tolerance, or 0 when there is none.
func (x *Index) NearestAtOrBefore(t int64) int64 {
	limit := t + x.Tolerance
	var best int64
	found := false
	for _, v := range x.times {
		if v <= limit && (!found || v > best) {
			best, found = v, true
		}
	}
	if !found {
		return 0
	}
	return best
}

// PrevOf returns the closest recorded time strictly smaller than t, scanning
// back from the end so that runs of equal times are skipped.
func (x *Index) PrevOf(t int64) (int64, bool) {
	for j := len(x.times) - 1; j >= 0; j-- {
		if x.times[j] < t {
			return x.times[j], true
		}
	}
	return 0, false
}

// NextOf returns the closest recorded time strictly greater than t.
func (x *Index) NextOf(t int64) (int64, bool) {
	for _, v := range x.times {
		if v > t {
			return v, true
		}
	}
	return 0, false
}

// First returns the ordinal of the first marker recorded with time t, or -1.
func (x *Index) First(t int64) int {
	for i, v := range x.times {
		if v == t {
			return i
		}
	}
	return -1
}
