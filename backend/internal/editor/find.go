package editor

import (
	"unicode"

	"transcriptServer/backend/internal/timecode"
)

// Clip is a selection prepared for dragging out as a new clip.
type Clip struct {
	Selection
	Text      string
	StartTime int64
	EndTime   int64
}

// ClipSelection snaps sel so that neither end cuts a marker apart, a marker at
// the very start being left out, and returns its raw text and time range. An
// open end is replaced by the end of the scope.
func (s *Session) ClipSelection(sel Selection) (Clip, error) {
	sel = sel.Normalize()
	if err := s.checkRange(sel); err != nil {
		return Clip{}, err
	}
	markers := s.idx.Markers(s.doc)
	if m, ok := markerAt(markers, sel.Start); ok && sel.Start < sel.End {
		sel.Start = m.End()
	}
	if m, ok := markerAt(markers, sel.End); ok && m.Offset < sel.End {
		sel.End = m.End()
	}
	sel.End = max(sel.End, sel.Start)

	text, err := s.doc.Slice(sel.Start, sel.End)
	if err != nil {
		return Clip{}, err
	}
	start, end := s.SelectedTimeRange(sel)
	if end == timecode.OpenEnded {
		end = s.scope.End()
	}
	return Clip{Selection: sel, Text: text, StartTime: start, EndTime: end}, nil
}

// Find searches the transcript text for query, ignoring marker spans. Forward
// searches return the first match starting at or after from; backward searches
// the last match ending at or before from.
func (s *Session) Find(query string, from int, backward, caseSensitive bool) (Selection, bool) {
	q := []rune(query)
	if len(q) == 0 {
		return Selection{}, false
	}
	runes := s.doc.Runes()
	markers := s.idx.Markers(s.doc)

	// visible text and the document offset of each of its runes
	visible := make([]rune, 0, len(runes))
	offsets := make([]int, 0, len(runes))
	mi := 0
	for i := 0; i < len(runes); {
		if mi < len(markers) && i == markers[mi].Offset {
			i = markers[mi].End()
			mi++
			continue
		}
		visible = append(visible, runes[i])
		offsets = append(offsets, i)
		i++
	}
	if !caseSensitive {
		fold(q)
		fold(visible)
	}

	match := func(j int) (Selection, bool) {
		for k := range q {
			if visible[j+k] != q[k] {
				return Selection{}, false
			}
		}
		return Selection{Start: offsets[j], End: offsets[j+len(q)-1] + 1}, true
	}

	if backward {
		for j := len(visible) - len(q); j >= 0; j-- {
			if offsets[j+len(q)-1]+1 > from {
				continue
			}
			if sel, ok := match(j); ok {
				return sel, true
			}
		}
		return Selection{}, false
	}
	for j := 0; j+len(q) <= len(visible); j++ {
		if offsets[j] < from {
			continue
		}
		if sel, ok := match(j); ok {
			return sel, true
		}
	}
	return Selection{}, false
}

func fold(r []rune) {
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
}
