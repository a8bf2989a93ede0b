package editor

import (
	"errors"
	"fmt"

	"transcriptServer/backend/internal/document"
	"transcriptServer/backend/internal/index"
	"transcriptServer/backend/internal/ot/delta"
	"transcriptServer/backend/internal/timecode"
)

// Direction of a single-character delete.
type Direction int8

const (
	// Forward deletes the character after the cursor (Delete key).
	Forward Direction = 1
	// Backward deletes the character before the cursor (Backspace).
	Backward Direction = -1
)

const (
	promptSingle    = "Do you want to delete the Time Code at %s?"
	promptSelection = "Your current selection contains at least one Time Code.\nAre you sure you want to delete it?"
)

// EditResult reports what a deleting edit did. When Declined is set nothing
// was changed and Prompt holds the question that was refused.
type EditResult struct {
	Start    int
	End      int
	Removed  []int64
	Inserted Selection
	Declined bool
	Prompt   *DeletionPrompt
}

// errNoChange aborts an edit that turned out to be a no-op.
var errNoChange = errors.New("no change")

// quiet maps the internal abort reasons to a nil error.
func quiet(err error) error {
	if errors.Is(err, errDeclined) || errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// InsertMarker embeds a marker for timeMs at offset. The time must not be
// earlier than the previous marker and must be earlier than the next one; a
// zero time may also go in front of an existing zero marker at the very start.
// An offset inside another marker is moved past it.
func (s *Session) InsertMarker(offset int, timeMs int64) (index.Marker, error) {
	var m index.Marker
	err := s.edit("insert_timecode", func() (err error) {
		m, err = s.insertMarker(offset, timeMs)
		return err
	})
	return m, err
}

// InsertMarkerNow inserts a marker at the current media position.
func (s *Session) InsertMarkerNow(offset int) (index.Marker, error) {
	if err := s.writable(); err != nil {
		return index.Marker{}, err
	}
	if s.clock == nil {
		return index.Marker{}, ErrNoTimeSource
	}
	t, err := s.clock.CurrentTime()
	if err != nil {
		return index.Marker{}, fmt.Errorf("query media position: %w", err)
	}
	return s.InsertMarker(offset, t)
}

// InsertTimedSpan inserts "start marker, (duration), end marker" at the start
// of sel. The times are checked against the time range of sel, with an open
// end replaced by the end of the scope.
func (s *Session) InsertTimedSpan(sel Selection, startMs, endMs int64) (Selection, error) {
	var out Selection
	err := s.edit("insert_timed_span", func() error {
		if !timecode.Valid(startMs) || !timecode.Valid(endMs) || endMs < startMs {
			return fmt.Errorf("%w: timed span %d..%d", ErrOutOfRange, startMs, endMs)
		}
		sel = sel.Normalize()
		if err := s.checkOffset(sel.Start); err != nil {
			return err
		}
		if err := s.checkOffset(sel.End); err != nil {
			return err
		}
		prevT, nextT := s.SelectedTimeRange(sel)
		if nextT == timecode.OpenEnded {
			nextT = s.scope.End()
		}
		if prevT > startMs {
			return &OrderingError{Requested: startMs, Prev: prevT, Next: nextT}
		}
		if nextT < endMs {
			return &OrderingError{Requested: endMs, Prev: prevT, Next: nextT}
		}

		first, err := s.insertMarker(sel.Start, startMs)
		if err != nil {
			return err
		}
		note := timecode.FormatSeconds(endMs - startMs)
		if err := s.doc.Insert(first.End(), note, document.StyleText); err != nil {
			return err
		}
		last, err := s.insertMarker(first.End()+len([]rune(note)), endMs)
		if err != nil {
			return err
		}
		out = Selection{Start: first.Offset, End: last.End()}
		s.notify(Event{Kind: EventTextChanged, Start: out.Start, End: out.End})
		return nil
	})
	return out, err
}

// InsertText inserts typed or pasted text. Markers embedded in text are kept
// when their times fit the ordering at offset; a sentinel that does not start
// a well-formed marker is rejected with ErrMalformedMarker.
func (s *Session) InsertText(offset int, text string) (Selection, error) {
	var out Selection
	err := s.edit("insert_text", func() (err error) {
		if text == "" {
			return errNoChange
		}
		out, err = s.insertText(offset, text)
		return err
	})
	return out, quiet(err)
}

// DeleteRange deletes [start, end), widened to whole markers. Removing any
// marker needs confirmed or a yes from the Confirmer.
func (s *Session) DeleteRange(start, end int, confirmed bool) (EditResult, error) {
	var res EditResult
	err := s.edit("delete_range", func() error {
		sel := Selection{Start: start, End: end}.Normalize()
		if err := s.checkRange(sel); err != nil {
			return err
		}
		if sel.Empty() {
			return errNoChange
		}
		return s.deleteRange(sel.Start, sel.End, confirmed, false, &res)
	})
	return res, quiet(err)
}

// DeleteAdjacent deletes one character next to offset. When that character
// belongs to a marker the whole marker goes, after confirmation.
func (s *Session) DeleteAdjacent(offset int, dir Direction, confirmed bool) (EditResult, error) {
	var res EditResult
	err := s.edit("delete_adjacent", func() error {
		if err := s.checkOffset(offset); err != nil {
			return err
		}
		pos := offset
		if dir == Backward {
			pos = offset - 1
		}
		res.Start, res.End = offset, offset
		if pos < 0 || pos >= s.doc.Len() {
			return errNoChange
		}
		if m, ok := markerAt(s.idx.Markers(s.doc), pos); ok {
			return s.deleteRange(m.Offset, m.End(), confirmed, true, &res)
		}
		return s.deleteRange(pos, pos+1, confirmed, true, &res)
	})
	return res, quiet(err)
}

// ReplaceSelection types text over sel. The deleted part follows the
// DeleteRange rules; a declined confirmation leaves everything unchanged.
func (s *Session) ReplaceSelection(sel Selection, text string, confirmed bool) (EditResult, error) {
	var res EditResult
	err := s.edit("replace_selection", func() error {
		sel = sel.Normalize()
		if err := s.checkRange(sel); err != nil {
			return err
		}
		pos := sel.Start
		if sel.Empty() && text == "" {
			return errNoChange
		}
		if !sel.Empty() {
			if err := s.deleteRange(sel.Start, sel.End, confirmed, false, &res); err != nil {
				return err
			}
			pos = res.Start
		}
		ins, err := s.insertText(pos, text)
		if err != nil {
			return err
		}
		res.Inserted = ins
		return nil
	})
	return res, quiet(err)
}

// Copy puts the raw text of sel, markers included, on the clipboard.
func (s *Session) Copy(sel Selection) error {
	if s.closed {
		return ErrClosed
	}
	if s.clipboard == nil {
		return ErrNoClipboard
	}
	sel = sel.Normalize()
	if err := s.checkRange(sel); err != nil {
		return err
	}
	text, err := s.doc.Slice(sel.Start, sel.End)
	if err != nil {
		return err
	}
	return s.clipboard.WriteText(text)
}

// Cut copies sel, widened to whole markers, and deletes it.
func (s *Session) Cut(sel Selection, confirmed bool) (EditResult, error) {
	var res EditResult
	err := s.edit("cut", func() error {
		if s.clipboard == nil {
			return ErrNoClipboard
		}
		sel = sel.Normalize()
		if err := s.checkRange(sel); err != nil {
			return err
		}
		if sel.Empty() {
			return errNoChange
		}
		d := s.planDelete(sel.Start, sel.End)
		text, err := s.doc.Slice(d.start, d.end)
		if err != nil {
			return err
		}
		if err := s.deleteRange(d.start, d.end, confirmed, false, &res); err != nil {
			return err
		}
		if err := s.clipboard.WriteText(text); err != nil {
			return fmt.Errorf("write clipboard: %w", err)
		}
		return nil
	})
	return res, quiet(err)
}

// Paste inserts the clipboard text at offset under the InsertText rules.
func (s *Session) Paste(offset int) (Selection, error) {
	var out Selection
	err := s.edit("paste", func() error {
		if s.clipboard == nil {
			return ErrNoClipboard
		}
		text, err := s.clipboard.ReadText()
		if err != nil {
			return fmt.Errorf("read clipboard: %w", err)
		}
		if text == "" {
			return errNoChange
		}
		out, err = s.insertText(offset, text)
		return err
	})
	return out, quiet(err)
}

// AdjustAllMarkers shifts every marker by deltaMs. Every new time is checked
// before anything changes; one out-of-range result rejects the whole batch.
func (s *Session) AdjustAllMarkers(deltaMs int64) error {
	err := s.edit("adjust_timecodes", func() error {
		markers := s.idx.Markers(s.doc)
		for _, m := range markers {
			if nt := m.Time + deltaMs; !timecode.Valid(nt) {
				return fmt.Errorf("%w: time code at %s shifted by %d ms", ErrOutOfRange, timecode.Format(m.Time), deltaMs)
			}
		}
		if deltaMs == 0 || len(markers) == 0 {
			return errNoChange
		}

		// data spans change length with the digit count, so later offsets drift
		drift := 0
		for i, m := range markers {
			nt := m.Time + deltaMs
			dataStart := m.Offset + 1 + drift
			dataEnd := m.End() + drift
			if err := s.doc.Delete(dataStart, dataEnd); err != nil {
				return err
			}
			if err := s.doc.Insert(dataStart, timecode.EncodeData(nt), document.StyleHidden); err != nil {
				return err
			}
			if err := s.idx.Set(i, nt); err != nil {
				return err
			}
			drift += timecode.DataLen(nt) - (m.Length - 1)
		}
		s.notify(Event{Kind: EventTextChanged, Start: 0, End: s.doc.Len()})
		s.notify(Event{Kind: EventMarkerSetChanged})
		return nil
	})
	return quiet(err)
}

// ApplyDelta applies a remote edit intent through the marker-aware
// operations. Deletions inside it follow the DeleteRange rules.
func (s *Session) ApplyDelta(d delta.Delta, confirmed bool) (EditResult, error) {
	var res EditResult
	err := s.edit("apply_delta", func() error {
		if err := d.Validate(); err != nil {
			return err
		}
		pos := 0
		for _, op := range d {
			switch op.Kind {
			case delta.KindRetain:
				if pos+op.Count > s.doc.Len() {
					return fmt.Errorf("%w: retain %d past end at %d", ErrOutOfRange, op.Count, pos)
				}
				pos += op.Count
			case delta.KindInsert:
				ins, err := s.insertText(pos, op.Text)
				if err != nil {
					return err
				}
				pos = ins.End
			case delta.KindDelete:
				if pos+op.Count > s.doc.Len() {
					return fmt.Errorf("%w: delete %d past end at %d", ErrOutOfRange, op.Count, pos)
				}
				var part EditResult
				if err := s.deleteRange(pos, pos+op.Count, confirmed, false, &part); err != nil {
					res.Declined, res.Prompt = part.Declined, part.Prompt
					return err
				}
				res.Removed = append(res.Removed, part.Removed...)
				pos = part.Start
			}
		}
		return nil
	})
	return res, quiet(err)
}

func (s *Session) checkOffset(offset int) error {
	if offset < 0 || offset > s.doc.Len() {
		return fmt.Errorf("%w: offset %d not in [0, %d]", ErrOutOfRange, offset, s.doc.Len())
	}
	return nil
}

func (s *Session) checkRange(sel Selection) error {
	if err := s.checkOffset(sel.Start); err != nil {
		return err
	}
	return s.checkOffset(sel.End)
}

func (s *Session) insertMarker(offset int, t int64) (index.Marker, error) {
	if !timecode.Valid(t) {
		return index.Marker{}, fmt.Errorf("%w: time %d", ErrOutOfRange, t)
	}
	if err := s.checkOffset(offset); err != nil {
		return index.Marker{}, err
	}
	markers := s.idx.Markers(s.doc)
	offset = snapOut(markers, offset)
	prev, next := index.Bounding(markers, offset)
	if !fits(prev.Time, next, t, offset == 0) {
		return index.Marker{}, &OrderingError{Requested: t, Prev: prev.Time, Next: next.Time}
	}

	m := index.Marker{Offset: offset, Length: timecode.SpanLen(t), Time: t}
	if err := s.doc.Insert(offset, string(timecode.Sentinel), s.glyphStyle()); err != nil {
		return index.Marker{}, err
	}
	if err := s.doc.Insert(offset+1, timecode.EncodeData(t), document.StyleHidden); err != nil {
		return index.Marker{}, err
	}
	if err := s.idx.Insert(index.OrdinalIn(markers, offset), t); err != nil {
		return index.Marker{}, err
	}
	s.notify(Event{Kind: EventTextChanged, Start: m.Offset, End: m.End()})
	s.notify(Event{Kind: EventMarkerSetChanged})
	return m, nil
}

func (s *Session) insertText(offset int, text string) (Selection, error) {
	if err := s.checkOffset(offset); err != nil {
		return Selection{}, err
	}
	markers := s.idx.Markers(s.doc)
	offset = snapOut(markers, offset)
	runes := []rune(text)
	if len(runes) == 0 {
		return Selection{Start: offset, End: offset}, nil
	}

	found, malformed := timecode.Scan(runes)
	if len(malformed) > 0 {
		return Selection{}, fmt.Errorf("%w: stray %q at %d of inserted text", ErrMalformedMarker, timecode.Sentinel, malformed[0])
	}
	prev, next := index.Bounding(markers, offset)
	lower := prev.Time
	for _, f := range found {
		if !fits(lower, next, f.Time, offset+f.Offset == 0) {
			return Selection{}, &OrderingError{Requested: f.Time, Prev: lower, Next: next.Time}
		}
		lower = f.Time
	}

	if err := s.doc.Insert(offset, text, document.StyleText); err != nil {
		return Selection{}, err
	}
	k := index.OrdinalIn(markers, offset)
	for i, f := range found {
		m := index.Marker{Offset: offset + f.Offset, Length: f.Length, Time: f.Time}
		if err := s.styleMarker(m); err != nil {
			return Selection{}, err
		}
		if err := s.idx.Insert(k+i, f.Time); err != nil {
			return Selection{}, err
		}
	}
	// text can complete a stray sentinel already in the document
	if all, _ := timecode.Scan(s.doc.Runes()); len(all) != s.idx.Len() {
		return Selection{}, fmt.Errorf("%w: insert at %d forms an unexpected time code", ErrMalformedMarker, offset)
	}

	out := Selection{Start: offset, End: offset + len(runes)}
	s.notify(Event{Kind: EventTextChanged, Start: out.Start, End: out.End})
	if len(found) > 0 {
		s.notify(Event{Kind: EventMarkerSetChanged})
	}
	return out, nil
}

// deletion is a range already widened to whole markers.
type deletion struct {
	start, end int
	markers    []index.Marker
	first      int
}

func (s *Session) planDelete(start, end int) deletion {
	all := s.idx.Markers(s.doc)
	for _, m := range all {
		if m.Offset < end && m.End() > start {
			start = min(start, m.Offset)
			end = max(end, m.End())
		}
	}
	d := deletion{start: start, end: end, first: -1}
	for i, m := range all {
		if m.Offset >= start && m.End() <= end {
			if d.first < 0 {
				d.first = i
			}
			d.markers = append(d.markers, m)
		}
	}
	return d
}

func (s *Session) deleteRange(start, end int, confirmed, single bool, res *EditResult) error {
	d := s.planDelete(start, end)
	res.Start, res.End = d.start, d.end

	if len(d.markers) > 0 && !confirmed {
		p := DeletionPrompt{Start: d.start, End: d.end, Message: promptSelection}
		for _, m := range d.markers {
			p.Times = append(p.Times, m.Time)
		}
		if single && len(d.markers) == 1 {
			p.Message = fmt.Sprintf(promptSingle, timecode.Format(d.markers[0].Time))
		}
		res.Prompt = &p
		if s.confirmer == nil || !s.confirmer.Confirm(p) {
			res.Declined = true
			return errDeclined
		}
	}

	// marker surgery works on revealed text
	revealed := s.hiddenRevealed
	if len(d.markers) > 0 {
		s.setHiddenRevealed(true)
	}
	if err := s.doc.Delete(d.start, d.end); err != nil {
		return err
	}
	for i := len(d.markers) - 1; i >= 0; i-- {
		t, err := s.idx.Remove(d.first + i)
		if err != nil {
			return err
		}
		res.Removed = append([]int64{t}, res.Removed...)
	}
	// joining the text around the gap can complete a stray sentinel
	if all, _ := timecode.Scan(s.doc.Runes()); len(all) != s.idx.Len() {
		return fmt.Errorf("%w: delete of %d-%d forms an unexpected time code", ErrMalformedMarker, d.start, d.end)
	}
	s.notify(Event{Kind: EventTextChanged, Start: d.start, End: d.start})
	if len(d.markers) > 0 {
		s.setHiddenRevealed(revealed)
		s.notify(Event{Kind: EventMarkerSetChanged})
	}
	return nil
}

// fits applies the ordering rule for a marker at time t between a previous
// time and the next marker.
func fits(prevT int64, next index.Marker, t int64, atStart bool) bool {
	if prevT <= t && (!next.Found() || t < next.Time) {
		return true
	}
	return t == 0 && atStart && next.Found() && next.Time == 0
}

// snapOut moves an offset that falls inside a marker span to the span's end.
func snapOut(markers []index.Marker, offset int) int {
	if m, ok := markerAt(markers, offset); ok && m.Offset < offset {
		return m.End()
	}
	return offset
}

// markerAt returns the marker whose span holds the rune at pos.
func markerAt(markers []index.Marker, pos int) (index.Marker, bool) {
	for _, m := range markers {
		if m.Offset > pos {
			break
		}
		if pos < m.End() {
			return m, true
		}
	}
	return index.Marker{}, false
}
