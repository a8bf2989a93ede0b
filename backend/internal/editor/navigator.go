package editor

import (
	"fmt"

	"transcriptServer/backend/internal/index"
	"transcriptServer/backend/internal/timecode"
)

// ScrollTargetForTime finds the marker nearest at or before ms (within the
// index tolerance), makes it the current time code and selects the segment up
// to the following marker. It reports whether the cursor moved, so callers can
// skip redundant redraws.
func (s *Session) ScrollTargetForTime(ms int64) (bool, int) {
	if s.idx.Len() == 0 {
		return false, s.selection.Start
	}
	t := s.idx.NearestAtOrBefore(ms)
	s.currentTime = t

	markers := s.idx.Markers(s.doc)
	target, end := 0, s.doc.Len()
	if k := s.idx.First(t); k >= 0 && k < len(markers) {
		target = markers[k].Offset
		if k+1 < len(markers) {
			end = markers[k+1].Offset
		}
	} else if len(markers) > 0 {
		end = markers[0].Offset
	}

	moved := target != s.selection.Start
	s.selection = Selection{Start: target, End: end}
	return moved, target
}

// SelectedTimeRange returns the time of the last marker before the start of
// sel and of the first marker at or after its end. A cursor placed right in
// front of a glyph therefore sits in the segment that glyph closes. The start
// is 0 when no marker precedes; the end is timecode.OpenEnded when none follows.
func (s *Session) SelectedTimeRange(sel Selection) (int64, int64) {
	sel = sel.Normalize()
	markers := s.idx.Markers(s.doc)
	prev, _ := index.Bounding(markers, sel.Start)
	_, next := index.Bounding(markers, sel.End)
	return prev.Time, next.Time
}

// TimeToOffset returns the glyph offset of the marker nearest at or before ms,
// or 0 when there is none.
func (s *Session) TimeToOffset(ms int64) int {
	k := s.idx.First(s.idx.NearestAtOrBefore(ms))
	if k < 0 {
		return 0
	}
	markers := s.idx.Markers(s.doc)
	if k >= len(markers) {
		return 0
	}
	return markers[k].Offset
}

// OffsetToTime returns the time of the last marker whose glyph is at or before
// offset, or 0 when there is none.
func (s *Session) OffsetToTime(offset int) int64 {
	var t int64
	for _, m := range s.idx.Markers(s.doc) {
		if m.Offset > offset {
			break
		}
		t = m.Time
	}
	return t
}

// PrevSegment moves to the closest earlier time code and seeks playback there.
// The boolean is false when there is no earlier segment.
func (s *Session) PrevSegment() (int64, bool, error) {
	t, ok := s.idx.PrevOf(s.currentTime)
	if !ok {
		return s.currentTime, false, nil
	}
	return t, true, s.jumpTo(t)
}

// NextSegment moves to the closest later time code and seeks playback there.
func (s *Session) NextSegment() (int64, bool, error) {
	t, ok := s.idx.NextOf(s.currentTime)
	if !ok {
		return s.currentTime, false, nil
	}
	return t, true, s.jumpTo(t)
}

func (s *Session) jumpTo(t int64) error {
	s.ScrollTargetForTime(t)
	// the tolerance may have landed on a later marker
	s.currentTime = t
	if s.playback == nil {
		return nil
	}
	end, ok := s.idx.NextOf(t)
	if !ok {
		end = s.scope.End()
	}
	if err := s.playback.Seek(t, end); err != nil {
		return fmt.Errorf("seek to %s: %w", timecode.Format(t), err)
	}
	return nil
}

// PlaySelection highlights the time range of sel on the media and seeks to
// its start. An open end plays to the end of the scope.
func (s *Session) PlaySelection(sel Selection) (int64, int64, error) {
	if s.playback == nil {
		return 0, 0, ErrNoPlayback
	}
	start, end := s.SelectedTimeRange(sel)
	if end == timecode.OpenEnded {
		end = s.scope.End()
	}
	if err := s.playback.SetSelectionHighlight(start, end); err != nil {
		return start, end, fmt.Errorf("highlight %s-%s: %w", timecode.Format(start), timecode.Format(end), err)
	}
	if err := s.playback.Seek(start, end); err != nil {
		return start, end, fmt.Errorf("seek to %s: %w", timecode.Format(start), err)
	}
	return start, end, nil
}

// SyncToPlayback polls the time source and scrolls to the matching segment.
func (s *Session) SyncToPlayback() (bool, int, error) {
	if s.clock == nil {
		return false, 0, ErrNoTimeSource
	}
	t, err := s.clock.CurrentTime()
	if err != nil {
		return false, 0, fmt.Errorf("query media position: %w", err)
	}
	moved, target := s.ScrollTargetForTime(t)
	return moved, target, nil
}
