// Package timecode implements the in-document representation of a time marker:
// a sentinel glyph immediately followed by a data span "<digits>".
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"
)

const (
	// Sentinel is the reserved glyph that starts every marker.
	Sentinel = '¤'

	OpenDelim  = '<'
	CloseDelim = '>'

	// MaxTime is the largest encodable marker time (exclusive upper bound is 2^31).
	MaxTime int64 = math.MaxInt32

	// OpenEnded is the "no later marker, extends to end of media" time.
	OpenEnded int64 = -1
)

// Match is a well-formed marker found by Scan. Offset and Length are in runes.
type Match struct {
	Offset int
	Length int
	Time   int64
}

// End is the offset just past the marker's closing delimiter.
func (m Match) End() int { return m.Offset + m.Length }

// Valid reports whether ms can be stored in a marker.
func Valid(ms int64) bool {
	return ms >= 0 && ms <= MaxTime
}

// Encode returns the full marker span for ms: sentinel + "<digits>".
func Encode(ms int64) string {
	return string(Sentinel) + EncodeData(ms)
}

// EncodeData returns only the data span "<digits>".
func EncodeData(ms int64) string {
	return string(OpenDelim) + strconv.FormatInt(ms, 10) + string(CloseDelim)
}

// SpanLen is the rune length of Encode(ms).
func SpanLen(ms int64) int {
	return 1 + DataLen(ms)
}

// DataLen is the rune length of EncodeData(ms).
func DataLen(ms int64) int {
	return 2 + len(strconv.FormatInt(ms, 10))
}

// Decode parses a full marker span. The second result is false when the span is
// malformed, so callers can skip it instead of failing.
func Decode(span string) (int64, bool) {
	r, size := utf8.DecodeRuneInString(span)
	if r != Sentinel {
		return 0, false
	}
	return DecodeData(span[size:])
}

// DecodeData parses a data span "<digits>".
func DecodeData(span string) (int64, bool) {
	if len(span) < 3 || span[0] != OpenDelim || span[len(span)-1] != CloseDelim {
		return 0, false
	}
	return parseDigits(span[1 : len(span)-1])
}

func parseDigits(digits string) (int64, bool) {
	if digits == "" || len(digits) > 10 {
		return 0, false
	}
	// no leading zeros except "0" itself
	if len(digits) > 1 && digits[0] == '0' {
		return 0, false
	}
	var v int64
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	if !Valid(v) {
		return 0, false
	}
	return v, true
}

// Scan walks text and returns every well-formed marker in document order plus the
// offsets of sentinels that do not start a well-formed marker.
func Scan(text []rune) (markers []Match, malformed []int) {
	for i := 0; i < len(text); i++ {
		if text[i] != Sentinel {
			continue
		}
		m, ok := matchAt(text, i)
		if !ok {
			malformed = append(malformed, i)
			continue
		}
		markers = append(markers, m)
		i = m.End() - 1
	}
	return markers, malformed
}

// MatchAt decodes the marker whose sentinel sits at offset i.
func MatchAt(text []rune, i int) (Match, bool) {
	if i < 0 || i >= len(text) || text[i] != Sentinel {
		return Match{}, false
	}
	return matchAt(text, i)
}

func matchAt(text []rune, i int) (Match, bool) {
	if i+1 >= len(text) || text[i+1] != OpenDelim {
		return Match{}, false
	}
	j := i + 2
	for j < len(text) && text[j] != CloseDelim {
		if text[j] < '0' || text[j] > '9' {
			return Match{}, false
		}
		j++
	}
	if j >= len(text) {
		return Match{}, false
	}
	ms, ok := parseDigits(string(text[i+2 : j]))
	if !ok {
		return Match{}, false
	}
	return Match{Offset: i, Length: j - i + 1, Time: ms}, true
}

// Format renders ms as H:MM:SS.t for user-facing messages.
func Format(ms int64) string {
	if ms < 0 {
		return "end"
	}
	tenths := (ms / 100) % 10
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d:%02d.%d", secs/3600, (secs/60)%60, secs%60, tenths)
}

// FormatSeconds renders a duration annotation such as "(2.5)".
func FormatSeconds(ms int64) string {
	secs := math.Round(float64(ms)/100.0) / 10.0
	return fmt.Sprintf("(%.1f)", secs)
}
