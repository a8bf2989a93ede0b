// Package document holds the mutable transcript text together with a style per
// character range. It works on raw rune offsets and knows nothing about markers.
package document

import "errors"

var (
	// ErrInvalidPosition indicates that an offset or range is outside the document.
	ErrInvalidPosition = errors.New("position out of bounds")
)

// Style classifies a rune for display.
type Style uint8

const (
	// StyleText is ordinary transcript text.
	StyleText Style = iota
	// StyleTimecode is a marker glyph shown to the user.
	StyleTimecode
	// StyleHidden is a collapsed marker glyph or a marker data span.
	StyleHidden
)

func (s Style) String() string {
	switch s {
	case StyleText:
		return "text"
	case StyleTimecode:
		return "timecode"
	case StyleHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// MarshalText encodes a style by name.
func (s Style) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// IsMarker reports whether the style belongs to a marker span.
func (s Style) IsMarker() bool { return s == StyleTimecode || s == StyleHidden }

// Run is a maximal range of runes sharing one style.
type Run struct {
	Start  int   `json:"start"`
	Length int   `json:"length"`
	Style  Style `json:"style"`
}

// Buffer is the document content abstraction the editor works against.
type Buffer interface {
	Len() int
	String() string
	Runes() []rune
	Slice(start, end int) (string, error)
	CharAt(pos int) (rune, error)
	StyleAt(pos int) (Style, error)
	Insert(pos int, text string, style Style) error
	Delete(start, end int) error
	SetStyle(start, end int, style Style) error
	SetHidden(start, end int, hidden bool) error
	Runs() []Run
}

/*
Layout example

Initial content "Hello world":

- original buffer: "Hello world"
- add buffer: ""
- pieces:

[ (orig, offset=0, length=11, text) ]

Insert a hidden marker "¤<500>" at position 5:

- add buffer = "¤<500>"
- pieces:

[
  (orig, offset=0, length=5, text),    // "Hello"
  (add,  offset=0, length=6, hidden),  // "¤<500>"
  (orig, offset=5, length=6, text),    // " world"
]

Style changes only split pieces and relabel them; the rune buffers are never
rewritten.
*/
