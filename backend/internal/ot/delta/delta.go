// Package delta is the edit intent a remote client submits: a list of
// retain/insert/delete operations walked left to right over the document.
package delta

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRetain Kind = "retain"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

var ErrInvalidOp = errors.New("invalid delta op")

type Op struct {
	Kind  Kind           `json:"kind"`            // "retain" / "insert" / "delete"
	Count int            `json:"count,omitempty"` // rune count for retain/delete
	Text  string         `json:"text,omitempty"`  // inserted text, may embed time codes
	Attrs map[string]any `json:"attrs,omitempty"` // carried through, not interpreted
}

type Delta []Op

// "ops":[{"kind":"retain","count":5},{"kind":"insert","text":"Hello"}]

// Validate rejects ops with a negative or missing count, empty inserts and
// unknown kinds.
func (d Delta) Validate() error {
	for i, op := range d {
		switch op.Kind {
		case KindRetain, KindDelete:
			if op.Count <= 0 {
				return fmt.Errorf("%w: op %d %s count %d", ErrInvalidOp, i, op.Kind, op.Count)
			}
		case KindInsert:
			if op.Text == "" {
				return fmt.Errorf("%w: op %d empty insert", ErrInvalidOp, i)
			}
		default:
			return fmt.Errorf("%w: op %d unknown kind %q", ErrInvalidOp, i, op.Kind)
		}
	}
	return nil
}

// BaseLen is the minimum document length the delta needs to apply.
func (d Delta) BaseLen() int {
	n := 0
	for _, op := range d {
		if op.Kind == KindRetain || op.Kind == KindDelete {
			n += op.Count
		}
	}
	return n
}

// Retain, Insert and Delete build single ops.
func Retain(n int) Op { return Op{Kind: KindRetain, Count: n} }
func Insert(text string) Op { return Op{Kind: KindInsert, Text: text} }
func Delete(n int) Op { return Op{Kind: KindDelete, Count: n} }
