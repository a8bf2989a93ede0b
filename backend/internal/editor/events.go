package editor

// EventKind names what changed in a session.
type EventKind string

const (
	EventTextChanged      EventKind = "text_changed"
	EventMarkerSetChanged EventKind = "marker_set_changed"
	EventStyleChanged     EventKind = "style_changed"
	EventStateChanged     EventKind = "state_changed"
	EventSaved            EventKind = "saved"
)

// Event is delivered to observers after a change is committed. Start and End
// bound the affected range where that is meaningful.
type Event struct {
	Kind     EventKind
	Revision uint64
	Start    int
	End      int
}

type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
