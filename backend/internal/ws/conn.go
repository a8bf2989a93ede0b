package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"transcriptServer/backend/internal/collab"
	"transcriptServer/backend/internal/editor"
)

const editTimeout = 200 * time.Millisecond

var errNoTranscript = errors.New("no transcript open, send openTranscript first")

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	svc      *collab.Service
	sem      *collab.SemaphoreControl
	log      zerolog.Logger
	userID   uint64
	username string

	transcriptID string
	unwatch      func()

	mu     sync.Mutex
	closed bool
	send   chan ServerMessage
}

func NewConn(ws *websocket.Conn, hub *Hub, svc *collab.Service, sem *collab.SemaphoreControl, userID uint64, username string, log zerolog.Logger) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		svc:      svc,
		sem:      sem,
		userID:   userID,
		username: username,
		log:      log.With().Uint64("userId", userID).Logger(),
		send:     make(chan ServerMessage, 32),
	}
}

// Enqueue queues msg for the write loop, dropping it when the queue is full.
func (c *Conn) Enqueue(msg ServerMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.log.Warn().Str("type", msg.Type).Msg("send queue full, dropping message")
	}
}

func (c *Conn) fail(err error) {
	c.Enqueue(ServerMessage{Type: TypeError, TranscriptID: c.transcriptID, Content: err.Error()})
}

func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer c.closeSend()
	defer c.leave()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.log.Debug().Err(err).Str("transcriptId", c.transcriptID).Msg("read json")
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			c.log.Debug().Err(err).Msg("write json")
		}
	}
}

func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	if msg.Type == "heartbeat" {
		c.heartbeat(ctx)
		return
	}
	if msg.Type == "openTranscript" {
		c.open(ctx, msg.TranscriptID)
		return
	}
	if c.transcriptID == "" {
		c.fail(errNoTranscript)
		return
	}
	id := c.transcriptID

	switch msg.Type {
	case "beginEdit":
		c.reply(c.svc.BeginEdit(ctx, id, c.userID))
	case "save":
		c.reply(c.svc.Save(ctx, id, c.userID))
	case "saveAndEndEdit":
		c.reply(c.svc.SaveAndEndEdit(ctx, id, c.userID))
	case "discard":
		c.reply(c.svc.Discard(ctx, id, c.userID))

	case "insertTimecode":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			var err error
			if msg.TimeMs == nil {
				_, err = s.InsertMarkerNow(msg.Offset)
			} else {
				_, err = s.InsertMarker(msg.Offset, *msg.TimeMs)
			}
			return ServerMessage{Type: TypeApplied}, err
		})
	case "insertTimedSpan":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			sel, err := s.InsertTimedSpan(editor.Selection{Start: msg.Start, End: msg.End}, msg.StartMs, msg.EndMs)
			return ServerMessage{Type: TypeApplied, Range: &Range{Start: sel.Start, End: sel.End}}, err
		})
	case "insertText":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			sel, err := s.InsertText(msg.Offset, msg.Text)
			return ServerMessage{Type: TypeApplied, Range: &Range{Start: sel.Start, End: sel.End}}, err
		})
	case "deleteRange":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			res, err := s.DeleteRange(msg.Start, msg.End, msg.Confirmed)
			return deletionReply(msg.Type, res), err
		})
	case "deleteAdjacent":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			dir := editor.Forward
			if msg.Direction < 0 {
				dir = editor.Backward
			}
			res, err := s.DeleteAdjacent(msg.Offset, dir, msg.Confirmed)
			return deletionReply(msg.Type, res), err
		})
	case "op_submit":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			res, err := s.ApplyDelta(msg.Ops, msg.Confirmed)
			return deletionReply(msg.Type, res), err
		})
	case "adjustTimecodes":
		c.edit(ctx, func(s *editor.Session) (ServerMessage, error) {
			return ServerMessage{Type: TypeApplied}, s.AdjustAllMarkers(msg.DeltaMs)
		})

	case "showCodes", "hideCodes":
		if err := c.svc.SetCodesVisible(ctx, id, c.userID, msg.Type == "showCodes"); err != nil {
			c.fail(err)
			return
		}
		c.view(ctx, func(s *editor.Session) (ServerMessage, error) {
			return ServerMessage{Type: TypeTranscript, Runs: s.Runs()}, nil
		})
	case "scrollToTime":
		if msg.TimeMs == nil {
			c.fail(errors.New("scrollToTime needs timeMs"))
			return
		}
		c.view(ctx, func(s *editor.Session) (ServerMessage, error) {
			moved, target := s.ScrollTargetForTime(*msg.TimeMs)
			sel := s.Selection()
			t := s.CurrentTime()
			return ServerMessage{Type: TypeScroll, Moved: moved, Range: &Range{Start: target, End: sel.End}, StartMs: &t}, nil
		})
	case "selectedTimeRange":
		c.view(ctx, func(s *editor.Session) (ServerMessage, error) {
			start, end := s.SelectedTimeRange(editor.Selection{Start: msg.Start, End: msg.End})
			return ServerMessage{Type: TypeTimeRange, StartMs: &start, EndMs: &end}, nil
		})
	case "playbackTime":
		if msg.TimeMs == nil {
			c.fail(errors.New("playbackTime needs timeMs"))
			return
		}
		if err := c.svc.ReportPlayhead(ctx, id, c.userID, *msg.TimeMs); err != nil {
			c.fail(err)
		}

	default:
		c.Enqueue(ServerMessage{Type: TypeIgnored, Content: "unknown message type " + msg.Type})
	}
}

func deletionReply(request string, res editor.EditResult) ServerMessage {
	if res.Declined && res.Prompt != nil {
		return ServerMessage{Type: TypeConfirmRequired, Prompt: &Prompt{
			Message: res.Prompt.Message,
			Start:   res.Prompt.Start,
			End:     res.Prompt.End,
			Times:   res.Prompt.Times,
			Request: request,
		}}
	}
	return ServerMessage{Type: TypeApplied, Range: &Range{Start: res.Start, End: res.End}, Times: res.Removed}
}

// edit runs fn as the editing user, bounded by the shared semaphore.
func (c *Conn) edit(ctx context.Context, fn func(*editor.Session) (ServerMessage, error)) {
	editCtx, cancel := context.WithTimeout(ctx, editTimeout)
	defer cancel()
	if c.sem != nil {
		if err := c.sem.Acquire(editCtx); err != nil {
			c.fail(err)
			return
		}
		defer c.sem.Release()
	}
	var out ServerMessage
	err := c.svc.Edit(editCtx, c.transcriptID, c.userID, func(s *editor.Session) error {
		var err error
		out, err = fn(s)
		out.Revision = s.Revision()
		return err
	})
	c.send1(out, err)
}

func (c *Conn) view(ctx context.Context, fn func(*editor.Session) (ServerMessage, error)) {
	var out ServerMessage
	err := c.svc.View(ctx, c.transcriptID, func(s *editor.Session) error {
		var err error
		out, err = fn(s)
		out.Revision = s.Revision()
		return err
	})
	c.send1(out, err)
}

func (c *Conn) send1(out ServerMessage, err error) {
	if err != nil {
		c.fail(err)
		return
	}
	out.TranscriptID = c.transcriptID
	c.Enqueue(out)
}

// reply answers a state transition with the resulting state.
func (c *Conn) reply(err error) {
	if err != nil {
		c.fail(err)
		return
	}
	c.view(context.Background(), func(s *editor.Session) (ServerMessage, error) {
		return ServerMessage{Type: TypeFeedback, State: s.State().String()}, nil
	})
}

func (c *Conn) heartbeat(ctx context.Context) {
	if c.transcriptID != "" {
		if err := c.svc.Join(ctx, c.transcriptID, c.userID, c.username); err != nil {
			c.log.Warn().Err(err).Msg("refresh presence")
		}
		members, err := c.svc.Members(ctx, c.transcriptID)
		if err != nil {
			c.log.Warn().Err(err).Msg("list members")
		} else {
			c.hub.BroadcastPresence(c.transcriptID, members)
		}
	}
	c.Enqueue(ServerMessage{Type: TypeFeedback, Content: "heartbeat received"})
}

// open moves the connection to transcript id and sends its full state.
func (c *Conn) open(ctx context.Context, id string) {
	if id == "" {
		c.fail(errors.New("openTranscript needs transcriptId"))
		return
	}
	if id != c.transcriptID {
		c.leave()
	}
	if err := c.svc.Join(ctx, id, c.userID, c.username); err != nil {
		c.fail(err)
		return
	}
	if c.unwatch == nil {
		unwatch, err := c.svc.Watch(ctx, id, c.onChange)
		if err != nil {
			c.fail(err)
			return
		}
		c.unwatch = unwatch
	}
	c.transcriptID = id
	c.hub.Join(id, c)

	c.view(ctx, func(s *editor.Session) (ServerMessage, error) {
		return ServerMessage{
			Type:    TypeTranscript,
			State:   s.State().String(),
			Content: s.Text(),
			Times:   s.Times(),
			Runs:    s.Runs(),
		}, nil
	})
}

// onChange runs with the transcript locked.
func (c *Conn) onChange(id string, ev editor.Event, s *editor.Session) {
	msg := ServerMessage{
		Type:         TypeChanged,
		TranscriptID: id,
		Event:        string(ev.Kind),
		Revision:     ev.Revision,
		State:        s.State().String(),
		Range:        &Range{Start: ev.Start, End: ev.End},
	}
	switch ev.Kind {
	case editor.EventTextChanged, editor.EventMarkerSetChanged, editor.EventStateChanged:
		msg.Content = s.Text()
		msg.Times = s.Times()
	case editor.EventStyleChanged:
		msg.Runs = s.Runs()
	}
	c.Enqueue(msg)
}

func (c *Conn) leave() {
	if c.transcriptID == "" {
		return
	}
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.hub.Leave(c.transcriptID, c)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.svc.Leave(ctx, c.transcriptID, c.userID); err != nil {
		c.log.Error().Err(err).Str("transcriptId", c.transcriptID).Msg("leave transcript")
	}
	c.transcriptID = ""
}
