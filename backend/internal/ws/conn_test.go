package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptServer/backend/internal/collab"
	"transcriptServer/backend/internal/editor"
)

type memPersistence struct {
	mu   sync.Mutex
	snap editor.Snapshot
}

func (m *memPersistence) Load(ctx context.Context) (editor.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memPersistence) Save(ctx context.Context, snap editor.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	return nil
}

type oneCatalog struct{ p *memPersistence }

func (c oneCatalog) Binding(ctx context.Context, id string) (editor.Scope, editor.Persistence, error) {
	return editor.EpisodeScope(60_000), c.p, nil
}

func dialTest(t *testing.T, content string) (*websocket.Conn, *memPersistence) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p := &memPersistence{snap: editor.Snapshot{Content: content, Format: "text"}}
	svc := collab.NewService(oneCatalog{p: p}, nil, nil, nil, collab.ServiceOptions{}, zerolog.Nop())
	m := NewManager(NewHub(), svc, collab.NewSemaphoreControl(4), zerolog.Nop())

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("userId", uint64(1))
		c.Set("username", "alice")
	}, m.WebSocketConnect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?transcriptId=t1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, p
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func ms(v int64) *int64 { return &v }

func TestConn_EditingProtocol(t *testing.T) {
	conn, p := dialTest(t, "hello world")

	readUntil(t, conn, TypeWelcome)
	state := readUntil(t, conn, TypeTranscript)
	assert.Equal(t, "hello world", state.Content)
	assert.Equal(t, "read-only", state.State)

	send(t, conn, ClientMessage{Type: "insertText", Offset: 0, Text: "x"})
	assert.Contains(t, readUntil(t, conn, TypeError).Content, "not in edit mode")

	send(t, conn, ClientMessage{Type: "beginEdit"})
	assert.Equal(t, "editable", readUntil(t, conn, TypeFeedback).State)

	send(t, conn, ClientMessage{Type: "insertTimecode", Offset: 5, TimeMs: ms(2000)})
	readUntil(t, conn, TypeApplied)

	send(t, conn, ClientMessage{Type: "insertTimecode", Offset: 0, TimeMs: ms(5000)})
	assert.Contains(t, readUntil(t, conn, TypeError).Content, "time code sequence error")

	send(t, conn, ClientMessage{Type: "deleteRange", Start: 4, End: 14})
	confirm := readUntil(t, conn, TypeConfirmRequired)
	require.NotNil(t, confirm.Prompt)
	assert.Equal(t, "deleteRange", confirm.Prompt.Request)
	assert.Equal(t, []int64{2000}, confirm.Prompt.Times)

	send(t, conn, ClientMessage{Type: "deleteRange", Start: 4, End: 14, Confirmed: true})
	applied := readUntil(t, conn, TypeApplied)
	assert.Equal(t, []int64{2000}, applied.Times)

	send(t, conn, ClientMessage{Type: "saveAndEndEdit"})
	assert.Equal(t, "read-only", readUntil(t, conn, TypeFeedback).State)
	p.mu.Lock()
	assert.Equal(t, "hellorld", p.snap.Content)
	p.mu.Unlock()
}

func TestConn_Navigation(t *testing.T) {
	conn, _ := dialTest(t, "¤<0>aa¤<1000>bb")
	readUntil(t, conn, TypeTranscript)

	send(t, conn, ClientMessage{Type: "scrollToTime", TimeMs: ms(1500)})
	scroll := readUntil(t, conn, TypeScroll)
	assert.True(t, scroll.Moved)
	require.NotNil(t, scroll.Range)
	assert.Equal(t, 6, scroll.Range.Start)

	send(t, conn, ClientMessage{Type: "selectedTimeRange", Start: 4, End: 5})
	rng := readUntil(t, conn, TypeTimeRange)
	assert.Equal(t, int64(0), *rng.StartMs)
	assert.Equal(t, int64(1000), *rng.EndMs)

	send(t, conn, ClientMessage{Type: "nonsense"})
	readUntil(t, conn, TypeIgnored)
}

func TestCheckOrigin(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, checkOrigin(r))
	r.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, checkOrigin(r))
}
