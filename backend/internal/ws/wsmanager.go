package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"transcriptServer/backend/internal/collab"
)

// local development origins are accepted
var upgrader = websocket.Upgrader{CheckOrigin: checkOrigin}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}

type Manager struct {
	hub *Hub
	svc *collab.Service
	sem *collab.SemaphoreControl
	log zerolog.Logger
}

func NewManager(hub *Hub, svc *collab.Service, sem *collab.SemaphoreControl, log zerolog.Logger) *Manager {
	return &Manager{hub: hub, svc: svc, sem: sem, log: log.With().Str("component", "ws").Logger()}
}

// WebSocketConnect upgrades an authenticated request and serves the editing
// protocol until the client goes away. A transcriptId query parameter opens
// that transcript right away.
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetUint64("userId")
	username := c.GetString("username")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.log.Warn().Err(err).Str("origin", c.Request.Header.Get("Origin")).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.svc, m.sem, userID, username, m.log)

	// writer first so queued messages go out
	go wsConn.writeLoop()
	wsConn.Enqueue(ServerMessage{Type: TypeWelcome, UserID: userID, Content: "connected as " + username})

	ctx := c.Request.Context()
	if id := c.Query("transcriptId"); id != "" {
		wsConn.open(ctx, id)
	}
	wsConn.readLoop(ctx)
}
