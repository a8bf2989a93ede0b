package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transcriptServer/backend/internal/cache"
	"transcriptServer/backend/internal/collab"
	"transcriptServer/backend/internal/editor"
	"transcriptServer/backend/internal/store"
	"transcriptServer/backend/internal/timecode"
)

// Transcripts serves read access to transcripts. Editing goes over the
// websocket.
type Transcripts struct {
	svc         *collab.Service
	transcripts *store.TranscriptStore
	snapshots   *store.SnapshotStore
}

func NewTranscripts(svc *collab.Service, transcripts *store.TranscriptStore, snapshots *store.SnapshotStore) *Transcripts {
	return &Transcripts{svc: svc, transcripts: transcripts, snapshots: snapshots}
}

// Register mounts the routes on g.
func (h *Transcripts) Register(g *gin.RouterGroup) {
	g.POST("/transcripts", h.Create)
	g.GET("/transcripts", h.List)
	g.GET("/transcripts/:id", h.Get)
	g.GET("/transcripts/:id/markers", h.Markers)
	g.GET("/transcripts/:id/time", h.OffsetToTime)
	g.GET("/transcripts/:id/offset", h.TimeToOffset)
	g.GET("/transcripts/:id/range", h.TimeRange)
	g.GET("/transcripts/:id/clip", h.Clip)
	g.GET("/transcripts/:id/find", h.Find)
	g.GET("/transcripts/:id/history", h.History)
	g.GET("/transcripts/:id/members", h.Members)
}

type createRequest struct {
	Title        string `json:"title" binding:"required"`
	Content      string `json:"content"`
	TapeLengthMs int64  `json:"tapeLengthMs"`
	ClipStartMs  int64  `json:"clipStartMs"`
	ClipStopMs   int64  `json:"clipStopMs"`
}

func (h *Transcripts) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	scope := editor.EpisodeScope(req.TapeLengthMs)
	if req.ClipStopMs > 0 {
		if req.ClipStopMs <= req.ClipStartMs {
			c.JSON(http.StatusBadRequest, gin.H{"error": "clipStopMs must be after clipStartMs"})
			return
		}
		scope = editor.ClipScope(req.ClipStartMs, req.ClipStopMs)
	}

	found, _ := timecode.Scan([]rune(req.Content))
	times := make([]int64, len(found))
	for i, m := range found {
		times[i] = m.Time
	}
	id, err := h.transcripts.Create(c.Request.Context(), c.GetUint64("userId"), req.Title, scope,
		editor.Snapshot{Content: req.Content, Markers: times, Format: "text"})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "title": req.Title, "markers": times})
}

func (h *Transcripts) List(c *gin.Context) {
	list, err := h.transcripts.List(c.Request.Context(), c.GetUint64("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Transcripts) Get(c *gin.Context) {
	h.view(c, func(s *editor.Session) (any, error) {
		return gin.H{
			"id":       s.ID(),
			"content":  s.Text(),
			"times":    s.Times(),
			"state":    s.State().String(),
			"revision": s.Revision(),
			"scope":    s.Scope().String(),
		}, nil
	})
}

func (h *Transcripts) Markers(c *gin.Context) {
	h.view(c, func(s *editor.Session) (any, error) {
		return s.Markers(), nil
	})
}

func (h *Transcripts) OffsetToTime(c *gin.Context) {
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}
	h.view(c, func(s *editor.Session) (any, error) {
		if offset < 0 || offset > s.Len() {
			return nil, editor.ErrOutOfRange
		}
		ms := s.OffsetToTime(offset)
		return gin.H{"offset": offset, "timeMs": ms, "time": timecode.Format(ms)}, nil
	})
}

func (h *Transcripts) TimeToOffset(c *gin.Context) {
	ms, err := strconv.ParseInt(c.Query("ms"), 10, 64)
	if err != nil || !timecode.Valid(ms) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ms must be a time in range"})
		return
	}
	h.view(c, func(s *editor.Session) (any, error) {
		return gin.H{"timeMs": ms, "offset": s.TimeToOffset(ms)}, nil
	})
}

func (h *Transcripts) TimeRange(c *gin.Context) {
	sel, ok := selection(c)
	if !ok {
		return
	}
	h.view(c, func(s *editor.Session) (any, error) {
		start, end := s.SelectedTimeRange(sel)
		return gin.H{"startMs": start, "endMs": end}, nil
	})
}

func (h *Transcripts) Clip(c *gin.Context) {
	sel, ok := selection(c)
	if !ok {
		return
	}
	h.view(c, func(s *editor.Session) (any, error) {
		clip, err := s.ClipSelection(sel)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"start":   clip.Start,
			"end":     clip.End,
			"text":    clip.Text,
			"startMs": clip.StartTime,
			"endMs":   clip.EndTime,
		}, nil
	})
}

func (h *Transcripts) Find(c *gin.Context) {
	q := c.Query("q")
	from, _ := strconv.Atoi(c.DefaultQuery("from", "0"))
	backward := c.Query("backward") == "true"
	caseSensitive := c.Query("case") == "true"
	h.view(c, func(s *editor.Session) (any, error) {
		sel, found := s.Find(q, from, backward, caseSensitive)
		return gin.H{"found": found, "start": sel.Start, "end": sel.End}, nil
	})
}

func (h *Transcripts) History(c *gin.Context) {
	if h.snapshots == nil {
		c.JSON(http.StatusOK, []store.SnapshotRecord{})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	hist, err := h.snapshots.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hist == nil {
		hist = []store.SnapshotRecord{}
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Transcripts) Members(c *gin.Context) {
	members, err := h.svc.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if members == nil {
		members = []cache.PresenceMember{}
	}
	c.JSON(http.StatusOK, members)
}

func (h *Transcripts) view(c *gin.Context, fn func(*editor.Session) (any, error)) {
	var out any
	err := h.svc.View(c.Request.Context(), c.Param("id"), func(s *editor.Session) error {
		var err error
		out, err = fn(s)
		return err
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func selection(c *gin.Context) (editor.Selection, bool) {
	start, err1 := strconv.Atoi(c.Query("start"))
	end, err2 := strconv.Atoi(c.Query("end"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must be integers"})
		return editor.Selection{}, false
	}
	return editor.Selection{Start: start, End: end}, true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrOutOfRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
