package editor

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	snap    Snapshot
	saves   int
	saveErr error
	loadErr error
}

func (m *memStore) Load(ctx context.Context) (Snapshot, error) {
	if m.loadErr != nil {
		return Snapshot{}, m.loadErr
	}
	return m.snap, nil
}

func (m *memStore) Save(ctx context.Context, snap Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = snap
	m.saves++
	return nil
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) ReadText() (string, error) { return c.text, c.err }

func (c *fakeClipboard) WriteText(text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

type fakePlayback struct {
	seeks     []int64
	seekEnds  []int64
	highlight [2]int64
}

func (p *fakePlayback) Seek(startMs, endMs int64) error {
	p.seeks = append(p.seeks, startMs)
	p.seekEnds = append(p.seekEnds, endMs)
	return nil
}

func (p *fakePlayback) SetSelectionHighlight(startMs, endMs int64) error {
	p.highlight = [2]int64{startMs, endMs}
	return nil
}

// promptRecorder answers every confirmation with answer and keeps the prompts.
type promptRecorder struct {
	answer  bool
	prompts []DeletionPrompt
}

func (r *promptRecorder) Confirm(p DeletionPrompt) bool {
	r.prompts = append(r.prompts, p)
	return r.answer
}

var errBoom = errors.New("boom")

func openSession(t *testing.T, content string, opts ...func(*Config)) (*Session, *memStore) {
	t.Helper()
	store := &memStore{snap: Snapshot{Content: content, Format: "text"}}
	cfg := Config{
		ID:          "t-1",
		Scope:       EpisodeScope(60_000),
		Persistence: store,
		Logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	return s, store
}

func openEditable(t *testing.T, content string, opts ...func(*Config)) (*Session, *memStore) {
	t.Helper()
	s, store := openSession(t, content, opts...)
	require.NoError(t, s.BeginEdit())
	return s, store
}

func requireConsistent(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.idx.Verify(s.doc))
	times := s.Times()
	for i := 1; i < len(times); i++ {
		require.LessOrEqual(t, times[i-1], times[i], "times out of order: %v", times)
	}
}
