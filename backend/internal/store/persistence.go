package store

import (
	"context"

	"github.com/rs/zerolog"

	"transcriptServer/backend/internal/editor"
)

// Binding is the editor.Persistence of a single transcript.
type Binding struct {
	id          string
	transcripts *TranscriptStore
	snapshots   *SnapshotStore
	log         zerolog.Logger
}

var _ editor.Persistence = (*Binding)(nil)

// Bind ties transcript id to the stores. snapshots may be nil, in which case
// no history is kept.
func Bind(id string, transcripts *TranscriptStore, snapshots *SnapshotStore, log zerolog.Logger) *Binding {
	return &Binding{id: id, transcripts: transcripts, snapshots: snapshots, log: log}
}

func (b *Binding) Load(ctx context.Context) (editor.Snapshot, error) {
	t, err := b.transcripts.Get(ctx, b.id)
	if err != nil {
		return editor.Snapshot{}, err
	}
	return t.Snapshot(), nil
}

// Save writes the transcript row first; history is best effort.
func (b *Binding) Save(ctx context.Context, snap editor.Snapshot) error {
	rev, err := b.transcripts.Save(ctx, b.id, snap)
	if err != nil {
		return err
	}
	if b.snapshots == nil {
		return nil
	}
	if err := b.snapshots.SaveTranscriptSnapshot(ctx, b.id, rev, snap.Content, snap.Markers); err != nil {
		b.log.Warn().Err(err).Str("transcriptId", b.id).Uint64("revision", rev).Msg("snapshot history write failed")
	}
	return nil
}

// Catalog hands out bindings for existing transcripts.
type Catalog struct {
	Transcripts *TranscriptStore
	Snapshots   *SnapshotStore
	Log         zerolog.Logger
}

// Binding looks the transcript up and returns its scope and persistence.
func (c Catalog) Binding(ctx context.Context, id string) (editor.Scope, editor.Persistence, error) {
	t, err := c.Transcripts.Get(ctx, id)
	if err != nil {
		return editor.Scope{}, nil, err
	}
	return t.Scope(), Bind(id, c.Transcripts, c.Snapshots, c.Log), nil
}
