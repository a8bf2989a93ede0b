package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"transcriptServer/backend/internal/editor"
)

var ErrNotFound = errors.New("transcript not found")

// Transcript is one stored transcript. Markers mirrors the time codes found
// in Content in document order.
type Transcript struct {
	ID         string                     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID    uint64                     `gorm:"index" json:"ownerId"`
	Title      string                     `gorm:"size:255;uniqueIndex" json:"title"`
	Content    string                     `gorm:"type:text" json:"content"`
	Markers    datatypes.JSONSlice[int64] `json:"markers"`
	Format     string                     `gorm:"size:16;default:text" json:"format"`
	Revision   uint64                     `json:"revision"`
	ScopeKind  int                        `json:"scopeKind"`
	TapeLength int64                      `json:"tapeLengthMs"`
	ClipStart  int64                      `json:"clipStartMs"`
	ClipStop   int64                      `json:"clipStopMs"`
	CreatedAt  time.Time                  `json:"createdAt"`
	UpdatedAt  time.Time                  `json:"updatedAt"`
}

// Scope rebuilds the media scope the transcript was created with.
func (t Transcript) Scope() editor.Scope {
	switch editor.ScopeKind(t.ScopeKind) {
	case editor.ScopeEpisode:
		return editor.EpisodeScope(t.TapeLength)
	case editor.ScopeClip:
		return editor.ClipScope(t.ClipStart, t.ClipStop)
	}
	return editor.Scope{}
}

func (t Transcript) Snapshot() editor.Snapshot {
	return editor.Snapshot{Content: t.Content, Markers: []int64(t.Markers), Format: t.Format}
}

type TranscriptStore struct{ db *gorm.DB }

func NewTranscriptStore(db *gorm.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

func (s *TranscriptStore) Migrate() error {
	return s.db.AutoMigrate(&Transcript{})
}

// Create stores a new transcript and returns its id.
func (s *TranscriptStore) Create(ctx context.Context, ownerID uint64, title string, scope editor.Scope, snap editor.Snapshot) (string, error) {
	t := Transcript{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		Content:    snap.Content,
		Markers:    datatypes.NewJSONSlice(snap.Markers),
		Format:     snap.Format,
		ScopeKind:  int(scope.Kind),
		TapeLength: scope.TapeLength,
		ClipStart:  scope.ClipStart,
		ClipStop:   scope.ClipStop,
	}
	if t.Format == "" {
		t.Format = "text"
	}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return "", fmt.Errorf("create transcript %q: %w", title, err)
	}
	return t.ID, nil
}

func (s *TranscriptStore) Get(ctx context.Context, id string) (Transcript, error) {
	var t Transcript
	err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, ErrNotFound
	}
	return t, err
}

func (s *TranscriptStore) GetIDByTitle(ctx context.Context, title string) (string, error) {
	var t Transcript
	err := s.db.WithContext(ctx).Select("id").First(&t, "title = ?", title).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	return t.ID, err
}

// List returns the transcripts owned by ownerID, newest first, without content.
func (s *TranscriptStore) List(ctx context.Context, ownerID uint64) ([]Transcript, error) {
	var out []Transcript
	err := s.db.WithContext(ctx).
		Omit("content", "markers").
		Where("owner_id = ?", ownerID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// Save overwrites content and markers and bumps the revision. It returns the
// new revision.
func (s *TranscriptStore) Save(ctx context.Context, id string, snap editor.Snapshot) (uint64, error) {
	var rev uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Transcript{}).Where("id = ?", id).Updates(map[string]any{
			"content":  snap.Content,
			"markers":  datatypes.NewJSONSlice(snap.Markers),
			"format":   snap.Format,
			"revision": gorm.Expr("revision + 1"),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&Transcript{}).Select("revision").Where("id = ?", id).Scan(&rev).Error
	})
	if err != nil {
		return 0, fmt.Errorf("save transcript %s: %w", id, err)
	}
	return rev, nil
}
