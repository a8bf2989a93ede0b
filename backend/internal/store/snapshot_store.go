package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// SnapshotStore appends every saved revision of a transcript to a history
// table through plain SQL.
type SnapshotStore struct{ db *sql.DB }

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

type SnapshotRecord struct {
	TranscriptID string    `json:"transcriptId"`
	Revision     uint64    `json:"revision"`
	Content      string    `json:"content"`
	Markers      []int64   `json:"markers"`
	CreatedAt    time.Time `json:"createdAt"`
}

const createSnapshotsTable = `CREATE TABLE IF NOT EXISTS transcript_snapshots (
	transcript_id VARCHAR(36) NOT NULL,
	revision BIGINT NOT NULL,
	content TEXT NOT NULL,
	markers TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (transcript_id, revision)
)`

func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createSnapshotsTable)
	return err
}

// SaveTranscriptSnapshot records revision rev. Writing the same revision
// twice is a no-op.
func (s *SnapshotStore) SaveTranscriptSnapshot(ctx context.Context, transcriptID string, rev uint64, content string, markers []int64) error {
	if markers == nil {
		markers = []int64{}
	}
	b, err := json.Marshal(markers)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcript_snapshots (transcript_id, revision, content, markers)
		VALUES (?, ?, ?, ?)`,
		transcriptID,
		rev,
		content,
		string(b),
	)
	if err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}
	return nil
}

// History returns up to limit snapshots, newest first.
func (s *SnapshotStore) History(ctx context.Context, transcriptID string, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, content, markers, created_at FROM transcript_snapshots
		WHERE transcript_id = ? ORDER BY revision DESC LIMIT ?`,
		transcriptID,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		rec := SnapshotRecord{TranscriptID: transcriptID}
		var (
			markers string
			created any
		)
		if err := rows.Scan(&rec.Revision, &rec.Content, &markers, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = toTime(created)
		if err := json.Unmarshal([]byte(markers), &rec.Markers); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// toTime accepts the forms drivers hand back for a TIMESTAMP column: mysql
// without parseTime yields bytes, sqlite may yield text.
func toTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case []byte:
		return parseTimestamp(string(x))
	case string:
		return parseTimestamp(x)
	}
	return time.Time{}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
