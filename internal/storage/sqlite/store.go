// Package sqlite provides a SQLite-backed snapshot store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/fireside-rpg/fireside/internal/platform/storage/sqlitemigrate"
	"github.com/fireside-rpg/fireside/internal/storage"
	"github.com/fireside-rpg/fireside/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists session snapshots in SQLite, one row per session with
// the snapshot serialized as a JSON payload.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite snapshot store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save upserts the snapshot for its session ID.
func (s *Store) Save(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(snapshot.SessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if snapshot.Session == nil {
		return fmt.Errorf("session is required")
	}
	if snapshot.LastSaved.IsZero() {
		snapshot.LastSaved = time.Now().UTC()
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (session_id, name, player_count, payload, saved_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    name = excluded.name,
    player_count = excluded.player_count,
    payload = excluded.payload,
    saved_at = excluded.saved_at
`, sessionID, snapshot.Session.Name, len(snapshot.Session.Players), string(payload), toMillis(snapshot.LastSaved))
	if err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for the session ID, or storage.ErrNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return storage.Snapshot{}, fmt.Errorf("session id is required")
	}

	var payload string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE session_id = ?", sessionID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot storage.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return storage.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

// Delete removes the snapshot. Deleting an absent snapshot is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// List returns summaries of every persisted snapshot, most recent first.
func (s *Store) List(ctx context.Context) ([]storage.SnapshotSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT session_id, name, player_count, saved_at FROM snapshots ORDER BY saved_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var summaries []storage.SnapshotSummary
	for rows.Next() {
		var summary storage.SnapshotSummary
		var savedAt int64
		if err := rows.Scan(&summary.SessionID, &summary.Name, &summary.PlayerCount, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		summary.LastSaved = fromMillis(savedAt)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return summaries, nil
}

var _ storage.SnapshotStore = (*Store)(nil)
