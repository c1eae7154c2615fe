// Package storage defines the persistence contract for session snapshots.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
)

// ErrNotFound indicates a requested snapshot is missing. A load miss is
// the expected "new session" case, not a failure.
var ErrNotFound = errors.New("snapshot not found")

// Persisted history limits. Snapshots deliberately keep less history than
// the live in-memory bounds.
const (
	PersistedChatLimit     = 20
	PersistedDiceRollLimit = 5
	PersistedNoteLimit     = 10
)

// Snapshot is a serialized session plus its game state at save time.
type Snapshot struct {
	SessionID string            `json:"sessionId"`
	LastSaved time.Time         `json:"lastSaved"`
	Session   *domain.Session   `json:"session"`
	GameState *domain.GameState `json:"gameState"`
}

// SnapshotSummary describes a persisted snapshot without its payload.
type SnapshotSummary struct {
	SessionID   string    `json:"sessionId"`
	Name        string    `json:"name"`
	PlayerCount int       `json:"playerCount"`
	LastSaved   time.Time `json:"lastSaved"`
}

// SnapshotStore persists session snapshots keyed by session ID.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot) error
	Load(ctx context.Context, sessionID string) (Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]SnapshotSummary, error)
}

// TruncateForPersist returns a copy of the state trimmed to the persisted
// history limits, keeping the most recent entries.
func TruncateForPersist(state *domain.GameState) *domain.GameState {
	if state == nil {
		return nil
	}
	trimmed := *state
	trimmed.Chat = tail(state.Chat, PersistedChatLimit)
	trimmed.DiceRolls = tail(state.DiceRolls, PersistedDiceRollLimit)
	trimmed.Notes = tail(state.Notes, PersistedNoteLimit)
	return &trimmed
}

func tail[T any](entries []T, limit int) []T {
	if len(entries) <= limit {
		return append([]T(nil), entries...)
	}
	return append([]T(nil), entries[len(entries)-limit:]...)
}
