// Package bbolt provides a BoltDB-backed snapshot store. It is the
// single-file alternative to the sqlite backend for hosts without a
// C-free sqlite build.
package bbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/fireside-rpg/fireside/internal/storage"
)

const snapshotBucket = "snapshots"

// Store provides a BoltDB-backed session snapshot store.
type Store struct {
	db *bbolt.DB
}

var _ storage.SnapshotStore = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(snapshotBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure snapshot bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists a snapshot keyed by session ID, replacing any prior save.
func (s *Store) Save(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		return bucket.Put([]byte(snapshot.SessionID), payload)
	})
}

// Load fetches the snapshot for the session ID.
func (s *Store) Load(ctx context.Context, sessionID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if strings.TrimSpace(sessionID) == "" {
		return storage.Snapshot{}, fmt.Errorf("session id is required")
	}

	var snapshot storage.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		payload := bucket.Get([]byte(sessionID))
		if payload == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(payload, &snapshot)
	})
	if err != nil {
		return storage.Snapshot{}, err
	}
	return snapshot, nil
}

// Delete removes the snapshot for the session ID. Deleting an absent
// snapshot is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		return bucket.Delete([]byte(sessionID))
	})
}

// List summarizes every persisted snapshot, most recently saved first.
func (s *Store) List(ctx context.Context) ([]storage.SnapshotSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var summaries []storage.SnapshotSummary
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(snapshotBucket))
		if bucket == nil {
			return fmt.Errorf("snapshot bucket is missing")
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var snapshot storage.Snapshot
			if err := json.Unmarshal(payload, &snapshot); err != nil {
				return fmt.Errorf("unmarshal snapshot: %w", err)
			}
			summary := storage.SnapshotSummary{
				SessionID: snapshot.SessionID,
				LastSaved: snapshot.LastSaved,
			}
			if snapshot.Session != nil {
				summary.Name = snapshot.Session.Name
				summary.PlayerCount = len(snapshot.Session.Players)
			}
			summaries = append(summaries, summary)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastSaved.After(summaries[j].LastSaved)
	})
	return summaries, nil
}
