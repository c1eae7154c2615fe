// Package objects owns tagged game objects scoped by session.
//
// The store is the single source of truth for objects; session state only
// holds object IDs and re-derives its object list on read.
package objects

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
)

var (
	// ErrObjectNotFound indicates a lookup for an object ID the store
	// does not hold for the given session.
	ErrObjectNotFound = errors.New("game object not found")
	// ErrChallengeNotFound indicates a challenge ID missing from a
	// scene's embedded challenge list.
	ErrChallengeNotFound = errors.New("challenge not found in scene")
)

// Store holds game objects per session. All access is through its methods
// so the per-session maps never escape.
type Store struct {
	mu       sync.Mutex
	sessions map[string]map[string]*domain.GameObject
	now      func() time.Time
	newID    func() (string, error)
}

// NewStore creates an empty object store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]map[string]*domain.GameObject),
		now:      time.Now,
		newID:    domain.NewID,
	}
}

func (s *Store) objectsFor(sessionID string) map[string]*domain.GameObject {
	objects, ok := s.sessions[sessionID]
	if !ok {
		objects = make(map[string]*domain.GameObject)
		s.sessions[sessionID] = objects
	}
	return objects
}

// Create adds a new object with a generated ID and returns a copy of it.
func (s *Store) Create(sessionID string, objectType domain.ObjectType, contents map[string]any) (*domain.GameObject, error) {
	if !objectType.Valid() {
		return nil, fmt.Errorf("invalid object type %q", objectType)
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate object id: %w", err)
	}

	createdAt := s.now().UTC()
	obj := &domain.GameObject{
		ID:        id,
		Type:      objectType,
		Contents:  contents,
		Tags:      []domain.Tag{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	s.mu.Lock()
	s.objectsFor(sessionID)[id] = obj
	s.mu.Unlock()

	return obj.Clone(), nil
}

// Put registers an object under its existing ID, replacing any object the
// store already holds for that ID. Restores rely on the replacement
// semantics to stay idempotent.
func (s *Store) Put(sessionID string, obj *domain.GameObject) error {
	if obj == nil || strings.TrimSpace(obj.ID) == "" {
		return errors.New("object with id is required")
	}

	s.mu.Lock()
	s.objectsFor(sessionID)[obj.ID] = obj.Clone()
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the object, or ErrObjectNotFound.
func (s *Store) Get(sessionID, objectID string) (*domain.GameObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.sessions[sessionID][objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj.Clone(), nil
}

// Exists reports whether the session holds the object ID.
func (s *Store) Exists(sessionID, objectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID][objectID]
	return ok
}

// Update merges new contents into the object's payload and bumps its
// update timestamp.
func (s *Store) Update(sessionID, objectID string, contents map[string]any) (*domain.GameObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.sessions[sessionID][objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	if obj.Contents == nil {
		obj.Contents = make(map[string]any, len(contents))
	}
	for key, value := range contents {
		obj.Contents[key] = value
	}
	obj.UpdatedAt = s.now().UTC()
	return obj.Clone(), nil
}

// Delete removes the object. Deleting an absent object is a no-op.
func (s *Store) Delete(sessionID, objectID string) {
	s.mu.Lock()
	delete(s.sessions[sessionID], objectID)
	s.mu.Unlock()
}

// List returns copies of every object the session owns, ordered by
// creation time for stable projections.
func (s *Store) List(sessionID string) []*domain.GameObject {
	s.mu.Lock()
	objects := make([]*domain.GameObject, 0, len(s.sessions[sessionID]))
	for _, obj := range s.sessions[sessionID] {
		objects = append(objects, obj.Clone())
	}
	s.mu.Unlock()

	sort.Slice(objects, func(i, j int) bool {
		if objects[i].CreatedAt.Equal(objects[j].CreatedAt) {
			return objects[i].ID < objects[j].ID
		}
		return objects[i].CreatedAt.Before(objects[j].CreatedAt)
	})
	return objects
}

// Count returns how many objects the session owns.
func (s *Store) Count(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions[sessionID])
}

// AddTag attaches a named modifier to the object. Adding a tag name the
// object already carries replaces its modifier.
func (s *Store) AddTag(sessionID, objectID, name string, modifier int) (*domain.GameObject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tag name is required")
	}
	if modifier >= 0 {
		modifier = 1
	} else {
		modifier = -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.sessions[sessionID][objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	for i, tag := range obj.Tags {
		if tag.Name == name {
			obj.Tags[i].Modifier = modifier
			obj.UpdatedAt = s.now().UTC()
			return obj.Clone(), nil
		}
	}
	obj.Tags = append(obj.Tags, domain.Tag{Name: name, Modifier: modifier})
	obj.UpdatedAt = s.now().UTC()
	return obj.Clone(), nil
}

// RemoveTag detaches a named modifier. Removing an absent tag is a no-op.
func (s *Store) RemoveTag(sessionID, objectID, name string) (*domain.GameObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.sessions[sessionID][objectID]
	if !ok {
		return nil, ErrObjectNotFound
	}
	for i, tag := range obj.Tags {
		if tag.Name == name {
			obj.Tags = append(obj.Tags[:i], obj.Tags[i+1:]...)
			obj.UpdatedAt = s.now().UTC()
			break
		}
	}
	return obj.Clone(), nil
}

// SelectedTagModifiers resolves the selected tag names against the tags
// carried by the given objects and returns the authoritative tags with
// their modifiers plus the summed modifier. Tag names that resolve on no
// object are ignored.
func (s *Store) SelectedTagModifiers(sessionID string, objectIDs []string, tagNames []string) ([]domain.Tag, int) {
	wanted := make(map[string]bool, len(tagNames))
	for _, name := range tagNames {
		wanted[strings.TrimSpace(name)] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var resolved []domain.Tag
	seen := make(map[string]bool)
	total := 0
	for _, objectID := range objectIDs {
		obj, ok := s.sessions[sessionID][objectID]
		if !ok {
			continue
		}
		for _, tag := range obj.Tags {
			if !wanted[tag.Name] || seen[tag.Name] {
				continue
			}
			seen[tag.Name] = true
			resolved = append(resolved, tag)
			total += tag.Modifier
		}
	}
	return resolved, total
}

// Purge drops every object the session owns.
func (s *Store) Purge(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
