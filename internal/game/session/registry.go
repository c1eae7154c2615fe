// Package session provides the in-memory session registry.
//
// The registry is the authoritative directory of live sessions. It owns
// membership, bridges to persisted snapshots, schedules auto-save, and
// evicts idle sessions. The underlying map never escapes; all mutation
// goes through registry methods so the capacity and name-uniqueness
// invariants are enforced in one place.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
	"github.com/fireside-rpg/fireside/internal/storage"
)

var (
	// ErrSessionExists indicates a create for an ID already registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound indicates an operation on an unregistered session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFull indicates the session reached its player capacity.
	ErrSessionFull = errors.New("session is full")
	// ErrDuplicateConnection indicates the connection already holds a
	// player in the session.
	ErrDuplicateConnection = errors.New("connection already joined")
)

const (
	// DefaultAutoSaveInterval is how often armed sessions persist.
	DefaultAutoSaveInterval = 30 * time.Second
	// DefaultIdleTimeout is how long a session may sit without activity
	// before the janitor evicts it from memory.
	DefaultIdleTimeout = time.Hour
	// DefaultJanitorInterval is how often the janitor cycle runs.
	DefaultJanitorInterval = time.Minute
)

// StateProvider supplies the game state persisted alongside a session.
// The auto-save timer only reads through it, never mutates.
type StateProvider interface {
	GetSessionState(sessionID string) *domain.GameState
}

// Config tunes registry timing. Zero values take the defaults.
type Config struct {
	AutoSaveInterval time.Duration
	IdleTimeout      time.Duration
	JanitorInterval  time.Duration
}

// Registry is the in-memory session directory.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	autosave map[string]chan struct{}

	snapshots storage.SnapshotStore
	states    StateProvider
	dropState func(sessionID string)

	autosaveInterval time.Duration
	idleTimeout      time.Duration
	janitorInterval  time.Duration
	now              func() time.Time
}

// NewRegistry creates a registry over the snapshot store and state
// provider. dropState, when non-nil, is invoked after a session leaves
// memory so its transient state is released with it.
func NewRegistry(snapshots storage.SnapshotStore, states StateProvider, dropState func(sessionID string), config Config) *Registry {
	if config.AutoSaveInterval <= 0 {
		config.AutoSaveInterval = DefaultAutoSaveInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.JanitorInterval <= 0 {
		config.JanitorInterval = DefaultJanitorInterval
	}
	return &Registry{
		sessions:         make(map[string]*domain.Session),
		autosave:         make(map[string]chan struct{}),
		snapshots:        snapshots,
		states:           states,
		dropState:        dropState,
		autosaveInterval: config.AutoSaveInterval,
		idleTimeout:      config.IdleTimeout,
		janitorInterval:  config.JanitorInterval,
		now:              time.Now,
	}
}

// CreateSession registers a new session. It fails with ErrSessionExists
// when the ID is already registered in memory.
func (r *Registry) CreateSession(id string, options domain.SessionOptions) (*domain.Session, error) {
	session, err := domain.NewSession(id, options, r.now)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, ok := r.sessions[session.ID]; ok {
		r.mu.Unlock()
		return nil, ErrSessionExists
	}
	r.sessions[session.ID] = session
	r.mu.Unlock()

	if session.Settings.AutoSave {
		r.armAutoSave(session.ID)
	}
	return session.Clone(), nil
}

// LoadSession fetches a persisted snapshot and registers the session in
// memory. A missing snapshot is the expected new-session case and returns
// nils without error. When the session is already live in memory, the
// live membership wins and no saved game state is returned: the reducer
// already holds fresher state than the snapshot, so handing the snapshot
// back would invite callers to restore over it.
func (r *Registry) LoadSession(ctx context.Context, id string) (*domain.Session, *domain.GameState, error) {
	snapshot, err := r.snapshots.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		// Treat an unreadable snapshot as absent rather than failing the
		// join path.
		log.Printf("session: load snapshot id=%q err=%v", id, err)
		return nil, nil, nil
	}

	session := snapshot.Session
	if session == nil {
		return nil, nil, nil
	}
	if session.Players == nil {
		session.Players = make(map[string]*domain.Player)
	}
	session.IsActive = len(session.Players) > 0

	savedState := snapshot.GameState
	r.mu.Lock()
	if live, ok := r.sessions[session.ID]; ok {
		session = live
		savedState = nil
	} else {
		r.sessions[session.ID] = session
	}
	r.mu.Unlock()

	if session.Settings.AutoSave {
		r.armAutoSave(session.ID)
	}
	return session.Clone(), savedState, nil
}

// GetOrCreateSession resolves a session load-biased: a previously saved
// snapshot wins over fresh creation, and an already-registered session
// wins over both. The returned game state is non-nil only when a
// snapshot revived a session that was not already live.
func (r *Registry) GetOrCreateSession(ctx context.Context, id string, options domain.SessionOptions) (*domain.Session, *domain.GameState, error) {
	session, savedState, err := r.LoadSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session != nil {
		return session, savedState, nil
	}

	if existing := r.GetSession(id); existing != nil {
		return existing, nil, nil
	}

	session, err = r.CreateSession(id, options)
	if err != nil {
		if errors.Is(err, ErrSessionExists) {
			if existing := r.GetSession(id); existing != nil {
				return existing, nil, nil
			}
		}
		return nil, nil, err
	}
	return session, nil, nil
}

// GetSession returns a copy of the registered session, or nil.
func (r *Registry) GetSession(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id].Clone()
}

// AddPlayerToSession adds a player to the session.
//
// A player joining under a display name already present replaces the old
// entry: the new entry keeps the original join timestamp but carries the
// new connection ID and GM flag. This models the same human on a new
// connection, so a session never holds two players with one name.
func (r *Registry) AddPlayerToSession(id string, player *domain.Player) (*domain.Session, error) {
	if player == nil {
		return nil, domain.ErrEmptyConnectionID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if _, taken := session.Players[player.ID]; taken {
		return nil, ErrDuplicateConnection
	}

	if existing := session.PlayerByName(player.Name); existing != nil {
		player.JoinedAt = existing.JoinedAt
		delete(session.Players, existing.ID)
	}

	if len(session.Players) >= session.MaxPlayers {
		return nil, ErrSessionFull
	}

	session.Players[player.ID] = player
	session.IsActive = true
	session.LastActivity = r.now().UTC()
	return session.Clone(), nil
}

// RemovePlayerFromSession removes the player bound to the connection ID.
// Removing an absent player is a no-op returning nil. The session itself
// is retained when it empties; only its active flag flips.
func (r *Registry) RemovePlayerFromSession(id, connectionID string) (*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	player, ok := session.Players[connectionID]
	if !ok {
		return nil, nil
	}
	delete(session.Players, connectionID)
	if len(session.Players) == 0 {
		session.IsActive = false
	}
	session.LastActivity = r.now().UTC()
	removed := *player
	return &removed, nil
}

// CleanupDisconnectedPlayers removes any player whose connection ID is
// not in the live set. It repairs membership after ungraceful disconnects
// the transport never reported.
func (r *Registry) CleanupDisconnectedPlayers(id string, liveConnectionIDs map[string]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return
	}
	for connectionID := range session.Players {
		if !liveConnectionIDs[connectionID] {
			delete(session.Players, connectionID)
		}
	}
	if len(session.Players) == 0 {
		session.IsActive = false
	}
}

// SessionPlayers returns the live player list for the session.
func (r *Registry) SessionPlayers(id string) ([]*domain.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone().PlayerList(), nil
}

// SaveSession persists the session with its current game state. The
// persisted logs are truncated harder than the live bounds. Persistence
// failures are logged, never propagated: the broadcast path must not
// stall on storage.
func (r *Registry) SaveSession(ctx context.Context, id string) error {
	r.mu.Lock()
	live, ok := r.sessions[id]
	session := live.Clone()
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	snapshot := storage.Snapshot{
		SessionID: id,
		LastSaved: r.now().UTC(),
		Session:   session,
		GameState: storage.TruncateForPersist(r.states.GetSessionState(id)),
	}
	if err := r.snapshots.Save(ctx, snapshot); err != nil {
		log.Printf("session: save snapshot id=%q err=%v", id, err)
	}
	return nil
}

// DeleteSession disarms auto-save, drops the session from memory, and
// removes the persisted snapshot.
func (r *Registry) DeleteSession(ctx context.Context, id string) error {
	r.disarmAutoSave(id)

	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	if r.dropState != nil {
		r.dropState(id)
	}
	if err := r.snapshots.Delete(ctx, id); err != nil {
		return err
	}
	return nil
}

// CleanupInactiveSessions evicts from memory every session idle past the
// timeout and disarms its auto-save. Persisted snapshots are untouched;
// an evicted session is revived by the next GetOrCreateSession. Returns
// how many sessions were evicted.
func (r *Registry) CleanupInactiveSessions(ctx context.Context) int {
	cutoff := r.now().UTC().Add(-r.idleTimeout)

	r.mu.Lock()
	var idle []string
	for id, session := range r.sessions {
		if session.LastActivity.Before(cutoff) {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		// Best-effort save so eviction never loses more than the
		// interval since the last auto-save.
		_ = r.SaveSession(ctx, id)
		r.disarmAutoSave(id)

		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()

		if r.dropState != nil {
			r.dropState(id)
		}
		log.Printf("session: evicted idle session id=%q", id)
	}
	return len(idle)
}

// RunJanitor periodically evicts idle sessions until the context ends.
func (r *Registry) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(r.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.CleanupInactiveSessions(ctx)
		}
	}
}

// armAutoSave starts the recurring save timer for the session. Arming an
// already-armed session is a no-op, not a second timer.
func (r *Registry) armAutoSave(id string) {
	r.mu.Lock()
	if _, armed := r.autosave[id]; armed {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.autosave[id] = stop
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.autosaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = r.SaveSession(context.Background(), id)
			}
		}
	}()
}

func (r *Registry) disarmAutoSave(id string) {
	r.mu.Lock()
	stop, ok := r.autosave[id]
	if ok {
		delete(r.autosave, id)
	}
	r.mu.Unlock()
	if ok {
		close(stop)
	}
}

// Close disarms every auto-save timer.
func (r *Registry) Close() {
	r.mu.Lock()
	timers := r.autosave
	r.autosave = make(map[string]chan struct{})
	r.mu.Unlock()
	for _, stop := range timers {
		close(stop)
	}
}
