package domain

import (
	"errors"
	"strings"
	"time"
)

// DefaultMaxPlayers caps session membership when the creator does not
// specify a limit.
const DefaultMaxPlayers = 8

var (
	// ErrEmptySessionID indicates a missing session ID.
	ErrEmptySessionID = errors.New("session id is required")
	// ErrEmptyPlayerName indicates a missing player display name.
	ErrEmptyPlayerName = errors.New("player name is required")
	// ErrEmptyConnectionID indicates a missing connection ID.
	ErrEmptyConnectionID = errors.New("connection id is required")
)

// SessionSettings holds per-session behavior toggles.
type SessionSettings struct {
	AllowSpectators bool `json:"allowSpectators"`
	AutoSave        bool `json:"autoSave"`
}

// Player is a member of a session. ID is the transient connection
// identifier; Name is the stable identity used for reconnection matching.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	IsGM     bool      `json:"isGM"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Session is one logical game table: its identity, membership, and settings.
// Players is keyed by connection ID.
type Session struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	CreatedAt    time.Time          `json:"created"`
	LastActivity time.Time          `json:"lastActivity"`
	Players      map[string]*Player `json:"players"`
	MaxPlayers   int                `json:"maxPlayers"`
	IsActive     bool               `json:"isActive"`
	Settings     SessionSettings    `json:"settings"`
}

// SessionOptions describes the metadata needed to create a session.
type SessionOptions struct {
	Name       string
	MaxPlayers int
	Settings   SessionSettings
}

// DefaultSessionOptions returns the options applied when a session is
// created implicitly by a first join.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		MaxPlayers: DefaultMaxPlayers,
		Settings: SessionSettings{
			AllowSpectators: true,
			AutoSave:        true,
		},
	}
}

// NewSession creates a session with the given options. Session IDs are
// user-chosen and case-sensitive; the caller guarantees uniqueness.
func NewSession(id string, options SessionOptions, now func() time.Time) (*Session, error) {
	if now == nil {
		now = time.Now
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptySessionID
	}

	name := strings.TrimSpace(options.Name)
	if name == "" {
		name = id
	}
	maxPlayers := options.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}

	createdAt := now().UTC()
	return &Session{
		ID:           id,
		Name:         name,
		CreatedAt:    createdAt,
		LastActivity: createdAt,
		Players:      make(map[string]*Player),
		MaxPlayers:   maxPlayers,
		IsActive:     false,
		Settings:     options.Settings,
	}, nil
}

// NewPlayer creates a player bound to a connection ID.
func NewPlayer(connectionID, name string, isGM bool, now func() time.Time) (*Player, error) {
	if now == nil {
		now = time.Now
	}

	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, ErrEmptyConnectionID
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyPlayerName
	}

	return &Player{
		ID:       connectionID,
		Name:     name,
		IsGM:     isGM,
		JoinedAt: now().UTC(),
	}, nil
}

// Clone returns a deep copy of the session so network payloads can be
// marshaled without holding the registry lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Players = make(map[string]*Player, len(s.Players))
	for id, player := range s.Players {
		p := *player
		clone.Players[id] = &p
	}
	return &clone
}

// PlayerByName returns the member with the given display name, or nil.
func (s *Session) PlayerByName(name string) *Player {
	for _, player := range s.Players {
		if player.Name == name {
			return player
		}
	}
	return nil
}

// PlayerList returns the current members as a slice. Order is unspecified.
func (s *Session) PlayerList() []*Player {
	players := make([]*Player, 0, len(s.Players))
	for _, player := range s.Players {
		players = append(players, player)
	}
	return players
}
