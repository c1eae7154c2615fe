package domain

import "time"

// Log bounds for live session state. Persisted snapshots keep less
// history (see internal/storage).
const (
	MaxChatMessages = 100
	MaxDiceRolls    = 50
	MaxNotes        = 50
)

// ChatMessage is one entry in a session's chat log.
type ChatMessage struct {
	ID         string    `json:"id"`
	PlayerName string    `json:"playerName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// Note is one entry in a session's shared notes log.
type Note struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// GameState is the per-session transient state. CurrentScene and
// ActiveChallenge hold object IDs; the empty string means no reference.
// GameObjects is a read-through projection of the object store and is
// recomputed on every read, never independently mutated.
type GameState struct {
	CurrentScene    string        `json:"currentScene"`
	ActiveChallenge string        `json:"activeChallenge"`
	Chat            []ChatMessage `json:"chat"`
	DiceRolls       []DiceRoll    `json:"diceRolls"`
	Notes           []Note        `json:"notes"`
	LastRoll        *DiceRoll     `json:"lastRoll"`
	GameObjects     []*GameObject `json:"gameObjects"`
}

// NewGameState returns an empty state with no scene or challenge set.
func NewGameState() *GameState {
	return &GameState{}
}

// AppendChat appends a chat message, evicting the oldest entry past the cap.
func (s *GameState) AppendChat(msg ChatMessage) {
	s.Chat = append(s.Chat, msg)
	if len(s.Chat) > MaxChatMessages {
		s.Chat = s.Chat[len(s.Chat)-MaxChatMessages:]
	}
}

// AppendDiceRoll appends a roll result and records it as the last roll.
func (s *GameState) AppendDiceRoll(roll DiceRoll) {
	s.DiceRolls = append(s.DiceRolls, roll)
	if len(s.DiceRolls) > MaxDiceRolls {
		s.DiceRolls = s.DiceRolls[len(s.DiceRolls)-MaxDiceRolls:]
	}
	last := roll
	s.LastRoll = &last
}

// AppendNote appends a note, evicting the oldest entry past the cap.
func (s *GameState) AppendNote(note Note) {
	s.Notes = append(s.Notes, note)
	if len(s.Notes) > MaxNotes {
		s.Notes = s.Notes[len(s.Notes)-MaxNotes:]
	}
}
