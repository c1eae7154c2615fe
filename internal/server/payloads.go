package server

import (
	"encoding/json"
	"log"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
	"github.com/fireside-rpg/fireside/internal/storage"
)

// frame is the wire envelope for both directions of the channel.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> server payloads.

type joinSessionPayload struct {
	SessionID  string `json:"sessionId"`
	PlayerName string `json:"playerName"`
	IsGM       bool   `json:"isGM"`
}

type chatMessagePayload struct {
	Message string `json:"message"`
}

type rollDicePayload struct {
	RelevantObjectIDs []string     `json:"relevantObjectIds"`
	SelectedTags      []domain.Tag `json:"selectedTags"`
	Modifier          int          `json:"modifier"`
}

type sessionPlayersRequestPayload struct {
	SessionID string `json:"sessionId"`
}

type currentGameStateRequestPayload struct {
	SessionID  string `json:"sessionId"`
	PlayerName string `json:"playerName"`
}

// Server -> client payloads.

type connectedPayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type sessionJoinedPayload struct {
	Session   *domain.Session   `json:"session"`
	Player    *domain.Player    `json:"player"`
	GameState *domain.GameState `json:"gameState"`
}

type sessionLeftPayload struct {
	PlayerName string `json:"playerName"`
	SessionID  string `json:"sessionId"`
}

type playerJoinedPayload struct {
	Player  *domain.Player  `json:"player"`
	Session *domain.Session `json:"session"`
}

type playerLeftPayload struct {
	PlayerName string          `json:"playerName"`
	PlayerID   string          `json:"playerId"`
	Session    *domain.Session `json:"session"`
}

type gameStateUpdatedPayload struct {
	GameState *domain.GameState `json:"gameState"`
}

type currentGameStatePayload struct {
	Session   *domain.Session   `json:"session"`
	Player    *domain.Player    `json:"player"`
	GameState *domain.GameState `json:"gameState"`
}

type savedSessionsPayload struct {
	Sessions []storage.SnapshotSummary `json:"sessions"`
}

type sessionPlayersPayload struct {
	SessionID string           `json:"sessionId"`
	Players   []*domain.Player `json:"players"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("server: marshal frame payload: %v", err)
		return nil
	}
	return b
}

func newFrame(eventType string, payload any) frame {
	return frame{Type: eventType, Payload: mustJSON(payload)}
}
