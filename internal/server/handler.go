package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fireside-rpg/fireside/internal/game/domain"
	"github.com/fireside-rpg/fireside/internal/game/session"
	"github.com/fireside-rpg/fireside/internal/game/state"
	"github.com/fireside-rpg/fireside/internal/storage"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxChatMessageRunes = 2000
)

// Handler is the sole network-facing component. It maps transient
// connection identity to session identity and converts protocol frames
// into registry and reducer calls.
type Handler struct {
	registry  *session.Registry
	states    *state.Manager
	snapshots storage.SnapshotStore
	hub       *roomHub
	newID     func() (string, error)
	now       func() time.Time
}

// conn is the per-connection state for one websocket. A connection not
// bound to a session has an empty sessionID.
type conn struct {
	id         string
	peer       *peer
	sessionID  string
	playerName string
}

// NewHandler creates the protocol handler over the registry, reducer,
// and snapshot store.
func NewHandler(registry *session.Registry, states *state.Manager, snapshots storage.SnapshotStore) *Handler {
	return &Handler{
		registry:  registry,
		states:    states,
		snapshots: snapshots,
		hub:       newRoomHub(),
		newID:     domain.NewID,
		now:       time.Now,
	}
}

// HTTPHandler returns the routes for the session host: a health check
// and the websocket endpoint.
func (h *Handler) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(h.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

func (h *Handler) handleConn(ws *websocket.Conn) {
	defer func() {
		_ = ws.Close()
	}()

	connectionID, err := h.newID()
	if err != nil {
		log.Printf("server: generate connection id: %v", err)
		return
	}

	c := &conn{
		id:   connectionID,
		peer: newPeer(json.NewEncoder(ws)),
	}
	defer h.handleDisconnect(c)

	_ = c.peer.writeFrame(newFrame("connected", connectedPayload{
		Message:   "connected to session host",
		Timestamp: h.now().UTC(),
	}))

	decoder := json.NewDecoder(ws)
	windowStart := h.now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			h.sendError(c, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(f.Payload) > maxFramePayloadBytes {
			h.sendError(c, "payload too large")
			continue
		}

		now := h.now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			h.sendError(c, "rate limit exceeded")
			return
		}

		h.dispatch(c, f)
	}
}

// dispatch routes one frame. Failures inside a handler are confined to
// the offending connection: they become an error frame to the sender and
// never reach the room or the process.
func (h *Handler) dispatch(c *conn, f frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("server: event %q panic: %v", f.Type, r)
			h.sendError(c, "internal error")
		}
	}()

	var err error
	switch f.Type {
	case "join-session":
		err = h.handleJoinSession(c, f.Payload)
	case "leave-session":
		err = h.handleLeaveSession(c)
	case "chat-message":
		err = h.handleChatMessage(c, f.Payload)
	case "game-action":
		err = h.handleGameAction(c, f.Payload)
	case "roll-dice":
		err = h.handleRollDice(c, f.Payload)
	case "get-saved-sessions":
		err = h.handleGetSavedSessions(c)
	case "get-session-players":
		err = h.handleGetSessionPlayers(c, f.Payload)
	case "get-current-game-state":
		err = h.handleGetCurrentGameState(c, f.Payload)
	default:
		err = fmt.Errorf("unsupported event type %q", f.Type)
	}
	if err != nil {
		log.Printf("server: event %q conn=%s err=%v", f.Type, c.id, err)
		h.sendError(c, userMessage(err))
	}
}

func (h *Handler) sendError(c *conn, message string) {
	_ = c.peer.writeFrame(newFrame("error", errorPayload{Message: message}))
}

// userMessage maps registry errors to the human-readable messages the
// protocol exposes; everything else passes through as-is.
func userMessage(err error) string {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, session.ErrSessionFull):
		return "session is full"
	case errors.Is(err, session.ErrDuplicateConnection):
		return "connection already joined a session"
	}
	return err.Error()
}

func (h *Handler) handleJoinSession(c *conn, payload json.RawMessage) error {
	var req joinSessionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid join payload")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	playerName := strings.TrimSpace(req.PlayerName)
	if sessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if playerName == "" {
		return fmt.Errorf("playerName is required")
	}

	// Joining a second session implicitly leaves the first.
	if c.sessionID != "" && c.sessionID != sessionID {
		h.leaveCurrentSession(c, "player-left")
	}

	ctx := context.Background()
	options := domain.DefaultSessionOptions()
	options.Name = sessionID
	_, savedState, err := h.registry.GetOrCreateSession(ctx, sessionID, options)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if savedState != nil {
		if err := h.states.RestoreSessionState(sessionID, savedState); err != nil {
			return fmt.Errorf("restore session state: %w", err)
		}
	}

	room := h.hub.room(sessionID)
	live := room.liveConnectionIDs()
	live[c.id] = true
	h.registry.CleanupDisconnectedPlayers(sessionID, live)

	player, err := domain.NewPlayer(c.id, playerName, req.IsGM, h.now)
	if err != nil {
		return err
	}
	joined, err := h.registry.AddPlayerToSession(sessionID, player)
	if err != nil {
		return err
	}

	room.join(c.id, c.peer)
	c.sessionID = sessionID
	c.playerName = playerName

	gameState := h.states.GetSessionState(sessionID)
	_ = c.peer.writeFrame(newFrame("session-joined", sessionJoinedPayload{
		Session:   joined,
		Player:    player,
		GameState: gameState,
	}))
	room.broadcast(newFrame("player-joined", playerJoinedPayload{
		Player:  player,
		Session: joined,
	}), c.id)
	return nil
}

func (h *Handler) handleLeaveSession(c *conn) error {
	if c.sessionID == "" {
		return fmt.Errorf("not in a session")
	}
	sessionID := c.sessionID
	playerName := c.playerName

	h.leaveCurrentSession(c, "player-left")

	_ = c.peer.writeFrame(newFrame("session-left", sessionLeftPayload{
		PlayerName: playerName,
		SessionID:  sessionID,
	}))
	return nil
}

// handleDisconnect treats a transport-level disconnect like a leave with
// no personal acknowledgment: the connection is already gone.
func (h *Handler) handleDisconnect(c *conn) {
	if c.sessionID == "" {
		return
	}
	h.leaveCurrentSession(c, "player-disconnected")
}

// leaveCurrentSession persists best-effort, removes the player, and
// notifies the room with the given event type.
func (h *Handler) leaveCurrentSession(c *conn, notice string) {
	sessionID := c.sessionID
	if sessionID == "" {
		return
	}

	// Persist before removal so the snapshot still carries the player.
	_ = h.registry.SaveSession(context.Background(), sessionID)

	player, err := h.registry.RemovePlayerFromSession(sessionID, c.id)
	if err != nil {
		log.Printf("server: remove player session=%q conn=%s err=%v", sessionID, c.id, err)
	}

	room := h.hub.leave(sessionID, c.id)
	c.sessionID = ""
	c.playerName = ""

	if player != nil && room != nil {
		room.broadcast(newFrame(notice, playerLeftPayload{
			PlayerName: player.Name,
			PlayerID:   player.ID,
			Session:    h.registry.GetSession(sessionID),
		}), c.id)
	}
}

func (h *Handler) handleChatMessage(c *conn, payload json.RawMessage) error {
	if c.sessionID == "" {
		return fmt.Errorf("not in a session")
	}
	var req chatMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid chat payload")
	}
	if utf8.RuneCountInString(req.Message) > maxChatMessageRunes {
		return fmt.Errorf("message must be at most %d characters", maxChatMessageRunes)
	}

	msg, err := h.states.AddChatMessage(c.sessionID, c.playerName, req.Message)
	if err != nil {
		return err
	}

	h.hub.room(c.sessionID).broadcast(newFrame("chat-message", msg), "")
	return nil
}

func (h *Handler) handleGameAction(c *conn, payload json.RawMessage) error {
	if c.sessionID == "" {
		return fmt.Errorf("not in a session")
	}
	var action domain.Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return fmt.Errorf("invalid action payload")
	}
	action.PlayerID = c.id
	action.PlayerName = c.playerName

	updated, err := h.applyValidated(c.sessionID, action)
	if err != nil {
		return err
	}

	h.hub.room(c.sessionID).broadcast(newFrame("game-state-updated", gameStateUpdatedPayload{
		GameState: updated,
	}), "")
	return nil
}

func (h *Handler) handleRollDice(c *conn, payload json.RawMessage) error {
	if c.sessionID == "" {
		return fmt.Errorf("not in a session")
	}
	var req rollDicePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid roll payload")
	}

	action := domain.Action{
		Type:              domain.ActionRollDice,
		RelevantObjectIDs: req.RelevantObjectIDs,
		SelectedTags:      req.SelectedTags,
		Modifier:          req.Modifier,
		PlayerID:          c.id,
		PlayerName:        c.playerName,
	}

	updated, err := h.applyValidated(c.sessionID, action)
	if err != nil {
		return err
	}

	room := h.hub.room(c.sessionID)
	// The roll result goes out ahead of the full state so clients can
	// show the numbers without waiting for a re-render.
	if updated.LastRoll != nil {
		room.broadcast(newFrame("dice-rolled", updated.LastRoll), "")
	}
	room.broadcast(newFrame("game-state-updated", gameStateUpdatedPayload{
		GameState: updated,
	}), "")
	return nil
}

// applyValidated runs the validate-then-apply pipeline. An action that
// fails validation never reaches ApplyAction.
func (h *Handler) applyValidated(sessionID string, action domain.Action) (*domain.GameState, error) {
	if !h.states.ValidateAction(sessionID, action) {
		return nil, fmt.Errorf("invalid action")
	}
	return h.states.ApplyAction(sessionID, action)
}

func (h *Handler) handleGetSavedSessions(c *conn) error {
	summaries, err := h.snapshots.List(context.Background())
	if err != nil {
		return fmt.Errorf("list saved sessions: %w", err)
	}
	_ = c.peer.writeFrame(newFrame("saved-sessions", savedSessionsPayload{
		Sessions: summaries,
	}))
	return nil
}

func (h *Handler) handleGetSessionPlayers(c *conn, payload json.RawMessage) error {
	var req sessionPlayersRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid payload")
	}
	players, err := h.registry.SessionPlayers(strings.TrimSpace(req.SessionID))
	if err != nil {
		return err
	}
	_ = c.peer.writeFrame(newFrame("session-players", sessionPlayersPayload{
		SessionID: req.SessionID,
		Players:   players,
	}))
	return nil
}

// handleGetCurrentGameState is the reconnection handshake: it re-attaches
// the player's connection identity by display-name match and replies with
// the full snapshot. Others only see a lightweight rejoin notice, never a
// state-changed broadcast.
func (h *Handler) handleGetCurrentGameState(c *conn, payload json.RawMessage) error {
	var req currentGameStateRequestPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("invalid payload")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	playerName := strings.TrimSpace(req.PlayerName)
	if sessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if playerName == "" {
		return fmt.Errorf("playerName is required")
	}

	// Reconnecting into a different session implicitly leaves the first,
	// same as an explicit join.
	if c.sessionID != "" && c.sessionID != sessionID {
		h.leaveCurrentSession(c, "player-left")
	}

	ctx := context.Background()
	options := domain.DefaultSessionOptions()
	options.Name = sessionID
	resolved, savedState, err := h.registry.GetOrCreateSession(ctx, sessionID, options)
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	if savedState != nil {
		if err := h.states.RestoreSessionState(sessionID, savedState); err != nil {
			return fmt.Errorf("restore session state: %w", err)
		}
	}

	// Keep the GM flag the player held before the connection dropped.
	isGM := false
	if existing := resolved.PlayerByName(playerName); existing != nil {
		isGM = existing.IsGM
	}

	player, err := domain.NewPlayer(c.id, playerName, isGM, h.now)
	if err != nil {
		return err
	}
	rebound, err := h.registry.AddPlayerToSession(sessionID, player)
	if err != nil {
		return err
	}

	room := h.hub.room(sessionID)
	room.join(c.id, c.peer)
	c.sessionID = sessionID
	c.playerName = playerName

	_ = c.peer.writeFrame(newFrame("current-game-state", currentGameStatePayload{
		Session:   rebound,
		Player:    player,
		GameState: h.states.GetSessionState(sessionID),
	}))
	room.broadcast(newFrame("player-joined", playerJoinedPayload{
		Player:  player,
		Session: rebound,
	}), c.id)
	return nil
}
