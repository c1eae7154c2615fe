// Package state implements the per-session state reducer.
//
// The Manager is the sole mutator of session game state. Every mutation
// arrives as a domain.Action and goes through a validate-then-apply
// pipeline: callers validate first and must not apply an action that
// failed validation. Validation is a pure predicate; application assumes
// a validated action and only errors on programmer mistakes such as an
// unknown action kind.
package state

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
	"github.com/fireside-rpg/fireside/internal/game/objects"
	"github.com/fireside-rpg/fireside/internal/random"
)

// Manager owns per-session transient state and delegates object ownership
// to the object store.
type Manager struct {
	mu      sync.Mutex
	states  map[string]*domain.GameState
	objects *objects.Store
	rng     *rand.Rand
	now     func() time.Time
	newID   func() (string, error)
}

// NewManager creates a reducer over the given object store. The dice rng
// is seeded from crypto/rand.
func NewManager(store *objects.Store) *Manager {
	seed, err := random.NewSeed()
	if err != nil {
		// crypto/rand is the process entropy source; if it fails the
		// process has bigger problems than dice.
		panic(fmt.Sprintf("seed dice rng: %v", err))
	}
	return &Manager{
		states:  make(map[string]*domain.GameState),
		objects: store,
		rng:     rand.New(rand.NewSource(seed)),
		now:     time.Now,
		newID:   domain.NewID,
	}
}

// stateFor lazily creates the per-session state. Caller holds mu.
func (m *Manager) stateFor(sessionID string) *domain.GameState {
	state, ok := m.states[sessionID]
	if !ok {
		state = domain.NewGameState()
		m.states[sessionID] = state
	}
	return state
}

// GetSessionState returns a view of the session's state with the game
// object projection refreshed from the object store.
func (m *Manager) GetSessionState(sessionID string) *domain.GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked(sessionID)
}

// viewLocked copies the live state and recomputes the object projection.
// Caller holds mu.
func (m *Manager) viewLocked(sessionID string) *domain.GameState {
	state := m.stateFor(sessionID)
	view := &domain.GameState{
		CurrentScene:    state.CurrentScene,
		ActiveChallenge: state.ActiveChallenge,
		Chat:            append([]domain.ChatMessage(nil), state.Chat...),
		DiceRolls:       append([]domain.DiceRoll(nil), state.DiceRolls...),
		Notes:           append([]domain.Note(nil), state.Notes...),
		GameObjects:     m.objects.List(sessionID),
	}
	if state.LastRoll != nil {
		last := *state.LastRoll
		view.LastRoll = &last
	}
	return view
}

// ValidateAction reports whether the action may be applied. Malformed
// input and unknown action kinds validate false; nothing here mutates
// state or errors for user input.
func (m *Manager) ValidateAction(sessionID string, action domain.Action) bool {
	switch action.Type {
	case domain.ActionCreateObject:
		return action.ObjectType.Valid()
	case domain.ActionUpdateObject, domain.ActionDeleteObject:
		return action.ObjectID != "" && m.objects.Exists(sessionID, action.ObjectID)
	case domain.ActionAddTag, domain.ActionRemoveTag:
		return strings.TrimSpace(action.TagName) != "" &&
			action.ObjectID != "" && m.objects.Exists(sessionID, action.ObjectID)
	case domain.ActionRollDice:
		// The modifier itself is client input; only its shape is checked
		// here. Application resolves the authoritative value from tags
		// when it can.
		return true
	case domain.ActionSetScene, domain.ActionSetChallenge:
		// Clearing by passing an empty reference is allowed.
		return true
	case domain.ActionSetActiveChallenge:
		return action.ChallengeID != "" && action.SceneID != "" &&
			m.objects.Exists(sessionID, action.SceneID)
	case domain.ActionClearActiveChallenge:
		return true
	case domain.ActionOvercomeChallenge, domain.ActionToggleOvercomeChallenge:
		return action.ChallengeID != "" && action.SceneID != "" &&
			m.objects.HasSceneChallenge(sessionID, action.SceneID, action.ChallengeID)
	case domain.ActionAddNote:
		return strings.TrimSpace(action.Text) != ""
	}
	return false
}

// ApplyAction mutates session state for a pre-validated action and
// returns the updated view. Callers must have called ValidateAction
// first; an unknown action kind here is a programmer error.
func (m *Manager) ApplyAction(sessionID string, action domain.Action) (*domain.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.stateFor(sessionID)

	switch action.Type {
	case domain.ActionCreateObject:
		if _, err := m.objects.Create(sessionID, action.ObjectType, action.Contents); err != nil {
			return nil, err
		}

	case domain.ActionUpdateObject:
		if _, err := m.objects.Update(sessionID, action.ObjectID, action.Contents); err != nil {
			return nil, err
		}

	case domain.ActionDeleteObject:
		m.objects.Delete(sessionID, action.ObjectID)
		if state.CurrentScene == action.ObjectID {
			state.CurrentScene = ""
		}
		if state.ActiveChallenge == action.ObjectID {
			state.ActiveChallenge = ""
		}

	case domain.ActionAddTag:
		modifier := action.TagModifier
		if modifier == 0 {
			modifier = 1
		}
		if _, err := m.objects.AddTag(sessionID, action.ObjectID, action.TagName, modifier); err != nil {
			return nil, err
		}

	case domain.ActionRemoveTag:
		if _, err := m.objects.RemoveTag(sessionID, action.ObjectID, action.TagName); err != nil {
			return nil, err
		}

	case domain.ActionRollDice:
		roll, err := m.rollDice(sessionID, action)
		if err != nil {
			return nil, err
		}
		state.AppendDiceRoll(roll)

	case domain.ActionSetScene:
		state.CurrentScene = action.SceneID

	case domain.ActionSetChallenge:
		state.ActiveChallenge = action.ChallengeID

	case domain.ActionSetActiveChallenge:
		if m.objects.HasSceneChallenge(sessionID, action.SceneID, action.ChallengeID) {
			state.ActiveChallenge = action.ChallengeID
		}

	case domain.ActionClearActiveChallenge:
		state.ActiveChallenge = ""

	case domain.ActionOvercomeChallenge:
		if err := m.objects.SetChallengeOvercome(sessionID, action.SceneID, action.ChallengeID, true); err != nil {
			return nil, err
		}
		// An overcome challenge is never left active.
		if state.ActiveChallenge == action.ChallengeID {
			state.ActiveChallenge = ""
		}

	case domain.ActionToggleOvercomeChallenge:
		overcome, err := m.objects.ToggleChallengeOvercome(sessionID, action.SceneID, action.ChallengeID)
		if err != nil {
			return nil, err
		}
		if overcome && state.ActiveChallenge == action.ChallengeID {
			state.ActiveChallenge = ""
		}

	case domain.ActionAddNote:
		id, err := m.newID()
		if err != nil {
			return nil, fmt.Errorf("generate note id: %w", err)
		}
		state.AppendNote(domain.Note{
			ID:        id,
			Text:      strings.TrimSpace(action.Text),
			Author:    action.PlayerName,
			Timestamp: m.now().UTC(),
		})

	default:
		return nil, fmt.Errorf("unknown action type %q", action.Type)
	}

	return m.viewLocked(sessionID), nil
}

// rollDice resolves the authoritative roll modifier and rolls. The
// client-sent modifier is used only when none of the selected tags
// resolve against the object store. Caller holds mu.
func (m *Manager) rollDice(sessionID string, action domain.Action) (domain.DiceRoll, error) {
	tagNames := make([]string, 0, len(action.SelectedTags))
	for _, tag := range action.SelectedTags {
		tagNames = append(tagNames, tag.Name)
	}

	selectedTags := action.SelectedTags
	modifier := action.Modifier
	if resolved, total := m.objects.SelectedTagModifiers(sessionID, action.RelevantObjectIDs, tagNames); len(resolved) > 0 {
		selectedTags = resolved
		modifier = total
	}

	return domain.RollDice(m.rng, action.PlayerID, action.PlayerName, modifier, selectedTags, m.now)
}

// AddChatMessage appends a chat message to the session's bounded chat log.
func (m *Manager) AddChatMessage(sessionID, playerName, message string) (domain.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.ChatMessage{}, fmt.Errorf("chat message is required")
	}

	id, err := m.newID()
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("generate message id: %w", err)
	}

	msg := domain.ChatMessage{
		ID:         id,
		PlayerName: playerName,
		Message:    message,
		Timestamp:  m.now().UTC(),
	}

	m.mu.Lock()
	m.stateFor(sessionID).AppendChat(msg)
	m.mu.Unlock()
	return msg, nil
}

// RestoreSessionState replaces the session's live state with a persisted
// snapshot and re-registers each saved object with the object store.
// Restoring the same snapshot twice leaves the same state and the same
// object count.
func (m *Manager) RestoreSessionState(sessionID string, saved *domain.GameState) error {
	if saved == nil {
		return nil
	}

	for _, obj := range saved.GameObjects {
		if err := m.objects.Put(sessionID, obj); err != nil {
			return fmt.Errorf("restore object: %w", err)
		}
	}

	m.mu.Lock()
	state := m.stateFor(sessionID)
	state.CurrentScene = saved.CurrentScene
	state.ActiveChallenge = saved.ActiveChallenge
	state.Chat = append([]domain.ChatMessage(nil), saved.Chat...)
	state.DiceRolls = append([]domain.DiceRoll(nil), saved.DiceRolls...)
	state.Notes = append([]domain.Note(nil), saved.Notes...)
	state.LastRoll = nil
	if saved.LastRoll != nil {
		last := *saved.LastRoll
		state.LastRoll = &last
	} else if len(state.DiceRolls) > 0 {
		last := state.DiceRolls[len(state.DiceRolls)-1]
		state.LastRoll = &last
	}
	m.mu.Unlock()
	return nil
}

// DropSessionState discards the session's transient state and purges its
// objects. Used when a session is deleted outright.
func (m *Manager) DropSessionState(sessionID string) {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
	m.objects.Purge(sessionID)
}
