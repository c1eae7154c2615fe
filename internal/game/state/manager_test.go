package state

import (
	"testing"

	"github.com/fireside-rpg/fireside/internal/game/domain"
	"github.com/fireside-rpg/fireside/internal/game/objects"
)

func newTestManager() (*Manager, *objects.Store) {
	store := objects.NewStore()
	return NewManager(store), store
}

func mustApply(t *testing.T, m *Manager, sessionID string, action domain.Action) *domain.GameState {
	t.Helper()
	if !m.ValidateAction(sessionID, action) {
		t.Fatalf("action %q failed validation", action.Type)
	}
	state, err := m.ApplyAction(sessionID, action)
	if err != nil {
		t.Fatalf("ApplyAction(%q) error = %v", action.Type, err)
	}
	return state
}

func TestValidateAction(t *testing.T) {
	manager, store := newTestManager()
	character, err := store.Create("sess", domain.ObjectTypeCharacter, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	scene, err := store.Create("sess", domain.ObjectTypeScene, map[string]any{
		"challenges": []any{map[string]any{"id": "ch-1"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name   string
		action domain.Action
		want   bool
	}{
		{"create valid type", domain.Action{Type: domain.ActionCreateObject, ObjectType: domain.ObjectTypeCharacter}, true},
		{"create invalid type", domain.Action{Type: domain.ActionCreateObject, ObjectType: "monster"}, false},
		{"update existing", domain.Action{Type: domain.ActionUpdateObject, ObjectID: character.ID}, true},
		{"update missing", domain.Action{Type: domain.ActionUpdateObject, ObjectID: "nope"}, false},
		{"update without id", domain.Action{Type: domain.ActionUpdateObject}, false},
		{"delete existing", domain.Action{Type: domain.ActionDeleteObject, ObjectID: character.ID}, true},
		{"delete missing", domain.Action{Type: domain.ActionDeleteObject, ObjectID: "nope"}, false},
		{"add tag", domain.Action{Type: domain.ActionAddTag, ObjectID: character.ID, TagName: "brave"}, true},
		{"add tag blank name", domain.Action{Type: domain.ActionAddTag, ObjectID: character.ID, TagName: "  "}, false},
		{"add tag missing object", domain.Action{Type: domain.ActionAddTag, ObjectID: "nope", TagName: "brave"}, false},
		{"remove tag", domain.Action{Type: domain.ActionRemoveTag, ObjectID: character.ID, TagName: "brave"}, true},
		{"roll dice", domain.Action{Type: domain.ActionRollDice}, true},
		{"set scene", domain.Action{Type: domain.ActionSetScene, SceneID: scene.ID}, true},
		{"clear scene", domain.Action{Type: domain.ActionSetScene}, true},
		{"set challenge", domain.Action{Type: domain.ActionSetChallenge, ChallengeID: "ch-1"}, true},
		{"set active challenge", domain.Action{Type: domain.ActionSetActiveChallenge, SceneID: scene.ID, ChallengeID: "ch-1"}, true},
		{"set active challenge missing scene", domain.Action{Type: domain.ActionSetActiveChallenge, SceneID: "nope", ChallengeID: "ch-1"}, false},
		{"set active challenge without id", domain.Action{Type: domain.ActionSetActiveChallenge, SceneID: scene.ID}, false},
		{"clear active challenge", domain.Action{Type: domain.ActionClearActiveChallenge}, true},
		{"overcome embedded challenge", domain.Action{Type: domain.ActionOvercomeChallenge, SceneID: scene.ID, ChallengeID: "ch-1"}, true},
		{"overcome unknown challenge", domain.Action{Type: domain.ActionOvercomeChallenge, SceneID: scene.ID, ChallengeID: "ch-9"}, false},
		{"toggle embedded challenge", domain.Action{Type: domain.ActionToggleOvercomeChallenge, SceneID: scene.ID, ChallengeID: "ch-1"}, true},
		{"add note", domain.Action{Type: domain.ActionAddNote, Text: "remember the bridge"}, true},
		{"add blank note", domain.Action{Type: domain.ActionAddNote, Text: "   "}, false},
		{"unknown action", domain.Action{Type: "explode"}, false},
		{"empty action", domain.Action{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := manager.ValidateAction("sess", tt.action); got != tt.want {
				t.Fatalf("ValidateAction(%q) = %v, want %v", tt.action.Type, got, tt.want)
			}
		})
	}
}

func TestApplyAction_ObjectLifecycle(t *testing.T) {
	manager, store := newTestManager()

	state := mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionCreateObject,
		ObjectType: domain.ObjectTypeCharacter,
		Contents:   map[string]any{"name": "Rin"},
	})
	if len(state.GameObjects) != 1 {
		t.Fatalf("got %d objects, want 1", len(state.GameObjects))
	}
	objectID := state.GameObjects[0].ID

	state = mustApply(t, manager, "sess", domain.Action{
		Type:     domain.ActionUpdateObject,
		ObjectID: objectID,
		Contents: map[string]any{"hp": 7},
	})
	if state.GameObjects[0].Contents["hp"] != 7 {
		t.Fatalf("updated contents = %v", state.GameObjects[0].Contents)
	}

	state = mustApply(t, manager, "sess", domain.Action{
		Type:     domain.ActionDeleteObject,
		ObjectID: objectID,
	})
	if len(state.GameObjects) != 0 {
		t.Fatalf("got %d objects after delete, want 0", len(state.GameObjects))
	}
	if store.Exists("sess", objectID) {
		t.Fatal("object survives delete in store")
	}
}

func TestApplyAction_DeleteClearsReferences(t *testing.T) {
	manager, _ := newTestManager()

	state := mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionCreateObject,
		ObjectType: domain.ObjectTypeScene,
	})
	sceneID := state.GameObjects[0].ID

	mustApply(t, manager, "sess", domain.Action{Type: domain.ActionSetScene, SceneID: sceneID})
	state = mustApply(t, manager, "sess", domain.Action{Type: domain.ActionDeleteObject, ObjectID: sceneID})

	if state.CurrentScene != "" {
		t.Fatalf("current scene = %q after deleting the scene, want cleared", state.CurrentScene)
	}
}

func TestApplyAction_Tags(t *testing.T) {
	manager, _ := newTestManager()

	state := mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionCreateObject,
		ObjectType: domain.ObjectTypeCharacter,
	})
	objectID := state.GameObjects[0].ID

	// Zero modifier defaults to helpful.
	state = mustApply(t, manager, "sess", domain.Action{
		Type:     domain.ActionAddTag,
		ObjectID: objectID,
		TagName:  "brave",
	})
	if got := state.GameObjects[0].Tags; len(got) != 1 || got[0].Modifier != 1 {
		t.Fatalf("tags = %v, want [brave +1]", got)
	}

	state = mustApply(t, manager, "sess", domain.Action{
		Type:        domain.ActionAddTag,
		ObjectID:    objectID,
		TagName:     "wounded",
		TagModifier: -1,
	})
	if len(state.GameObjects[0].Tags) != 2 {
		t.Fatalf("tags = %v, want 2 entries", state.GameObjects[0].Tags)
	}

	state = mustApply(t, manager, "sess", domain.Action{
		Type:     domain.ActionRemoveTag,
		ObjectID: objectID,
		TagName:  "brave",
	})
	if got := state.GameObjects[0].Tags; len(got) != 1 || got[0].Name != "wounded" {
		t.Fatalf("tags = %v, want only wounded", got)
	}
}

func TestApplyAction_RollDiceRecomputesModifier(t *testing.T) {
	manager, store := newTestManager()

	character, err := store.Create("sess", domain.ObjectTypeCharacter, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.AddTag("sess", character.ID, "brave", 1); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if _, err := store.AddTag("sess", character.ID, "wounded", -1); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}

	// A client-sent modifier gets recomputed from the store's tags.
	state := mustApply(t, manager, "sess", domain.Action{
		Type:              domain.ActionRollDice,
		Modifier:          99,
		SelectedTags:      []domain.Tag{{Name: "brave", Modifier: 99}, {Name: "wounded", Modifier: 99}},
		RelevantObjectIDs: []string{character.ID},
		PlayerID:          "conn-1",
		PlayerName:        "Rin",
	})
	if state.LastRoll == nil {
		t.Fatal("last roll not recorded")
	}
	if state.LastRoll.Modifier != 0 {
		t.Fatalf("modifier = %d, want 0 recomputed from tags", state.LastRoll.Modifier)
	}
	if state.LastRoll.Total != state.LastRoll.Rolls[0]+state.LastRoll.Rolls[1] {
		t.Fatalf("total = %d inconsistent with dice %v", state.LastRoll.Total, state.LastRoll.Rolls)
	}
	if state.LastRoll.PlayerName != "Rin" {
		t.Fatalf("player name = %q, want Rin", state.LastRoll.PlayerName)
	}

	// With no resolvable tags the client modifier is kept as a fallback.
	state = mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionRollDice,
		Modifier:   2,
		PlayerID:   "conn-1",
		PlayerName: "Rin",
	})
	if state.LastRoll.Modifier != 2 {
		t.Fatalf("fallback modifier = %d, want 2", state.LastRoll.Modifier)
	}
}

func TestApplyAction_ChallengeFlow(t *testing.T) {
	manager, _ := newTestManager()

	state := mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionCreateObject,
		ObjectType: domain.ObjectTypeScene,
		Contents: map[string]any{
			"challenges": []any{map[string]any{"id": "ch-1", "overcome": false}},
		},
	})
	sceneID := state.GameObjects[0].ID

	state = mustApply(t, manager, "sess", domain.Action{
		Type:        domain.ActionSetActiveChallenge,
		SceneID:     sceneID,
		ChallengeID: "ch-1",
	})
	if state.ActiveChallenge != "ch-1" {
		t.Fatalf("active challenge = %q, want ch-1", state.ActiveChallenge)
	}

	// Overcoming the active challenge clears the active reference.
	state = mustApply(t, manager, "sess", domain.Action{
		Type:        domain.ActionOvercomeChallenge,
		SceneID:     sceneID,
		ChallengeID: "ch-1",
	})
	if state.ActiveChallenge != "" {
		t.Fatalf("active challenge = %q after overcome, want cleared", state.ActiveChallenge)
	}
	challenge := state.GameObjects[0].Contents["challenges"].([]any)[0].(map[string]any)
	if challenge["overcome"] != true {
		t.Fatal("challenge not marked overcome")
	}

	// Toggling back clears the overcome state entirely.
	state = mustApply(t, manager, "sess", domain.Action{
		Type:        domain.ActionToggleOvercomeChallenge,
		SceneID:     sceneID,
		ChallengeID: "ch-1",
	})
	challenge = state.GameObjects[0].Contents["challenges"].([]any)[0].(map[string]any)
	if challenge["overcome"] != false || challenge["overcomeAt"] != nil {
		t.Fatalf("challenge not reset by toggle: %v", challenge)
	}
}

func TestApplyAction_Notes(t *testing.T) {
	manager, _ := newTestManager()

	state := mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionAddNote,
		Text:       "  the bridge is out  ",
		PlayerName: "Rin",
	})
	if len(state.Notes) != 1 {
		t.Fatalf("got %d notes, want 1", len(state.Notes))
	}
	if state.Notes[0].Text != "the bridge is out" {
		t.Fatalf("note text = %q, want trimmed", state.Notes[0].Text)
	}
	if state.Notes[0].Author != "Rin" {
		t.Fatalf("note author = %q, want Rin", state.Notes[0].Author)
	}
}

func TestApplyAction_UnknownType(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.ApplyAction("sess", domain.Action{Type: "explode"}); err == nil {
		t.Fatal("ApplyAction() with unknown type should fail")
	}
}

func TestAddChatMessage(t *testing.T) {
	manager, _ := newTestManager()

	msg, err := manager.AddChatMessage("sess", "Rin", "  hello table  ")
	if err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}
	if msg.Message != "hello table" {
		t.Fatalf("message = %q, want trimmed", msg.Message)
	}

	state := manager.GetSessionState("sess")
	if len(state.Chat) != 1 || state.Chat[0].ID != msg.ID {
		t.Fatalf("chat log = %v, want the appended message", state.Chat)
	}

	if _, err := manager.AddChatMessage("sess", "Rin", "   "); err == nil {
		t.Fatal("blank chat message should fail")
	}
}

func TestRestoreSessionState_Idempotent(t *testing.T) {
	manager, store := newTestManager()

	saved := &domain.GameState{
		CurrentScene: "scene-1",
		Chat:         []domain.ChatMessage{{ID: "msg-1", Message: "hi"}},
		DiceRolls:    []domain.DiceRoll{{ID: "roll-1", Total: 7}},
		Notes:        []domain.Note{{ID: "note-1", Text: "remember"}},
		GameObjects: []*domain.GameObject{
			{ID: "scene-1", Type: domain.ObjectTypeScene},
			{ID: "char-1", Type: domain.ObjectTypeCharacter},
		},
	}

	if err := manager.RestoreSessionState("sess", saved); err != nil {
		t.Fatalf("RestoreSessionState() error = %v", err)
	}
	if err := manager.RestoreSessionState("sess", saved); err != nil {
		t.Fatalf("RestoreSessionState() second time error = %v", err)
	}

	if got := store.Count("sess"); got != 2 {
		t.Fatalf("object count = %d after double restore, want 2", got)
	}

	state := manager.GetSessionState("sess")
	if state.CurrentScene != "scene-1" {
		t.Fatalf("current scene = %q, want scene-1", state.CurrentScene)
	}
	if len(state.Chat) != 1 || len(state.DiceRolls) != 1 || len(state.Notes) != 1 {
		t.Fatalf("logs = %d/%d/%d, want 1/1/1", len(state.Chat), len(state.DiceRolls), len(state.Notes))
	}
	if state.LastRoll == nil || state.LastRoll.ID != "roll-1" {
		t.Fatalf("last roll = %v, want recovered from roll log", state.LastRoll)
	}

	// Restoring a nil snapshot is a no-op.
	if err := manager.RestoreSessionState("sess", nil); err != nil {
		t.Fatalf("RestoreSessionState(nil) error = %v", err)
	}
}

func TestDropSessionState(t *testing.T) {
	manager, store := newTestManager()

	mustApply(t, manager, "sess", domain.Action{
		Type:       domain.ActionCreateObject,
		ObjectType: domain.ObjectTypeCharacter,
	})
	if _, err := manager.AddChatMessage("sess", "Rin", "hello"); err != nil {
		t.Fatalf("AddChatMessage() error = %v", err)
	}

	manager.DropSessionState("sess")

	if store.Count("sess") != 0 {
		t.Fatal("objects survive drop")
	}
	state := manager.GetSessionState("sess")
	if len(state.Chat) != 0 || len(state.GameObjects) != 0 {
		t.Fatal("state survives drop")
	}
}
