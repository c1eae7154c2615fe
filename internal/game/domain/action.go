package domain

// ActionType tags an action variant. The set is closed: the reducer
// matches exhaustively and rejects anything else.
type ActionType string

const (
	ActionCreateObject            ActionType = "create_object"
	ActionUpdateObject            ActionType = "update_object"
	ActionDeleteObject            ActionType = "delete_object"
	ActionAddTag                  ActionType = "add_tag"
	ActionRemoveTag               ActionType = "remove_tag"
	ActionRollDice                ActionType = "roll_dice"
	ActionSetScene                ActionType = "set_scene"
	ActionSetChallenge            ActionType = "set_challenge"
	ActionSetActiveChallenge      ActionType = "set_active_challenge"
	ActionClearActiveChallenge    ActionType = "clear_active_challenge"
	ActionOvercomeChallenge       ActionType = "overcome_challenge"
	ActionToggleOvercomeChallenge ActionType = "toggle_overcome_challenge"
	ActionAddNote                 ActionType = "add_note"
)

// Action is a tagged command against session state. Only the fields for
// the given Type are meaningful; the rest stay zero.
type Action struct {
	Type ActionType `json:"type"`

	// create_object / update_object / delete_object
	ObjectType ObjectType     `json:"objectType,omitempty"`
	ObjectID   string         `json:"objectId,omitempty"`
	Contents   map[string]any `json:"contents,omitempty"`

	// add_tag / remove_tag
	TagName     string `json:"tagName,omitempty"`
	TagModifier int    `json:"tagModifier,omitempty"`

	// set_scene / set_active_challenge / overcome_challenge
	SceneID     string `json:"sceneId,omitempty"`
	ChallengeID string `json:"challengeId,omitempty"`

	// roll_dice
	Modifier          int      `json:"modifier,omitempty"`
	SelectedTags      []Tag    `json:"selectedTags,omitempty"`
	RelevantObjectIDs []string `json:"relevantObjectIds,omitempty"`

	// add_note
	Text string `json:"text,omitempty"`

	// Originating player, filled in by the protocol handler.
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
}
