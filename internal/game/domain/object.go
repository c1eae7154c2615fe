package domain

import "time"

// ObjectType classifies a game object.
type ObjectType string

const (
	ObjectTypeCharacter  ObjectType = "character"
	ObjectTypeScene      ObjectType = "scene"
	ObjectTypeChallenge  ObjectType = "challenge"
	ObjectTypeFellowship ObjectType = "fellowship"
)

// Valid reports whether t is a known object type.
func (t ObjectType) Valid() bool {
	switch t {
	case ObjectTypeCharacter, ObjectTypeScene, ObjectTypeChallenge, ObjectTypeFellowship:
		return true
	}
	return false
}

// Tag is a named modifier attached to a game object. Modifier is +1 for
// a helpful tag and -1 for a hindering one.
type Tag struct {
	Name     string `json:"name"`
	Modifier int    `json:"modifier"`
}

// GameObject is a tagged, typed entity owned by the object store. Contents
// is the domain payload and stays opaque to the core, except that scene
// contents may carry an embedded "challenges" list (see objects package).
type GameObject struct {
	ID        string         `json:"id"`
	Type      ObjectType     `json:"type"`
	Contents  map[string]any `json:"contents"`
	Tags      []Tag          `json:"tags"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the object so callers cannot mutate the
// store's copy through shared maps or slices.
func (o *GameObject) Clone() *GameObject {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Contents = cloneContents(o.Contents)
	clone.Tags = append([]Tag(nil), o.Tags...)
	return &clone
}

func cloneContents(contents map[string]any) map[string]any {
	if contents == nil {
		return nil
	}
	out := make(map[string]any, len(contents))
	for key, value := range contents {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneContents(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
