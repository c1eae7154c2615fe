package objects

import (
	"errors"
	"testing"
	"time"

	"github.com/fireside-rpg/fireside/internal/game/domain"
)

func newTestStore() *Store {
	store := NewStore()
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	return store
}

func TestStoreCreateAndGet(t *testing.T) {
	store := newTestStore()

	obj, err := store.Create("sess", domain.ObjectTypeCharacter, map[string]any{"name": "Rin"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if obj.ID == "" {
		t.Fatal("created object has no id")
	}
	if obj.Tags == nil {
		t.Fatal("created object should carry an empty tag slice")
	}

	got, err := store.Get("sess", obj.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Contents["name"] != "Rin" {
		t.Fatalf("contents = %v, want name Rin", got.Contents)
	}

	// Mutating the returned copy must not leak into the store.
	got.Contents["name"] = "Impostor"
	again, err := store.Get("sess", obj.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Contents["name"] != "Rin" {
		t.Fatal("store mutated through returned copy")
	}
}

func TestStoreCreate_InvalidType(t *testing.T) {
	store := newTestStore()
	if _, err := store.Create("sess", domain.ObjectType("monster"), nil); err == nil {
		t.Fatal("Create() with invalid type should fail")
	}
}

func TestStoreUpdate(t *testing.T) {
	store := newTestStore()
	obj, err := store.Create("sess", domain.ObjectTypeCharacter, map[string]any{"name": "Rin", "hp": 10})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := store.Update("sess", obj.ID, map[string]any{"hp": 7, "status": "wounded"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Contents["name"] != "Rin" {
		t.Fatal("update should merge, not replace contents")
	}
	if updated.Contents["hp"] != 7 || updated.Contents["status"] != "wounded" {
		t.Fatalf("contents = %v, want merged values", updated.Contents)
	}
	if !updated.UpdatedAt.After(obj.UpdatedAt) {
		t.Fatal("update should bump UpdatedAt")
	}

	if _, err := store.Update("sess", "missing", nil); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("Update(missing) error = %v, want %v", err, ErrObjectNotFound)
	}
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore()
	obj, err := store.Create("sess", domain.ObjectTypeScene, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.Delete("sess", obj.ID)
	if store.Exists("sess", obj.ID) {
		t.Fatal("object still present after delete")
	}

	// Deleting again is a no-op.
	store.Delete("sess", obj.ID)
	store.Delete("other-session", obj.ID)
}

func TestStoreList_OrderedByCreation(t *testing.T) {
	store := newTestStore()
	first, err := store.Create("sess", domain.ObjectTypeCharacter, map[string]any{"name": "first"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	second, err := store.Create("sess", domain.ObjectTypeScene, map[string]any{"name": "second"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	list := store.List("sess")
	if len(list) != 2 {
		t.Fatalf("List() returned %d objects, want 2", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("List() order = [%s %s], want creation order", list[0].ID, list[1].ID)
	}
	if store.Count("sess") != 2 {
		t.Fatalf("Count() = %d, want 2", store.Count("sess"))
	}
	if len(store.List("empty-session")) != 0 {
		t.Fatal("List() on unknown session should be empty")
	}
}

func TestStoreTags(t *testing.T) {
	store := newTestStore()
	obj, err := store.Create("sess", domain.ObjectTypeCharacter, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tagged, err := store.AddTag("sess", obj.ID, "brave", 1)
	if err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if len(tagged.Tags) != 1 || tagged.Tags[0] != (domain.Tag{Name: "brave", Modifier: 1}) {
		t.Fatalf("tags = %v, want [brave +1]", tagged.Tags)
	}

	// Re-adding the same name replaces the modifier rather than duplicating.
	tagged, err = store.AddTag("sess", obj.ID, "brave", -3)
	if err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if len(tagged.Tags) != 1 || tagged.Tags[0].Modifier != -1 {
		t.Fatalf("tags = %v, want single brave -1", tagged.Tags)
	}

	if _, err := store.AddTag("sess", obj.ID, "  ", 1); err == nil {
		t.Fatal("AddTag() with blank name should fail")
	}

	removed, err := store.RemoveTag("sess", obj.ID, "brave")
	if err != nil {
		t.Fatalf("RemoveTag() error = %v", err)
	}
	if len(removed.Tags) != 0 {
		t.Fatalf("tags = %v, want none", removed.Tags)
	}

	// Removing an absent tag is a no-op.
	if _, err := store.RemoveTag("sess", obj.ID, "brave"); err != nil {
		t.Fatalf("RemoveTag() on absent tag error = %v", err)
	}
}

func TestSelectedTagModifiers(t *testing.T) {
	store := newTestStore()
	character, err := store.Create("sess", domain.ObjectTypeCharacter, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	scene, err := store.Create("sess", domain.ObjectTypeScene, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.AddTag("sess", character.ID, "brave", 1); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if _, err := store.AddTag("sess", character.ID, "wounded", -1); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if _, err := store.AddTag("sess", scene.ID, "dark", -1); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}

	objectIDs := []string{character.ID, scene.ID, "missing"}
	tags, total := store.SelectedTagModifiers("sess", objectIDs, []string{"brave", "dark", "unknown"})
	if len(tags) != 2 {
		t.Fatalf("resolved %d tags, want 2: %v", len(tags), tags)
	}
	if total != 0 {
		t.Fatalf("total = %d, want 0 (+1 brave, -1 dark)", total)
	}

	tags, total = store.SelectedTagModifiers("sess", objectIDs, nil)
	if len(tags) != 0 || total != 0 {
		t.Fatalf("empty selection resolved %v with total %d", tags, total)
	}
}

func TestStorePut_ReplacesByID(t *testing.T) {
	store := newTestStore()
	obj := &domain.GameObject{ID: "restored-1", Type: domain.ObjectTypeCharacter, Contents: map[string]any{"name": "Rin"}}

	if err := store.Put("sess", obj); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put("sess", obj); err != nil {
		t.Fatalf("Put() second time error = %v", err)
	}
	if store.Count("sess") != 1 {
		t.Fatalf("Count() = %d, want 1 after repeated Put", store.Count("sess"))
	}

	if err := store.Put("sess", &domain.GameObject{}); err == nil {
		t.Fatal("Put() without id should fail")
	}
}

func TestStorePurge(t *testing.T) {
	store := newTestStore()
	if _, err := store.Create("sess", domain.ObjectTypeCharacter, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	store.Purge("sess")
	if store.Count("sess") != 0 {
		t.Fatal("objects survive purge")
	}
}
