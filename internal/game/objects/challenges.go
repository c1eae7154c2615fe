package objects

import "time"

// Scene-embedded challenges live inside the scene object's contents under
// the "challenges" key as a list of maps with at least an "id" field.
// They are not separately addressable top-level objects.

// HasSceneChallenge reports whether the scene's embedded challenge list
// contains the challenge ID.
func (s *Store) HasSceneChallenge(sessionID, sceneID, challengeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.sessions[sessionID][sceneID]
	if !ok {
		return false
	}
	return findChallenge(scene.Contents, challengeID) != nil
}

// SetChallengeOvercome marks the embedded challenge overcome or not,
// stamping or clearing its overcomeAt timestamp accordingly.
func (s *Store) SetChallengeOvercome(sessionID, sceneID, challengeID string, overcome bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.sessions[sessionID][sceneID]
	if !ok {
		return ErrObjectNotFound
	}
	challenge := findChallenge(scene.Contents, challengeID)
	if challenge == nil {
		return ErrChallengeNotFound
	}

	challenge["overcome"] = overcome
	if overcome {
		challenge["overcomeAt"] = s.now().UTC().Format(time.RFC3339)
	} else {
		challenge["overcomeAt"] = nil
	}
	scene.UpdatedAt = s.now().UTC()
	return nil
}

// ToggleChallengeOvercome flips the embedded challenge's overcome flag and
// returns the new value. Toggling back to not-overcome clears overcomeAt.
func (s *Store) ToggleChallengeOvercome(sessionID, sceneID, challengeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scene, ok := s.sessions[sessionID][sceneID]
	if !ok {
		return false, ErrObjectNotFound
	}
	challenge := findChallenge(scene.Contents, challengeID)
	if challenge == nil {
		return false, ErrChallengeNotFound
	}

	overcome, _ := challenge["overcome"].(bool)
	overcome = !overcome
	challenge["overcome"] = overcome
	if overcome {
		challenge["overcomeAt"] = s.now().UTC().Format(time.RFC3339)
	} else {
		challenge["overcomeAt"] = nil
	}
	scene.UpdatedAt = s.now().UTC()
	return overcome, nil
}

func findChallenge(contents map[string]any, challengeID string) map[string]any {
	if contents == nil {
		return nil
	}
	list, ok := contents["challenges"].([]any)
	if !ok {
		return nil
	}
	for _, item := range list {
		challenge, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := challenge["id"].(string); id == challengeID {
			return challenge
		}
	}
	return nil
}
