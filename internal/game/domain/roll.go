package domain

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// DiceRoll is the immutable record of one 2d6 roll. It is created once per
// roll_dice action and never mutated afterwards.
type DiceRoll struct {
	ID           string    `json:"id"`
	PlayerID     string    `json:"playerId"`
	PlayerName   string    `json:"playerName"`
	Rolls        [2]int    `json:"rolls"`
	Modifier     int       `json:"modifier"`
	Total        int       `json:"total"`
	SelectedTags []Tag     `json:"selectedTags"`
	Description  string    `json:"description"`
	Timestamp    time.Time `json:"timestamp"`
}

// RollDice rolls two independent d6, applies the modifier, and builds a
// human-readable description from the selected tags.
//
// The result is deterministic with respect to the rng: given the same
// source state, the same dice values are produced. Total is always
// Rolls[0] + Rolls[1] + Modifier.
func RollDice(rng *rand.Rand, playerID, playerName string, modifier int, selectedTags []Tag, now func() time.Time) (DiceRoll, error) {
	if now == nil {
		now = time.Now
	}

	id, err := NewID()
	if err != nil {
		return DiceRoll{}, fmt.Errorf("generate roll id: %w", err)
	}

	rolls := [2]int{rollDie(rng), rollDie(rng)}
	total := rolls[0] + rolls[1] + modifier

	return DiceRoll{
		ID:           id,
		PlayerID:     playerID,
		PlayerName:   playerName,
		Rolls:        rolls,
		Modifier:     modifier,
		Total:        total,
		SelectedTags: append([]Tag(nil), selectedTags...),
		Description:  describeRoll(rolls, modifier, selectedTags, total),
		Timestamp:    now().UTC(),
	}, nil
}

// rollDie rolls a single six-sided die.
func rollDie(rng *rand.Rand) int {
	return rng.Intn(6) + 1
}

func describeRoll(rolls [2]int, modifier int, selectedTags []Tag, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rolled 2d6: %d + %d", rolls[0], rolls[1])

	if modifier != 0 {
		fmt.Fprintf(&b, " %+d", modifier)
		var positive, negative []string
		for _, tag := range selectedTags {
			if tag.Modifier < 0 {
				negative = append(negative, tag.Name)
			} else {
				positive = append(positive, tag.Name)
			}
		}
		if len(positive) > 0 || len(negative) > 0 {
			b.WriteString(" (")
			if len(positive) > 0 {
				fmt.Fprintf(&b, "+%s", strings.Join(positive, ", +"))
			}
			if len(negative) > 0 {
				if len(positive) > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "-%s", strings.Join(negative, ", -"))
			}
			b.WriteString(")")
		}
	}

	fmt.Fprintf(&b, " = %d", total)
	return b.String()
}
