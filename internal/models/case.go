package models

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/misterio/internal/errors"
)

// Location is one of the fixed places on the adventure map.
type Location string

const (
	LocationCafe   Location = "cafe"
	LocationPlaza  Location = "plaza"
	LocationSchool Location = "school"
	LocationHome   Location = "home"
	LocationBeach  Location = "beach"
)

var locationNames = map[Location]string{
	LocationCafe:   "el café",
	LocationPlaza:  "la plaza",
	LocationSchool: "la escuela",
	LocationHome:   "la casa",
	LocationBeach:  "la playa",
}

// Locations returns the closed set of map locations in display order.
func Locations() []Location {
	return []Location{LocationCafe, LocationPlaza, LocationSchool, LocationHome, LocationBeach}
}

// Valid reports whether l belongs to the closed set of map locations.
func (l Location) Valid() bool {
	_, ok := locationNames[l]
	return ok
}

// SpanishName is the location as it is referred to in conversation, e.g. "la plaza".
func (l Location) SpanishName() string {
	if name, ok := locationNames[l]; ok {
		return name
	}
	return string(l)
}

// ProficiencyLevel is a CEFR level, with A0 for absolute beginners.
type ProficiencyLevel string

const (
	LevelA0 ProficiencyLevel = "A0"
	LevelA1 ProficiencyLevel = "A1"
	LevelA2 ProficiencyLevel = "A2"
	LevelB1 ProficiencyLevel = "B1"
	LevelB2 ProficiencyLevel = "B2"
	LevelC1 ProficiencyLevel = "C1"
)

// ParseProficiencyLevel accepts levels case-insensitively.
func ParseProficiencyLevel(s string) (ProficiencyLevel, bool) {
	level := ProficiencyLevel(strings.ToUpper(strings.TrimSpace(s)))
	switch level {
	case LevelA0, LevelA1, LevelA2, LevelB1, LevelB2, LevelC1:
		return level, true
	default:
		return "", false
	}
}

// Collectible is the reward for solving a case. ID is the de-duplication key of the backpack.
type Collectible struct {
	ID            string `json:"id" yaml:"id"`
	DisplayName   string `json:"name" yaml:"name"`
	DisplayNameES string `json:"nameEs" yaml:"name_es"`
	Emoji         string `json:"emoji" yaml:"emoji"`
}

// Step is one objective of a case: talk to Character at Location and say Keyword.
type Step struct {
	ID                 int      `json:"id" yaml:"id"`
	Location           Location `json:"location" yaml:"location"`
	Character          string   `json:"character" yaml:"character"`
	Prompt             string   `json:"prompt" yaml:"prompt"`
	Clue               string   `json:"clue" yaml:"clue"`
	Keyword            string   `json:"keyword" yaml:"keyword"`
	KeywordTranslation string   `json:"keywordTranslation,omitempty" yaml:"keyword_translation"`
	IsFinal            bool     `json:"isFinal" yaml:"is_final"`
}

// Case is a complete mystery. Cases are immutable once created.
type Case struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Intro       string      `json:"intro" yaml:"intro"`
	Goal        string      `json:"goal" yaml:"goal"`
	Collectible Collectible `json:"collectible" yaml:"collectible"`
	Steps       []Step      `json:"steps" yaml:"steps"`
}

var ErrInvalidCase = errors.NewSentinel("invalid case")

// Clone returns a copy of c that shares no memory with it.
func (c Case) Clone() Case {
	c.Steps = append([]Step(nil), c.Steps...)
	return c
}

// Validate checks the structural invariants every playable case must satisfy.
func (c *Case) Validate() error {
	if c == nil {
		return errors.Wrap(ErrInvalidCase, "nil case")
	}
	if c.ID == "" {
		return errors.Wrap(ErrInvalidCase, "missing case id")
	}
	if c.Collectible.ID == "" {
		return errors.Wrap(ErrInvalidCase, "missing collectible", slog.String("case_id", c.ID))
	}
	if len(c.Steps) == 0 {
		return errors.Wrap(ErrInvalidCase, "no steps", slog.String("case_id", c.ID))
	}

	seen := make(map[int]bool, len(c.Steps))
	for i, step := range c.Steps {
		attrs := []slog.Attr{slog.String("case_id", c.ID), slog.Int("step", i)}
		if seen[step.ID] {
			return errors.Wrap(ErrInvalidCase, "duplicate step id", attrs...)
		}
		seen[step.ID] = true
		if !step.Location.Valid() {
			return errors.Wrap(ErrInvalidCase, "unknown location",
				append(attrs, slog.String("location", string(step.Location)))...)
		}
		if strings.TrimSpace(step.Keyword) == "" || strings.ContainsAny(strings.TrimSpace(step.Keyword), " \t\n") {
			return errors.Wrap(ErrInvalidCase, "keyword must be a single word",
				append(attrs, slog.String("keyword", step.Keyword))...)
		}
		last := i == len(c.Steps)-1
		if step.IsFinal != last {
			return errors.Wrap(ErrInvalidCase, fmt.Sprintf("final flag must be set on the last step only, got %t", step.IsFinal),
				attrs...)
		}
	}
	return nil
}

// InventoryItem is a collectible found by a user.
type InventoryItem struct {
	UserID      string      `json:"-"`
	Collectible Collectible `json:"collectible"`
	FoundAt     time.Time   `json:"foundAt"`
}
