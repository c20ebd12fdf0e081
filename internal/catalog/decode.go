package catalog

import (
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/random"
)

type generatedCollectible struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	NameES string `json:"nameEs"`
	Emoji  string `json:"emoji"`
}

type generatedCase struct {
	Title       string                `json:"title"`
	Intro       string                `json:"intro"`
	Goal        string                `json:"goal"`
	Collectible *generatedCollectible `json:"collectible"`
	Steps       []models.Step         `json:"steps"`
}

// StripCodeFence removes a surrounding markdown code fence, with or without a language tag.
func StripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.TrimPrefix(cleaned, "```")
	// Drop the language tag such as "json", which may be followed directly by the payload.
	if newline := strings.IndexByte(cleaned, '\n'); newline != -1 && !strings.ContainsAny(cleaned[:newline], "{[") {
		cleaned = cleaned[newline+1:]
	} else {
		cleaned = strings.TrimLeftFunc(cleaned, unicode.IsLetter)
	}
	if idx := strings.LastIndex(cleaned, "```"); idx != -1 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimSpace(cleaned)
}

// Decode parses a generated case and checks it against the generation contract: a collectible, exactly
// GeneratedStepCount steps, known locations and a single final step at the end.
func Decode(raw string) (models.Case, error) {
	var g generatedCase
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &g); err != nil {
		return models.Case{}, errors.Wrap(models.ErrInvalidCase, "parse JSON", slog.String("error", err.Error()))
	}
	if g.Collectible == nil {
		return models.Case{}, errors.Wrap(models.ErrInvalidCase, "missing collectible")
	}
	if len(g.Steps) != GeneratedStepCount {
		return models.Case{}, errors.Wrap(models.ErrInvalidCase, "unexpected step count",
			slog.Int("steps", len(g.Steps)))
	}

	id, err := random.ID("gen-", caseIDLength)
	if err != nil {
		return models.Case{}, errors.Wrap(err, "generate case id")
	}
	c := models.Case{
		ID:    id,
		Title: strings.TrimSpace(g.Title),
		Intro: strings.TrimSpace(g.Intro),
		Goal:  strings.TrimSpace(g.Goal),
		Collectible: models.Collectible{
			ID:            strings.TrimSpace(g.Collectible.ID),
			DisplayName:   g.Collectible.Name,
			DisplayNameES: g.Collectible.NameES,
			Emoji:         g.Collectible.Emoji,
		},
		Steps: make([]models.Step, len(g.Steps)),
	}
	for i, step := range g.Steps {
		// Models number steps inconsistently, positions are authoritative.
		step.ID = i + 1
		step.Keyword = strings.TrimSpace(step.Keyword)
		c.Steps[i] = step
	}

	if err = c.Validate(); err != nil {
		return models.Case{}, errors.Wrap(err, "validate generated case")
	}
	return c, nil
}
