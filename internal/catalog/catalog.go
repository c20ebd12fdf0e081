package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinDocument []byte

// GeneratedStepCount is the number of steps requested from and required of the completion service.
const GeneratedStepCount = 3

const (
	DefaultTheme             = "un objeto perdido en el pueblo"
	DefaultGenerationTimeout = 20 * time.Second
	caseIDLength             = 12
)

var builtin = sync.OnceValue(func() models.Case {
	var c models.Case
	decoder := yaml.NewDecoder(bytes.NewReader(builtinDocument))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		panic(fmt.Sprintf("decode builtin case: %v", err))
	}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("validate builtin case: %v", err))
	}
	return c
})

// Builtin returns the hand-authored three step case. It is deterministic and always playable.
func Builtin() models.Case {
	return builtin().Clone()
}

// Catalog supplies cases, either the builtin one or freshly generated ones.
type Catalog struct {
	completer ai.Completer
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Catalog. A zero timeout selects DefaultGenerationTimeout.
func New(completer ai.Completer, timeout time.Duration, logger *slog.Logger) *Catalog {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Catalog{
		completer: completer,
		timeout:   timeout,
		logger:    logger.With("source", "Catalog"),
	}
}

// Builtin returns the builtin case.
func (c *Catalog) Builtin() models.Case {
	return Builtin()
}

// Generate asks the completion service for a new case about theme at the given level.
//
// Generate never fails: malformed output, schema violations, timeouts and network errors are logged and the
// builtin case is returned instead.
func (c *Catalog) Generate(ctx context.Context, theme string, level models.ProficiencyLevel) models.Case {
	generated, err := c.generate(ctx, theme, level)
	if err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "case generation failed, falling back to builtin case",
			slog.String("theme", theme), slog.String("level", string(level)), errors.SlogError(err))
		return Builtin()
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "generated case",
		slog.String("case_id", generated.ID), slog.String("title", generated.Title))
	return generated
}

func (c *Catalog) generate(ctx context.Context, theme string, level models.ProficiencyLevel) (models.Case, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	content, err := ai.Complete(ctx, c.completer, generationMessages(theme, level))
	if err != nil {
		return models.Case{}, errors.Wrap(err, "request case")
	}
	generated, err := Decode(content)
	if err != nil {
		return models.Case{}, errors.Wrap(err, "decode case")
	}
	return generated, nil
}

func generationMessages(theme string, level models.ProficiencyLevel) []openai.ChatCompletionMessage {
	if strings.TrimSpace(theme) == "" {
		theme = DefaultTheme
	}
	locations := make([]string, 0, len(models.Locations()))
	for _, l := range models.Locations() {
		locations = append(locations, fmt.Sprintf("%q", l))
	}

	system := fmt.Sprintf(`You design short mystery games for children learning Spanish at CEFR level %s.
Reply with a single JSON object and nothing else, using exactly this shape:
{
  "title": "string in Spanish",
  "intro": "string in Spanish",
  "goal": "string in Spanish",
  "collectible": {"id": "kebab-case-english-id", "name": "English name", "nameEs": "Spanish name", "emoji": "one emoji"},
  "steps": [
    {"id": 1, "location": "one of the allowed locations", "character": "role of the person to talk to",
     "prompt": "instruction for the player in Spanish", "clue": "what the character reveals in Spanish",
     "keyword": "one Spanish word the player must say", "keywordTranslation": "English translation",
     "isFinal": false}
  ]
}
Rules:
- Exactly %d steps. Only the last step has "isFinal": true.
- "location" must be one of: %s.
- "keyword" is a single lowercase word without spaces.
- "collectible" is required.
- Use vocabulary suitable for level %s.`,
		level, GeneratedStepCount, strings.Join(locations, ", "), level)

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Theme: %s", theme)},
	}
}
