// Package conversation implements the roleplay chat at a map location and the quest trigger it carries.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/myrjola/misterio/internal/ai"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/keyword"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/quest"
	"github.com/sashabaranov/go-openai"
)

// maxHistory bounds the messages replayed to the completion service.
const maxHistory = 20

type Event int

const (
	EventNone Event = iota
	EventClueFound
	EventCaseSolved
)

func (e Event) String() string {
	switch e {
	case EventClueFound:
		return "clue_found"
	case EventCaseSolved:
		return "case_solved"
	default:
		return "none"
	}
}

func (e Event) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// Turn is the outcome of one utterance. Reply is empty when the completion service failed after a quest event.
type Turn struct {
	Event    Event          `json:"event"`
	Clue     string         `json:"clue,omitempty"`
	Reply    string         `json:"reply"`
	Snapshot quest.Snapshot `json:"quest"`
}

// Session is a conversation at one location.
type Session struct {
	location  models.Location
	engine    *quest.Engine
	completer ai.Completer
	logger    *slog.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func NewSession(location models.Location, engine *quest.Engine, completer ai.Completer, logger *slog.Logger) *Session {
	return &Session{
		location:  location,
		engine:    engine,
		completer: completer,
		logger:    logger.With("source", "Conversation", slog.String("location", string(location))),
		mu:        sync.Mutex{},
		history:   nil,
	}
}

// Say processes an utterance. When a quest step targets this location and the utterance contains its keyword, the
// step is advanced at most once and the turn reports the event. The character then answers in Spanish.
//
// An error is returned only when nothing happened and the completion service failed.
func (s *Session) Say(ctx context.Context, utterance string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := Turn{Event: EventNone, Clue: "", Reply: "", Snapshot: s.engine.Snapshot()}
	step, atStep := s.stepHere(turn.Snapshot)
	if atStep && keyword.Matches(utterance, step.Keyword) {
		snapshot, advanced := s.engine.AdvanceFrom(ctx, turn.Snapshot.CurrentStepIndex)
		turn.Snapshot = snapshot
		if advanced {
			turn.Event = EventClueFound
			if snapshot.IsSolved {
				turn.Event = EventCaseSolved
			}
			turn.Clue = step.Clue
			s.logger.LogAttrs(ctx, slog.LevelInfo, "keyword matched",
				slog.String("keyword", step.Keyword), slog.String("event", turn.Event.String()))
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(s.history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt(turn, step, atStep),
	})
	messages = append(messages, s.history...)
	userMessage := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: utterance}
	messages = append(messages, userMessage)

	reply, err := ai.Complete(ctx, s.completer, messages)
	if err != nil {
		if turn.Event != EventNone {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "reply failed after quest event", errors.SlogError(err))
			return turn, nil
		}
		return Turn{}, errors.Wrap(err, "complete reply")
	}
	turn.Reply = reply
	s.remember(userMessage, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply})
	return turn, nil
}

// stepHere returns the current step when it can be completed at this location.
func (s *Session) stepHere(snapshot quest.Snapshot) (models.Step, bool) {
	if snapshot.Phase != quest.PhaseBriefing && snapshot.Phase != quest.PhaseInProgress {
		return models.Step{}, false
	}
	step, ok := snapshot.CurrentStep()
	if !ok || step.Location != s.location {
		return models.Step{}, false
	}
	return step, true
}

func (s *Session) systemPrompt(turn Turn, step models.Step, atStep bool) string {
	character := "un vecino amable"
	if atStep || turn.Event != EventNone {
		character = step.Character
	}
	prompt := fmt.Sprintf(`You are %s at the %s (%s) in a Spanish village, talking with a child who is learning Spanish.
Answer only in Spanish suitable for CEFR level %s, in one to three short sentences. Stay in character.`,
		character, s.location, s.location.SpanishName(), turn.Snapshot.Level)
	switch {
	case turn.Event == EventCaseSolved:
		prompt += fmt.Sprintf("\nThe child just solved the mystery. Celebrate and tell them: %q", step.Clue)
	case turn.Event == EventClueFound:
		prompt += fmt.Sprintf("\nThe child asked the right question. Reveal this clue: %q", step.Clue)
	case atStep:
		prompt += fmt.Sprintf("\nYou know a secret about the mystery. Hint that the child should ask about %q.",
			step.Keyword)
	}
	return prompt
}

func (s *Session) remember(messages ...openai.ChatCompletionMessage) {
	s.history = append(s.history, messages...)
	if len(s.history) > maxHistory {
		s.history = append([]openai.ChatCompletionMessage(nil), s.history[len(s.history)-maxHistory:]...)
	}
}
