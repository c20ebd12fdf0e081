// Package quest runs the mystery progression of one player.
package quest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
)

// CaseSource supplies cases. Generate never fails, it falls back to the builtin case.
type CaseSource interface {
	Builtin() models.Case
	Generate(ctx context.Context, theme string, level models.ProficiencyLevel) models.Case
}

// Rewarder stores a collectible in the player's backpack idempotently.
type Rewarder interface {
	Add(ctx context.Context, userID string, c models.Collectible) (models.InventoryItem, bool, error)
}

// DefaultLevel is used when Start receives an unknown proficiency level.
const DefaultLevel = models.LevelA1

type StartOptions struct {
	Dynamic bool
	Level   models.ProficiencyLevel
	Theme   string
}

type rewardState int

const (
	rewardNone rewardState = iota
	rewardPending
	rewardSaved
	rewardFailed
)

// Engine is the quest state machine of one player:
//
//	Idle -> Loading -> Briefing -> InProgress(i) -> AwaitingTravel(i) -> InProgress(i+1) -> ... -> Solved
//
// Reset returns to Idle from anywhere. Invalid transitions are no-ops. The engine is safe for concurrent use; the
// lock is not held while a case is generated or a reward is stored.
type Engine struct {
	userID  string
	cases   CaseSource
	rewards Rewarder
	logger  *slog.Logger

	mu         sync.Mutex
	phase      Phase
	current    *models.Case
	level      models.ProficiencyLevel
	stepIndex  int
	reward     rewardState
	generation uint64
}

func NewEngine(userID string, cases CaseSource, rewards Rewarder, logger *slog.Logger) *Engine {
	return &Engine{
		userID:  userID,
		cases:   cases,
		rewards: rewards,
		logger:  logger.With("source", "QuestEngine", slog.String("user_id", userID)),
		mu:      sync.Mutex{},
		phase:   PhaseIdle,
		level:   DefaultLevel,
	}
}

// Start begins a new case and returns the resulting state.
//
// A dynamic start passes through Loading while the case is generated. If Reset or another Start happens meanwhile,
// the generated case is discarded and the state at that point is returned.
func (e *Engine) Start(ctx context.Context, opts StartOptions) Snapshot {
	level := opts.Level
	if _, ok := models.ParseProficiencyLevel(string(level)); !ok {
		level = DefaultLevel
	}

	e.mu.Lock()
	e.generation++
	generation := e.generation
	if !opts.Dynamic {
		defer e.mu.Unlock()
		e.begin(ctx, e.cases.Builtin(), level)
		return e.snapshot()
	}
	e.phase = PhaseLoading
	e.current = nil
	e.level = level
	e.stepIndex = 0
	e.reward = rewardNone
	e.mu.Unlock()

	generated := e.cases.Generate(ctx, opts.Theme, level)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != generation {
		e.logger.LogAttrs(ctx, slog.LevelInfo, "discarding stale generated case", slog.String("case_id", generated.ID))
		return e.snapshot()
	}
	e.begin(ctx, generated, level)
	return e.snapshot()
}

func (e *Engine) begin(ctx context.Context, c models.Case, level models.ProficiencyLevel) {
	e.phase = PhaseBriefing
	e.current = &c
	e.level = level
	e.stepIndex = 0
	e.reward = rewardNone
	e.logger.LogAttrs(ctx, slog.LevelInfo, "started case",
		slog.String("case_id", c.ID), slog.Int("steps", len(c.Steps)), slog.String("level", string(level)))
}

// CloseBriefing dismisses the briefing.
func (e *Engine) CloseBriefing() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseBriefing {
		e.phase = PhaseInProgress
	}
	return e.snapshot()
}

// Advance completes the current step.
func (e *Engine) Advance(ctx context.Context) Snapshot {
	snapshot, _ := e.advance(ctx, func(int) bool { return true })
	return snapshot
}

// AdvanceFrom completes the current step only if it is still stepIndex. It reports whether the state changed.
func (e *Engine) AdvanceFrom(ctx context.Context, stepIndex int) (Snapshot, bool) {
	return e.advance(ctx, func(current int) bool { return current == stepIndex })
}

// advance moves a non-final step to AwaitingTravel. The final step becomes Solved and the collectible is stored
// exactly once. A briefing still on screen is dismissed.
func (e *Engine) advance(ctx context.Context, guard func(current int) bool) (Snapshot, bool) {
	e.mu.Lock()
	if (e.phase != PhaseBriefing && e.phase != PhaseInProgress) || e.current == nil || !guard(e.stepIndex) {
		defer e.mu.Unlock()
		return e.snapshot(), false
	}
	attrs := []slog.Attr{slog.String("case_id", e.current.ID), slog.Int("step_index", e.stepIndex)}
	if e.stepIndex+1 < len(e.current.Steps) {
		defer e.mu.Unlock()
		e.phase = PhaseAwaitingTravel
		e.logger.LogAttrs(ctx, slog.LevelInfo, "step completed", attrs...)
		return e.snapshot(), true
	}

	e.phase = PhaseSolved
	e.reward = rewardPending
	collectible := e.current.Collectible
	generation := e.generation
	e.logger.LogAttrs(ctx, slog.LevelInfo, "case solved", attrs...)
	e.mu.Unlock()

	e.storeReward(ctx, generation, collectible)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), true
}

// storeReward adds the collectible to the backpack. A failure is logged and leaves the case solved.
func (e *Engine) storeReward(ctx context.Context, generation uint64, c models.Collectible) {
	// The reward outlives the request that solved the case.
	_, _, err := e.rewards.Add(context.WithoutCancel(ctx), e.userID, c)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.logger.LogAttrs(ctx, slog.LevelError, "failed to store reward",
			slog.String("collectible_id", c.ID), errors.SlogError(err))
	}
	if e.generation != generation || e.phase != PhaseSolved {
		return
	}
	if err != nil {
		e.reward = rewardFailed
		return
	}
	e.reward = rewardSaved
}

// RetryReward stores the collectible of a solved case again after a failed attempt.
func (e *Engine) RetryReward(ctx context.Context) Snapshot {
	e.mu.Lock()
	if e.phase != PhaseSolved || e.reward != rewardFailed {
		defer e.mu.Unlock()
		return e.snapshot()
	}
	e.reward = rewardPending
	collectible := e.current.Collectible
	generation := e.generation
	e.mu.Unlock()

	e.storeReward(ctx, generation, collectible)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// ConfirmTravel moves to the next step after a completed one.
func (e *Engine) ConfirmTravel() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase == PhaseAwaitingTravel {
		e.stepIndex++
		e.phase = PhaseInProgress
	}
	return e.snapshot()
}

// Reset abandons the case. Progress is not kept, only stored rewards survive.
func (e *Engine) Reset() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.phase = PhaseIdle
	e.current = nil
	e.level = DefaultLevel
	e.stepIndex = 0
	e.reward = rewardNone
	return e.snapshot()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// CurrentObjectiveText returns the current objective or false when no case is being played.
func (e *Engine) CurrentObjectiveText() (string, bool) {
	return e.Snapshot().ObjectiveText()
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		Phase:            e.phase,
		IsActive:         e.phase != PhaseIdle,
		IsLoading:        e.phase == PhaseLoading,
		Case:             nil,
		Level:            e.level,
		CurrentStepIndex: e.stepIndex,
		CurrentLocation:  "",
		IsAwaitingTravel: e.phase == PhaseAwaitingTravel,
		IsSolved:         e.phase == PhaseSolved,
		ShowBriefing:     e.phase == PhaseBriefing,
		RewardSaved:      e.reward == rewardSaved,
	}
	if e.current != nil {
		c := e.current.Clone()
		s.Case = &c
	}
	if step, ok := s.CurrentStep(); ok {
		s.CurrentLocation = step.Location
	}
	return s
}
