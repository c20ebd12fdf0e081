package quest_test

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/misterio/internal/catalog"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/keyword"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/quest"
	"github.com/myrjola/misterio/internal/testhelpers"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCases struct {
	builtin  models.Case
	generate func(ctx context.Context) models.Case
}

func (f fakeCases) Builtin() models.Case { return f.builtin }

func (f fakeCases) Generate(ctx context.Context, _ string, _ models.ProficiencyLevel) models.Case {
	if f.generate == nil {
		return f.builtin
	}
	return f.generate(ctx)
}

type fakeRewarder struct {
	mu    sync.Mutex
	calls int
	added map[string]int
	err   error
}

func (f *fakeRewarder) Add(_ context.Context, userID string, c models.Collectible) (models.InventoryItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return models.InventoryItem{}, false, f.err
	}
	if f.added == nil {
		f.added = make(map[string]int)
	}
	f.added[c.ID]++
	return models.InventoryItem{UserID: userID, Collectible: c}, f.added[c.ID] == 1, nil
}

func (f *fakeRewarder) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// caseWithSteps builds a valid case visiting the locations in order.
func caseWithSteps(n int) models.Case {
	c := models.Case{
		ID:          fmt.Sprintf("case-%d", n),
		Title:       "Prueba",
		Collectible: models.Collectible{ID: "test-badge", DisplayName: "Badge", DisplayNameES: "La insignia", Emoji: "🏅"},
	}
	locations := models.Locations()
	for i := range n {
		c.Steps = append(c.Steps, models.Step{
			ID:       i + 1,
			Location: locations[i%len(locations)],
			Prompt:   fmt.Sprintf("Paso %d", i+1),
			Keyword:  "pista",
			IsFinal:  i == n-1,
		})
	}
	return c
}

func newEngine(c models.Case, rewarder *fakeRewarder) *quest.Engine {
	return quest.NewEngine("u1", fakeCases{builtin: c}, rewarder, testhelpers.NewLogger(io.Discard))
}

func idle() quest.Snapshot {
	return quest.Snapshot{Phase: quest.PhaseIdle, Level: quest.DefaultLevel}
}

func TestEngine_endToEndBuiltinCase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rewarder := &fakeRewarder{}
	builtin := catalog.Builtin()
	engine := newEngine(builtin, rewarder)

	snapshot := engine.Start(ctx, quest.StartOptions{Dynamic: false, Level: models.LevelA1})
	want := quest.Snapshot{
		Phase:            quest.PhaseBriefing,
		IsActive:         true,
		Case:             &builtin,
		Level:            models.LevelA1,
		CurrentStepIndex: 0,
		CurrentLocation:  models.LocationCafe,
		ShowBriefing:     true,
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("after start (-want +got):\n%s", diff)
	}
	snapshot = engine.CloseBriefing()

	say := func(location models.Location, utterance string) quest.Snapshot {
		t.Helper()
		current := engine.Snapshot()
		step, ok := current.CurrentStep()
		require.True(t, ok)
		require.Equal(t, location, step.Location)
		require.True(t, keyword.Matches(utterance, step.Keyword))
		after, advanced := engine.AdvanceFrom(ctx, current.CurrentStepIndex)
		require.True(t, advanced)
		return after
	}

	snapshot = say(models.LocationCafe, "¿Has visto la llave?")
	require.True(t, snapshot.IsAwaitingTravel)
	require.Equal(t, 0, snapshot.CurrentStepIndex)

	snapshot = engine.ConfirmTravel()
	require.Equal(t, 1, snapshot.CurrentStepIndex)
	require.Equal(t, models.LocationPlaza, snapshot.CurrentLocation)
	require.Equal(t, quest.PhaseInProgress, snapshot.Phase)

	snapshot = say(models.LocationPlaza, "Busco una LLAVE dorada")
	require.True(t, snapshot.IsAwaitingTravel)
	require.Equal(t, 1, snapshot.CurrentStepIndex)

	snapshot = engine.ConfirmTravel()
	require.Equal(t, 2, snapshot.CurrentStepIndex)
	require.Equal(t, models.LocationSchool, snapshot.CurrentLocation)

	snapshot = say(models.LocationSchool, "¿Dónde está la llave?")
	want = quest.Snapshot{
		Phase:            quest.PhaseSolved,
		IsActive:         true,
		Case:             &builtin,
		Level:            models.LevelA1,
		CurrentStepIndex: 2,
		CurrentLocation:  models.LocationSchool,
		IsSolved:         true,
		RewardSaved:      true,
	}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("after final step (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, rewarder.added["golden-key"])

	objective, ok := engine.CurrentObjectiveText()
	require.True(t, ok)
	require.Equal(t, quest.SolvedObjective, objective)
}

func TestEngine_Advance_idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newEngine(caseWithSteps(3), &fakeRewarder{})
	engine.Start(ctx, quest.StartOptions{})
	engine.CloseBriefing()

	first := engine.Advance(ctx)
	second := engine.Advance(ctx)

	require.True(t, first.IsAwaitingTravel)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second advance changed the state (-first +second):\n%s", diff)
	}
	_, advanced := engine.AdvanceFrom(ctx, 0)
	require.False(t, advanced)
}

func TestEngine_solvedAfterAllSteps(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 3, 5, 8} {
		t.Run(fmt.Sprintf("%d steps", n), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			rewarder := &fakeRewarder{}
			engine := newEngine(caseWithSteps(n), rewarder)
			engine.Start(ctx, quest.StartOptions{})

			var snapshot quest.Snapshot
			for i := range n {
				snapshot = engine.Advance(ctx)
				if i < n-1 {
					require.True(t, snapshot.IsAwaitingTravel)
					require.False(t, snapshot.IsSolved)
					snapshot = engine.ConfirmTravel()
				}
			}
			require.True(t, snapshot.IsSolved)
			require.False(t, snapshot.IsAwaitingTravel)
			require.Equal(t, n-1, snapshot.CurrentStepIndex)
			require.Equal(t, 1, rewarder.calls)
		})
	}
}

func TestEngine_rewardExactlyOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rewarder := &fakeRewarder{}
	engine := newEngine(caseWithSteps(1), rewarder)
	engine.Start(ctx, quest.StartOptions{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot := engine.Advance(ctx)
			assert.True(t, snapshot.IsSolved)
		}()
	}
	wg.Wait()

	require.Equal(t, 1, rewarder.calls)
	require.Equal(t, 1, rewarder.added["test-badge"])
	require.True(t, engine.Snapshot().RewardSaved)
}

func TestEngine_rewardFailureKeepsSolved(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rewarder := &fakeRewarder{err: errors.New("store unavailable")}
	engine := newEngine(caseWithSteps(1), rewarder)
	engine.Start(ctx, quest.StartOptions{})

	snapshot := engine.Advance(ctx)
	require.True(t, snapshot.IsSolved)
	require.False(t, snapshot.RewardSaved)

	// Still failing.
	snapshot = engine.RetryReward(ctx)
	require.True(t, snapshot.IsSolved)
	require.False(t, snapshot.RewardSaved)

	rewarder.setErr(nil)
	snapshot = engine.RetryReward(ctx)
	require.True(t, snapshot.IsSolved)
	require.True(t, snapshot.RewardSaved)
	require.Equal(t, 3, rewarder.calls)

	// Nothing left to retry.
	engine.RetryReward(ctx)
	require.Equal(t, 3, rewarder.calls)
}

func TestEngine_invalidTransitionsAreNoOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(e *quest.Engine)
		call  func(e *quest.Engine) quest.Snapshot
	}{
		{name: "advance when idle", setup: func(*quest.Engine) {}, call: func(e *quest.Engine) quest.Snapshot { return e.Advance(ctx) }},
		{name: "travel when idle", setup: func(*quest.Engine) {}, call: func(e *quest.Engine) quest.Snapshot { return e.ConfirmTravel() }},
		{name: "close briefing when idle", setup: func(*quest.Engine) {}, call: func(e *quest.Engine) quest.Snapshot { return e.CloseBriefing() }},
		{name: "retry reward when idle", setup: func(*quest.Engine) {}, call: func(e *quest.Engine) quest.Snapshot { return e.RetryReward(ctx) }},
		{
			name:  "travel while in progress",
			setup: func(e *quest.Engine) { e.Start(ctx, quest.StartOptions{}) },
			call:  func(e *quest.Engine) quest.Snapshot { return e.ConfirmTravel() },
		},
		{
			name: "close briefing twice",
			setup: func(e *quest.Engine) {
				e.Start(ctx, quest.StartOptions{})
				e.CloseBriefing()
			},
			call: func(e *quest.Engine) quest.Snapshot { return e.CloseBriefing() },
		},
		{
			name: "advance after solved",
			setup: func(e *quest.Engine) {
				e.Start(ctx, quest.StartOptions{})
				for range 2 {
					e.Advance(ctx)
					e.ConfirmTravel()
				}
				e.Advance(ctx)
			},
			call: func(e *quest.Engine) quest.Snapshot { return e.Advance(ctx) },
		},
		{
			name: "travel after solved",
			setup: func(e *quest.Engine) {
				e.Start(ctx, quest.StartOptions{})
				for range 2 {
					e.Advance(ctx)
					e.ConfirmTravel()
				}
				e.Advance(ctx)
			},
			call: func(e *quest.Engine) quest.Snapshot { return e.ConfirmTravel() },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			engine := newEngine(caseWithSteps(3), &fakeRewarder{})
			tt.setup(engine)
			before := engine.Snapshot()
			after := tt.call(engine)
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("state changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestEngine_advanceDismissesBriefing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newEngine(caseWithSteps(2), &fakeRewarder{})
	engine.Start(ctx, quest.StartOptions{})

	snapshot := engine.Advance(ctx)
	require.False(t, snapshot.ShowBriefing)
	require.True(t, snapshot.IsAwaitingTravel)
	require.Equal(t, 0, snapshot.CurrentStepIndex)
}

func TestEngine_AdvanceFrom_staleStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newEngine(caseWithSteps(3), &fakeRewarder{})
	engine.Start(ctx, quest.StartOptions{})
	engine.Advance(ctx)
	engine.ConfirmTravel()

	snapshot, advanced := engine.AdvanceFrom(ctx, 0)
	require.False(t, advanced)
	require.Equal(t, quest.PhaseInProgress, snapshot.Phase)
	require.Equal(t, 1, snapshot.CurrentStepIndex)

	snapshot, advanced = engine.AdvanceFrom(ctx, 1)
	require.True(t, advanced)
	require.True(t, snapshot.IsAwaitingTravel)
}

func TestEngine_Snapshot_callerCannotMutateEngine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rewarder := &fakeRewarder{}
	engine := newEngine(caseWithSteps(1), rewarder)

	snapshot := engine.Start(ctx, quest.StartOptions{})
	snapshot.Case.Steps[0].Location = models.LocationBeach
	snapshot.Case.Steps[0].Keyword = "otra"
	snapshot.Case.Collectible.ID = "changed"

	got := engine.Snapshot()
	require.Equal(t, models.LocationCafe, got.CurrentLocation)
	require.Equal(t, "pista", got.Case.Steps[0].Keyword)
	require.Equal(t, "test-badge", got.Case.Collectible.ID)

	engine.Advance(ctx)
	require.Equal(t, map[string]int{"test-badge": 1}, rewarder.added)
}

func TestEngine_Reset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine := newEngine(caseWithSteps(3), &fakeRewarder{})
	engine.Start(ctx, quest.StartOptions{Level: models.LevelB2})
	engine.Advance(ctx)
	engine.ConfirmTravel()
	engine.Advance(ctx)

	if diff := cmp.Diff(idle(), engine.Reset()); diff != "" {
		t.Fatalf("reset (-want +got):\n%s", diff)
	}
	_, ok := engine.CurrentObjectiveText()
	require.False(t, ok)

	snapshot := engine.Start(ctx, quest.StartOptions{})
	require.Equal(t, 0, snapshot.CurrentStepIndex)
	require.True(t, snapshot.ShowBriefing)
	objective, ok := engine.CurrentObjectiveText()
	require.True(t, ok)
	require.Equal(t, "Paso 1", objective)
}

func TestEngine_Start_unknownLevel(t *testing.T) {
	t.Parallel()
	engine := newEngine(caseWithSteps(3), &fakeRewarder{})
	snapshot := engine.Start(context.Background(), quest.StartOptions{Level: "Z9"})
	require.Equal(t, quest.DefaultLevel, snapshot.Level)
}

func TestEngine_Start_dynamicFallback(t *testing.T) {
	t.Parallel()
	failing := completerFunc(func(context.Context, []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error) {
		return openai.ChatCompletionResponse{}, errors.New("service unavailable")
	})
	cases := catalog.New(failing, time.Second, testhelpers.NewLogger(io.Discard))
	engine := quest.NewEngine("u1", cases, &fakeRewarder{}, testhelpers.NewLogger(io.Discard))

	snapshot := engine.Start(context.Background(), quest.StartOptions{Dynamic: true, Level: models.LevelA2})

	require.False(t, snapshot.IsLoading)
	require.Equal(t, quest.PhaseBriefing, snapshot.Phase)
	require.NotNil(t, snapshot.Case)
	require.NoError(t, snapshot.Case.Validate())
	require.Equal(t, catalog.Builtin().ID, snapshot.Case.ID)
}

func TestEngine_Start_staleGeneration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	release := make(chan struct{})
	entered := make(chan struct{})
	generated := caseWithSteps(2)
	cases := fakeCases{
		builtin: caseWithSteps(3),
		generate: func(context.Context) models.Case {
			close(entered)
			<-release
			return generated
		},
	}
	engine := quest.NewEngine("u1", cases, &fakeRewarder{}, testhelpers.NewLogger(io.Discard))

	done := make(chan quest.Snapshot)
	go func() {
		done <- engine.Start(ctx, quest.StartOptions{Dynamic: true})
	}()
	<-entered

	loading := engine.Snapshot()
	require.True(t, loading.IsActive)
	require.True(t, loading.IsLoading)
	require.Nil(t, loading.Case)
	_, ok := loading.ObjectiveText()
	require.False(t, ok)
	// Transitions while loading are no-ops.
	if diff := cmp.Diff(loading, engine.Advance(ctx)); diff != "" {
		t.Fatalf("advance while loading (-want +got):\n%s", diff)
	}

	engine.Reset()
	close(release)
	snapshot := <-done

	if diff := cmp.Diff(idle(), snapshot); diff != "" {
		t.Fatalf("stale generation was applied (-want +got):\n%s", diff)
	}
}

type completerFunc func(ctx context.Context, messages []openai.ChatCompletionMessage) (openai.ChatCompletionResponse, error)

func (f completerFunc) SyncCompletion(
	ctx context.Context,
	messages []openai.ChatCompletionMessage,
) (openai.ChatCompletionResponse, error) {
	return f(ctx, messages)
}
