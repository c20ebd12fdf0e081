package quest

import "github.com/myrjola/misterio/internal/models"

// Phase is the tagged state of an Engine. The step index is only meaningful in Briefing, InProgress, AwaitingTravel
// and Solved.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseBriefing
	PhaseInProgress
	PhaseAwaitingTravel
	PhaseSolved
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseBriefing:
		return "briefing"
	case PhaseInProgress:
		return "in_progress"
	case PhaseAwaitingTravel:
		return "awaiting_travel"
	case PhaseSolved:
		return "solved"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// SolvedObjective is the objective text once the case is solved.
const SolvedObjective = "¡Caso resuelto! Has encontrado el tesoro."

// Snapshot is an immutable view of the quest state. The boolean fields are derived from Phase and never contradict
// each other. Case must not be modified.
type Snapshot struct {
	Phase            Phase                   `json:"phase"`
	IsActive         bool                    `json:"isActive"`
	IsLoading        bool                    `json:"isLoading"`
	Case             *models.Case            `json:"case"`
	Level            models.ProficiencyLevel `json:"level"`
	CurrentStepIndex int                     `json:"currentStepIndex"`
	CurrentLocation  models.Location         `json:"currentLocation,omitempty"`
	IsAwaitingTravel bool                    `json:"isAwaitingTravel"`
	IsSolved         bool                    `json:"isSolved"`
	ShowBriefing     bool                    `json:"showBriefing"`
	// RewardSaved reports whether the collectible of a solved case reached the backpack.
	RewardSaved bool `json:"rewardSaved"`
}

// CurrentStep returns the step the snapshot points at.
func (s Snapshot) CurrentStep() (models.Step, bool) {
	if s.Case == nil || s.CurrentStepIndex >= len(s.Case.Steps) {
		return models.Step{}, false
	}
	return s.Case.Steps[s.CurrentStepIndex], true
}

// ObjectiveText returns what the player should do next, SolvedObjective once solved, or false while no case is
// being played.
func (s Snapshot) ObjectiveText() (string, bool) {
	if s.IsSolved {
		return SolvedObjective, true
	}
	step, ok := s.CurrentStep()
	if !s.IsActive || !ok {
		return "", false
	}
	return step.Prompt, true
}
