package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/myrjola/misterio/internal/contexthelpers"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/quest"
	"github.com/sashabaranov/go-openai"
)

type speaker interface {
	Speak(ctx context.Context, text string, voice openai.SpeechVoice, speed float64) (io.ReadCloser, error)
}

const narrationSpeed = 0.9

type questResponse struct {
	quest.Snapshot
	Objective *string `json:"objective"`
}

func (app *application) engine(r *http.Request) *quest.Engine {
	return app.quests.Engine(r.Context(), contexthelpers.UserID(r.Context()))
}

func (app *application) writeQuest(w http.ResponseWriter, r *http.Request, snapshot quest.Snapshot) {
	response := questResponse{Snapshot: snapshot, Objective: nil}
	if objective, ok := snapshot.ObjectiveText(); ok {
		response.Objective = &objective
	}
	app.writeJSON(w, r, http.StatusOK, response)
}

func (app *application) questState(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).Snapshot())
}

type startRequest struct {
	Dynamic bool   `json:"dynamic"`
	Level   string `json:"level"`
	Theme   string `json:"theme"`
}

func (app *application) questStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	level := quest.DefaultLevel
	if strings.TrimSpace(req.Level) != "" {
		var ok bool
		if level, ok = models.ParseProficiencyLevel(req.Level); !ok {
			app.clientError(w, r, http.StatusBadRequest, "unknown proficiency level")
			return
		}
	}
	// The engine must not stay loading when the client goes away.
	ctx := context.WithoutCancel(r.Context())
	snapshot := app.engine(r).Start(ctx, quest.StartOptions{
		Dynamic: req.Dynamic,
		Level:   level,
		Theme:   req.Theme,
	})
	app.writeQuest(w, r, snapshot)
}

func (app *application) questCloseBriefing(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).CloseBriefing())
}

func (app *application) questAdvance(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).Advance(r.Context()))
}

func (app *application) questTravel(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).ConfirmTravel())
}

func (app *application) questReset(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).Reset())
}

func (app *application) questRetryReward(w http.ResponseWriter, r *http.Request) {
	app.writeQuest(w, r, app.engine(r).RetryReward(r.Context()))
}

// narrationText is the briefing while it is shown, the clue once a step is done and the objective otherwise.
func narrationText(snapshot quest.Snapshot) (string, bool) {
	step, ok := snapshot.CurrentStep()
	if !ok {
		return "", false
	}
	switch snapshot.Phase {
	case quest.PhaseBriefing:
		return snapshot.Case.Intro, snapshot.Case.Intro != ""
	case quest.PhaseAwaitingTravel, quest.PhaseSolved:
		return step.Clue, step.Clue != ""
	case quest.PhaseInProgress:
		return step.Prompt, step.Prompt != ""
	case quest.PhaseIdle, quest.PhaseLoading:
	}
	return "", false
}

func (app *application) questNarration(w http.ResponseWriter, r *http.Request) {
	text, ok := narrationText(app.engine(r).Snapshot())
	if !ok {
		app.clientError(w, r, http.StatusConflict, "nothing to narrate")
		return
	}
	audio, err := app.speech.Speak(r.Context(), text, "", narrationSpeed)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "speech synthesis failed", errors.SlogError(err))
		app.clientError(w, r, http.StatusServiceUnavailable, "speech unavailable")
		return
	}
	defer func() {
		_ = audio.Close()
	}()
	w.Header().Set("Content-Type", "audio/mpeg")
	if _, err = io.Copy(w, audio); err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "failed to stream narration", errors.SlogError(err))
	}
}
