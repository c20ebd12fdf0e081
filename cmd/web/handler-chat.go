package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/myrjola/misterio/internal/contexthelpers"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
)

type chatRequest struct {
	Location  models.Location `json:"location"`
	Utterance string          `json:"utterance"`
}

// chat runs one conversation turn at a location. Quest events are reported even when the character cannot reply.
func (app *application) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Location.Valid() {
		app.clientError(w, r, http.StatusBadRequest, "unknown location")
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		app.clientError(w, r, http.StatusBadRequest, "empty utterance")
		return
	}

	userID := contexthelpers.UserID(r.Context())
	session := app.conversations.Session(userID, req.Location, app.engine(r))
	turn, err := session.Say(r.Context(), req.Utterance)
	if err != nil {
		app.logger.LogAttrs(r.Context(), slog.LevelWarn, "conversation turn failed", errors.SlogError(err))
		app.clientError(w, r, http.StatusServiceUnavailable, "the character is not available right now")
		return
	}
	app.writeJSON(w, r, http.StatusOK, turn)
}
