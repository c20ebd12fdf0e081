package main

import (
	"net/http"

	"github.com/myrjola/misterio/internal/contexthelpers"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/models"
)

type backpackResponse struct {
	Items []models.InventoryItem `json:"items"`
}

func (app *application) backpackItems(w http.ResponseWriter, r *http.Request) {
	// The session start synchronizes the backpack first.
	_ = app.engine(r)
	items, err := app.backpack.Load(r.Context(), contexthelpers.UserID(r.Context()))
	if err != nil {
		app.serverError(w, r, errors.Wrap(err, "load backpack"))
		return
	}
	if items == nil {
		items = []models.InventoryItem{}
	}
	app.writeJSON(w, r, http.StatusOK, backpackResponse{Items: items})
}

type legacyImportRequest struct {
	Items []models.Collectible `json:"items"`
}

// backpackImportLegacy stores the backpack an older client kept on the device. It is migrated at the next session
// start.
func (app *application) backpackImportLegacy(w http.ResponseWriter, r *http.Request) {
	var req legacyImportRequest
	if err := readJSON(w, r, &req); err != nil {
		app.clientError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := app.legacy.Write(r.Context(), contexthelpers.UserID(r.Context()), req.Items); err != nil {
		app.serverError(w, r, errors.Wrap(err, "store legacy backpack"))
		return
	}
	app.writeJSON(w, r, http.StatusAccepted, map[string]int{"queued": len(req.Items)})
}

// logout ends the session: the engine and conversations are torn down and the session token is renewed. The
// anonymous user and their backpack remain.
func (app *application) logout(w http.ResponseWriter, r *http.Request) {
	userID := contexthelpers.UserID(r.Context())
	app.quests.End(userID)
	app.conversations.End(userID)
	if err := app.sessionManager.RenewToken(r.Context()); err != nil {
		app.serverError(w, r, errors.Wrap(err, "renew session token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
