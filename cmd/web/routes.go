package main

import (
	"net/http"

	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/healthy", app.healthy)

	player := alice.New(app.sessionManager.LoadAndSave, app.identify)

	mux.Handle("GET /api/quest", player.ThenFunc(app.questState))
	mux.Handle("POST /api/quest/start", player.ThenFunc(app.questStart))
	mux.Handle("POST /api/quest/briefing/close", player.ThenFunc(app.questCloseBriefing))
	mux.Handle("POST /api/quest/advance", player.ThenFunc(app.questAdvance))
	mux.Handle("POST /api/quest/travel", player.ThenFunc(app.questTravel))
	mux.Handle("POST /api/quest/reset", player.ThenFunc(app.questReset))
	mux.Handle("POST /api/quest/reward/retry", player.ThenFunc(app.questRetryReward))
	mux.Handle("GET /api/quest/narration", player.ThenFunc(app.questNarration))

	mux.Handle("POST /api/chat", player.ThenFunc(app.chat))

	mux.Handle("GET /api/backpack", player.ThenFunc(app.backpackItems))
	mux.Handle("POST /api/backpack/legacy", player.ThenFunc(app.backpackImportLegacy))

	mux.Handle("POST /api/logout", player.ThenFunc(app.logout))

	mux.HandleFunc("/", app.notFound)

	standard := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	return standard.Then(mux)
}
