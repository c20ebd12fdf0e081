package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/myrjola/misterio/internal/contexthelpers"
	"github.com/myrjola/misterio/internal/errors"
	"github.com/myrjola/misterio/internal/logging"
	"github.com/myrjola/misterio/internal/models"
	"github.com/myrjola/misterio/internal/random"
)

const (
	userIDSessionKey = "userID"
	requestIDLength  = 12
)

func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "origin-when-cross-origin")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "deny")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}

func (app *application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			proto  = r.Proto
			method = r.Method
			uri    = r.URL.RequestURI()
			start  = time.Now()
		)

		requestID, err := random.Letters(requestIDLength)
		if err != nil {
			app.serverError(w, r, errors.Wrap(err, "generate request id"))
			return
		}
		r = contexthelpers.SetRequestID(r, requestID)
		r = r.WithContext(logging.WithAttrs(r.Context(), slog.String("request_id", requestID)))

		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "received request",
			slog.String("proto", proto), slog.String("method", method), slog.String("uri", uri))

		next.ServeHTTP(w, r)

		app.logger.LogAttrs(r.Context(), slog.LevelDebug, "handled request",
			slog.Duration("duration", time.Since(start)))
	})
}

func (app *application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")
				app.serverError(w, r, errors.New(fmt.Sprintf("%v", err)))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// identify makes sure every session belongs to a user. Players are anonymous, so the first request of a session
// creates one.
func (app *application) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := app.sessionManager.GetString(ctx, userIDSessionKey)

		if userID != "" {
			exists, err := app.users.Exists(ctx, userID)
			if err != nil {
				app.serverError(w, r, err)
				return
			}
			if !exists {
				// The database was reset under a live session.
				userID = ""
			}
		}

		if userID == "" {
			user, err := models.NewUser(time.Now())
			if err != nil {
				app.serverError(w, r, errors.Wrap(err, "new user"))
				return
			}
			if err = app.users.Create(ctx, user); err != nil {
				app.serverError(w, r, err)
				return
			}
			if err = app.sessionManager.RenewToken(ctx); err != nil {
				app.serverError(w, r, errors.Wrap(err, "renew session token"))
				return
			}
			app.sessionManager.Put(ctx, userIDSessionKey, user.ID)
			userID = user.ID
			app.logger.LogAttrs(ctx, slog.LevelInfo, "created anonymous user", slog.String("user_id", userID))
		}

		r = contexthelpers.SetUserID(r, userID)
		r = r.WithContext(logging.WithAttrs(r.Context(), slog.String("user_id", userID)))
		next.ServeHTTP(w, r)
	})
}
