// Package api implements the link page REST API using chi.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/linkpage/internal/models"
)

// SessionHeader carries the id of a two-factor elevated session.
const SessionHeader = "X-Session-ID"

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by AuthMiddleware. A missing
// actor is returned as the unauthenticated zero value.
func ActorFromContext(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey{}).(models.Actor)
	return actor
}

// ActorID returns the authenticated actor id of r.
func ActorID(r *http.Request) (string, bool) {
	actor := ActorFromContext(r.Context())
	return actor.ID, actor.Authenticated()
}

// TokenResolver maps a bearer token to an actor id.
type TokenResolver interface {
	Resolve(token string) (string, bool)
}

// SessionChecker reports whether a session is two-factor elevated for an actor.
type SessionChecker interface {
	Elevated(ctx context.Context, sessionID, actorID string) (bool, error)
}

// AuthMiddleware attaches the request's actor to the context.
// If enabled is false, every request acts as defaultActor.
// If enabled is true, requests must carry "Authorization: Bearer <token>"
// with a token known to tokens.
func AuthMiddleware(enabled bool, defaultActor string, tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), models.Actor{ID: defaultActor})))
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			id, ok := tokens.Resolve(strings.TrimPrefix(auth, "Bearer "))
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), models.Actor{ID: id})))
		})
	}
}

// RequireElevated rejects requests whose X-Session-ID does not name an
// elevated session of the current actor.
func RequireElevated(sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			sessionID := r.Header.Get(SessionHeader)
			if !actor.Authenticated() || sessionID == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody("two-factor verification required"))
				return
			}
			ok, err := sessions.Elevated(r.Context(), sessionID, actor.ID)
			if err != nil {
				slog.Error("session check failed", slog.String("actor", actor.ID), slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
				return
			}
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("two-factor verification required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
