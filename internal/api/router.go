package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/linkpage/internal/linkservice"
	"github.com/starford/linkpage/internal/twofactor"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	// DefaultActor is the identity used when auth is disabled.
	DefaultActor string
	// Tokens resolves bearer tokens when auth is enabled.
	Tokens TokenResolver
	// TwoFactor, if non-nil, gates link and event routes behind an
	// elevated session and mounts the /session routes.
	TwoFactor *twofactor.Verifier
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *linkservice.Service, opts RouterOptions) chi.Router {
	h := NewHandler(svc, opts.TwoFactor)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.DefaultActor, opts.Tokens))

	if opts.TwoFactor != nil {
		r.Post("/session", h.StartSession)
		r.Post("/session/verify", h.VerifySession)
	}

	r.Group(func(r chi.Router) {
		if opts.TwoFactor != nil {
			r.Use(RequireElevated(opts.TwoFactor))
		}

		r.Get("/links", h.ListLinks)
		r.Post("/links", h.CreateLink)
		r.Post("/links/sort", h.SortLinks)
		r.Get("/links/{id}", h.GetLink)
		r.Put("/links/{id}", h.UpdateLink)
		r.Delete("/links/{id}", h.DeleteLink)

		if opts.Events != nil {
			r.Get("/events", opts.Events.ServeHTTP)
		}
	})

	return r
}
