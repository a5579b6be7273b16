package internal

import (
	"github.com/starford/linkpage/internal/twofactor"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	sender twofactor.Sender
	actor  string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithCodeSender sets how two-factor codes reach the user. Codes are logged
// when no sender is given.
func WithCodeSender(s twofactor.Sender) Option {
	return func(a *application) {
		a.sender = s
	}
}

// WithActor sets the actor the MCP server acts as.
func WithActor(id string) Option {
	return func(a *application) {
		a.actor = id
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	return app, nil
}
