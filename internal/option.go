package internal

import "github.com/starford/laguz/internal/remote"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	store  remote.Store
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithStore overrides the remote store built from the configuration. Used
// by tests to inject an in-memory store.
func WithStore(store remote.Store) Option {
	return func(a *application) {
		a.store = store
	}
}
