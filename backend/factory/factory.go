// Package factory builds the configured backend.
package factory

import (
	"context"
	"net/http"

	"vibetodo/backend"
	"vibetodo/internal/config"
	"vibetodo/internal/credentials"
	"vibetodo/internal/utils"

	// Register the built-in backends.
	_ "vibetodo/backend/mstodo"
	_ "vibetodo/backend/notion"
	_ "vibetodo/backend/sqlite"
)

// Options carries collaborators that are not part of the config file
type Options struct {
	Credentials *credentials.Manager
	Login       backend.InteractiveLogin
	HTTPClient  *http.Client
}

// New builds the backend named by cfg.Backend.Type. Settings are validated by
// the backend's constructor before any connection is made.
func New(ctx context.Context, cfg *config.Config, opts Options) (backend.Backend, error) {
	return NewNamed(ctx, cfg, cfg.BackendName(), opts)
}

// NewNamed builds the named backend from its settings in cfg.
func NewNamed(ctx context.Context, cfg *config.Config, name string, opts Options) (backend.Backend, error) {
	if !config.IsKnownBackend(name) {
		return nil, &backend.ConfigurationError{Backend: name, Setting: "backend.type", Reason: "is not a known backend"}
	}
	ctor, ok := backend.Lookup(name)
	if !ok {
		return nil, &backend.ConfigurationError{Backend: name, Reason: "backend is not registered"}
	}

	creds := opts.Credentials
	if creds == nil {
		creds = credentials.NewManager()
	}

	b, err := ctor(ctx, backend.Settings(cfg.BackendSettings(name)), backend.Deps{
		Settings:    cfg,
		Credentials: creds,
		Login:       opts.Login,
		HTTPClient:  opts.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	utils.Debugf("using %s backend", name)
	return b, nil
}

// Available lists the registered backends in display order
func Available() []backend.Registered {
	return backend.RegisteredBackends()
}
