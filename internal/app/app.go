package app

import (
	"context"
	"errors"

	"elib/internal/util"
	"elib/pkg/storage"
	"elib/pkg/store"
)

// Config holds the collaborators the core application is wired with.
type Config struct {
	Store    store.Store
	Media    storage.MediaStore
	Sessions store.SessionStore
	Staging  *storage.Staging
	// RequirePDF rejects book files that do not parse as PDF.
	RequirePDF bool
}

// App implements the user and book use cases on top of the store and media host.
type App struct {
	store      store.Store
	media      storage.MediaStore
	sessions   store.SessionStore
	staging    *storage.Staging
	requirePDF bool
}

// New validates the collaborators and constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Media == nil {
		return nil, errors.New("media store required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store required")
	}
	if cfg.Staging == nil {
		return nil, errors.New("staging area required")
	}
	return &App{
		store:      cfg.Store,
		media:      cfg.Media,
		sessions:   cfg.Sessions,
		staging:    cfg.Staging,
		requirePDF: cfg.RequirePDF,
	}, nil
}

// discard removes staged uploads. Failures are logged only.
func (a *App) discard(ctx context.Context, files ...*storage.StagedFile) {
	for _, f := range files {
		if f == nil {
			continue
		}
		if err := a.staging.Remove(*f); err != nil {
			util.LoggerFromContext(ctx).Warn("remove staged file failed", "path", f.Path, "err", err)
		}
	}
}
