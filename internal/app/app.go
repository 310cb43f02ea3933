package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quizshow/internal/storage"
	"quizshow/internal/store"
	"quizshow/internal/sweep"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	JWTSecret     string
	SessionTTL    time.Duration
	RedisAddr     string
	RedisPassword string

	// Pre-built dependencies take precedence over the connection settings
	// above; tests inject in-memory implementations here.
	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Janitor  *sweep.Janitor
}

// App wires the record store, session tokens, and object storage together.
type App struct {
	store    store.Store
	sessions store.SessionStore
	objects  storage.ObjectStore
	janitor  *sweep.Janitor
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		objects:  cfg.Objects,
		janitor:  cfg.Janitor,
	}, nil
}

// discardObject deletes an attachment best-effort. Failures never propagate:
// they are logged and, when a janitor is wired, parked for a retry sweep.
func (a *App) discardObject(ctx context.Context, fileURL, owner string) {
	if strings.TrimSpace(fileURL) == "" {
		return
	}
	if _, err := a.objects.DeleteByURL(ctx, fileURL); err != nil {
		slog.Warn("attachment cleanup failed", "url", fileURL, "owner", owner, "err", err)
		if a.janitor != nil {
			if qerr := a.janitor.Enqueue(ctx, fileURL); qerr != nil {
				slog.Error("failed to park attachment for sweep", "url", fileURL, "err", qerr)
			}
		}
	}
}
