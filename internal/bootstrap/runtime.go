// Package bootstrap assembles the generation pipeline from environment
// configuration for the binaries under cmd/.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"comfyremote/internal/comfy"
	"comfyremote/internal/generation"
	"comfyremote/internal/history"
	"comfyremote/internal/infra"
	"comfyremote/internal/storage"
)

// Runtime holds the wired pipeline and the resources it owns.
type Runtime struct {
	Config  *infra.Config
	Client  *comfy.Client
	Service *generation.Service
	History history.Store

	pool *pgxpool.Pool
}

// Open builds the comfy client, the history store (Postgres when
// DATABASE_URL is set, in memory otherwise), the artifact cache and the
// generation service.
func Open(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	logger = infra.OrDiscard(logger)

	client, err := comfy.NewClient(comfy.Options{
		BaseURL:   cfg.ComfyBaseURL,
		PublicURL: cfg.ComfyPublicURL,
		Timeout:   cfg.ComfyTimeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	builder, err := generation.Builder(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Client: client}

	rt.pool, err = infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if rt.pool != nil {
		store := history.NewPostgresStore(infra.NewSQLRunner(rt.pool, logger), cfg.HistoryLimit)
		if err := store.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, fmt.Errorf("bootstrap: history schema: %w", err)
		}
		rt.History = store
		logger.Info().Msg("bootstrap: history stored in postgres")
	} else {
		rt.History = history.NewMemoryStore(cfg.HistoryLimit)
		logger.Info().Msg("bootstrap: history kept in memory")
	}

	var artifacts *storage.FileStore
	if cfg.StoragePath != "" {
		artifacts, err = storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info().Str("path", artifacts.BasePath()).Msg("bootstrap: artifact cache enabled")
	}

	rt.Service, err = generation.NewService(generation.Options{
		Backend:   client,
		Builder:   builder,
		Defaults:  generation.RequestDefaults(cfg),
		Tracker:   generation.TrackerConfig(cfg),
		Policy:    generation.CompletionPolicy(cfg),
		History:   rt.History,
		Artifacts: artifacts,
		Logger:    logger,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close releases the database pool, if any.
func (r *Runtime) Close() {
	if r != nil && r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
}
