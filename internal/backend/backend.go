// Package backend selects and opens the one persistence backend a process uses.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/tableside/internal/config"
	"github.com/Additional-Code/tableside/internal/database"
	"github.com/Additional-Code/tableside/internal/migration"
	"github.com/Additional-Code/tableside/internal/seeder"
	"github.com/Additional-Code/tableside/internal/settings"
	"github.com/Additional-Code/tableside/internal/store"
	"github.com/Additional-Code/tableside/internal/store/local"
	"github.com/Additional-Code/tableside/internal/store/redisstore"
	"github.com/Additional-Code/tableside/internal/store/sqlstore"
)

// Source says where the active credentials came from.
type Source string

const (
	SourceEnv      Source = "env"
	SourceSettings Source = "settings"
	SourceLocal    Source = "local"
)

// Info describes the active backend for diagnostics.
type Info struct {
	Driver    string `json:"driver"`
	Source    Source `json:"source"`
	Remote    bool   `json:"remote"`
	ProjectID string `json:"projectId,omitempty"`
}

// Module provides the selected backend, the local store and Info to Fx.
var Module = fx.Options(
	fx.Provide(New),
	settings.Module,
)

// Result is what New contributes to the graph.
type Result struct {
	fx.Out

	Backend store.Backend
	Local   *local.Store
	Info    Info
}

// Select decides which credentials to use. Bundled env credentials win, then
// the operator-saved set; anything without a usable key means local.
func Select(env, saved config.Remote, hasSaved bool) (config.Remote, Source) {
	if env.Valid() {
		return env, SourceEnv
	}
	if hasSaved && saved.Valid() {
		return saved, SourceSettings
	}
	return config.Remote{}, SourceLocal
}

// OpenLocal opens the device-local store with the configured path, cadence
// and first-run catalog.
func OpenLocal(cfg config.Config, logger *zap.Logger) (*local.Store, error) {
	opts := []local.Option{
		local.WithPath(cfg.Store.LocalPath),
		local.WithPollInterval(cfg.Store.PollInterval),
		local.WithLogger(logger),
	}
	if cfg.Store.SeedCatalog {
		docs, err := seeder.CatalogDocuments()
		if err != nil {
			return nil, fmt.Errorf("encode default catalog: %w", err)
		}
		opts = append(opts, local.WithSeed(store.Products, docs))
	}
	l, err := local.Open(opts...)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return l, nil
}

// Resolve opens the local store and reports which credentials are active.
func Resolve(ctx context.Context, cfg config.Config, logger *zap.Logger) (*local.Store, config.Remote, Source, error) {
	localStore, err := OpenLocal(cfg, logger)
	if err != nil {
		return nil, config.Remote{}, "", err
	}
	saved, hasSaved, err := settings.New(localStore, logger).Load(ctx)
	if err != nil {
		return nil, config.Remote{}, "", fmt.Errorf("load backend settings: %w", err)
	}
	remote, source := Select(cfg.Remote, saved, hasSaved)
	return localStore, remote, source, nil
}

// New opens the local store, picks the active backend and registers its
// connect and close hooks. A remote backend that cannot be reached fails
// startup rather than silently falling back.
func New(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	localStore, remote, source, err := Resolve(context.Background(), cfg, logger)
	if err != nil {
		return Result{}, err
	}

	if source == SourceLocal {
		logger.Info("using local backend", zap.String("path", cfg.Store.LocalPath))
		return Result{
			Backend: localStore,
			Local:   localStore,
			Info:    Info{Driver: localStore.Name(), Source: source},
		}, nil
	}

	info := Info{Driver: remote.Driver, Source: source, Remote: true, ProjectID: remote.ProjectID}
	var active store.Backend
	switch remote.Driver {
	case "redis":
		active, err = openRedis(lc, cfg, remote, logger)
	case "postgres", "mysql", "sqlite":
		active, err = openSQL(lc, cfg, remote, logger)
	default:
		err = config.ValidateRemoteDriver(remote.Driver)
	}
	if err != nil {
		return Result{}, err
	}

	logger.Info("using remote backend",
		zap.String("driver", remote.Driver),
		zap.String("source", string(source)),
		zap.String("project_id", remote.ProjectID))
	return Result{Backend: active, Local: localStore, Info: info}, nil
}

func openRedis(lc fx.Lifecycle, cfg config.Config, remote config.Remote, logger *zap.Logger) (store.Backend, error) {
	s, err := redisstore.Open(remote,
		redisstore.WithCoalesceWindow(cfg.Store.CoalesceWindow),
		redisstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Ping(ctx); err != nil {
				return fmt.Errorf("connect redis backend: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing redis backend")
			return s.Close()
		},
	})
	return s, nil
}

func openSQL(lc fx.Lifecycle, cfg config.Config, remote config.Remote, logger *zap.Logger) (store.Backend, error) {
	db, err := database.Open(remote, cfg.Database)
	if err != nil {
		return nil, err
	}
	migrator, err := migration.New(db, remote.Driver, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := sqlstore.New(db, remote.ProjectID,
		sqlstore.WithPollInterval(cfg.Store.PollInterval),
		sqlstore.WithCoalesceWindow(cfg.Store.CoalesceWindow),
		sqlstore.WithLogger(logger))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := database.Ping(ctx, db); err != nil {
				return fmt.Errorf("connect %s backend: %w", remote.Driver, err)
			}
			return migrator.Up(ctx)
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("closing sql backend", zap.String("driver", remote.Driver))
			return db.Close()
		},
	})
	return s, nil
}
