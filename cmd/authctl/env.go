package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	"github.com/NordCoder/storefront-auth/internal/obs"
	pg "github.com/NordCoder/storefront-auth/internal/repository/postgres"
	"github.com/NordCoder/storefront-auth/internal/services/auth"
)

// env is what every database-backed command needs. Mutations enqueue their
// session events; the running service delivers them.
type env struct {
	cfg *config.Config
	log *zap.Logger
	uc  *auth.Usecase
	db  *pg.DB
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: true,
		App:    "authctl",
		Env:    cfg.App.Env,
		Ver:    cfg.App.Version,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func openEnv(ctx context.Context, path string) (*env, error) {
	cfg, log, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("authctl needs storage.driver=postgres, got %q", cfg.Storage.Driver)
	}

	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	codec, err := authkit.NewCodec([]byte(cfg.Auth.Secret), nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := auth.Deps{
		Identities:    pg.NewIdentityRepo(db),
		RefreshTokens: pg.NewRefreshTokenRepo(db),
		Tx:            pg.NewTransactor(db, log),
		Codec:         codec,
		Hasher:        authkit.NewHasher(authkit.DefaultHasherParams),
		Logger:        log,
	}
	if cfg.Events.Driver != "none" {
		deps.Outbox = pg.NewOutboxRepo(db)
	}
	uc, err := auth.NewUsecase(deps, auth.Config{AccessTTL: cfg.Auth.AccessTTL, RefreshTTL: cfg.Auth.RefreshTTL})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: log, uc: uc, db: db}, nil
}

func (e *env) Close() {
	e.db.Close()
	_ = e.log.Sync()
}
