package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
	"github.com/NordCoder/storefront-auth/internal/repository/memory"
	pg "github.com/NordCoder/storefront-auth/internal/repository/postgres"
)

type storage struct {
	Identities    identity.Repo
	RefreshTokens domainauth.RefreshTokenRepo
	Tx            domainauth.Transactor
	Outbox        outbox.Repository

	ping  func(context.Context) error
	close func()
}

func (s *storage) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *storage) Close() {
	if s.close != nil {
		s.close()
	}
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := pg.New(ctx, cfg.DB)
		if err != nil {
			return nil, err
		}
		return &storage{
			Identities:    pg.NewIdentityRepo(db),
			RefreshTokens: pg.NewRefreshTokenRepo(db),
			Tx:            pg.NewTransactor(db, logger),
			Outbox:        pg.NewOutboxRepo(db),
			ping:          db.Ping,
			close:         db.Close,
		}, nil
	case "memory":
		logger.Warn("memory storage: sessions are lost on restart")
		s := memory.NewStore()
		return &storage{
			Identities:    memory.NewIdentityRepo(s, nil),
			RefreshTokens: memory.NewRefreshTokenRepo(s),
			Tx:            memory.NewTransactor(s),
			Outbox:        memory.NewOutboxRepo(s, nil),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
