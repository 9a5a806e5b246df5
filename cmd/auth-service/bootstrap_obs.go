package main

import (
	"context"

	"go.uber.org/zap"

	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(obs.LogConfig{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty,
		App:    cfg.App.Name,
		Env:    cfg.App.Env,
		Ver:    cfg.App.Version,
	})
}

func initOTel(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	oc := cfg.OTEL.AsOTELConfig()
	oc.ServiceVersion = cfg.App.Version
	oc.Environment = cfg.App.Env
	tel, err := obs.SetupOTel(ctx, oc)
	if err != nil {
		return nil, err
	}
	return tel.Shutdown, nil
}
