package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	"github.com/NordCoder/storefront-auth/internal/services/auth"
)

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "../config/auth-service.yaml"
}

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath())
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting auth-service",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("events", cfg.Events.Driver),
	)

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	store, err := initStorage(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer store.Close()

	limiter, closeLimiter := initLimiter(rootCtx, cfg, logger)
	defer closeLimiter()

	pub, err := initPublisher(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("events init", zap.Error(err))
	}
	defer pub.Close()

	codec, err := authkit.NewCodec([]byte(cfg.Auth.Secret), nil)
	if err != nil {
		logger.Fatal("token codec", zap.Error(err))
	}

	deps := auth.Deps{
		Identities:    store.Identities,
		RefreshTokens: store.RefreshTokens,
		Tx:            store.Tx,
		Codec:         codec,
		Hasher:        authkit.NewHasher(authkit.DefaultHasherParams),
		Logger:        logger,
	}
	if pub.Publisher != nil {
		deps.Outbox = store.Outbox
	}
	uc, err := auth.NewUsecase(deps, auth.Config{
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		logger.Fatal("auth usecase", zap.Error(err))
	}

	workCtx, cancelWork := context.WithCancel(rootCtx)
	var wg sync.WaitGroup
	if pub.Publisher != nil {
		runner := buildOutboxRunner(cfg, logger, store.Outbox, pub.Publisher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(workCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runPurge(workCtx, uc, cfg.Auth.PurgeInterval, logger)
	}()

	grpcServer, grpcLn, health, err := buildGRPCServer(cfg, logger, uc, limiter)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() { grpcErrCh <- serveGRPC(grpcServer, grpcLn, cfg, logger) }()

	httpSrv := buildHTTPServer(cfg, logger, uc, limiter, store.Ping)

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- serveHTTP(httpSrv, cfg, logger) }()

	var runErr error
	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal", zap.String("reason", "context canceled"))
	case runErr = <-grpcErrCh:
		if runErr != nil {
			logger.Error("grpc serve", zap.Error(runErr))
		}
	case runErr = <-httpErrCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			logger.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()

	health.Shutdown()
	_ = httpSrv.Shutdown(shCtx)
	gracefulStopGRPC(grpcServer)

	cancelWork()
	wg.Wait()
	logger.Info("bye")
}
