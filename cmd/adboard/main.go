package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"adboard/internal/ads"
	"adboard/internal/auth"
	"adboard/internal/config"
	"adboard/internal/db"
	"adboard/internal/httpserver"
	"adboard/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)

	var (
		authRepo auth.Repository
		adsRepo  ads.Repository
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on exit")
		authRepo = auth.NewMemoryStore()
		adsRepo = ads.NewMemoryStore()
	default:
		dbConn, err := db.Open(ctx, cfg.DBDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer dbConn.Close()
		if err := db.RunMigrations(ctx, dbConn, cfg.SchemaDir); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
		authRepo, adsRepo = postgresRepos(dbConn)
	}

	hasher := auth.NewHasher(cfg.BcryptCost)
	if _, created, err := auth.EnsureDefaultRole(ctx, authRepo, cfg.DefaultRole); err != nil {
		log.Fatalf("default role: %v", err)
	} else if created {
		logger.Info("default role created", "role", cfg.DefaultRole)
	}
	if cfg.SeedPath != "" {
		seed, err := auth.LoadSeed(cfg.SeedPath)
		if err != nil {
			log.Fatalf("load seed: %v", err)
		}
		if err := auth.ApplySeed(ctx, authRepo, hasher, seed); err != nil {
			log.Fatalf("apply seed: %v", err)
		}
		logger.Info("seed applied", "path", cfg.SeedPath)
	}

	issuer, credentials := newIssuer(ctx, cfg, authRepo, logger)
	evaluator := auth.NewEvaluator(authRepo, logger)
	authSvc := auth.NewService(authRepo, hasher, issuer, evaluator, cfg.DefaultRole, logger)
	var adsOpts []ads.Option
	if !cfg.PublicReads {
		adsOpts = append(adsOpts, ads.WithReadChecks())
	}
	adsSvc := ads.NewService(adsRepo, evaluator, logger, adsOpts...)

	handler := httpserver.NewRouter(
		logger,
		&auth.Handler{Service: authSvc, Logger: logger},
		&ads.Handler{Service: adsSvc, Logger: logger},
		auth.RequireUser(authSvc, credentials, logger),
	)
	if err := httpserver.New(cfg.HTTPAddr, handler, logger).Run(ctx); err != nil {
		logger.Error("http server", "err", err)
		stop()
		os.Exit(1)
	}
	logger.Info("stopped")
}

func postgresRepos(conn *sql.DB) (auth.Repository, ads.Repository) {
	return auth.NewStore(conn), ads.NewStore(conn)
}

// newIssuer picks the token scheme. Opaque tokens get a background sweeper
// that stops with ctx.
func newIssuer(ctx context.Context, cfg config.Config, repo auth.Repository, logger *slog.Logger) (auth.Issuer, auth.CredentialSource) {
	if cfg.TokenScheme == config.TokenSchemeJWT {
		return auth.NewSignedIssuer(cfg.JWTSecret, cfg.TokenTTL()), auth.FromAuthorization
	}
	opaque := auth.NewOpaqueIssuer(repo, cfg.TokenTTL())
	if cfg.TokenSweepInterval > 0 {
		go opaque.RunSweeper(ctx, cfg.TokenSweepInterval, logger)
	}
	return opaque, auth.FromXToken
}
