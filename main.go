package main

import (
	"context"
	"net"
	"time"

	"github.com/cppla/memevault/config"
	"github.com/cppla/memevault/models"
	"github.com/cppla/memevault/repository"
	"github.com/cppla/memevault/routes"
	"github.com/cppla/memevault/services"
	"github.com/cppla/memevault/storage"
	"github.com/cppla/memevault/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	// Create tables on first boot; later schema changes go through cmd/migrate
	db := config.InitDatabase(&models.Meme{}, &models.AuthToken{})

	store, err := storage.NewFromConfig(cfg)
	if err != nil {
		utils.Sugar.Fatalf("init file store: %v", err)
	}

	if cfg.Password == "" && cfg.PasswordHash == "" {
		utils.Sugar.Warn("PASSWORD is not set; every login will fail")
	}

	limiter := utils.NewLoginLimiter(utils.GetRedis(), cfg.LoginRateLimit, time.Duration(cfg.LoginRateWindowSec)*time.Second)
	auth := services.NewAuthService(repository.NewAuthTokenRepository(db), limiter, services.AuthOptions{
		Password:     cfg.Password,
		PasswordHash: cfg.PasswordHash,
		TokenMaxAge:  time.Duration(cfg.TokenMaxAgeDays) * 24 * time.Hour,
	})
	memes := services.NewMemeService(repository.NewMemeRepository(db), store, cfg.MaxStorageBytes())

	r := routes.SetupRouter(cfg, routes.Deps{Memes: memes, Auth: auth, Store: store})

	ctx, stop := utils.SignalContext(context.Background())
	defer stop()

	// Sweep expired tokens in the background in addition to the login-time sweep
	auth.StartCleanup(ctx, time.Duration(cfg.TokenCleanupMinutes)*time.Minute)

	addr := net.JoinHostPort(cfg.AppHost, cfg.AppPort)
	utils.Sugar.Infof("Starting server on %s (graceful)", addr)
	if err := utils.GraceServer(ctx, addr, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
