package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/memevault/config"
	"github.com/cppla/memevault/controllers"
	"github.com/cppla/memevault/middleware"
	"github.com/cppla/memevault/services"
	"github.com/cppla/memevault/storage"
	"github.com/cppla/memevault/utils"
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Memes *services.MemeService
	Auth  *services.AuthService
	Store storage.FileStore
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, deps Deps) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		utils.Sugar.Warnf("invalid trusted proxies %v: %v", cfg.TrustedProxies, err)
	}

	// Access log goes to its own rolling file; without one, use the app logger
	gl := utils.Logger
	if cfg.GinPath != "" {
		if l, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress); err == nil {
			gl = l
		} else {
			utils.Sugar.Warnf("gin access log disabled: %v", err)
		}
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.GuestTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		// credentials rule out a literal "*", so echo the caller's origin
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	memeController := controllers.NewMemeController(deps.Memes)
	fileController := controllers.NewFileController(deps.Store)
	authController := controllers.NewAuthController(deps.Auth)

	api := r.Group("/api")
	api.Use(middleware.SecurityHeaders(), middleware.BodyLimit(cfg.MaxBodyBytes()))

	api.GET("", func(ctx *gin.Context) {
		utils.OK(ctx, nil)
	})

	authGroup := api.Group("/auth")
	authGroup.POST("/login", authController.Login)
	authGroup.GET("/check", authController.Check)
	authGroup.POST("/logout", authController.Logout)

	api.GET("/files/:filename", fileController.ServeFile)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(deps.Auth), middleware.RateLimitMiddleware(cfg.RateLimitPerMinute))
	protected.GET("/memes", memeController.ListMemes)
	protected.POST("/memes", memeController.CreateMeme)
	protected.GET("/memes/:id", memeController.GetMeme)
	protected.PUT("/memes/:id", memeController.UpdateMeme)
	protected.DELETE("/memes/:id", memeController.DeleteMeme)
	protected.GET("/storage", memeController.Storage)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api") {
			h := ctx.Writer.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
		}
		utils.Error(ctx, http.StatusNotFound, "Not found")
	})

	return r
}
