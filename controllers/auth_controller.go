package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/memevault/middleware"
	"github.com/cppla/memevault/services"
	"github.com/cppla/memevault/utils"
)

// AuthController handles the shared-password login and token lifecycle.
type AuthController struct {
	auth *services.AuthService
}

// NewAuthController creates a new AuthController instance.
func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

// Login exchanges the shared password for a token, returned in the body and as a cookie.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	// A missing or malformed body is treated as an empty password.
	_ = ctx.ShouldBindJSON(&req)

	token, err := a.auth.Login(ctx.Request.Context(), ctx.ClientIP(), req.Password)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrPasswordNotConfigured):
		utils.Fail(ctx, http.StatusInternalServerError, "Missing server password")
		return
	case errors.Is(err, services.ErrRateLimited):
		utils.Fail(ctx, http.StatusTooManyRequests, "Too many attempts, try later")
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.Fail(ctx, http.StatusUnauthorized, "Invalid password")
		return
	default:
		utils.Logger.Error("login failed", zap.Error(err))
		utils.Fail(ctx, http.StatusInternalServerError, "Internal server error")
		return
	}

	setAuthCookie(ctx, token, 0)
	utils.OK(ctx, gin.H{"token": token})
}

// Check reports whether the request carries a live token.
func (a *AuthController) Check(ctx *gin.Context) {
	token := middleware.TokenFromRequest(ctx)
	ok := false
	if token != "" {
		var err error
		if ok, err = a.auth.Validate(ctx.Request.Context(), token); err != nil {
			utils.Logger.Warn("token check failed", zap.Error(err))
			ok = false
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": ok})
}

// Logout revokes the presented token, if any, and always clears the cookie.
func (a *AuthController) Logout(ctx *gin.Context) {
	if token := middleware.TokenFromRequest(ctx); token != "" {
		if _, err := a.auth.Logout(ctx.Request.Context(), token); err != nil {
			utils.Logger.Warn("token revoke failed", zap.Error(err))
		}
	}
	setAuthCookie(ctx, "", -1)
	utils.OK(ctx, nil)
}

func setAuthCookie(ctx *gin.Context, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.AuthCookieName, value, maxAge, "/", "", false, true)
}
