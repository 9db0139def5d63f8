package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/memevault/services"
	"github.com/cppla/memevault/utils"
)

const (
	// AuthCookieName is the cookie carrying the guest token.
	AuthCookieName = "guest_auth"
	// GuestTokenHeader is the alternative header transport for the token.
	GuestTokenHeader = "X-Guest-Token"
)

// TokenFromRequest returns the first well-formed token from the bearer
// header, the guest token header, then the cookie. Malformed values are skipped.
func TokenFromRequest(ctx *gin.Context) string {
	if h := ctx.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); services.ValidTokenFormat(t) {
			return t
		}
	}
	if t := ctx.GetHeader(GuestTokenHeader); services.ValidTokenFormat(t) {
		return t
	}
	if t, err := ctx.Cookie(AuthCookieName); err == nil && services.ValidTokenFormat(t) {
		return t
	}
	return ""
}

// AuthRequired rejects requests without a live token and refreshes the
// token's last-use time otherwise.
func AuthRequired(auth *services.AuthService) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := TokenFromRequest(ctx)
		if token == "" {
			utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
			ctx.Abort()
			return
		}

		ok, err := auth.Validate(ctx.Request.Context(), token)
		if err != nil {
			utils.Logger.Error("token lookup failed", zap.Error(err))
			utils.Error(ctx, http.StatusInternalServerError, "Internal server error")
			ctx.Abort()
			return
		}
		if !ok {
			utils.Error(ctx, http.StatusUnauthorized, "Unauthorized")
			ctx.Abort()
			return
		}

		auth.Touch(ctx.Request.Context(), token)
		ctx.Next()
	}
}
