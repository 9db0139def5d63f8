package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/memevault/utils"
)

// BodyLimit answers 413 for non-multipart requests declaring a body larger
// than maxBytes, and caps the readable body for the rest of them. Multipart
// uploads are bounded by the storage quota instead.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if strings.Contains(ctx.GetHeader("Content-Type"), "multipart/form-data") {
			ctx.Next()
			return
		}
		if ctx.Request.ContentLength > maxBytes {
			utils.Error(ctx, http.StatusRequestEntityTooLarge, "Request body too large")
			ctx.Abort()
			return
		}
		if ctx.Request.Body != nil {
			ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxBytes)
		}
		ctx.Next()
	}
}
