package utils

import "github.com/gin-gonic/gin"

// OK writes {"ok": true} merged with extra fields.
func OK(ctx *gin.Context, extra gin.H) {
	body := gin.H{"ok": true}
	for k, v := range extra {
		body[k] = v
	}
	ctx.JSON(200, body)
}

// Fail writes {"ok": false, "error": message} for mutating endpoints.
func Fail(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"ok": false, "error": message})
}

// Error writes {"error": message} for read endpoints.
func Error(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, gin.H{"error": message})
}
