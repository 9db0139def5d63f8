package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/memevault/models"
	"github.com/cppla/memevault/services"
	"github.com/cppla/memevault/utils"
)

const unsupportedFormatMessage = "Unsupported file format. Allowed: PNG, GIF, MP4, WebM"

// memeResponse is the wire form of a meme. CreatedAt is Unix milliseconds.
type memeResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Tags          []string `json:"tags"`
	FilePath      *string  `json:"filePath"`
	ThumbnailPath *string  `json:"thumbnailPath"`
	FileSize      int64    `json:"fileSize"`
	CreatedAt     int64    `json:"createdAt"`
}

func toMemeResponse(m *models.Meme) memeResponse {
	tags := []string(m.Tags)
	if tags == nil {
		tags = []string{}
	}
	return memeResponse{
		ID:            m.ID,
		Title:         m.Title,
		Tags:          tags,
		FilePath:      m.FilePath,
		ThumbnailPath: m.ThumbnailPath,
		FileSize:      m.FileSize,
		CreatedAt:     m.CreatedAt.UnixMilli(),
	}
}

// respondError maps service errors onto status codes. Unexpected errors are
// logged and answered with a generic message.
func respondError(ctx *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.Fail(ctx, http.StatusBadRequest, verr.Message)
	case errors.Is(err, services.ErrUnsupportedFormat):
		utils.Fail(ctx, http.StatusBadRequest, unsupportedFormatMessage)
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, "Not found")
	case errors.Is(err, services.ErrQuotaExceeded):
		utils.Fail(ctx, http.StatusRequestEntityTooLarge, "Storage limit exceeded")
	case errors.Is(err, services.ErrUpdateFailed):
		utils.Fail(ctx, http.StatusInternalServerError, "Update failed")
	default:
		utils.Logger.Error("request failed",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.Request.URL.Path),
			zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, "Internal server error")
	}
}
