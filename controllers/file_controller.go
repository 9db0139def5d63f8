package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/memevault/storage"
	"github.com/cppla/memevault/utils"
)

// FileController streams stored assets.
type FileController struct {
	store storage.FileStore
}

// NewFileController creates a new FileController instance.
func NewFileController(store storage.FileStore) *FileController {
	return &FileController{store: store}
}

// ServeFile writes the named file with its content type and a long-lived cache header.
func (f *FileController) ServeFile(ctx *gin.Context) {
	name := ctx.Param("filename")
	if !storage.ValidName(name) {
		utils.Error(ctx, http.StatusBadRequest, "Invalid filename")
		return
	}

	obj, err := f.store.Open(ctx.Request.Context(), name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			utils.Logger.Warn("file open failed", zap.String("file", name), zap.Error(err))
		}
		utils.Error(ctx, http.StatusNotFound, "File not found")
		return
	}
	defer obj.Close()

	ctx.DataFromReader(http.StatusOK, obj.Size, storage.ContentTypeFor(name), obj, map[string]string{
		"Cache-Control": "public, max-age=31536000, immutable",
	})
}
