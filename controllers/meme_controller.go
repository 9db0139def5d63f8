package controllers

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/memevault/services"
)

// MemeController serves the gallery and meme CRUD endpoints.
type MemeController struct {
	svc *services.MemeService
}

// NewMemeController creates a new MemeController instance.
func NewMemeController(svc *services.MemeService) *MemeController {
	return &MemeController{svc: svc}
}

// ListMemes returns a page of memes filtered by search and ordered by sort.
func (m *MemeController) ListMemes(ctx *gin.Context) {
	page, err := m.svc.List(ctx.Request.Context(), services.ListParams{
		Search: ctx.Query("search"),
		Sort:   ctx.DefaultQuery("sort", "newest"),
		Page:   queryInt(ctx, "page"),
		Limit:  queryInt(ctx, "limit"),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}

	items := make([]memeResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toMemeResponse(&page.Items[i]))
	}
	ctx.JSON(200, gin.H{
		"items":    items,
		"total":    page.Total,
		"page":     page.Page,
		"pageSize": page.PageSize,
	})
}

// GetMeme returns a single meme.
func (m *MemeController) GetMeme(ctx *gin.Context) {
	meme, err := m.svc.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(200, toMemeResponse(meme))
}

// CreateMeme stores an uploaded asset with its title and tags.
func (m *MemeController) CreateMeme(ctx *gin.Context) {
	meme, err := m.svc.Create(ctx.Request.Context(), memeInput(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"ok": true, "item": toMemeResponse(meme)})
}

// UpdateMeme edits metadata and optionally replaces the asset.
func (m *MemeController) UpdateMeme(ctx *gin.Context) {
	meme, err := m.svc.Update(ctx.Request.Context(), ctx.Param("id"), memeInput(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"ok": true, "item": toMemeResponse(meme)})
}

// DeleteMeme removes a meme and its files.
func (m *MemeController) DeleteMeme(ctx *gin.Context) {
	if err := m.svc.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"ok": true})
}

// Storage reports quota usage.
func (m *MemeController) Storage(ctx *gin.Context) {
	usage, err := m.svc.Storage(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"usedBytes": usage.UsedBytes, "maxBytes": usage.MaxBytes})
}

// memeInput reads the multipart fields title, tags, file and thumbnail.
func memeInput(ctx *gin.Context) services.MemeInput {
	in := services.MemeInput{
		Title:     ctx.PostForm("title"),
		File:      formUpload(ctx, "file"),
		Thumbnail: formUpload(ctx, "thumbnail"),
	}
	if raw, ok := ctx.GetPostForm("tags"); ok {
		in.TagsSet = true
		in.Tags = parseTags(raw)
	}
	return in
}

// parseTags decodes a JSON array, keeping only its string entries. Anything
// else yields no tags.
func parseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var parsed []interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	tags := make([]string, 0, len(parsed))
	for _, v := range parsed {
		if s, ok := v.(string); ok {
			tags = append(tags, s)
		}
	}
	return tags
}

func formUpload(ctx *gin.Context, field string) *services.Upload {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return nil
	}
	return &services.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// queryInt parses a query parameter, treating missing or non-numeric values as 0.
func queryInt(ctx *gin.Context, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(ctx.Query(key)))
	if err != nil {
		return 0
	}
	return n
}
