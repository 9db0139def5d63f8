package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/memevault/models"
	"github.com/cppla/memevault/repository"
	"github.com/cppla/memevault/storage"
	"github.com/cppla/memevault/utils"
)

const (
	maxTitleLen = 200
	maxTags     = 20
	maxTagLen   = 100

	DefaultPageSize = 24
	MaxPageSize     = 100

	// thumbnails are always rendered to png client side
	thumbnailExt = "png"
)

// Upload is a file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

func (u *Upload) empty() bool {
	return u == nil || u.Size <= 0 || u.Open == nil
}

// MemeInput carries the fields of a create or update request. On update,
// TagsSet false leaves the stored tags untouched and a nil File keeps the
// current asset.
type MemeInput struct {
	Title     string
	Tags      []string
	TagsSet   bool
	File      *Upload
	Thumbnail *Upload
}

// ListParams selects a page of the gallery.
type ListParams struct {
	Search string
	Sort   string
	Page   int
	Limit  int
}

// MemePage is one page of search results.
type MemePage struct {
	Items    []models.Meme
	Total    int64
	Page     int
	PageSize int
}

// StorageUsage reports quota consumption.
type StorageUsage struct {
	UsedBytes int64
	MaxBytes  int64
}

// MemeService owns meme records together with their stored files.
type MemeService struct {
	repo     repository.MemeRepository
	store    storage.FileStore
	maxBytes int64
	now      func() time.Time
}

// NewMemeService creates a MemeService enforcing a total quota of maxBytes.
func NewMemeService(repo repository.MemeRepository, store storage.FileStore, maxBytes int64) *MemeService {
	return &MemeService{repo: repo, store: store, maxBytes: maxBytes, now: time.Now}
}

// Create validates in, stores the asset and inserts the record. Files written
// for a record that fails to insert are removed again.
func (s *MemeService) Create(ctx context.Context, in MemeInput) (*models.Meme, error) {
	title := utils.SanitizeText(in.Title)
	if title == "" || in.File.empty() {
		return nil, invalid("title", "Missing title or file")
	}
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}

	asset, err := openAsset(in.File)
	if err != nil {
		return nil, err
	}
	defer asset.Close()

	used, err := s.repo.StorageUsed(ctx)
	if err != nil {
		return nil, err
	}
	if used+in.File.Size > s.maxBytes {
		return nil, ErrQuotaExceeded
	}

	filePath, fileSize, err := s.store.Save(ctx, asset.body, asset.ext)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	thumbPath := s.saveThumbnail(ctx, in.Thumbnail)

	m := &models.Meme{
		ID:            uuid.NewString(),
		Title:         title,
		Tags:          tags,
		FilePath:      &filePath,
		ThumbnailPath: thumbPath,
		FileSize:      fileSize,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Insert(ctx, m); err != nil {
		s.discard(filePath)
		if thumbPath != nil {
			s.discard(*thumbPath)
		}
		return nil, err
	}
	return m, nil
}

// Update changes metadata and optionally replaces the asset. The previous
// files are deleted only once the row update is confirmed.
func (s *MemeService) Update(ctx context.Context, id string, in MemeInput) (*models.Meme, error) {
	title := utils.SanitizeText(in.Title)
	if title == "" {
		return nil, invalid("title", "Missing title")
	}
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	var tags []string
	if in.TagsSet {
		var err error
		if tags, err = normalizeTags(in.Tags); err != nil {
			return nil, err
		}
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := repository.MemeChanges{Title: title, Tags: tags, KeepTags: !in.TagsSet}
	if !in.File.empty() {
		asset, err := openAsset(in.File)
		if err != nil {
			return nil, err
		}
		defer asset.Close()

		used, err := s.repo.StorageUsed(ctx)
		if err != nil {
			return nil, err
		}
		if used-existing.FileSize+in.File.Size > s.maxBytes {
			return nil, ErrQuotaExceeded
		}
		filePath, fileSize, err := s.store.Save(ctx, asset.body, asset.ext)
		if err != nil {
			return nil, fmt.Errorf("save upload: %w", err)
		}
		changes.ReplaceFile = true
		changes.FilePath = &filePath
		changes.FileSize = fileSize
		changes.ThumbnailPath = s.saveThumbnail(ctx, in.Thumbnail)
	}

	ok, err := s.repo.Update(ctx, id, changes)
	if err != nil || !ok {
		if changes.ReplaceFile {
			s.discard(*changes.FilePath)
			if changes.ThumbnailPath != nil {
				s.discard(*changes.ThumbnailPath)
			}
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrUpdateFailed
	}

	if changes.ReplaceFile {
		if existing.FilePath != nil {
			s.discard(*existing.FilePath)
		}
		if existing.ThumbnailPath != nil {
			s.discard(*existing.ThumbnailPath)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes the record and then its files. A missing record leaves the
// store untouched.
func (s *MemeService) Delete(ctx context.Context, id string) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if existing.FilePath != nil {
		s.discard(*existing.FilePath)
	}
	if existing.ThumbnailPath != nil {
		s.discard(*existing.ThumbnailPath)
	}
	return nil
}

// Get returns a single meme or ErrNotFound.
func (s *MemeService) Get(ctx context.Context, id string) (*models.Meme, error) {
	m, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return m, err
}

// List searches and pages the gallery. Page and Limit are normalized first.
func (s *MemeService) List(ctx context.Context, p ListParams) (*MemePage, error) {
	page, limit := NormalizePage(p.Page, p.Limit)
	items, total, err := s.repo.List(ctx, repository.ListQuery{
		Search: strings.TrimSpace(p.Search),
		Sort:   strings.ToLower(p.Sort),
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	return &MemePage{Items: items, Total: total, Page: page, PageSize: limit}, nil
}

// Storage reports used bytes against the quota.
func (s *MemeService) Storage(ctx context.Context) (StorageUsage, error) {
	used, err := s.repo.StorageUsed(ctx)
	if err != nil {
		return StorageUsage{}, err
	}
	return StorageUsage{UsedBytes: used, MaxBytes: s.maxBytes}, nil
}

// NormalizePage maps a missing (zero) page to 1 and a missing limit to
// DefaultPageSize, then clamps both into range.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

type openedAsset struct {
	io.Closer
	ext  string
	body io.Reader
}

// openAsset opens u and resolves its stored extension. Unaccepted formats
// fail before anything is written.
func openAsset(u *Upload) (*openedAsset, error) {
	rc, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	ext, body, ok := storage.ResolveExt(u.Filename, u.ContentType, rc)
	if !ok {
		rc.Close()
		return nil, ErrUnsupportedFormat
	}
	return &openedAsset{Closer: rc, ext: ext, body: body}, nil
}

// saveThumbnail never fails the request; a thumbnail that cannot be stored is dropped.
func (s *MemeService) saveThumbnail(ctx context.Context, u *Upload) *string {
	if u.empty() {
		return nil
	}
	rc, err := u.Open()
	if err != nil {
		utils.Logger.Warn("thumbnail open failed", zap.Error(err))
		return nil
	}
	defer rc.Close()
	name, _, err := s.store.Save(ctx, rc, thumbnailExt)
	if err != nil {
		utils.Logger.Warn("thumbnail save failed", zap.Error(err))
		return nil
	}
	return &name
}

// discard deletes a stored file, logging failures. It runs with a fresh
// context so cleanup still happens after the request was cancelled.
func (s *MemeService) discard(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, name); err != nil {
		utils.Logger.Warn("file delete failed", zap.String("file", name), zap.Error(err))
	}
}

func checkTitle(title string) error {
	if utf8.RuneCountInString(title) > maxTitleLen {
		return invalid("title", fmt.Sprintf("Title must be %d characters or less", maxTitleLen))
	}
	return nil
}

func normalizeTags(raw []string) ([]string, error) {
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = utils.SanitizeText(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) > maxTags {
		return nil, invalid("tags", fmt.Sprintf("Maximum %d tags allowed", maxTags))
	}
	for _, t := range tags {
		if utf8.RuneCountInString(t) > maxTagLen {
			return nil, invalid("tags", fmt.Sprintf("Each tag must be %d characters or less", maxTagLen))
		}
	}
	return tags, nil
}
