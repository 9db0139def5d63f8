package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cppla/memevault/models"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// Sort keys accepted by List. Anything else sorts as SortNewest.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortAZ     = "a-z"
	SortZA     = "z-a"
)

// likeEscape is the LIKE escape character. A non-backslash character keeps
// the ESCAPE clause valid on both MySQL and SQLite.
const likeEscape = "!"

var likeReplacer = strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")

// ListQuery selects a page of memes.
type ListQuery struct {
	Search string
	Sort   string
	Limit  int
	Offset int
}

// MemeChanges is the set of columns written by Update. File columns are only
// written when ReplaceFile is set.
type MemeChanges struct {
	Title         string
	Tags          []string
	KeepTags      bool
	ReplaceFile   bool
	FilePath      *string
	ThumbnailPath *string
	FileSize      int64
}

// MemeRepository reads and writes the memes table.
type MemeRepository interface {
	Insert(ctx context.Context, m *models.Meme) error
	GetByID(ctx context.Context, id string) (*models.Meme, error)
	Update(ctx context.Context, id string, ch MemeChanges) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, q ListQuery) ([]models.Meme, int64, error)
	StorageUsed(ctx context.Context) (int64, error)
}

// GormMemeRepository implements MemeRepository with gorm.
type GormMemeRepository struct {
	db *gorm.DB
}

// NewMemeRepository creates a gorm backed MemeRepository.
func NewMemeRepository(db *gorm.DB) *GormMemeRepository {
	return &GormMemeRepository{db: db}
}

func (r *GormMemeRepository) Insert(ctx context.Context, m *models.Meme) error {
	if m.Tags == nil {
		m.Tags = datatypes.JSONSlice[string]{}
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("insert meme: %w", err)
	}
	return nil
}

func (r *GormMemeRepository) GetByID(ctx context.Context, id string) (*models.Meme, error) {
	var m models.Meme
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meme: %w", err)
	}
	return &m, nil
}

func (r *GormMemeRepository) Update(ctx context.Context, id string, ch MemeChanges) (bool, error) {
	values := map[string]interface{}{"title": ch.Title}
	if !ch.KeepTags {
		tags := ch.Tags
		if tags == nil {
			tags = []string{}
		}
		values["tags"] = datatypes.NewJSONSlice(tags)
	}
	if ch.ReplaceFile {
		values["file_path"] = ch.FilePath
		values["thumbnail_path"] = ch.ThumbnailPath
		values["file_size"] = ch.FileSize
	}
	res := r.db.WithContext(ctx).Model(&models.Meme{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return false, fmt.Errorf("update meme: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *GormMemeRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Meme{})
	if res.Error != nil {
		return false, fmt.Errorf("delete meme: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns one page of memes plus the number of rows matching the search,
// independent of Limit and Offset.
func (r *GormMemeRepository) List(ctx context.Context, q ListQuery) ([]models.Meme, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Meme{}).Scopes(searchScope(q.Search)).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count memes: %w", err)
	}

	items := []models.Meme{}
	err := r.db.WithContext(ctx).Scopes(searchScope(q.Search)).
		Order(orderFor(q.Sort)).Order("id").
		Limit(q.Limit).Offset(q.Offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list memes: %w", err)
	}
	return items, total, nil
}

// searchScope matches term case-insensitively against the title or any
// single tag. LIKE wildcards in term match literally.
func searchScope(term string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		term = strings.TrimSpace(term)
		if term == "" {
			return tx
		}
		pattern := "%" + likeReplacer.Replace(term) + "%"
		return tx.Where(
			"LOWER(title) LIKE LOWER(?) ESCAPE '"+likeEscape+"' OR "+tagMatch(tx.Dialector.Name()),
			pattern, pattern,
		)
	}
}

// tagMatch tests the pattern against each element of the tags array, never
// against the JSON text around them.
func tagMatch(dialect string) string {
	if dialect == "sqlite" {
		return "EXISTS (SELECT 1 FROM json_each(memes.tags) WHERE LOWER(json_each.value) LIKE LOWER(?) ESCAPE '" + likeEscape + "')"
	}
	return "JSON_SEARCH(LOWER(tags), 'one', LOWER(?), '" + likeEscape + "') IS NOT NULL"
}

// StorageUsed sums file_size over all memes.
func (r *GormMemeRepository) StorageUsed(ctx context.Context) (int64, error) {
	var used int64
	if err := r.db.WithContext(ctx).Model(&models.Meme{}).Select("COALESCE(SUM(file_size), 0)").Scan(&used).Error; err != nil {
		return 0, fmt.Errorf("sum storage: %w", err)
	}
	return used, nil
}

func orderFor(sort string) string {
	switch strings.ToLower(sort) {
	case SortAZ:
		return "title ASC"
	case SortZA:
		return "title DESC"
	case SortOldest:
		return "created_at ASC"
	default:
		return "created_at DESC"
	}
}
