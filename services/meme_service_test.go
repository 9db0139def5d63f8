package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/memevault/models"
	"github.com/cppla/memevault/repository"
	"github.com/cppla/memevault/storage"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Meme{}, &models.AuthToken{}))
	return db
}

// flakyRepo wraps a real repository and fails selected writes.
type flakyRepo struct {
	repository.MemeRepository
	insertErr   error
	updateErr   error
	updateNoRow bool
}

func (f *flakyRepo) Insert(ctx context.Context, m *models.Meme) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemeRepository.Insert(ctx, m)
}

func (f *flakyRepo) Update(ctx context.Context, id string, ch repository.MemeChanges) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	if f.updateNoRow {
		return false, nil
	}
	return f.MemeRepository.Update(ctx, id, ch)
}

type memeEnv struct {
	svc  *MemeService
	repo *flakyRepo
	db   *gorm.DB
	dir  string
}

// failingStore fails the nth Save (1-based) and delegates everything else.
type failingStore struct {
	storage.FileStore
	failOn int
	saves  int
}

func (f *failingStore) Save(ctx context.Context, r io.Reader, ext string) (string, int64, error) {
	f.saves++
	if f.saves == f.failOn {
		return "", 0, errors.New("disk full")
	}
	return f.FileStore.Save(ctx, r, ext)
}

func newMemeEnv(t *testing.T, maxBytes int64) *memeEnv {
	t.Helper()
	return newMemeEnvWithStore(t, maxBytes, func(s storage.FileStore) storage.FileStore { return s })
}

func newMemeEnvWithStore(t *testing.T, maxBytes int64, wrap func(storage.FileStore) storage.FileStore) *memeEnv {
	t.Helper()
	db := newTestDB(t)
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)
	repo := &flakyRepo{MemeRepository: repository.NewMemeRepository(db)}
	return &memeEnv{svc: NewMemeService(repo, wrap(store), maxBytes), repo: repo, db: db, dir: dir}
}

func (e *memeEnv) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, en := range entries {
		names = append(names, en.Name())
	}
	sort.Strings(names)
	return names
}

func (e *memeEnv) rows(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Meme{}).Count(&n).Error)
	return n
}

func upload(name, contentType string, data []byte) *Upload {
	return &Upload{
		Filename:    name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func TestCreateStoresFileAndRow(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()

	m, err := env.svc.Create(ctx, MemeInput{
		Title:     "  <b>Doge</b> wow ",
		Tags:      []string{" shiba ", "", "<i>much</i>", "   "},
		File:      upload("doge.PNG", "image/png", []byte("pngdata")),
		Thumbnail: upload("blob", "image/png", []byte("thumb")),
	})
	require.NoError(t, err)
	assert.Equal(t, "Doge wow", m.Title)
	assert.Equal(t, []string{"shiba", "much"}, []string(m.Tags))
	assert.Equal(t, int64(7), m.FileSize)
	require.NotNil(t, m.FilePath)
	require.NotNil(t, m.ThumbnailPath)
	assert.True(t, strings.HasSuffix(*m.FilePath, ".png"))
	assert.True(t, strings.HasSuffix(*m.ThumbnailPath, ".png"))
	assert.Len(t, env.files(t), 2)

	got, err := env.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Title, got.Title)
}

func TestCreateUsesDeclaredTypeWhenExtensionMissing(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	m, err := env.svc.Create(context.Background(), MemeInput{
		Title: "clip",
		File:  upload("recording", "video/webm", []byte("webm")),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(*m.FilePath, ".webm"))
	assert.Nil(t, m.ThumbnailPath)
}

func TestCreateValidation(t *testing.T) {
	tooManyTags := make([]string, 21)
	for i := range tooManyTags {
		tooManyTags[i] = fmt.Sprintf("t%d", i)
	}
	file := upload("a.gif", "image/gif", []byte("gif"))

	cases := []struct {
		name string
		in   MemeInput
		msg  string
	}{
		{"missing title", MemeInput{Title: "   ", File: file}, "Missing title or file"},
		{"markup only title", MemeInput{Title: "<br/>", File: file}, "Missing title or file"},
		{"missing file", MemeInput{Title: "x"}, "Missing title or file"},
		{"empty file", MemeInput{Title: "x", File: upload("a.gif", "image/gif", nil)}, "Missing title or file"},
		{"long title", MemeInput{Title: strings.Repeat("é", 201), File: file}, "Title must be 200 characters or less"},
		{"too many tags", MemeInput{Title: "x", Tags: tooManyTags, File: file}, "Maximum 20 tags allowed"},
		{"long tag", MemeInput{Title: "x", Tags: []string{strings.Repeat("a", 101)}, File: file}, "Each tag must be 100 characters or less"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newMemeEnv(t, 1<<20)
			_, err := env.svc.Create(context.Background(), tc.in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.msg, verr.Message)
			assert.Empty(t, env.files(t))
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		env := newMemeEnv(t, 1<<20)
		tags := append(tooManyTags[:19], strings.Repeat("a", 100))
		_, err := env.svc.Create(context.Background(), MemeInput{Title: strings.Repeat("é", 200), Tags: tags, File: file})
		require.NoError(t, err)
	})
}

func TestCreateRejectsUnsupportedFormat(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	_, err := env.svc.Create(context.Background(), MemeInput{
		Title: "virus",
		File:  upload("setup.exe", "application/octet-stream", []byte("MZ")),
	})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, env.files(t))
	assert.Zero(t, env.rows(t))
}

func TestCreateQuota(t *testing.T) {
	env := newMemeEnv(t, 10)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, MemeInput{Title: "a", File: upload("a.png", "", []byte("123456"))})
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, MemeInput{Title: "b", File: upload("b.png", "", []byte("12345"))})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Len(t, env.files(t), 1)
	assert.Equal(t, int64(1), env.rows(t))

	// exactly at the limit is fine
	_, err = env.svc.Create(ctx, MemeInput{Title: "c", File: upload("c.png", "", []byte("1234"))})
	require.NoError(t, err)

	usage, err := env.svc.Storage(ctx)
	require.NoError(t, err)
	assert.Equal(t, StorageUsage{UsedBytes: 10, MaxBytes: 10}, usage)
}

func TestCreateRemovesFilesWhenInsertFails(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	env.repo.insertErr = errors.New("db down")

	_, err := env.svc.Create(context.Background(), MemeInput{
		Title:     "x",
		File:      upload("a.mp4", "video/mp4", []byte("mp4")),
		Thumbnail: upload("t", "image/png", []byte("thumb")),
	})
	assert.EqualError(t, err, "db down")
	assert.Empty(t, env.files(t))
}

func TestCreateSurvivesThumbnailFailure(t *testing.T) {
	t.Run("thumbnail cannot be opened", func(t *testing.T) {
		env := newMemeEnv(t, 1<<20)
		thumb := &Upload{
			Filename: "t.png",
			Size:     5,
			Open: func() (io.ReadCloser, error) {
				return nil, errors.New("multipart part gone")
			},
		}
		m, err := env.svc.Create(context.Background(), MemeInput{
			Title:     "no thumb",
			File:      upload("a.png", "image/png", []byte("pngdata")),
			Thumbnail: thumb,
		})
		require.NoError(t, err)
		assert.Nil(t, m.ThumbnailPath)
		assert.Equal(t, []string{*m.FilePath}, env.files(t))
	})

	t.Run("thumbnail cannot be stored", func(t *testing.T) {
		env := newMemeEnvWithStore(t, 1<<20, func(s storage.FileStore) storage.FileStore {
			return &failingStore{FileStore: s, failOn: 2}
		})
		m, err := env.svc.Create(context.Background(), MemeInput{
			Title:     "no thumb",
			File:      upload("a.png", "image/png", []byte("pngdata")),
			Thumbnail: upload("t", "image/png", []byte("thumb")),
		})
		require.NoError(t, err)
		assert.Nil(t, m.ThumbnailPath)
		assert.Equal(t, []string{*m.FilePath}, env.files(t))

		got, err := env.svc.Get(context.Background(), m.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ThumbnailPath)
	})
}

func seedOne(t *testing.T, env *memeEnv) *models.Meme {
	t.Helper()
	m, err := env.svc.Create(context.Background(), MemeInput{
		Title:     "first draft",
		Tags:      []string{"keep"},
		File:      upload("a.png", "image/png", []byte("12345678")),
		Thumbnail: upload("t", "image/png", []byte("thumb")),
	})
	require.NoError(t, err)
	return m
}

func TestUpdateMetadataOnly(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	m := seedOne(t, env)

	got, err := env.svc.Update(ctx, m.ID, MemeInput{Title: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Equal(t, []string{"keep"}, []string(got.Tags))
	assert.Equal(t, *m.FilePath, *got.FilePath)
	assert.Equal(t, *m.ThumbnailPath, *got.ThumbnailPath)

	got, err = env.svc.Update(ctx, m.ID, MemeInput{Title: "renamed", TagsSet: true})
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
	assert.Len(t, env.files(t), 2)
}

func TestUpdateReplacesAsset(t *testing.T) {
	env := newMemeEnv(t, 10)
	ctx := context.Background()
	m := seedOne(t, env)

	// 8 used of 10; replacing with another 8 bytes must not trip the quota
	got, err := env.svc.Update(ctx, m.ID, MemeInput{
		Title: "new",
		File:  upload("b.gif", "image/gif", []byte("abcdefgh")),
	})
	require.NoError(t, err)
	assert.NotEqual(t, *m.FilePath, *got.FilePath)
	assert.True(t, strings.HasSuffix(*got.FilePath, ".gif"))
	assert.Nil(t, got.ThumbnailPath)
	assert.Equal(t, []string{*got.FilePath}, env.files(t))

	_, err = env.svc.Update(ctx, m.ID, MemeInput{
		Title: "bigger",
		File:  upload("c.gif", "image/gif", []byte("abcdefghijk")),
	})
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, []string{*got.FilePath}, env.files(t))
}

func TestUpdateKeepsOldFilesWhenRowNotUpdated(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	m := seedOne(t, env)
	before := env.files(t)
	env.repo.updateNoRow = true

	_, err := env.svc.Update(ctx, m.ID, MemeInput{
		Title:     "new",
		File:      upload("b.webm", "video/webm", []byte("webm")),
		Thumbnail: upload("t", "image/png", []byte("thumb2")),
	})
	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, before, env.files(t))

	got, err := env.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "first draft", got.Title)
}

func TestUpdateKeepsOldFilesWhenRowWriteFails(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	m := seedOne(t, env)
	before := env.files(t)
	env.repo.updateErr = errors.New("db down")

	_, err := env.svc.Update(ctx, m.ID, MemeInput{
		Title:     "new",
		File:      upload("b.gif", "image/gif", []byte("gif")),
		Thumbnail: upload("t", "image/png", []byte("thumb2")),
	})
	assert.EqualError(t, err, "db down")
	assert.Equal(t, before, env.files(t))

	env.repo.updateErr = nil
	got, err := env.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "first draft", got.Title)
	assert.Equal(t, *m.FilePath, *got.FilePath)
}

func TestUpdateMissingAndInvalid(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	m := seedOne(t, env)

	_, err := env.svc.Update(ctx, "4b0c5a7e-0000-4000-8000-000000000000", MemeInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Update(ctx, m.ID, MemeInput{Title: " "})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Missing title", verr.Message)

	_, err = env.svc.Update(ctx, m.ID, MemeInput{Title: "x", File: upload("x.exe", "", []byte("MZ"))})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Len(t, env.files(t), 2)
}

func TestDelete(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	m := seedOne(t, env)
	other := seedOne(t, env)

	err := env.svc.Delete(ctx, "4b0c5a7e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, env.files(t), 4)

	require.NoError(t, env.svc.Delete(ctx, m.ID))
	assert.ElementsMatch(t, []string{*other.FilePath, *other.ThumbnailPath}, env.files(t))
	_, err = env.svc.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, env.svc.Delete(ctx, m.ID), ErrNotFound)
}

func TestListNormalizesPaging(t *testing.T) {
	env := newMemeEnv(t, 1<<20)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := env.svc.Create(ctx, MemeInput{Title: fmt.Sprintf("m%d", i), File: upload("a.png", "", []byte("x"))})
		require.NoError(t, err)
	}

	page, err := env.svc.List(ctx, ListParams{Sort: "A-Z", Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "m2", page.Items[0].Title)

	page, err = env.svc.List(ctx, ListParams{Search: "  M1 "})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, DefaultPageSize, page.PageSize)
}

func TestNormalizePage(t *testing.T) {
	cases := []struct{ page, limit, wantPage, wantLimit int }{
		{0, 0, 1, 24},
		{-3, -5, 1, 1},
		{5, 1000, 5, 100},
		{2, 50, 2, 50},
	}
	for _, c := range cases {
		p, l := NormalizePage(c.page, c.limit)
		assert.Equal(t, c.wantPage, p, "page %d", c.page)
		assert.Equal(t, c.wantLimit, l, "limit %d", c.limit)
	}
}
