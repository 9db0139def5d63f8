package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/memevault/config"
)

var (
	// ErrNotExist is returned by Open when the named file is missing.
	ErrNotExist = errors.New("file does not exist")
	// ErrInvalidName is returned for names that could escape the content root.
	ErrInvalidName = errors.New("invalid filename")
)

// FileStore persists uploaded assets under opaque generated names.
type FileStore interface {
	// Save writes r under a fresh random name with the given extension and
	// returns the name and the number of bytes written.
	Save(ctx context.Context, r io.Reader, ext string) (string, int64, error)
	// Open returns the content of name. Callers must close the reader.
	Open(ctx context.Context, name string) (*Object, error)
	// Delete removes name. A missing file is not an error.
	Delete(ctx context.Context, name string) error
}

// Object is an opened stored file.
type Object struct {
	io.ReadCloser
	Size    int64
	ModTime time.Time
}

// ValidName reports whether name is a plain filename: non-empty, with no
// parent-directory segment and no path separator.
func ValidName(name string) bool {
	if name == "" || name == "." {
		return false
	}
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, `/\`)
}

func newName(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || !ValidName(ext) {
		return "", fmt.Errorf("%w: extension %q", ErrInvalidName, ext)
	}
	return uuid.NewString() + "." + ext, nil
}

// NewFromConfig builds the backend selected by StorageDriver.
func NewFromConfig(c config.AppConfig) (FileStore, error) {
	switch c.StorageDriver {
	case "", "local":
		return NewLocalStore(c.UploadDir)
	case "minio":
		return NewMinioStore(c.MinioEndpoint, c.MinioAccessKey, c.MinioSecretKey, c.MinioBucket, c.MinioUseSSL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
}
