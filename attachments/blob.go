package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmdatafocus/records_backend/config"
	"github.com/mmdatafocus/records_backend/utils"
)

var ErrInvalidKey = errors.New("invalid object key")

// Object is one stored blob as reported by List.
type Object struct {
	Key     string
	Updated time.Time
}

// Blob is the object storage attachments are written to. Keys are slash
// separated and relative; deleting a missing key is not an error.
type Blob interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

// NewBlobFromEnv picks the backend named by STORAGE_PROVIDER.
func NewBlobFromEnv(ctx context.Context) (Blob, error) {
	switch provider := utils.GetStorageProvider(); provider {
	case utils.StorageProviderLocal:
		return NewLocalBlob(config.UploadRoot()), nil
	case utils.StorageProviderGCS:
		return NewGCSBlobFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", provider)
	}
}

func checkKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return ErrInvalidKey
	}
	return nil
}
