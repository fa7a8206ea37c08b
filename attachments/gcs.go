package attachments

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/mmdatafocus/records_backend/utils"
)

// GCSBlob stores objects in one Cloud Storage bucket.
type GCSBlob struct {
	client *storage.Client
	bucket string
}

func NewGCSBlob(client *storage.Client, bucket string) *GCSBlob {
	return &GCSBlob{client: client, bucket: bucket}
}

// NewGCSBlobFromEnv uses GCS_BUCKET and the default credentials (or GCS_CREDENTIALS_JSON).
func NewGCSBlobFromEnv(ctx context.Context) (*GCSBlob, error) {
	bucket, err := utils.GCSBucket()
	if err != nil {
		return nil, err
	}
	client, err := utils.GetGCSClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewGCSBlob(client, bucket), nil
}

func (b *GCSBlob) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return utils.UploadBytesToGCS(ctx, b.client, b.bucket, key, data, contentType)
}

func (b *GCSBlob) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
}

func (b *GCSBlob) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return utils.DeleteObjectFromGCS(ctx, b.client, b.bucket, key)
}

func (b *GCSBlob) List(ctx context.Context, prefix string) ([]Object, error) {
	attrs, err := utils.ListObjectsInGCS(ctx, b.client, b.bucket, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, Object{Key: a.Name, Updated: a.Updated})
	}
	return out, nil
}

func (b *GCSBlob) Close() error {
	return b.client.Close()
}
