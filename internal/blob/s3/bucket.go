package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/alanyoungcy/settled/internal/domain"
)

const (
	// Objects above multipartThreshold go through the upload manager in
	// parts of partSize.
	multipartThreshold = 16 << 20
	partSize           = 8 << 20

	// maxObjectSize caps what Get will buffer.
	maxObjectSize = 256 << 20
)

// Bucket implements domain.BlobStore on the client's bucket.
type Bucket struct {
	api  *s3.Client
	name string
}

// NewBucket returns the archive bucket of c.
func NewBucket(c *Client) *Bucket {
	return &Bucket{api: c.api, name: c.bucket}
}

// Put stores data at path, switching to a multipart upload for large
// objects.
func (b *Bucket) Put(ctx context.Context, path string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	var err error
	if len(data) > multipartThreshold {
		up := manager.NewUploader(b.api, func(u *manager.Uploader) { u.PartSize = partSize })
		_, err = up.Upload(ctx, in)
	} else {
		_, err = b.api.PutObject(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// Get reads the whole object at path.
func (b *Bucket) Get(ctx context.Context, path string) ([]byte, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	if err != nil {
		if missing(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("s3blob: %s exceeds %d bytes", path, maxObjectSize)
	}
	return data, nil
}

// List walks every page of objects under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	pages := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	})
	var infos []domain.BlobInfo
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, domain.BlobInfo{
				Path:         aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return infos, nil
}

// Exists reports whether path holds an object.
func (b *Bucket) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(path),
	})
	switch {
	case err == nil:
		return true, nil
	case missing(err):
		return false, nil
	default:
		return false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
}

// missing recognizes the SDK's typed not-found errors and a bare 404 from
// compatible providers, which HeadObject returns without a body.
func missing(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}

var _ domain.BlobStore = (*Bucket)(nil)
