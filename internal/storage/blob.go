package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Julienbatt/DringDring-sub000/config"
)

// BlobStore is the object-store surface the billing pipeline needs.
// Objects are content-overwritten on write; readers tolerate missing
// objects by regenerating.
type BlobStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// MinioStore implements BlobStore against any S3-compatible endpoint.
type MinioStore struct {
	client    *minio.Client
	publicURL string
}

// NewMinioStore creates the client and makes sure the configured
// buckets exist.
func NewMinioStore(cfg config.BlobConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create blob store client")
	}

	store := &MinioStore{client: client, publicURL: cfg.PublicURL}
	ctx := context.Background()
	for _, bucket := range []string{cfg.PDFBucket, cfg.LogoBucket} {
		if bucket == "" {
			continue
		}
		exists, err := client.BucketExists(ctx, bucket)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to check bucket %s", bucket)
		}
		if !exists {
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return nil, errors.Wrapf(err, "failed to create bucket %s", bucket)
			}
			log.Info().Str("bucket", bucket).Msg("Created blob bucket")
		}
	}
	return store, nil
}

// Upload writes an object and returns the URL recorded in the
// database.
func (s *MinioStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s/%s", bucket, key)
	}
	return s.ObjectURL(bucket, key), nil
}

// Download fetches the stored bytes of an object.
func (s *MinioStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s/%s", bucket, key)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s/%s", bucket, key)
	}
	return data, nil
}

// ObjectURL renders the externally visible URL of an object.
func (s *MinioStore) ObjectURL(bucket, key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, key)
	}
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), bucket, key)
}

// ShopPeriodKey is the object key of a frozen shop-month PDF.
func ShopPeriodKey(shopID, month string) string {
	return fmt.Sprintf("shop/%s/%s.pdf", shopID, month)
}

// DocumentKey is the object key of a payor-document PDF.
func DocumentKey(month, documentID string) string {
	return fmt.Sprintf("billing-documents/%s/%s.pdf", month, documentID)
}
