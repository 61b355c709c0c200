package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrForeignObject is returned when a URL points outside the empresa prefix.
var ErrForeignObject = errors.New("object does not belong to empresa")

// Storage keeps message attachments and catalog images in a MinIO bucket.
type Storage struct {
	client      *minio.Client
	bucket      string
	publicURL   string
	internalURL string
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	internalURL := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = internalURL
	}

	s := &Storage{
		client:      client,
		bucket:      cfg.Bucket,
		publicURL:   publicURL,
		internalURL: internalURL,
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	// attachments are sent to the gateway by URL, so objects must be world readable
	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("failed to set bucket policy: %w", err)
	}
	return nil
}

// Upload stores the reader under empresaID/folder and returns its public URL.
func (s *Storage) Upload(ctx context.Context, empresaID uuid.UUID, folder, filename string, r io.Reader, size int64, contentType string) (string, error) {
	key := ObjectKey(empresaID, folder, filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return s.PublicURL(key), nil
}

// PresignedUploadURL lets the browser PUT a file directly into the bucket.
func (s *Storage) PresignedUploadURL(ctx context.Context, empresaID uuid.UUID, folder, filename string) (uploadURL, publicURL string, err error) {
	key := ObjectKey(empresaID, folder, filename)
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, 15*time.Minute)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return strings.Replace(u.String(), s.internalURL, s.publicURL, 1), s.PublicURL(key), nil
}

// Delete removes the object behind a public URL. Objects outside the
// empresa prefix are refused.
func (s *Storage) Delete(ctx context.Context, empresaID uuid.UUID, fullURL string) error {
	key, err := s.ExtractObjectKey(fullURL)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(key, empresaID.String()+"/") {
		return fmt.Errorf("%w: %s", ErrForeignObject, key)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

func (s *Storage) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

// ExtractObjectKey strips host and bucket from a public URL.
func (s *Storage) ExtractObjectKey(fullURL string) (string, error) {
	parsed, err := url.Parse(fullURL)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(parsed.Path, "/"+s.bucket+"/"), nil
}

// ObjectKey builds empresaID/folder/<uuid><ext> so uploads never collide.
func ObjectKey(empresaID uuid.UUID, folder, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(empresaID.String(), folder, uuid.NewString()+ext)
}

// MediaType maps a content type to the gateway's media kind.
func MediaType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	case strings.HasPrefix(contentType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
