package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resume-agent-go/internal/config"
	applog "resume-agent-go/internal/logger"
)

// ObjectStorage is the object store surface the upload path depends on.
type ObjectStorage interface {
	UploadDocument(ctx context.Context, documentID, fileExt string, reader io.Reader, fileSize int64) (objectPath, md5Hex string, err error)
	UploadParsedText(ctx context.Context, documentID, text string) (string, error)
	GetDocument(ctx context.Context, objectPath string) ([]byte, error)
	GetParsedText(ctx context.Context, objectPath string) (string, error)
	GetPresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectPath string) error
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO stores original uploads and their extracted text in two buckets.
// Object paths are "bucket/key" so one string identifies the object.
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	parsedBucket   string
}

// NewMinIO creates the client and makes sure both buckets exist.
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("minio config cannot be nil")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	originalBucket := cfg.OriginalsBucket
	if originalBucket == "" {
		originalBucket = "originals"
	}
	parsedBucket := cfg.ParsedTextBucket
	if parsedBucket == "" {
		parsedBucket = "parsed-text"
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: originalBucket,
		parsedBucket:   parsedBucket,
	}

	for _, bucket := range []string{originalBucket, parsedBucket} {
		if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket %s exists: %w", bucket, err)
		}
	}

	applog.Info().
		Str("endpoint", cfg.Endpoint).
		Str("originals_bucket", originalBucket).
		Str("parsed_bucket", parsedBucket).
		Msg("MinIO client initialized")
	return m, nil
}

func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	ctx := context.Background()
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	applog.Info().Str("bucket", bucketName).Msg("created MinIO bucket")
	return nil
}

// splitObjectPath splits "bucket/key" into its parts.
func splitObjectPath(objectPath string) (bucket, key string, err error) {
	parts := strings.SplitN(objectPath, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid object path %q, want bucket/key", objectPath)
	}
	return parts[0], parts[1], nil
}

// UploadDocument streams the original file into the originals bucket while
// computing its MD5 in one pass.
func (m *MinIO) UploadDocument(ctx context.Context, documentID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	if documentID == "" {
		return "", "", fmt.Errorf("document id must not be empty")
	}

	key := documentID + fileExt
	hasher := md5.New()
	tee := io.TeeReader(reader, hasher)

	contentType := "application/octet-stream"
	if strings.EqualFold(fileExt, ".pdf") {
		contentType = "application/pdf"
	}

	info, err := m.client.PutObject(ctx, m.originalBucket, key, tee, fileSize,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload document %s: %w", key, err)
	}

	md5Hex := hex.EncodeToString(hasher.Sum(nil))
	applog.Debug().
		Str("object", key).
		Int64("size", info.Size).
		Str("md5", md5Hex).
		Msg("uploaded document")
	return m.originalBucket + "/" + key, md5Hex, nil
}

// UploadParsedText stores the extracted text next to the original in the
// parsed-text bucket.
func (m *MinIO) UploadParsedText(ctx context.Context, documentID, text string) (string, error) {
	if documentID == "" {
		return "", fmt.Errorf("document id must not be empty")
	}

	key := documentID + ".txt"
	data := []byte(text)
	_, err := m.client.PutObject(ctx, m.parsedBucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return "", fmt.Errorf("failed to upload parsed text %s: %w", key, err)
	}
	return m.parsedBucket + "/" + key, nil
}

// GetDocument downloads one object by its "bucket/key" path.
func (m *MinIO) GetDocument(ctx context.Context, objectPath string) ([]byte, error) {
	bucket, key, err := splitObjectPath(objectPath)
	if err != nil {
		return nil, err
	}

	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectPath, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectPath, err)
	}
	return data, nil
}

// GetParsedText downloads the extracted text of a document.
func (m *MinIO) GetParsedText(ctx context.Context, objectPath string) (string, error) {
	data, err := m.GetDocument(ctx, objectPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetPresignedURL returns a time-limited download URL.
func (m *MinIO) GetPresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	bucket, key, err := splitObjectPath(objectPath)
	if err != nil {
		return "", err
	}

	u, err := m.client.PresignedGetObject(ctx, bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", objectPath, err)
	}
	return u.String(), nil
}

// DeleteObject removes one object.
func (m *MinIO) DeleteObject(ctx context.Context, objectPath string) error {
	bucket, key, err := splitObjectPath(objectPath)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", objectPath, err)
	}
	return nil
}
