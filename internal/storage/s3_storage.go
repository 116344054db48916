package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	appconfig "github.com/maisonvoile/storefront-backend/config"
)

const (
	CategoryImageFolder = "categories"
	presignExpiry       = 15 * time.Minute
)

var (
	ErrContentTypeNotAllowed = errors.New("content type not allowed")
	ErrFileTooLarge          = errors.New("file exceeds maximum upload size")
	ErrEmptyFile             = errors.New("file size must be positive")
)

// ImageContentTypes are the formats accepted for catalog images.
var ImageContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/avif": ".avif",
}

type PresignedUpload struct {
	UploadURL string    `json:"upload_url"`
	FileURL   string    `json:"file_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Presigner hands out direct-to-bucket upload URLs.
type Presigner interface {
	PresignUpload(ctx context.Context, folder, filename, contentType string, size int64) (*PresignedUpload, error)
}

type S3Storage struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	baseURL  string
	maxBytes int64
}

func NewS3Storage(ctx context.Context, cfg appconfig.S3Config) (*S3Storage, error) {
	var awsCfg aws.Config
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = aws.Config{
			Region:      cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		}
	} else {
		// environment, shared config, or instance role
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = loaded
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Storage{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes: cfg.MaxUploadBytes,
	}, nil
}

// PresignUpload validates the upload and returns a PUT URL for
// <folder>/<uuid><ext>. The extension follows the content type, not the
// client's file name, unless the type has no canonical extension.
func (s *S3Storage) PresignUpload(ctx context.Context, folder, filename, contentType string, size int64) (*PresignedUpload, error) {
	if err := ValidateContentType(contentType); err != nil {
		return nil, err
	}
	if err := ValidateFileSize(size, s.maxBytes); err != nil {
		return nil, err
	}

	key := ObjectKey(folder, filename, contentType)
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &PresignedUpload{
		UploadURL: req.URL,
		FileURL:   s.fileURL(key),
		Key:       key,
		ExpiresAt: time.Now().Add(presignExpiry),
	}, nil
}

func (s *S3Storage) fileURL(key string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.client.Options().Region, key)
}

func ObjectKey(folder, filename, contentType string) string {
	ext, ok := ImageContentTypes[contentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(filename))
	}
	return fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), ext)
}

func ValidateFileSize(size, maxSize int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}
	if maxSize > 0 && size > maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, maxSize)
	}
	return nil
}

func ValidateContentType(contentType string) error {
	if _, ok := ImageContentTypes[contentType]; !ok {
		return fmt.Errorf("%w: %s", ErrContentTypeNotAllowed, contentType)
	}
	return nil
}
