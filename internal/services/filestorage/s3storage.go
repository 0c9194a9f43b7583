package filestorage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/utils/hashutil"
)

type S3FileStorage struct {
	client *s3.Client
	cfg    *config.S3Config
	logger *zap.Logger
}

type S3Option func(*S3FileStorage)

func WithLogger(logger *zap.Logger) S3Option {
	return func(u *S3FileStorage) {
		u.logger = logger
	}
}

func NewS3FileStorage(ctx context.Context, cfg *config.Config, opts ...S3Option) (*S3FileStorage, error) {
	if cfg.S3 == nil || cfg.S3.Bucket == "" {
		return nil, ErrS3NotConfigured
	}

	region := cfg.S3.Region
	if region == "" {
		region = "auto"
	}

	credentialsProvider := credentials.NewStaticCredentialsProvider(cfg.S3.AccessKey, cfg.S3.SecretKey, "")
	awsCfg, err := awsConfig.LoadDefaultConfig(
		ctx,
		awsConfig.WithRegion(region),
		awsConfig.WithCredentialsProvider(credentialsProvider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.EndpointUrl != "" {
			o.BaseEndpoint = aws.String(cfg.S3.EndpointUrl)
			o.UsePathStyle = !strings.Contains(cfg.S3.EndpointUrl, "amazonaws.com")
		}
	})

	u := &S3FileStorage{
		client: s3Client,
		cfg:    cfg.S3,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}

	return u, nil
}

// Upload stores the file under <folder>/<blake3 of content><ext>.
func (u *S3FileStorage) Upload(ctx context.Context, path string) (string, error) {
	content, err := readFile(path)
	if err != nil {
		return "", err
	}

	key := u.objectKey(hashutil.Blake3Hash(content) + strings.ToLower(filepath.Ext(path)))
	mtype := mimetype.Detect(content).String()

	// Generated audio is published publicly readable.
	input := s3.PutObjectInput{
		Key:         aws.String(key),
		ContentType: aws.String(mtype),
		Bucket:      aws.String(u.cfg.Bucket),
		Body:        bytes.NewReader(content),
		ACL:         types.ObjectCannedACLPublicRead,
	}
	if _, err := u.client.PutObject(ctx, &input); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", filepath.Base(path), err)
	}

	url := u.publicURL(key)
	if url == "" {
		u.logger.Warn("cannot infer public url for uploaded file, set COZY_AUDIO_S3_VANITY_URL",
			zap.String("bucket", u.cfg.Bucket),
			zap.String("key", key),
		)
	}

	return url, nil
}

func (u *S3FileStorage) UploadMultiple(ctx context.Context, paths []string) ([]string, error) {
	return uploadMultiple(ctx, u, paths)
}

func (u *S3FileStorage) Remote() bool {
	return true
}

func (u *S3FileStorage) objectKey(name string) string {
	folder := strings.Trim(u.cfg.Folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

func (u *S3FileStorage) publicURL(key string) string {
	if u.cfg.VanityUrl != "" {
		return fmt.Sprintf("%s/%s", strings.TrimSuffix(u.cfg.VanityUrl, "/"), key)
	}

	switch {
	case strings.Contains(u.cfg.EndpointUrl, "digitaloceanspaces.com"):
		return fmt.Sprintf("https://%s.%s.cdn.digitaloceanspaces.com/%s", u.cfg.Bucket, u.cfg.Region, key)

	case strings.Contains(u.cfg.EndpointUrl, "amazonaws.com"):
		endpoint := strings.TrimPrefix(u.cfg.EndpointUrl, "https://")
		endpoint = strings.TrimSuffix(endpoint, "/")
		return fmt.Sprintf("https://%s.%s/%s", u.cfg.Bucket, endpoint, key)

	default:
		// R2 and other S3-compatible providers have no derivable public URL.
		return ""
	}
}
