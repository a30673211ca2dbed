package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"postboard/internal/middleware"
	"postboard/internal/models"
	"postboard/internal/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
)

// S3Config configures the S3 backend. Endpoint is set for S3-compatible
// services such as MinIO.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps media as objects whose keys are the public path without the
// leading slash. Temp uploads are read from fsys and removed once uploaded.
type S3Store struct {
	client s3API
	bucket string
	fs     afero.Fs
}

// NewS3Client builds an S3 client from cfg, falling back to the default AWS
// credential chain when no static keys are given.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewS3Store(client s3API, bucket string, fsys afero.Fs) *S3Store {
	return &S3Store{client: client, bucket: bucket, fs: fsys}
}

func (s *S3Store) Store(ctx context.Context, owner string, category Category, upload Upload) (publicPath string, err error) {
	ctx, span := observability.StartSpan(ctx, "media.Store",
		attribute.String("media.backend", "s3"),
		attribute.String("media.category", string(category)))
	defer func() {
		middleware.MediaOperations.WithLabelValues("s3", "store", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	publicPath, err = PublicPath(owner, category, upload.Filename)
	if err != nil {
		return "", err
	}

	f, err := s.fs.Open(upload.TempPath)
	if err != nil {
		return "", models.NewStorageError("failed to open staged upload", err)
	}
	defer f.Close()

	contentType, err := sniffContentType(f)
	if err != nil {
		return "", models.NewStorageError("failed to read staged upload", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(publicPath)),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", models.NewStorageError("failed to upload media object", err)
	}

	if err := s.fs.Remove(upload.TempPath); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove staged upload", "path", upload.TempPath, "error", err)
	}
	return publicPath, nil
}

func (s *S3Store) Replace(ctx context.Context, existingPath, owner string, category Category, upload Upload) (string, error) {
	return ReplaceCommit(ctx, s, existingPath, owner, category, upload, nil)
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, publicPath string) (err error) {
	ctx, span := observability.StartSpan(ctx, "media.Delete", attribute.String("media.backend", "s3"))
	defer func() {
		middleware.MediaOperations.WithLabelValues("s3", "delete", middleware.Outcome(err)).Inc()
		observability.EndSpan(span, err)
	}()

	rel, err := relativePath(publicPath)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(PublicPrefix + rel)),
	})
	if err != nil {
		return models.NewStorageError("failed to delete media object", err)
	}
	return nil
}

func objectKey(publicPath string) string {
	return strings.TrimPrefix(publicPath, "/")
}

// sniffContentType detects the content type from the first bytes of r and
// rewinds it.
func sniffContentType(r io.ReadSeeker) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return detectContentType(head[:n]), nil
}
