package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/chevah/pythia/internal/failure"
)

// S3Options configures an S3Source. Empty keys mean anonymous access.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
	Retries   int
	Delay     time.Duration
	Logger    *slog.Logger
}

// S3Source fetches artifacts from an S3 compatible object store.
type S3Source struct {
	client  *minio.Client
	bucket  string
	prefix  string
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

// NewS3Source creates a source for s3://bucket/prefix.
func NewS3Source(opts S3Options) (*S3Source, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, failure.New(failure.Config, "s3 endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, failure.New(failure.Config, "s3 bucket is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(opts.AccessKey), strings.TrimSpace(opts.SecretKey), ""),
		Secure: opts.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, failure.Wrap(failure.Config, err, "init s3 client")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Source{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		retries: opts.Retries,
		delay:   opts.Delay,
		logger:  logger,
	}, nil
}

func (s *S3Source) key(rel string) string {
	rel = strings.TrimLeft(rel, "/")
	if s.prefix == "" {
		return rel
	}
	return s.prefix + "/" + rel
}

func (s *S3Source) URL(rel string) string {
	return "s3://" + s.bucket + "/" + s.key(rel)
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket" || code == "AccessDenied"
}

// Probe stats the object.
func (s *S3Source) Probe(ctx context.Context, rel string) (int64, error) {
	var size int64
	err := retry(ctx, s.logger, "probe "+s.URL(rel), s.retries, s.delay, func(ctx context.Context) error {
		info, err := s.client.StatObject(ctx, s.bucket, s.key(rel), minio.StatObjectOptions{})
		if err != nil {
			if isNotFound(err) {
				return errPermanent{err}
			}
			return err
		}
		size = info.Size
		return nil
	})
	if err != nil {
		return 0, &failure.Error{
			Code:     failure.ArtifactNotFound,
			Msg:      "remote artifact is not available",
			Detected: s.URL(rel),
			Err:      err,
		}
	}
	return size, nil
}

// Download fetches the object into dst.
func (s *S3Source) Download(ctx context.Context, rel, dst string) (int64, error) {
	var size int64
	err := retry(ctx, s.logger, "download "+s.URL(rel), s.retries, s.delay, func(ctx context.Context) error {
		if err := s.client.FGetObject(ctx, s.bucket, s.key(rel), dst, minio.GetObjectOptions{}); err != nil {
			if isNotFound(err) {
				return errPermanent{err}
			}
			return err
		}
		fi, err := os.Stat(dst)
		if err != nil {
			return errPermanent{fmt.Errorf("stat %s: %w", dst, err)}
		}
		size = fi.Size()
		return nil
	})
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &failure.Error{Code: failure.FetchFailed, Msg: "could not download artifact", Detected: s.URL(rel), Err: err}
	}
	return size, nil
}
