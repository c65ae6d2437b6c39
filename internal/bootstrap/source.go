package bootstrap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/chevah/pythia/internal/config"
	"github.com/chevah/pythia/internal/failure"
)

// Source is a remote artifact store.
type Source interface {
	// URL is the user-facing location of rel.
	URL(rel string) string
	// Probe checks that rel exists without downloading it and returns its
	// size when known. A missing or unreachable artifact is an
	// ArtifactNotFound failure.
	Probe(ctx context.Context, rel string) (int64, error)
	// Download writes rel to dst, retrying transient failures. Exhausted
	// retries are a FetchFailed failure.
	Download(ctx context.Context, rel, dst string) (int64, error)
}

// NewSource returns the source for the configured distribution URI.
func NewSource(cfg *config.Config, logger *slog.Logger) (Source, error) {
	u, err := url.Parse(cfg.BinaryDistURI)
	if err != nil {
		return nil, failure.Wrap(failure.Config, err, "parse binary_dist_uri")
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPSource(cfg.BinaryDistURI,
			WithRetries(cfg.Fetch.Retries),
			WithRetryDelay(cfg.Fetch.RetryDelay),
			WithConnectTimeout(cfg.Fetch.ConnectTimeout),
			WithAttemptTimeout(cfg.Fetch.AttemptTimeout),
			WithLogger(logger),
		), nil
	case "s3":
		return NewS3Source(S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Bucket:    u.Host,
			Prefix:    u.Path,
			Retries:   cfg.Fetch.Retries,
			Delay:     cfg.Fetch.RetryDelay,
			Logger:    logger,
		})
	default:
		return nil, failure.New(failure.Config, "unsupported binary_dist_uri scheme %q", u.Scheme)
	}
}

// errPermanent marks an attempt that must not be retried.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// retry runs fn up to attempts times, sleeping delay between attempts.
func retry(ctx context.Context, logger *slog.Logger, what string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p, ok := err.(errPermanent); ok {
			return p.err
		}
		if i == attempts {
			break
		}
		logger.Warn("attempt failed, retrying", "what", what, "attempt", i, "of", attempts, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
