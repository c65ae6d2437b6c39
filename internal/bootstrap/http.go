package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/chevah/pythia/internal/failure"
)

// HTTPSource fetches artifacts from an HTTP(S) base URL.
type HTTPSource struct {
	base           string
	httpClient     *http.Client
	retries        int
	delay          time.Duration
	connectTimeout time.Duration
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// HTTPOption configures the HTTPSource.
type HTTPOption func(*HTTPSource)

// WithRetries sets the number of attempts per request (default: 3).
func WithRetries(n int) HTTPOption {
	return func(s *HTTPSource) { s.retries = n }
}

// WithRetryDelay sets the pause between attempts (default: 2 seconds).
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.delay = d }
}

// WithConnectTimeout bounds connection setup (default: 30 seconds).
func WithConnectTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.connectTimeout = d }
}

// WithAttemptTimeout bounds one whole request, body included. Zero means no
// limit.
func WithAttemptTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) { s.attemptTimeout = d }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHTTPSource creates a source rooted at base.
func NewHTTPSource(base string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		base:           strings.TrimRight(base, "/"),
		retries:        3,
		delay:          2 * time.Second,
		connectTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	dialer := &net.Dialer{Timeout: s.connectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = s.connectTimeout
	s.httpClient = &http.Client{Transport: transport, Timeout: s.attemptTimeout}
	return s
}

func (s *HTTPSource) URL(rel string) string {
	return s.base + "/" + strings.TrimLeft(rel, "/")
}

// Probe sends a HEAD request. 4xx answers are final; network errors and 5xx
// answers are retried.
func (s *HTTPSource) Probe(ctx context.Context, rel string) (int64, error) {
	u := s.URL(rel)
	var size int64
	err := retry(ctx, s.logger, "probe "+u, s.retries, s.delay, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
		if err != nil {
			return errPermanent{fmt.Errorf("create request: %w", err)}
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusOK:
			size = resp.ContentLength
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return errPermanent{fmt.Errorf("bad status: %s", resp.Status)}
		default:
			return fmt.Errorf("bad status: %s", resp.Status)
		}
	})
	if err != nil {
		return 0, &failure.Error{
			Code:     failure.ArtifactNotFound,
			Msg:      "remote artifact is not available",
			Detected: u,
			Err:      err,
		}
	}
	return size, nil
}

// Download GETs rel into dst, truncating dst before each attempt.
func (s *HTTPSource) Download(ctx context.Context, rel, dst string) (int64, error) {
	u := s.URL(rel)
	var written int64
	err := retry(ctx, s.logger, "download "+u, s.retries, s.delay, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return errPermanent{fmt.Errorf("create request: %w", err)}
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request failed for %s: %w", u, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("bad status: %s for %s", resp.Status, u)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return errPermanent{err}
			}
			return err
		}

		out, err := os.Create(dst)
		if err != nil {
			return errPermanent{fmt.Errorf("failed to create file %s: %w", dst, err)}
		}
		n, err := io.Copy(out, resp.Body)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("failed to write data to %s: %w", dst, err)
		}
		if resp.ContentLength >= 0 && n != resp.ContentLength {
			return fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
		}
		written = n
		return nil
	})
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		return 0, &failure.Error{Code: failure.FetchFailed, Msg: "could not download artifact", Detected: u, Err: err}
	}
	return written, nil
}
