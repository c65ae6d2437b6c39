package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chevah/pythia/internal/config"
	"github.com/chevah/pythia/internal/failure"
)

func TestHTTPSource_Probe(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")
	data := runtimeArchive(t, plan.Artifact, "3.11.9")
	srv.put(plan.Artifact, data)

	size, err := srv.source().Probe(context.Background(), plan.Artifact.RemotePath())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)
	assert.Zero(t, srv.count("GET", plan.Artifact), "probe never downloads")
}

func TestHTTPSource_ProbeMissingIsNotRetried(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")

	_, err := srv.source().Probe(context.Background(), plan.Artifact.RemotePath())
	require.Error(t, err)
	assert.Equal(t, failure.ArtifactNotFound, failure.CodeOf(err))
	assert.Contains(t, err.Error(), srv.URL+"/dist/"+plan.Artifact.RemotePath())
	assert.Equal(t, 1, srv.count("HEAD", plan.Artifact))
}

func TestHTTPSource_ProbeServerErrorsRetried(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")
	srv.put(plan.Artifact, []byte("x"))
	srv.failures["HEAD /dist/"+plan.Artifact.RemotePath()] = 5

	_, err := srv.source().Probe(context.Background(), plan.Artifact.RemotePath())
	require.Error(t, err)
	assert.Equal(t, failure.ArtifactNotFound, failure.CodeOf(err))
	assert.Equal(t, 3, srv.count("HEAD", plan.Artifact))
}

func TestHTTPSource_Download(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")
	srv.put(plan.Artifact, []byte("payload"))
	srv.failures["GET /dist/"+plan.Artifact.RemotePath()] = 1
	dst := filepath.Join(t.TempDir(), "a.tar.gz")

	n, err := srv.source().Download(context.Background(), plan.Artifact.RemotePath(), dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, 2, srv.count("GET", plan.Artifact))
}

func TestHTTPSource_DownloadMissing(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")
	dst := filepath.Join(t.TempDir(), "a.tar.gz")

	_, err := srv.source().Download(context.Background(), plan.Artifact.RemotePath(), dst)
	require.Error(t, err)
	assert.Equal(t, failure.FetchFailed, failure.CodeOf(err))
	assert.Equal(t, 1, srv.count("GET", plan.Artifact))
	assert.NoFileExists(t, dst)
}

func TestHTTPSource_Cancelled(t *testing.T) {
	srv := newArtifactServer(t)
	plan := testPlan("3.11.9")
	srv.put(plan.Artifact, []byte("x"))
	srv.failures["GET /dist/"+plan.Artifact.RemotePath()] = 5
	src := NewHTTPSource(srv.URL+"/dist", WithRetries(5), WithRetryDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := src.Download(ctx, plan.Artifact.RemotePath(), filepath.Join(t.TempDir(), "a"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestHTTPSource_URL(t *testing.T) {
	src := NewHTTPSource("https://bin.example.com/production/")
	assert.Equal(t, "https://bin.example.com/production/3.11.9/a.tar.gz", src.URL("/3.11.9/a.tar.gz"))
}

// s3Stub answers object HEAD requests the way S3 does.
func s3Stub(t *testing.T, objects map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		size, ok := objects[r.URL.Path]
		if r.Method != http.MethodHead || !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", `"0123456789abcdef0123456789abcdef"`)
		w.Header().Set("Last-Modified", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newS3Test(t *testing.T, objects map[string]int) *S3Source {
	t.Helper()
	srv := s3Stub(t, objects)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	src, err := NewS3Source(S3Options{
		Endpoint:  u.Host,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "runtimes",
		Prefix:    "/production/",
		Retries:   2,
	})
	require.NoError(t, err)
	return src
}

func TestS3Source_Keys(t *testing.T) {
	src := newS3Test(t, nil)
	assert.Equal(t, "production/3.11.9/a.tar.gz", src.key("3.11.9/a.tar.gz"))
	assert.Equal(t, "s3://runtimes/production/3.11.9/a.tar.gz", src.URL("/3.11.9/a.tar.gz"))
}

func TestS3Source_Probe(t *testing.T) {
	plan := testPlan("3.11.9")
	src := newS3Test(t, map[string]int{
		"/runtimes/production/" + plan.Artifact.RemotePath(): 1234,
	})

	size, err := src.Probe(context.Background(), plan.Artifact.RemotePath())
	require.NoError(t, err)
	assert.Equal(t, int64(1234), size)

	_, err = src.Probe(context.Background(), "3.11.9/missing.tar.gz")
	require.Error(t, err)
	assert.Equal(t, failure.ArtifactNotFound, failure.CodeOf(err))
	assert.Contains(t, err.Error(), "s3://runtimes/production/3.11.9/missing.tar.gz")
}

func TestNewS3Source_Invalid(t *testing.T) {
	_, err := NewS3Source(S3Options{Bucket: "b"})
	assert.Equal(t, failure.Config, failure.CodeOf(err))
	_, err = NewS3Source(S3Options{Endpoint: "s3.example.com"})
	assert.Equal(t, failure.Config, failure.CodeOf(err))
}

func TestNewSource(t *testing.T) {
	cfg := config.NewDefaultConfig()
	src, err := NewSource(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPSource{}, src)

	cfg.BinaryDistURI = "s3://runtimes/production"
	src, err = NewSource(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://runtimes/production/x", src.URL("x"))

	cfg.BinaryDistURI = "ftp://example.com/dist"
	_, err = NewSource(cfg, nil)
	assert.Equal(t, failure.Config, failure.CodeOf(err))
}
