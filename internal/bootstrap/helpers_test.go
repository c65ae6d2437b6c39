package bootstrap

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/chevah/pythia/internal/platform"
	"github.com/chevah/pythia/internal/selector"
)

type tarEntry struct {
	name string
	body string
	link string
	mode int64
	dir  bool
}

func makeTarGz(t *testing.T, entries []tarEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, ModTime: time.Unix(1700000000, 0)}
		switch {
		case e.dir:
			hdr.Typeflag = tar.TypeDir
			if hdr.Mode == 0 {
				hdr.Mode = 0o755
			}
		case e.link != "":
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = e.link
		default:
			hdr.Typeflag = tar.TypeReg
			hdr.Size = int64(len(e.body))
			if hdr.Mode == 0 {
				hdr.Mode = 0o644
			}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// runtimeArchive builds a runtime package whose marker records markerVersion.
func runtimeArchive(t *testing.T, a Artifact, markerVersion string) []byte {
	t.Helper()
	root := a.Name()
	return makeTarGz(t, []tarEntry{
		{name: root + "/", dir: true},
		{name: root + "/bin/", dir: true},
		{name: root + "/bin/python3.11", body: "#!/bin/sh\n", mode: 0o755},
		{name: root + "/bin/python", link: "python3.11"},
		{name: root + "/lib/", dir: true},
		{name: root + "/lib/PYTHIA_VERSION", body: markerVersion + "-chevah1\n"},
	})
}

func testPlan(version string) Plan {
	res := platform.Resolution{Platform: platform.Canonical{OS: "linux", Arch: "x64"}}
	return NewPlan("python", res, selector.Selection{Platform: "linux-x64", Version: version})
}

// artifactServer serves archives by remote path and counts requests.
type artifactServer struct {
	*httptest.Server
	mu       sync.Mutex
	files    map[string][]byte
	requests map[string]int
	failures map[string]int
}

func newArtifactServer(t *testing.T) *artifactServer {
	t.Helper()
	s := &artifactServer{
		files:    map[string][]byte{},
		requests: map[string]int{},
		failures: map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		key := r.Method + " " + r.URL.Path
		s.requests[key]++
		fail := s.failures[key] > 0
		if fail {
			s.failures[key]--
		}
		data, ok := s.files[r.URL.Path]
		s.mu.Unlock()

		switch {
		case fail:
			http.Error(w, "try later", http.StatusServiceUnavailable)
		case !ok:
			http.NotFound(w, r)
		default:
			w.Header().Set("Content-Type", "application/gzip")
			http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) put(a Artifact, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/dist/"+a.RemotePath()] = data
}

func (s *artifactServer) count(method string, a Artifact) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" /dist/"+a.RemotePath()]
}

func (s *artifactServer) source() *HTTPSource {
	return NewHTTPSource(s.URL+"/dist/", WithRetries(3), WithRetryDelay(0))
}

// fakeRunner records commands instead of running them.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *fakeRunner) Run(_ context.Context, _ []string, name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.err
}

func (f *fakeRunner) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = strings.Join(c, " ")
	}
	return out
}

// deadSource fails every request; it proves a run never went to the network.
type deadSource struct{}

func (deadSource) URL(rel string) string { return "dead://" + rel }
func (deadSource) Probe(context.Context, string) (int64, error) {
	return 0, errors.New("network used")
}
func (deadSource) Download(context.Context, string, string) (int64, error) {
	return 0, errors.New("network used")
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			t.Fatal(err)
		}
	}
}
