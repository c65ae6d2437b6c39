package main

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/chevah/pythia/internal/bootstrap"
	"github.com/chevah/pythia/internal/config"
	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/ledger"
	"github.com/chevah/pythia/internal/platform"
)

type fakeHost struct {
	sysname   string
	osRelease string
}

func (h fakeHost) Uname() (platform.Uname, error) {
	return platform.Uname{Sysname: h.sysname, Machine: "x86_64"}, nil
}

func (h fakeHost) ReadFile(name string) ([]byte, error) {
	if name == platform.OSReleasePath && h.osRelease != "" {
		return []byte(h.osRelease), nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

func (h fakeHost) Output(_ context.Context, name string, _ ...string) (string, error) {
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

func (h fakeHost) LookPath(file string) (string, error) { return "", exec.ErrNotFound }
func (h fakeHost) Getenv(string) string                { return "" }
func (h fakeHost) Describe(context.Context) (platform.OSInfo, error) {
	return platform.OSInfo{}, nil
}

var rhel8 = fakeHost{sysname: "Linux", osRelease: "ID=rhel\nNAME=\"Red Hat Enterprise Linux\"\nVERSION_ID=\"8.9\"\n"}

// writeConfig writes a config rooted in a temp dir and returns its path.
func writeConfig(t *testing.T, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`python_configuration: "default@3.11.9.abc:rhel8@3.11.8.def"
build_dir: %q
cache_dir: %q
ledger: %q
%s`, filepath.Join(dir, "build"), filepath.Join(dir, "cache"), filepath.Join(dir, "ledger.db"), extra)
	path := filepath.Join(dir, "pythia.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, dir
}

func invoke(t *testing.T, host platform.Host, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, host)
	return code, stdout.String(), stderr.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := invoke(t, rhel8, "version")
	if code != 0 || !strings.Contains(out, "pythia dev") {
		t.Errorf("code=%d out=%q", code, out)
	}
}

func TestRun_BadFlag(t *testing.T) {
	code, _, errOut := invoke(t, rhel8, "--nope")
	if code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "Usage") {
		t.Errorf("usage not printed: %q", errOut)
	}
}

func TestRun_BadConfig(t *testing.T) {
	path, _ := writeConfig(t, "colour: blue\n")
	code, _, errOut := invoke(t, rhel8, "--config", path, "detect")
	if code != 7 {
		t.Errorf("code = %d, want 7 (stderr %q)", code, errOut)
	}
}

func TestRun_DetectJSON(t *testing.T) {
	path, dir := writeConfig(t, "")
	code, out, errOut := invoke(t, rhel8, "--config", path, "detect", "--json")
	if code != 0 {
		t.Fatalf("code = %d, stderr %q", code, errOut)
	}

	var got struct {
		Report struct {
			Platform string `json:"platform"`
			Version  string `json:"version"`
		} `json:"report"`
		Plan struct {
			Artifact bootstrap.Artifact `json:"artifact"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.Report.Platform != "rhel8-x64" || got.Report.Version != "3.11.8.def" {
		t.Errorf("report = %+v", got.Report)
	}
	if got.Plan.Artifact.Name() != "python-3.11.8.def-rhel8-x64" {
		t.Errorf("artifact = %s", got.Plan.Artifact.Name())
	}

	data, err := os.ReadFile(filepath.Join(dir, "build", bootstrap.DefaultValuesFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "python rhel8 x64\n" {
		t.Errorf("DEFAULT_VALUES = %q", data)
	}
}

func TestRun_DetectRecordsRun(t *testing.T) {
	path, dir := writeConfig(t, "")
	if code, _, errOut := invoke(t, rhel8, "--config", path, "detect"); code != 0 {
		t.Fatalf("code = %d, stderr %q", code, errOut)
	}

	store, err := ledger.NewSQLiteStore(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.Command != "detect" || r.Outcome != ledger.OutcomeOK || r.Platform != "rhel8-x64" || r.Version != "3.11.8.def" {
		t.Errorf("run = %+v", r)
	}
	events, err := store.Events(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Kind != ledger.EventDetect {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Artifact != "python-3.11.8.def-rhel8-x64" || !strings.HasSuffix(events[0].Detail, "pass") {
		t.Errorf("event = %+v", events[0])
	}
}

func TestRun_DetectUnsupportedOS(t *testing.T) {
	path, _ := writeConfig(t, "")
	code, out, errOut := invoke(t, fakeHost{sysname: "Plan9"}, "--config", path, "detect")
	if code != 14 {
		t.Errorf("code = %d, want 14", code)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("report should show the failure: %q", out)
	}
	if !strings.Contains(errOut, "Plan9") {
		t.Errorf("stderr should name the detected OS: %q", errOut)
	}
}

func TestRun_CleanAndHistory(t *testing.T) {
	path, dir := writeConfig(t, "")
	if err := os.MkdirAll(filepath.Join(dir, "build", "bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	code, out, _ := invoke(t, rhel8, "--config", path, "history")
	if code != 0 || !strings.Contains(out, "No runs recorded") {
		t.Fatalf("code=%d out=%q", code, out)
	}

	if code, _, errOut := invoke(t, rhel8, "--config", path, "clean"); code != 0 {
		t.Fatalf("clean: code=%d stderr=%q", code, errOut)
	}
	if _, err := os.Stat(filepath.Join(dir, "build")); !os.IsNotExist(err) {
		t.Errorf("build directory still there: %v", err)
	}

	code, out, _ = invoke(t, rhel8, "--config", path, "history", "--limit", "5")
	if code != 0 || !strings.Contains(out, "clean") || !strings.Contains(out, "ok") {
		t.Errorf("code=%d out=%q", code, out)
	}
}

// runnerFunc adapts a function to bootstrap.Runner.
type runnerFunc func(ctx context.Context, env []string, name string, args ...string) error

func (f runnerFunc) Run(ctx context.Context, env []string, name string, args ...string) error {
	return f(ctx, env, name, args...)
}

func runtimeTarGz(t *testing.T, root, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for name, body := range map[string]string{
		root + "/bin/python":         "#!/bin/sh\n",
		root + "/lib/PYTHIA_VERSION": version + "-chevah1\n",
	} {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
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

func TestApp_RunDelegatesAndPassesExitCode(t *testing.T) {
	path, dir := writeConfig(t, "base_requirements: []\n")
	cfg := config.NewDefaultConfig()
	if err := cfg.ReadFile(path); err != nil {
		t.Fatal(err)
	}

	archive := runtimeTarGz(t, "python-3.11.8.def-rhel8-x64", "3.11.8.def")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/3.11.8.def/python-3.11.8.def-rhel8-x64.tar.gz" {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(archive))
	}))
	t.Cleanup(srv.Close)

	var calls []string
	var stdout, stderr bytes.Buffer
	a := newApp(cfg, slog.New(slog.NewTextHandler(&stderr, nil)), rhel8, &stdout, &stderr)
	a.source = bootstrap.NewHTTPSource(srv.URL, bootstrap.WithRetries(1))
	a.runner = runnerFunc(func(_ context.Context, _ []string, name string, args ...string) error {
		calls = append(calls, name+" "+strings.Join(args, " "))
		return exec.Command("sh", "-c", "exit 3").Run()
	})

	err := a.cmdRun(context.Background(), []string{"test_ci"})
	if code := fatal(&stderr, err); code != 3 {
		t.Errorf("exit code = %d, want the task runner's 3 (err %v)", code, err)
	}

	python := filepath.Join(dir, "build", "bin", "python")
	if len(calls) != 1 || calls[0] != python+" -m paver test_ci" {
		t.Errorf("calls = %q", calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "build", bootstrap.DefaultValuesFile)); err != nil {
		t.Errorf("DEFAULT_VALUES not written: %v", err)
	}
}

func TestNewApp_RunnerInheritsStdin(t *testing.T) {
	a := newApp(config.NewDefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), rhel8, io.Discard, io.Discard)
	r, ok := a.runner.(bootstrap.ExecRunner)
	if !ok {
		t.Fatalf("runner = %T, want bootstrap.ExecRunner", a.runner)
	}
	if r.Stdin != os.Stdin {
		t.Error("task runner should read from the terminal")
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		hint bool
	}{
		{"untyped", fmt.Errorf("boom"), 1, false},
		{"not found", failure.New(failure.ArtifactNotFound, "no artifact"), 4, true},
		{"wrapped not found", fmt.Errorf("fetch: %w", failure.New(failure.ArtifactNotFound, "no artifact")), 4, true},
		{"task runner", &exitStatus{code: 2}, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			if code := fatal(&stderr, tt.err); code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if got := strings.Contains(stderr.String(), "binary_dist_uri"); got != tt.hint {
				t.Errorf("hint printed = %v, want %v (%q)", got, tt.hint, stderr.String())
			}
		})
	}
}
