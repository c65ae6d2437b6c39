// Package platform fingerprints the running host and resolves it to the
// canonical platform tag used to name runtime artifacts.
//
// The flow is strictly sequential: Fingerprint queries the host once, Resolve
// applies the per-family policy and, for Linux hosts without a dedicated
// runtime, falls back to the generic glibc or musl build after classifying the
// C library.
package platform

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shirou/gopsutil/v4/host"
)

// Uname mirrors the fields of uname(2).
type Uname struct {
	Sysname string
	Release string
	Version string
	Machine string
}

// OSInfo is the vendor description of the operating system, e.g.
// "Microsoft Windows Server 2008 Standard" with version "6.0.6003".
type OSInfo struct {
	Caption string
	Version string
}

// Host is the set of live queries the fingerprinter needs. Tests substitute a
// fake; production code uses NewLiveHost.
type Host interface {
	Uname() (Uname, error)
	ReadFile(name string) ([]byte, error)
	// Output runs a command and returns its trimmed combined output. The
	// output is returned even when the command exits non-zero.
	Output(ctx context.Context, name string, args ...string) (string, error)
	LookPath(file string) (string, error)
	Getenv(key string) string
	Describe(ctx context.Context) (OSInfo, error)
}

type probe struct {
	out string
	err error
}

// liveHost answers queries from the running system. Command output is
// memoized so each probe runs at most once per process.
type liveHost struct {
	memo *lru.Cache[string, probe]
}

// NewLiveHost returns a Host backed by the running system.
func NewLiveHost() Host {
	memo, err := lru.New[string, probe](64)
	if err != nil {
		panic(fmt.Sprintf("platform: lru cache: %v", err))
	}
	return &liveHost{memo: memo}
}

func (h *liveHost) Uname() (Uname, error) { return uname() }

func (h *liveHost) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (h *liveHost) LookPath(file string) (string, error) { return exec.LookPath(file) }

func (h *liveHost) Getenv(key string) string { return os.Getenv(key) }

func (h *liveHost) Output(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), "\x00")
	if p, ok := h.memo.Get(key); ok {
		return p.out, p.err
	}
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	p := probe{out: strings.TrimSpace(string(out)), err: err}
	h.memo.Add(key, p)
	return p.out, p.err
}

func (h *liveHost) Describe(ctx context.Context) (OSInfo, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return OSInfo{}, fmt.Errorf("host info: %w", err)
	}
	return OSInfo{Caption: info.Platform, Version: info.PlatformVersion}, nil
}
