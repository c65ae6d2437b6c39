package platform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/chevah/pythia/internal/failure"
)

// Kind is a supported kernel family.
type Kind int

const (
	KindUnknown Kind = iota
	KindLinux
	KindDarwin
	KindFreeBSD
	KindOpenBSD
	KindSolaris
	KindAIX
	KindWindows
)

var kindNames = map[Kind]string{
	KindLinux:   "linux",
	KindDarwin:  "darwin",
	KindFreeBSD: "freebsd",
	KindOpenBSD: "openbsd",
	KindSolaris: "solaris",
	KindAIX:     "aix",
	KindWindows: "windows",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// windowsPrefixes are the kernel names reported by uname under the POSIX
// layers available on Windows, plus the native name.
var windowsPrefixes = []string{"MINGW", "MSYS", "CYGWIN", "WINDOWS_NT"}

// KindOf maps a kernel name as reported by `uname -s` to its family.
func KindOf(kernel string) Kind {
	switch kernel {
	case "Linux":
		return KindLinux
	case "Darwin":
		return KindDarwin
	case "FreeBSD":
		return KindFreeBSD
	case "OpenBSD":
		return KindOpenBSD
	case "SunOS":
		return KindSolaris
	case "AIX":
		return KindAIX
	}
	upper := strings.ToUpper(kernel)
	for _, p := range windowsPrefixes {
		if strings.HasPrefix(upper, p) {
			return KindWindows
		}
	}
	return KindUnknown
}

// OSReleasePath is the release descriptor read on Linux.
const OSReleasePath = "/etc/os-release"

// Fingerprint is the raw identity of the host, gathered once per run.
type Fingerprint struct {
	KernelName   string `json:"kernel_name"`
	Kind         Kind   `json:"-"`
	Family       string `json:"family"`
	RawOSVersion string `json:"os_version"`
	RawArch      string `json:"arch"`
	DistroID     string `json:"distro_id,omitempty"`
	DistroName   string `json:"distro_name,omitempty"`
	Description  string `json:"description,omitempty"`
}

// HasRelease reports whether a release descriptor was found.
func (f Fingerprint) HasRelease() bool { return f.DistroID != "" }

// TakeFingerprint queries h for the kernel family, the raw OS version and the
// raw architecture. An unknown kernel is fatal.
func TakeFingerprint(ctx context.Context, h Host) (Fingerprint, error) {
	u, err := h.Uname()
	if err != nil {
		return Fingerprint{}, err
	}

	kind := KindOf(u.Sysname)
	if kind == KindUnknown {
		return Fingerprint{}, &failure.Error{
			Code:     failure.UnsupportedOS,
			Msg:      "no runtime is available for this kernel",
			Detected: u.Sysname,
		}
	}

	fp := Fingerprint{
		KernelName: u.Sysname,
		Kind:       kind,
		Family:     kind.String(),
		RawArch:    u.Machine,
	}

	switch kind {
	case KindLinux:
		rel, err := readOSRelease(h)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.DistroID = rel["ID"]
		fp.DistroName = rel["NAME"]
		fp.RawOSVersion = rel["VERSION_ID"]
	case KindDarwin:
		out, err := h.Output(ctx, "sw_vers", "-productVersion")
		if err != nil {
			return Fingerprint{}, fmt.Errorf("sw_vers: %w", err)
		}
		fp.RawOSVersion = out
	case KindFreeBSD:
		// "13.2-RELEASE-p4": only the major release is meaningful.
		fp.RawOSVersion, _, _ = strings.Cut(u.Release, ".")
	case KindOpenBSD:
		fp.RawOSVersion = u.Release
	case KindSolaris:
		fp.RawOSVersion = u.Version
		if out, err := h.Output(ctx, "isainfo", "-n"); err == nil && out != "" {
			fp.RawArch = out
		}
	case KindAIX:
		out, err := h.Output(ctx, "oslevel")
		if err != nil {
			return Fingerprint{}, fmt.Errorf("oslevel: %w", err)
		}
		fp.RawOSVersion = out
		fp.RawArch = "ppc"
		if bits, err := h.Output(ctx, "getconf", "KERNEL_BITMODE"); err == nil && bits == "64" {
			fp.RawArch = "ppc64"
		}
	case KindWindows:
		info, err := h.Describe(ctx)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.Description = info.Caption
		fp.RawOSVersion = normalizeWindowsVersion(info.Version)
		if a := h.Getenv("PROCESSOR_ARCHITEW6432"); a != "" {
			fp.RawArch = a
		} else if a := h.Getenv("PROCESSOR_ARCHITECTURE"); a != "" {
			fp.RawArch = a
		}
	}

	if fp.Description == "" {
		if info, err := h.Describe(ctx); err == nil {
			fp.Description = strings.TrimSpace(info.Caption + " " + info.Version)
		}
	}
	return fp, nil
}

// normalizeWindowsVersion keeps the numeric part of a version such as
// "10.0.19045.2965 Build 19045.2965", limited to major.minor.build.
func normalizeWindowsVersion(v string) string {
	v, _, _ = strings.Cut(strings.TrimSpace(v), " ")
	parts := strings.Split(v, ".")
	return strings.Join(parts[:min(len(parts), 3)], ".")
}

// readOSRelease parses the release descriptor. A missing file yields an
// empty map.
func readOSRelease(h Host) (map[string]string, error) {
	data, err := h.ReadFile(OSReleasePath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", OSReleasePath, err)
	}
	return ParseOSRelease(data), nil
}

// ParseOSRelease parses KEY=VALUE lines, removing shell quoting.
func ParseOSRelease(data []byte) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		out[strings.TrimSpace(key)] = val
	}
	return out
}
