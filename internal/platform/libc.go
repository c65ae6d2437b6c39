package platform

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/version"
)

// LibcFamily is the flavour of the host C library.
type LibcFamily string

const (
	Glibc LibcFamily = "glibc"
	Musl  LibcFamily = "musl"
)

// LibcInfo is the classified C library of a Linux host.
type LibcInfo struct {
	Family  LibcFamily      `json:"family"`
	Version version.Version `json:"-"`
	Raw     string          `json:"version"`
}

// Oldest libc releases the generic builds were validated against. glibc
// minimums depend on the architecture the generic build was made for.
var (
	GlibcMinimum = map[string]string{
		ArchX64:   "2.26",
		ArchARM64: "2.27",
	}
	MuslMinimum = "1.1.24"
)

var (
	glibcMarkerRe = regexp.MustCompile(`GNU libc|GLIBC`)
	muslMarkerRe  = regexp.MustCompile(`musl libc`)
	leadingNumRe  = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*`)
)

// ClassifyLibc asks the dynamic loader for its version and checks it against
// the minimum for arch, which must already be normalized.
func ClassifyLibc(ctx context.Context, h Host, arch string) (LibcInfo, error) {
	if _, err := h.LookPath("ldd"); err != nil {
		return LibcInfo{}, failure.Wrap(failure.LibcToolMissing, err, "no ldd binary found, cannot check the C library")
	}

	// musl's ldd prints its banner and exits non-zero; the text is what counts.
	out, err := h.Output(ctx, "ldd", "--version")
	if out == "" && err != nil {
		return LibcInfo{}, failure.Wrap(failure.UnsupportedLibc, err, "ldd --version produced no output")
	}

	switch {
	case glibcMarkerRe.MatchString(out):
		return classifyGlibc(out, arch)
	case muslMarkerRe.MatchString(out):
		return classifyMusl(out)
	default:
		return LibcInfo{}, &failure.Error{
			Code:     failure.UnsupportedLibc,
			Msg:      "unknown libc reported by ldd",
			Detected: firstLine(out),
			Required: "glibc or musl",
		}
	}
}

// classifyGlibc reads the version from the last word of the banner's first
// line: "ldd (Ubuntu GLIBC 2.35-0ubuntu3.1) 2.35".
func classifyGlibc(out, arch string) (LibcInfo, error) {
	minimum, ok := GlibcMinimum[arch]
	if !ok {
		return LibcInfo{}, &failure.Error{
			Code:     failure.UnsupportedArch,
			Msg:      "no generic Linux runtime for this architecture",
			Detected: arch,
		}
	}

	fields := strings.Fields(firstLine(out))
	raw := ""
	if len(fields) > 0 {
		raw = fields[len(fields)-1]
	}
	v, err := version.Parse(raw)
	if err != nil {
		return LibcInfo{}, err
	}
	if v.Part(0) != 2 {
		return LibcInfo{}, &failure.Error{
			Code:     failure.UnsupportedLibc,
			Msg:      "only glibc 2 is supported",
			Detected: raw,
		}
	}

	res := version.CompareVersions(v, version.MustParse(minimum))
	if res.Classification == version.Older {
		return LibcInfo{}, failure.Below(failure.LibcTooOld, "glibc", raw, minimum)
	}
	return LibcInfo{Family: Glibc, Version: v, Raw: raw}, nil
}

// classifyMusl reads the "Version X.Y.Z" line. Distribution builds may append
// a suffix ("1.2.4_git20230717"), which is dropped.
func classifyMusl(out string) (LibcInfo, error) {
	raw := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "Version "); ok {
			raw = strings.TrimSpace(rest)
			break
		}
	}

	clean := NormalizeMuslVersion(raw)
	v, err := version.Parse(clean)
	if err != nil {
		return LibcInfo{}, err
	}

	res := version.CompareVersions(v, version.MustParse(MuslMinimum))
	if res.Classification == version.Older {
		return LibcInfo{}, failure.Below(failure.LibcTooOld, "musl", clean, MuslMinimum)
	}
	return LibcInfo{Family: Musl, Version: v, Raw: clean}, nil
}

// NormalizeMuslVersion strips anything after the leading dotted number. An
// input without one is returned unchanged so that parsing reports it.
func NormalizeMuslVersion(raw string) string {
	if m := leadingNumRe.FindString(raw); m != "" {
		return m
	}
	return raw
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func (l LibcInfo) String() string {
	return fmt.Sprintf("%s %s", l.Family, l.Raw)
}
