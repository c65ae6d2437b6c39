package platform

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/version"
)

// Generic Linux tags, used when no distribution specific runtime applies.
const (
	TagLinux     = "linux"
	TagLinuxMusl = "linux_musl"
	TagWindows   = "windows"
)

// Canonical is the resolved platform identity used to name artifacts.
type Canonical struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// Key is the "os-arch" string matched against version table patterns.
func (c Canonical) Key() string { return c.OS + "-" + c.Arch }

func (c Canonical) String() string { return c.Key() }

// Resolution is the outcome of one resolve pass.
type Resolution struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Platform    Canonical   `json:"platform"`
	Libc        *LibcInfo   `json:"libc,omitempty"`
	// Fallback explains why the generic Linux build was picked, if it was.
	Fallback string `json:"fallback,omitempty"`
}

// Generic reports whether the generic libc build was selected.
func (r Resolution) Generic() bool { return r.Fallback != "" }

// family is the per-kernel resolution strategy.
type family interface {
	resolve(ctx context.Context, r *Resolver, fp Fingerprint, arch string) (osResult, error)
}

type osResult struct {
	tag      string
	arch     string
	fallback string
}

// Resolver turns fingerprints into canonical platforms. The libc
// classification is computed at most once and reused for the rest of the run.
type Resolver struct {
	host   Host
	logger *slog.Logger
	libc   *LibcInfo
}

// NewResolver creates a resolver reading from h.
func NewResolver(h Host, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{host: h, logger: logger}
}

// Detect fingerprints the host and resolves it in one call.
func Detect(ctx context.Context, h Host, logger *slog.Logger) (Resolution, error) {
	fp, err := TakeFingerprint(ctx, h)
	if err != nil {
		return Resolution{}, err
	}
	return NewResolver(h, logger).Resolve(ctx, fp)
}

// Resolve applies the policy of the fingerprint's kernel family.
func (r *Resolver) Resolve(ctx context.Context, fp Fingerprint) (Resolution, error) {
	fam, err := familyFor(fp)
	if err != nil {
		return Resolution{}, err
	}

	arch, err := NormalizeArch(fp.RawArch)
	if err != nil {
		return Resolution{}, err
	}

	res, err := fam.resolve(ctx, r, fp, arch)
	if err != nil {
		return Resolution{}, err
	}
	if res.arch == "" {
		res.arch = arch
	}

	out := Resolution{
		Fingerprint: fp,
		Platform:    Canonical{OS: res.tag, Arch: res.arch},
		Fallback:    res.fallback,
	}
	if res.fallback != "" {
		out.Libc = r.libc
	}
	r.logger.Debug("platform resolved",
		"kernel", fp.KernelName, "os_version", fp.RawOSVersion, "arch", fp.RawArch,
		"platform", out.Platform.Key(), "fallback", out.Fallback)
	return out, nil
}

// Libc classifies the host C library, once.
func (r *Resolver) Libc(ctx context.Context, arch string) (LibcInfo, error) {
	if r.libc != nil {
		return *r.libc, nil
	}
	info, err := ClassifyLibc(ctx, r.host, arch)
	if err != nil {
		return LibcInfo{}, err
	}
	r.libc = &info
	return info, nil
}

func familyFor(fp Fingerprint) (family, error) {
	switch fp.Kind {
	case KindLinux:
		return linuxFamily{rules: distroRules}, nil
	case KindWindows:
		return windowsFamily{minimum: "6.0", legacyX86: legacyWindowsX86}, nil
	case KindDarwin:
		// One package covers every supported macOS release.
		return unixFamily{fancy: "macOS", short: "macos", minimum: "10.13", collapse: true}, nil
	case KindFreeBSD:
		return unixFamily{fancy: "FreeBSD", short: "fbsd", minimum: "12"}, nil
	case KindOpenBSD:
		return unixFamily{fancy: "OpenBSD", short: "obsd", minimum: "6.7"}, nil
	case KindSolaris:
		return unixFamily{fancy: "Solaris", short: "sol", minimum: "11.4"}, nil
	case KindAIX:
		// 64-bit Python builds on AIX have math rounding problems.
		return unixFamily{fancy: "AIX", short: "aix", minimum: "7.1", archOverride: map[string]string{"ppc64": ArchPPC}}, nil
	default:
		return nil, &failure.Error{Code: failure.UnsupportedOS, Msg: "no runtime is available for this kernel", Detected: fp.KernelName}
	}
}

// unixFamily covers the non-Linux Unix kernels: a single minimum version and
// no fallback.
type unixFamily struct {
	fancy        string
	short        string
	minimum      string
	collapse     bool
	archOverride map[string]string
}

func (f unixFamily) resolve(_ context.Context, _ *Resolver, fp Fingerprint, arch string) (osResult, error) {
	res, err := version.Compare(fp.RawOSVersion, f.minimum)
	if err != nil {
		return osResult{}, err
	}
	if res.Classification == version.Older {
		return osResult{}, failure.Below(failure.OSTooOld, f.fancy, fp.RawOSVersion, f.minimum)
	}
	out := osResult{tag: f.short + res.Truncated, arch: arch}
	if f.collapse {
		out.tag = f.short
	}
	if to, ok := f.archOverride[arch]; ok {
		out.arch = to
	}
	return out, nil
}

// legacyWindowsX86 lists the OS captions of servers that only get the 32-bit
// runtime.
var legacyWindowsX86 = []string{
	"Microsoft Windows Server 2008 Standard",
	"Microsoft Windows Server 2008 Enterprise",
	"Microsoft Windows Server 2008 Datacenter",
	"Microsoft® Windows Server® 2008 Standard",
	"Microsoft® Windows Server® 2008 Enterprise",
	"Microsoft® Windows Server® 2008 Datacenter",
}

type windowsFamily struct {
	minimum   string
	legacyX86 []string
}

func (f windowsFamily) resolve(_ context.Context, _ *Resolver, fp Fingerprint, arch string) (osResult, error) {
	res, err := version.Compare(fp.RawOSVersion, f.minimum)
	if err != nil {
		return osResult{}, err
	}
	if res.Classification == version.Older {
		return osResult{}, failure.Below(failure.OSTooOld, "Windows", fp.RawOSVersion, f.minimum)
	}
	out := osResult{tag: TagWindows, arch: arch}
	if slices.Contains(f.legacyX86, strings.TrimSpace(fp.Description)) {
		out.arch = ArchX86
	}
	return out, nil
}

// distroRule is a Linux distribution with its own runtime build.
type distroRule struct {
	ids     []string
	fancy   string
	minimum string
	prefix  string
	// eligible rejects releases that meet the minimum but still get the
	// generic build. It receives the truncated version.
	eligible func(truncated string) (bool, string)
}

var distroRules = []distroRule{
	{
		ids:     []string{"rhel", "centos", "almalinux", "rocky", "ol"},
		fancy:   "Red Hat Enterprise Linux",
		minimum: "8",
		prefix:  "rhel",
	},
	{
		ids:      []string{"ubuntu", "ubuntu-core"},
		fancy:    "Ubuntu",
		minimum:  "18.04",
		prefix:   "ubuntu",
		eligible: ubuntuLTS,
	},
}

// ubuntuLTS accepts only LTS releases: an even year and an April release.
func ubuntuLTS(truncated string) (bool, string) {
	if len(truncated) < 4 || !strings.HasSuffix(truncated, "04") {
		return false, "not an LTS release"
	}
	var year int
	if _, err := fmt.Sscanf(truncated[:2], "%d", &year); err != nil || year%2 != 0 {
		return false, "not an LTS release"
	}
	return true, ""
}

type linuxFamily struct {
	rules []distroRule
}

func (f linuxFamily) rule(id string) *distroRule {
	for i := range f.rules {
		if slices.Contains(f.rules[i].ids, id) {
			return &f.rules[i]
		}
	}
	return nil
}

func (f linuxFamily) resolve(ctx context.Context, r *Resolver, fp Fingerprint, arch string) (osResult, error) {
	if !fp.HasRelease() {
		return f.generic(ctx, r, arch, "no "+OSReleasePath)
	}
	rule := f.rule(fp.DistroID)
	if rule == nil {
		return f.generic(ctx, r, arch, fmt.Sprintf("no dedicated runtime for distribution %q", fp.DistroID))
	}
	// Rolling releases have no VERSION_ID.
	if fp.RawOSVersion == "" {
		return f.generic(ctx, r, arch, fmt.Sprintf("%s reports no version", fp.DistroID))
	}

	res, err := version.Compare(fp.RawOSVersion, rule.minimum)
	if err != nil {
		return osResult{}, err
	}
	name := rule.fancy
	if fp.DistroName != "" {
		name = fp.DistroName
	}
	if res.Classification == version.Older {
		r.logger.Info("distribution older than its dedicated runtime, trying the generic Linux runtime",
			"distribution", name, "version", fp.RawOSVersion, "minimum", rule.minimum)
		return f.generic(ctx, r, arch, fmt.Sprintf("%s %s is older than %s", name, fp.RawOSVersion, rule.minimum))
	}
	if rule.eligible != nil {
		if ok, why := rule.eligible(res.Truncated); !ok {
			return f.generic(ctx, r, arch, fmt.Sprintf("%s %s: %s", name, fp.RawOSVersion, why))
		}
	}
	return osResult{tag: rule.prefix + res.Truncated, arch: arch}, nil
}

func (f linuxFamily) generic(ctx context.Context, r *Resolver, arch, why string) (osResult, error) {
	r.logger.Debug("using generic Linux runtime", "reason", why)
	info, err := r.Libc(ctx, arch)
	if err != nil {
		return osResult{}, err
	}
	tag := TagLinux
	if info.Family == Musl {
		tag = TagLinuxMusl
	}
	return osResult{tag: tag, arch: arch, fallback: why}, nil
}
