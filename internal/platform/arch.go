package platform

import (
	"strings"

	"github.com/chevah/pythia/internal/failure"
)

// Canonical architecture tags.
const (
	ArchX86     = "x86"
	ArchX64     = "x64"
	ArchARM64   = "arm64"
	ArchSPARC64 = "sparc64"
	ArchPPC     = "ppc"
)

var archAliases = map[string]string{
	"i386":    ArchX86,
	"i486":    ArchX86,
	"i586":    ArchX86,
	"i686":    ArchX86,
	"x86":     ArchX86,
	"amd64":   ArchX64,
	"x86_64":  ArchX64,
	"x64":     ArchX64,
	"aarch64": ArchARM64,
	"arm64":   ArchARM64,
	"sparcv9": ArchSPARC64,
	"sparc64": ArchSPARC64,
}

// NormalizeArch maps the machine names reported by the various kernels to a
// single tag per architecture. Names without an alias are lower-cased and
// passed through. Normalizing a canonical tag returns it unchanged.
func NormalizeArch(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", failure.New(failure.UnsupportedArch, "the host did not report a machine architecture")
	}
	if arch, ok := archAliases[key]; ok {
		return arch, nil
	}
	return key, nil
}
