// Package bootstrap installs the runtime selected for the host into the build
// directory: fetch into the cache if absent, unpack, copy, check the installed
// version and install the base dependencies once.
package bootstrap

import (
	"fmt"

	"github.com/chevah/pythia/internal/platform"
	"github.com/chevah/pythia/internal/selector"
)

// ArchiveExt is the extension of published artifacts.
const ArchiveExt = ".tar.gz"

// Artifact is a packaged runtime build for one platform.
type Artifact struct {
	Runtime  string             `json:"runtime"`
	Version  string             `json:"version"`
	Platform platform.Canonical `json:"platform"`
}

// Name is "{runtime}-{version}-{os}-{arch}". It is also the top level
// directory inside the archive and the cache entry name.
func (a Artifact) Name() string {
	return fmt.Sprintf("%s-%s-%s-%s", a.Runtime, a.Version, a.Platform.OS, a.Platform.Arch)
}

// RemotePath is the artifact location relative to the distribution base.
func (a Artifact) RemotePath() string {
	return a.Version + "/" + a.Name() + ArchiveExt
}

func (a Artifact) String() string { return a.Name() }

// Plan is everything a bootstrap run decided before touching the disk.
type Plan struct {
	Resolution platform.Resolution `json:"resolution"`
	Selection  selector.Selection  `json:"selection"`
	Artifact   Artifact            `json:"artifact"`
}

// NewPlan selects the runtime version for a resolved platform.
func NewPlan(runtime string, res platform.Resolution, sel selector.Selection) Plan {
	return Plan{
		Resolution: res,
		Selection:  sel,
		Artifact: Artifact{
			Runtime:  runtime,
			Version:  sel.Version,
			Platform: res.Platform,
		},
	}
}

// Windows reports whether the plan targets a Windows host.
func (p Plan) Windows() bool { return p.Artifact.Platform.OS == platform.TagWindows }
