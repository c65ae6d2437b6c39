package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/ledger"
)

// DefaultReinstallCeiling bounds how many times a mismatched install is
// removed and installed again in one run.
const DefaultReinstallCeiling = 2

// Options configures an Orchestrator.
type Options struct {
	Layout           Layout
	Source           Source
	Runner           Runner
	Ledger           ledger.Store
	RunID            string
	Logger           *slog.Logger
	PipIndexURL      string
	BaseRequirements []string
	ReinstallCeiling int
}

// Orchestrator drives the install state machine for one run.
type Orchestrator struct {
	layout       Layout
	source       Source
	runner       Runner
	store        ledger.Store
	runID        string
	logger       *slog.Logger
	pipIndex     string
	requirements []string
	ceiling      int
}

// New creates an Orchestrator. A nil Ledger records nothing and a nil Runner
// runs programs with os/exec.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		layout:       opts.Layout,
		source:       opts.Source,
		runner:       opts.Runner,
		store:        opts.Ledger,
		runID:        opts.RunID,
		logger:       opts.Logger,
		pipIndex:     opts.PipIndexURL,
		requirements: opts.BaseRequirements,
		ceiling:      opts.ReinstallCeiling,
	}
	if o.store == nil {
		o.store = ledger.Discard{}
	}
	if o.runner == nil {
		o.runner = ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.ceiling <= 0 {
		o.ceiling = DefaultReinstallCeiling
	}
	return o
}

// Result describes what Ensure did.
type Result struct {
	State      State   `json:"state"`
	Installed  bool    `json:"installed"`
	Reinstalls int     `json:"reinstalls"`
	History    []State `json:"-"`
	Python     string  `json:"python"`
}

// layoutFor returns the layout adjusted to the plan's target OS.
func (o *Orchestrator) layoutFor(plan Plan) Layout {
	l := o.layout
	l.Windows = plan.Windows()
	return l
}

// Inspect reports the state of the build directory for plan and the version
// recorded there.
func (o *Orchestrator) Inspect(plan Plan) (State, string) {
	l := o.layoutFor(plan)
	if !fileExists(l.BuildPython()) {
		return StateNotInstalled, ""
	}
	installed, err := ReadMarker(l.BuildDir)
	if err != nil {
		o.logger.Warn("cannot read installed runtime version", "error", err)
		return StateVersionMismatch, ""
	}
	if installed != plan.Artifact.Version {
		return StateVersionMismatch, installed
	}
	return StateInstalled, installed
}

// Ensure makes the build directory hold the planned runtime. An install that
// already matches is left alone apart from the base dependency check.
func (o *Orchestrator) Ensure(ctx context.Context, plan Plan) (Result, error) {
	l := o.layoutFor(plan)
	initial, installed := o.Inspect(plan)
	m := newMachine(initial, o.ceiling)
	res := Result{Python: l.BuildPython()}

	fail := func(err error) (Result, error) {
		_ = m.to(StateFailed)
		res.State, res.Reinstalls, res.History = m.state, m.reinstalls, m.history
		return res, err
	}

	for !m.state.IsTerminal() {
		switch m.state {
		case StateVersionMismatch:
			if m.exhausted() {
				return fail(&failure.Error{
					Code:     failure.RecursionLimit,
					Msg:      fmt.Sprintf("installed runtime still differs after %d reinstalls", m.reinstalls),
					Detected: installed,
					Required: plan.Artifact.Version,
				})
			}
			o.logger.Warn("installed runtime version differs, reinstalling",
				"installed", installed, "wanted", plan.Artifact.Version, "build_dir", l.BuildDir)
			if err := os.RemoveAll(l.BuildDir); err != nil {
				return fail(fmt.Errorf("remove old install: %w", err))
			}
			o.record(ctx, ledger.EventRemove, plan.Artifact, l.BuildDir, 0, "", "installed "+installed)
			if err := m.to(StateNotInstalled); err != nil {
				return fail(err)
			}

		case StateNotInstalled:
			if err := m.to(StateInstalling); err != nil {
				return fail(err)
			}
			if err := o.install(ctx, l, plan.Artifact); err != nil {
				return fail(err)
			}
			res.Installed = true

			var next State
			next, installed = o.Inspect(plan)
			if next == StateNotInstalled {
				return fail(&failure.Error{
					Code:     failure.UnpackFailed,
					Msg:      "artifact does not contain an interpreter",
					Detected: l.CacheTree(plan.Artifact),
					Required: l.BuildPython(),
				})
			}
			if err := m.to(next); err != nil {
				return fail(err)
			}

		default:
			return fail(fmt.Errorf("unexpected install state %s", m.state))
		}
	}

	if err := o.baseDeps(ctx, l, plan.Artifact); err != nil {
		return fail(err)
	}
	res.State, res.Reinstalls, res.History = m.state, m.reinstalls, m.history
	o.logger.Info("runtime ready", "version", plan.Artifact.Version, "python", res.Python, "installed_now", res.Installed)
	return res, nil
}

// install fills the build directory from the cache, fetching first when the
// cache has no matching entry.
func (o *Orchestrator) install(ctx context.Context, l Layout, a Artifact) error {
	tree := l.CacheTree(a)
	if fileExists(tree) {
		cached, err := ReadMarker(tree)
		if err != nil || cached != a.Version {
			o.logger.Warn("cached runtime version differs, fetching again", "cached", cached, "wanted", a.Version)
			if err := os.RemoveAll(tree); err != nil {
				return fmt.Errorf("remove stale cache entry: %w", err)
			}
			o.record(ctx, ledger.EventRemove, a, tree, 0, "", "cached "+cached)
		}
	}
	if !fileExists(tree) {
		if err := o.fetch(ctx, l, a); err != nil {
			return err
		}
	} else {
		o.logger.Debug("using cached runtime", "path", tree)
	}

	if err := os.MkdirAll(l.BuildDir, 0o755); err != nil {
		return fmt.Errorf("create build directory: %w", err)
	}
	if err := copyTree(tree, l.BuildDir); err != nil {
		return fmt.Errorf("copy %s to %s: %w", tree, l.BuildDir, err)
	}
	o.record(ctx, ledger.EventInstall, a, l.BuildDir, 0, "", "")
	return nil
}

// fetch probes, downloads and unpacks a into the cache. A bad archive is
// removed together with whatever was unpacked from it.
func (o *Orchestrator) fetch(ctx context.Context, l Layout, a Artifact) error {
	if o.source == nil {
		return failure.New(failure.Config, "no artifact source configured")
	}
	if err := os.MkdirAll(l.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	rel := a.RemotePath()
	url := o.source.URL(rel)
	size, err := o.source.Probe(ctx, rel)
	if err != nil {
		return err
	}
	o.record(ctx, ledger.EventProbe, a, url, size, "", "")
	if size > 0 {
		o.logger.Info("downloading runtime", "url", url, "size", humanize.Bytes(uint64(size)))
	} else {
		o.logger.Info("downloading runtime", "url", url)
	}

	archive := l.CacheArchive(a)
	start := time.Now()
	n, err := o.source.Download(ctx, rel, archive)
	if err != nil {
		return err
	}
	sum, err := HashFile(archive)
	if err != nil {
		return fmt.Errorf("hash %s: %w", archive, err)
	}
	o.logger.Debug("download finished", "bytes", humanize.Bytes(uint64(n)), "took", time.Since(start).Round(time.Millisecond), "sha256", sum)
	o.record(ctx, ledger.EventFetch, a, url, n, sum, "")

	tree := l.CacheTree(a)
	extractErr := ExtractTarGz(archive, l.CacheDir, a.Name())
	if extractErr == nil && !fileExists(tree) {
		extractErr = errors.New("archive has no top level directory " + a.Name())
	}
	if extractErr != nil {
		_ = os.RemoveAll(tree)
		_ = os.Remove(archive)
		o.record(ctx, ledger.EventPurge, a, archive, 0, sum, extractErr.Error())
		return &failure.Error{
			Code:     failure.UnpackFailed,
			Msg:      "could not unpack artifact, cached copy removed",
			Detected: archive,
			Err:      extractErr,
		}
	}
	if err := os.Remove(archive); err != nil {
		o.logger.Debug("cannot remove archive", "path", archive, "error", err)
	}
	o.record(ctx, ledger.EventExtract, a, tree, 0, "", "")
	return nil
}

func (o *Orchestrator) baseDepsStamp(a Artifact) string {
	return strings.Join([]string{a.Version, o.pipIndex, strings.Join(o.requirements, " ")}, "\n") + "\n"
}

// baseDeps installs the base requirements with the new interpreter, once per
// runtime version and requirement set.
func (o *Orchestrator) baseDeps(ctx context.Context, l Layout, a Artifact) error {
	stampPath := filepath.Join(l.BuildDir, BaseDepsStamp)
	want := o.baseDepsStamp(a)
	if got, err := os.ReadFile(stampPath); err == nil && string(got) == want {
		o.logger.Debug("base dependencies already installed")
		return nil
	}

	if len(o.requirements) > 0 {
		args := []string{"-m", "pip", "install"}
		if o.pipIndex != "" {
			args = append(args, "--index-url", o.pipIndex)
		}
		args = append(args, o.requirements...)
		o.logger.Info("installing base dependencies", "requirements", strings.Join(o.requirements, " "))
		if err := o.runner.Run(ctx, nil, l.BuildPython(), args...); err != nil {
			return failure.Wrap(failure.BaseDepsFailed, err, "could not install base dependencies")
		}
	}
	if err := os.WriteFile(stampPath, []byte(want), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", stampPath, err)
	}
	o.record(ctx, ledger.EventBaseDeps, a, l.BuildPython(), 0, "", strings.Join(o.requirements, " "))
	return nil
}

// Delegate runs the installed interpreter with argv, passing its exit status
// through in the returned error.
func (o *Orchestrator) Delegate(ctx context.Context, plan Plan, argv []string) error {
	l := o.layoutFor(plan)
	o.logger.Debug("delegating to task runner", "python", l.BuildPython(), "args", strings.Join(argv, " "))
	return o.runner.Run(ctx, nil, l.BuildPython(), argv...)
}

// Clean removes the build directory.
func (o *Orchestrator) Clean(ctx context.Context) error {
	if err := os.RemoveAll(o.layout.BuildDir); err != nil {
		return fmt.Errorf("remove %s: %w", o.layout.BuildDir, err)
	}
	o.record(ctx, ledger.EventRemove, Artifact{}, o.layout.BuildDir, 0, "", "clean")
	return nil
}

// Purge removes the build and cache directories.
func (o *Orchestrator) Purge(ctx context.Context) error {
	if err := o.Clean(ctx); err != nil {
		return err
	}
	if err := os.RemoveAll(o.layout.CacheDir); err != nil {
		return fmt.Errorf("remove %s: %w", o.layout.CacheDir, err)
	}
	o.record(ctx, ledger.EventPurge, Artifact{}, o.layout.CacheDir, 0, "", "purge")
	return nil
}

func (o *Orchestrator) record(ctx context.Context, kind ledger.EventKind, a Artifact, source string, size int64, sum, detail string) {
	if o.runID == "" {
		return
	}
	ev := &ledger.Event{
		RunID:    o.runID,
		Kind:     kind,
		Source:   source,
		Bytes:    size,
		SHA256:   sum,
		Detail:   detail,
		Artifact: a.Name(),
	}
	if a.Runtime == "" {
		ev.Artifact = ""
	}
	if err := o.store.RecordEvent(ctx, ev); err != nil {
		o.logger.Debug("cannot record ledger event", "kind", kind, "error", err)
	}
}
