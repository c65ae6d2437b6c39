package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/chevah/pythia/internal/bootstrap"
	"github.com/chevah/pythia/internal/config"
	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/ledger"
	"github.com/chevah/pythia/internal/platform"
	"github.com/chevah/pythia/internal/report"
	"github.com/chevah/pythia/internal/selector"
	"github.com/chevah/pythia/internal/tui/status"
)

// exitStatus carries the task runner's exit code out of run.
type exitStatus struct{ code int }

func (e *exitStatus) Error() string { return "task runner exited with status " + strconv.Itoa(e.code) }

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	host   platform.Host
	stdout io.Writer
	stderr io.Writer

	// Overridable in tests.
	source bootstrap.Source
	runner bootstrap.Runner
	now    func() time.Time
}

func newApp(cfg *config.Config, logger *slog.Logger, host platform.Host, stdout, stderr io.Writer) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		host:   host,
		stdout: stdout,
		stderr: stderr,
		runner: bootstrap.ExecRunner{Stdin: os.Stdin, Stdout: stdout, Stderr: stderr},
		now:    time.Now,
	}
}

func (a *app) openLedger() ledger.Store {
	store, err := ledger.NewSQLiteStore(a.cfg.Ledger)
	if err != nil {
		a.logger.Warn("run history disabled", "path", a.cfg.Ledger, "error", err)
		return ledger.Discard{}
	}
	return store
}

func (a *app) layout() bootstrap.Layout {
	return bootstrap.Layout{BuildDir: a.cfg.BuildDir, CacheDir: a.cfg.CacheDir}
}

func (a *app) orchestrator(store ledger.Store, runID string) (*bootstrap.Orchestrator, error) {
	src := a.source
	if src == nil {
		var err error
		if src, err = bootstrap.NewSource(a.cfg, a.logger); err != nil {
			return nil, err
		}
	}
	return bootstrap.New(bootstrap.Options{
		Layout:           a.layout(),
		Source:           src,
		Runner:           a.runner,
		Ledger:           store,
		RunID:            runID,
		Logger:           a.logger,
		PipIndexURL:      a.cfg.PipIndexURL,
		BaseRequirements: a.cfg.BaseRequirements,
	}), nil
}

// plan resolves the host and selects the runtime version for it.
func (a *app) plan(ctx context.Context) (bootstrap.Plan, error) {
	tbl, err := a.cfg.Table()
	if err != nil {
		return bootstrap.Plan{}, err
	}
	res, err := platform.Detect(ctx, a.host, a.logger)
	if err != nil {
		return bootstrap.Plan{}, err
	}
	sel, err := selector.Choose(tbl, res.Platform.Key(), a.logger)
	if err != nil {
		return bootstrap.Plan{}, err
	}
	return bootstrap.NewPlan(a.cfg.Runtime, res, sel), nil
}

func (a *app) writeDefaultValues(plan bootstrap.Plan) {
	if err := bootstrap.WriteDefaultValues(a.cfg.BuildDir, plan.Artifact); err != nil {
		a.logger.Warn("cannot write "+bootstrap.DefaultValuesFile, "error", err)
	}
}

// tracked records cmd as a ledger run around fn.
func (a *app) tracked(ctx context.Context, cmd string, fn func(store ledger.Store, run *ledger.Run) error) error {
	store := a.openLedger()
	defer store.Close()

	run := ledger.NewRun(cmd, a.now())
	if err := store.StartRun(ctx, run); err != nil {
		a.logger.Debug("cannot record run", "error", err)
		run.ID = ""
	}

	err := fn(store, run)
	if run.ID != "" {
		outcome, code, msg := ledger.OutcomeOK, 0, ""
		if err != nil {
			outcome, code, msg = ledger.OutcomeFailed, int(failure.CodeOf(err)), err.Error()
		}
		// The caller's context may be cancelled already; the row still needs closing.
		if ferr := store.FinishRun(context.WithoutCancel(ctx), run.ID, outcome, code, msg, a.now()); ferr != nil {
			a.logger.Debug("cannot finish run", "error", ferr)
		}
	}
	return err
}

func (a *app) ensure(ctx context.Context, store ledger.Store, run *ledger.Run) (*bootstrap.Orchestrator, bootstrap.Plan, error) {
	plan, err := a.plan(ctx)
	if err != nil {
		return nil, plan, err
	}
	if run.ID != "" {
		_ = store.UpdateRunTarget(ctx, run.ID, plan.Artifact.Platform.Key(), plan.Artifact.Version)
	}
	o, err := a.orchestrator(store, run.ID)
	if err != nil {
		return nil, plan, err
	}
	if _, err := o.Ensure(ctx, plan); err != nil {
		return nil, plan, err
	}
	// Written last: a reinstall empties the build directory.
	a.writeDefaultValues(plan)
	return o, plan, nil
}

func (a *app) cmdInstall(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return failure.New(failure.Generic, "install takes no arguments")
	}
	return a.tracked(ctx, "install", func(store ledger.Store, run *ledger.Run) error {
		_, _, err := a.ensure(ctx, store, run)
		return err
	})
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	return a.tracked(ctx, "run", func(store ledger.Store, run *ledger.Run) error {
		o, plan, err := a.ensure(ctx, store, run)
		if err != nil {
			return err
		}
		argv := append(append([]string{}, a.cfg.Runner...), args...)
		if err := o.Delegate(ctx, plan, argv); err != nil {
			if code := bootstrap.ExitCode(err); code > 0 {
				return &exitStatus{code: code}
			}
			return fmt.Errorf("start task runner: %w", err)
		}
		return nil
	})
}

func (a *app) cmdClean(ctx context.Context, _ []string) error {
	return a.tracked(ctx, "clean", func(store ledger.Store, run *ledger.Run) error {
		return bootstrap.New(bootstrap.Options{Layout: a.layout(), Ledger: store, RunID: run.ID, Logger: a.logger}).Clean(ctx)
	})
}

func (a *app) cmdPurge(ctx context.Context, _ []string) error {
	return a.tracked(ctx, "purge", func(store ledger.Store, run *ledger.Run) error {
		return bootstrap.New(bootstrap.Options{Layout: a.layout(), Ledger: store, RunID: run.ID, Logger: a.logger}).Purge(ctx)
	})
}

// collector returns the detection pass shared by detect and status.
func (a *app) collector(store ledger.Store) func(ctx context.Context) (report.Report, *bootstrap.Plan, error) {
	return func(ctx context.Context) (report.Report, *bootstrap.Plan, error) {
		tbl, err := a.cfg.Table()
		if err != nil {
			return report.Report{}, nil, err
		}
		return report.Collect(ctx, report.Inputs{
			Host:         a.host,
			Table:        tbl,
			Runtime:      a.cfg.Runtime,
			Orchestrator: bootstrap.New(bootstrap.Options{Layout: a.layout(), Logger: a.logger}),
			Ledger:       store,
			Logger:       a.logger,
			Now:          a.now,
		})
	}
}

func (a *app) cmdDetect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	jsonOutput := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return failure.Wrap(failure.Generic, err, "detect")
	}

	return a.tracked(ctx, "detect", func(store ledger.Store, run *ledger.Run) error {
		rep, plan, err := a.collector(store)(ctx)
		if plan != nil {
			a.writeDefaultValues(*plan)
		}
		a.recordDetect(ctx, store, run, rep, plan)

		if *jsonOutput {
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			if eerr := enc.Encode(struct {
				Report report.Report    `json:"report"`
				Plan   *bootstrap.Plan `json:"plan,omitempty"`
			}{rep, plan}); eerr != nil {
				return eerr
			}
		} else {
			fmt.Fprint(a.stdout, report.Render(rep, 80))
		}
		return err
	})
}

// recordDetect stores the outcome of a detection pass on run.
func (a *app) recordDetect(ctx context.Context, store ledger.Store, run *ledger.Run, rep report.Report, plan *bootstrap.Plan) {
	if run.ID == "" {
		return
	}
	if rep.Platform != "" {
		_ = store.UpdateRunTarget(ctx, run.ID, rep.Platform, rep.Version)
	}
	ev := &ledger.Event{
		RunID:     run.ID,
		Timestamp: a.now(),
		Kind:      ledger.EventDetect,
		Detail:    fmt.Sprintf("%d/%d pass", rep.Summary.Passed, rep.Summary.Total),
	}
	if plan != nil {
		ev.Artifact = plan.Artifact.Name()
	}
	if err := store.RecordEvent(ctx, ev); err != nil {
		a.logger.Debug("cannot record ledger event", "kind", ev.Kind, "error", err)
	}
}

func (a *app) cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	interval := fs.Duration("interval", 0, "re-run detection periodically (0: only on 'r')")
	if err := fs.Parse(args); err != nil {
		return failure.Wrap(failure.Generic, err, "status")
	}

	store := a.openLedger()
	defer store.Close()
	collect := a.collector(store)

	// The view owns the terminal; keep log lines out of it.
	a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	m := status.NewStatusModel(func(ctx context.Context) (report.Report, error) {
		rep, _, err := collect(ctx)
		return rep, err
	}, *interval)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

var historyHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4A9EFF")).Padding(0, 1)

func (a *app) cmdHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	limit := fs.Int("limit", 20, "number of runs to show (0: all)")
	if err := fs.Parse(args); err != nil {
		return failure.Wrap(failure.Generic, err, "history")
	}

	store := a.openLedger()
	defer store.Close()
	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(a.stdout, "No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		took := ""
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			humanize.RelTime(r.StartedAt, a.now(), "ago", "from now"),
			r.Command,
			r.Platform,
			r.Version,
			string(r.Outcome),
			strconv.Itoa(r.ExitCode),
			took,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("STARTED", "COMMAND", "PLATFORM", "VERSION", "OUTCOME", "EXIT", "TOOK").
		Rows(rows...)
	fmt.Fprintln(a.stdout, t.Render())
	return nil
}
