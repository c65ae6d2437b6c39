// Package report aggregates what a bootstrap run detected and decided into a
// pass/warn/fail checklist, for the detect command and the status view.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chevah/pythia/internal/bootstrap"
	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/ledger"
	"github.com/chevah/pythia/internal/platform"
	"github.com/chevah/pythia/internal/selector"
)

// Status is the outcome of one checklist item.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
	StatusUnknown Status = "unknown"
)

// Section is a named group of items.
type Section struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Item is a single checklist entry.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
	Value  string `json:"value"`
	Detail string `json:"detail,omitempty"`
	// Code is the exit code of a failed item.
	Code int `json:"code,omitempty"`
}

// Report is the top-level result of a detection pass.
type Report struct {
	Timestamp string    `json:"timestamp"`
	Platform  string    `json:"platform,omitempty"`
	Version   string    `json:"version,omitempty"`
	Sections  []Section `json:"sections"`
	Summary   Summary   `json:"summary"`
}

// Summary holds aggregate counts.
type Summary struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	Warnings int `json:"warnings"`
	Unknown  int `json:"unknown"`
}

// Summarize counts the items of sections.
func Summarize(sections []Section) Summary {
	var s Summary
	for _, sec := range sections {
		for _, it := range sec.Items {
			s.Total++
			switch it.Status {
			case StatusPass:
				s.Passed++
			case StatusFail:
				s.Failed++
			case StatusWarning:
				s.Warnings++
			default:
				s.Unknown++
			}
		}
	}
	return s
}

// Inputs are the collaborators of a detection pass.
type Inputs struct {
	Host         platform.Host
	Table        selector.Table
	Runtime      string
	Orchestrator *bootstrap.Orchestrator
	Ledger       ledger.Store
	Logger       *slog.Logger
	Now          func() time.Time
}

// Collect fingerprints the host, resolves the platform, selects the version
// and inspects the build directory. It stops at the first fatal error and
// returns it together with the report built so far. The plan is nil unless a
// version was selected.
func Collect(ctx context.Context, in Inputs) (Report, *bootstrap.Plan, error) {
	now := time.Now
	if in.Now != nil {
		now = in.Now
	}
	logger := in.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := collector{now: now()}

	fp, err := platform.TakeFingerprint(ctx, in.Host)
	if err != nil {
		c.add("host", "Host", failed("kernel", "Operating system", err))
		return c.finish(), nil, err
	}
	c.add("host", "Host", hostItems(fp)...)

	res, err := platform.NewResolver(in.Host, logger).Resolve(ctx, fp)
	if err != nil {
		c.add("platform", "Platform", failed("platform", "Canonical platform", err))
		return c.finish(), nil, err
	}
	c.add("platform", "Platform", platformItems(res)...)
	c.report.Platform = res.Platform.Key()

	sel, err := selector.Choose(in.Table, res.Platform.Key(), logger)
	if err != nil {
		c.add("version", "Runtime version", failed("version", "Selected version", err))
		return c.finish(), nil, err
	}
	c.add("version", "Runtime version", versionItems(sel)...)
	c.report.Version = sel.Version

	plan := bootstrap.NewPlan(in.Runtime, res, sel)
	c.add("install", "Install", installItems(ctx, in, plan, c.now, logger)...)
	return c.finish(), &plan, nil
}

type collector struct {
	now    time.Time
	report Report
}

func (c *collector) add(id, name string, items ...Item) {
	c.report.Sections = append(c.report.Sections, Section{ID: id, Name: name, Items: items})
}

// finish stamps the report and counts its items. Call it on every return.
func (c *collector) finish() Report {
	c.report.Timestamp = c.now.UTC().Format(time.RFC3339)
	c.report.Summary = Summarize(c.report.Sections)
	return c.report
}

func failed(id, name string, err error) Item {
	return Item{ID: id, Name: name, Status: StatusFail, Value: failure.CodeOf(err).String(), Detail: err.Error(), Code: int(failure.CodeOf(err))}
}

func hostItems(fp platform.Fingerprint) []Item {
	items := []Item{
		{ID: "kernel", Name: "Operating system", Status: StatusPass, Value: fp.KernelName},
		{ID: "os_version", Name: "OS version", Status: StatusPass, Value: fp.RawOSVersion},
		{ID: "arch", Name: "Architecture", Status: StatusPass, Value: fp.RawArch},
	}
	if fp.HasRelease() {
		items = append(items, Item{ID: "distro", Name: "Distribution", Status: StatusPass, Value: fp.DistroID, Detail: fp.Description})
	} else if fp.Description != "" {
		items = append(items, Item{ID: "description", Name: "Description", Status: StatusPass, Value: fp.Description})
	}
	return items
}

func platformItems(res platform.Resolution) []Item {
	p := Item{ID: "platform", Name: "Canonical platform", Status: StatusPass, Value: res.Platform.Key()}
	items := []Item{p}
	if res.Generic() {
		items[0].Status = StatusWarning
		items[0].Detail = "generic build: " + res.Fallback
	}
	if res.Libc != nil {
		items = append(items, Item{ID: "libc", Name: "C library", Status: StatusPass, Value: res.Libc.String()})
	}
	return items
}

func versionItems(sel selector.Selection) []Item {
	v := Item{ID: "version", Name: "Selected version", Status: StatusPass, Value: sel.Version}
	switch n := len(sel.Matched); {
	case n == 0:
		v.Detail = "default entry"
	case n == 1:
		v.Detail = "matched " + sel.Matched[0].Pattern
	default:
		v.Status = StatusWarning
		v.Detail = fmt.Sprintf("%d patterns match, the last one (%s) wins", n, sel.Matched[n-1].Pattern)
	}
	return []Item{v}
}

func installItems(ctx context.Context, in Inputs, plan bootstrap.Plan, now time.Time, logger *slog.Logger) []Item {
	items := []Item{{ID: "artifact", Name: "Artifact", Status: StatusPass, Value: plan.Artifact.Name()}}

	state := Item{ID: "state", Name: "Build directory", Status: StatusUnknown, Value: "not inspected"}
	if in.Orchestrator != nil {
		st, installed := in.Orchestrator.Inspect(plan)
		state.Value = st.String()
		switch st {
		case bootstrap.StateInstalled:
			state.Status = StatusPass
		case bootstrap.StateVersionMismatch:
			state.Status = StatusWarning
			state.Detail = fmt.Sprintf("installed %s, wanted %s", installed, plan.Artifact.Version)
		default:
			state.Status = StatusWarning
			state.Detail = "run install to fetch " + plan.Artifact.Name()
		}
	}
	items = append(items, state)

	if in.Ledger != nil {
		ev, err := in.Ledger.LastInstall(ctx)
		switch {
		case err != nil:
			logger.Debug("cannot read install history", "error", err)
		case ev != nil:
			items = append(items, Item{
				ID:     "last_install",
				Name:   "Last install",
				Status: StatusPass,
				Value:  ev.Artifact,
				Detail: humanize.RelTime(ev.Timestamp, now, "ago", "from now"),
			})
		}
	}
	return items
}
