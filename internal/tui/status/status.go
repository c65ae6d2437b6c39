// Package status implements the terminal view of a detection pass. It runs
// the detection, renders pass/warn/fail for every item and re-runs on demand.
package status

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/report"
	"github.com/chevah/pythia/pkg/buildinfo"
)

// CollectFunc runs one detection pass.
type CollectFunc func(ctx context.Context) (report.Report, error)

// StatusModel is the Bubbletea model for the status view.
type StatusModel struct {
	collect  CollectFunc
	interval time.Duration
	timeout  time.Duration
	viewport viewport.Model
	report   *report.Report
	lastRun  time.Time
	running  bool
	err      error
	width    int
	height   int
	ready    bool
}

// NewStatusModel creates a status view. A zero interval only re-runs the
// detection when asked to.
func NewStatusModel(collect CollectFunc, interval time.Duration) StatusModel {
	return StatusModel{
		collect:  collect,
		interval: interval,
		timeout:  30 * time.Second,
	}
}

// detectMsg carries the result of a detection pass. A pass that stopped on a
// fatal error still carries the partial report.
type detectMsg struct {
	report report.Report
	err    error
}

// tickMsg triggers the next pass.
type tickMsg struct{}

func runDetection(collect CollectFunc, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		rep, err := collect(ctx)
		return detectMsg{report: rep, err: err}
	}
}

func scheduleTick(d time.Duration) tea.Cmd {
	if d <= 0 {
		return nil
	}
	return tea.Tick(d, func(_ time.Time) tea.Msg {
		return tickMsg{}
	})
}

// Init starts the first pass.
func (m StatusModel) Init() tea.Cmd {
	return tea.Batch(runDetection(m.collect, m.timeout), scheduleTick(m.interval))
}

// Update handles messages.
func (m StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentH := msg.Height - 6 // header and footer
		if contentH < 5 {
			contentH = 5
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, contentH)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentH
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case detectMsg:
		m.lastRun = time.Now()
		m.running = false
		m.err = msg.err
		rep := msg.report
		m.report = &rep
		if m.ready {
			m.viewport.SetContent(m.renderContent())
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(runDetection(m.collect, m.timeout), scheduleTick(m.interval))

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.running {
				return m, nil
			}
			m.running = true
			return m, runDetection(m.collect, m.timeout)
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the status view.
func (m StatusModel) View() string {
	var b strings.Builder

	header := headerStyle.Render(
		titleStyle.Render("pythia") +
			dimStyle.Render(" "+buildinfo.Version) +
			dimStyle.Render(" | Runtime Detection") +
			m.renderLastUpdate())
	b.WriteString(header)
	b.WriteString("\n")

	if !m.ready {
		b.WriteString("\n  Initializing...\n")
		return b.String()
	}

	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(m.renderFooter()))
	return b.String()
}

func (m StatusModel) renderLastUpdate() string {
	if m.lastRun.IsZero() {
		return dimStyle.Render(" | Detecting...")
	}
	return dimStyle.Render(fmt.Sprintf(" | Updated %s", m.lastRun.Format("15:04:05")))
}

func (m StatusModel) renderContent() string {
	var b strings.Builder

	if m.report == nil {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Waiting for detection..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(report.Render(*m.report, m.width))

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(failStyle.Render(fmt.Sprintf("  Error (exit code %d): %v", failure.CodeOf(m.err), m.err)))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press 'r' to retry"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m StatusModel) renderFooter() string {
	result := passStyle.Render("Ready")
	if m.err != nil {
		result = failStyle.Render("Failed")
	}
	refresh := "on demand"
	if m.interval > 0 {
		refresh = "every " + m.interval.String()
	}
	return fmt.Sprintf(" [q] Quit  [r] Re-run detection  | Refresh %s | %s", refresh, result)
}
