package status

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/chevah/pythia/internal/failure"
	"github.com/chevah/pythia/internal/report"
)

func sampleReport() report.Report {
	sections := []report.Section{{
		Name: "Platform",
		Items: []report.Item{
			{Name: "Canonical platform", Status: report.StatusPass, Value: "rhel8-x64"},
			{Name: "C library", Status: report.StatusPass, Value: "glibc 2.28"},
			{Name: "Build directory", Status: report.StatusWarning, Value: "not_installed"},
		},
	}}
	return report.Report{Sections: sections, Summary: report.Summarize(sections)}
}

// countingCollect returns a collector that counts its calls.
func countingCollect(rep report.Report, err error) (CollectFunc, *int) {
	calls := 0
	return func(context.Context) (report.Report, error) {
		calls++
		return rep, err
	}, &calls
}

func TestNewStatusModel(t *testing.T) {
	collect, _ := countingCollect(sampleReport(), nil)
	m := NewStatusModel(collect, 5*time.Second)
	if m.interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", m.interval)
	}
	if m.ready {
		t.Error("should not be ready initially")
	}
	if m.report != nil {
		t.Error("report should be nil initially")
	}
}

func TestRenderLastUpdate(t *testing.T) {
	m := NewStatusModel(nil, 0)
	if got := m.renderLastUpdate(); !strings.Contains(got, "Detecting") {
		t.Errorf("zero time should show 'Detecting...', got: %q", got)
	}
	m.lastRun = time.Date(2026, 2, 28, 14, 30, 45, 0, time.UTC)
	if got := m.renderLastUpdate(); !strings.Contains(got, "14:30:45") {
		t.Errorf("should show formatted time, got: %q", got)
	}
}

func TestRenderContent_NilReport(t *testing.T) {
	m := NewStatusModel(nil, 0)
	if got := m.renderContent(); !strings.Contains(got, "Waiting") {
		t.Errorf("nil report should show 'Waiting...', got: %q", got)
	}
}

func TestRenderContent_WithReport(t *testing.T) {
	m := NewStatusModel(nil, 0)
	rep := sampleReport()
	m.report = &rep
	got := m.renderContent()
	for _, want := range []string{"Platform", "2/3", "rhel8-x64", "WARN"} {
		if !strings.Contains(got, want) {
			t.Errorf("content missing %q: %q", want, got)
		}
	}
}

func TestRenderContent_Error(t *testing.T) {
	m := NewStatusModel(nil, 0)
	rep := sampleReport()
	m.report = &rep
	m.err = failure.New(failure.UnsupportedArch, "no runtime for this architecture")
	got := m.renderContent()
	if !strings.Contains(got, "exit code 17") {
		t.Errorf("should show the exit code, got: %q", got)
	}
	if !strings.Contains(got, "retry") {
		t.Errorf("should suggest retry, got: %q", got)
	}
	if !strings.Contains(got, "rhel8-x64") {
		t.Errorf("partial report should still render, got: %q", got)
	}
}

func TestRenderFooter(t *testing.T) {
	m := NewStatusModel(nil, 10*time.Second)
	got := m.renderFooter()
	if !strings.Contains(got, "Ready") || !strings.Contains(got, "every 10s") {
		t.Errorf("footer = %q", got)
	}

	m = NewStatusModel(nil, 0)
	m.err = fmt.Errorf("timeout")
	got = m.renderFooter()
	if !strings.Contains(got, "Failed") || !strings.Contains(got, "on demand") {
		t.Errorf("footer = %q", got)
	}
}

func TestView_NotReady(t *testing.T) {
	m := NewStatusModel(nil, 0)
	if got := m.View(); !strings.Contains(got, "Initializing") {
		t.Errorf("not-ready model should show 'Initializing', got: %q", got)
	}
}

func TestView_Ready(t *testing.T) {
	m := NewStatusModel(nil, 0)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	updated, _ = updated.Update(detectMsg{report: sampleReport()})
	got := updated.View()
	if !strings.Contains(got, "pythia") || !strings.Contains(got, "Re-run detection") {
		t.Errorf("view = %q", got)
	}
}

func TestInit_RunsDetection(t *testing.T) {
	collect, calls := countingCollect(sampleReport(), nil)
	m := NewStatusModel(collect, 0)
	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init should return a command")
	}
	// With no interval the batch holds the detection only.
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				msg = c()
			}
		}
	}
	if _, ok := msg.(detectMsg); !ok {
		t.Fatalf("msg = %T, want detectMsg", msg)
	}
	if *calls != 1 {
		t.Errorf("collect called %d times, want 1", *calls)
	}
}

func TestUpdate_WindowSizeMsg(t *testing.T) {
	m := NewStatusModel(nil, 0)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model := updated.(StatusModel)
	if !model.ready || model.width != 100 || model.height != 40 {
		t.Errorf("ready=%v width=%d height=%d", model.ready, model.width, model.height)
	}

	updated, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 8})
	model = updated.(StatusModel)
	if model.viewport.Width != 120 {
		t.Errorf("viewport width after resize = %d, want 120", model.viewport.Width)
	}
	if model.viewport.Height < 5 {
		t.Errorf("viewport height = %d, should be at least 5", model.viewport.Height)
	}
}

func TestUpdate_DetectMsg(t *testing.T) {
	m := NewStatusModel(nil, 0)
	m.err = fmt.Errorf("previous error")
	updated, _ := m.Update(detectMsg{report: sampleReport()})
	model := updated.(StatusModel)
	if model.report == nil {
		t.Fatal("report should be set")
	}
	if model.err != nil {
		t.Error("successful pass should clear the previous error")
	}
	if model.lastRun.IsZero() {
		t.Error("lastRun should be set")
	}

	updated, _ = model.Update(detectMsg{err: fmt.Errorf("ldd missing")})
	model = updated.(StatusModel)
	if model.err == nil {
		t.Error("err should be set after a failed pass")
	}
}

func TestUpdate_RerunKey(t *testing.T) {
	collect, calls := countingCollect(sampleReport(), nil)
	m := NewStatusModel(collect, 0)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("'r' should start a detection pass")
	}
	model := updated.(StatusModel)
	if !model.running {
		t.Error("model should be marked running")
	}

	// A second press while running is ignored.
	if _, again := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}); again != nil {
		t.Error("'r' while running should not start another pass")
	}

	updated, _ = model.Update(cmd())
	if updated.(StatusModel).running {
		t.Error("running should be cleared by the result")
	}
	if *calls != 1 {
		t.Errorf("collect called %d times, want 1", *calls)
	}
}

func TestUpdate_Quit(t *testing.T) {
	m := NewStatusModel(nil, 0)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("'q' should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("'q' should produce tea.QuitMsg")
	}
}
