package report

import (
	"fmt"
	"strings"
)

// StatusIcon returns a colored icon for a status.
func StatusIcon(s Status) string {
	switch s {
	case StatusPass:
		return passStyle.Render("●")
	case StatusWarning:
		return warnStyle.Render("○")
	case StatusFail:
		return failStyle.Render("✖")
	default:
		return unknownStyle.Render("?")
	}
}

// StatusLabel returns a colored status label.
func StatusLabel(s Status) string {
	switch s {
	case StatusPass:
		return passStyle.Render("PASS")
	case StatusWarning:
		return warnStyle.Render("WARN")
	case StatusFail:
		return failStyle.Render("FAIL")
	default:
		return unknownStyle.Render("UNKN")
	}
}

// RenderSection renders a section with its items.
func RenderSection(section Section) string {
	var b strings.Builder

	passCount := 0
	for _, item := range section.Items {
		if item.Status == StatusPass {
			passCount++
		}
	}

	name := sectionNameStyle.Render(section.Name)
	count := sectionCountStyle.Render(fmt.Sprintf("%d/%d pass", passCount, len(section.Items)))
	b.WriteString(fmt.Sprintf(" %s  %s\n", name, count))

	for _, item := range section.Items {
		b.WriteString(RenderItem(item))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderItem renders a single item line, with its detail below when the
// item did not pass.
func RenderItem(item Item) string {
	value := item.Value
	switch item.Status {
	case StatusPass:
		value = dimStyle.Render(value)
	case StatusFail:
		value = failStyle.Render(value)
	case StatusWarning:
		value = warnStyle.Render(value)
	}

	line := fmt.Sprintf("   %s %-20s %-30s %s", StatusIcon(item.Status), item.Name, value, StatusLabel(item.Status))
	if item.Detail != "" {
		line += "\n     " + dimStyle.Render(item.Detail)
	}
	return line
}

// RenderSummaryBar renders the top-level summary bar.
func RenderSummaryBar(summary Summary, width int) string {
	total := summary.Total
	if total == 0 {
		return dimStyle.Render("Nothing detected yet")
	}

	percent := (summary.Passed * 100) / total

	parts := []string{passStyle.Render(fmt.Sprintf("%d PASS", summary.Passed))}
	if summary.Warnings > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d WARN", summary.Warnings)))
	}
	if summary.Failed > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d FAIL", summary.Failed)))
	}
	if summary.Unknown > 0 {
		parts = append(parts, unknownStyle.Render(fmt.Sprintf("%d UNKN", summary.Unknown)))
	}

	counts := fmt.Sprintf("  %d/%d  %s", summary.Passed, total, strings.Join(parts, "   "))

	barWidth := 20
	if width > 80 {
		barWidth = 30
	}
	filled := (summary.Passed * barWidth) / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	pStyle := passStyle.Render
	switch {
	case summary.Failed > 0:
		pStyle = failStyle.Render
	case summary.Warnings > 0:
		pStyle = warnStyle.Render
	}
	return summaryBoxStyle.Render(counts + "   " + pStyle(fmt.Sprintf("%d%%", percent)) + " " + pStyle(bar))
}

// Render renders the whole report for a terminal of the given width.
func Render(r Report, width int) string {
	var b strings.Builder
	b.WriteString(RenderSummaryBar(r.Summary, width))
	b.WriteString("\n")
	for _, section := range r.Sections {
		b.WriteString(RenderSection(section))
	}
	return b.String()
}
