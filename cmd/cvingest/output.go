package main

import (
	"fmt"
	"io"
	"strings"

	"cv-ingest-go/internal/processor"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// maxListed 汇总中最多列出的失败文件数
const maxListed = 10

// printSummary 以方框形式输出一次运行的统计
func printSummary(w io.Writer, s *processor.Summary, dryRun bool) {
	title := "Ingest Complete"
	if dryRun {
		title += " (dry-run)"
	}

	lines := []string{
		titleStyle.Render(title),
		fmt.Sprintf("%s %s  %s %.1fs", dimStyle.Render("Run:"), s.RunID, dimStyle.Render("Elapsed:"), s.Elapsed.Seconds()),
		fmt.Sprintf("%s %d  %s %d", dimStyle.Render("Scanned:"), s.Scanned, dimStyle.Render("PDF:"), s.Matched),
	}

	done := fmt.Sprintf("%s %s", dimStyle.Render("Published:"), successStyle.Render(fmt.Sprint(s.Published)))
	if dryRun {
		done = fmt.Sprintf("%s %s", dimStyle.Render("Extracted:"), successStyle.Render(fmt.Sprint(s.DryRun)))
	}
	lines = append(lines, fmt.Sprintf("%s  %s %s  %s %s",
		done,
		dimStyle.Render("Skipped:"), warnStyle.Render(fmt.Sprint(len(s.Skipped))),
		dimStyle.Render("Duplicates:"), warnStyle.Render(fmt.Sprint(len(s.Duplicates))),
	))

	failed := successStyle.Render("0")
	if len(s.Failed) > 0 {
		failed = errorStyle.Render(fmt.Sprint(len(s.Failed)))
	}
	lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render("Failed:"), failed))
	for i, f := range s.Failed {
		if i == maxListed {
			lines = append(lines, dimStyle.Render(fmt.Sprintf("  ... 另有 %d 个", len(s.Failed)-maxListed)))
			break
		}
		lines = append(lines, errorStyle.Render("  ✗ "+f))
	}

	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}
