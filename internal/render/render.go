// Package render formats fan-out results for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goosewin/qforia/internal/core"
)

const notProvided = "not provided"

var (
	primary = lipgloss.Color("#88C0D0")
	muted   = lipgloss.Color("#D8DEE9")
	warning = lipgloss.Color("#EBCB8B")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primary)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(primary).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(muted)
	warningStyle = lipgloss.NewStyle().Foreground(warning)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// Plan renders the model's generation plan next to what it actually
// produced. Missing details are shown as "not provided".
func Plan(request core.FanoutRequest, result core.FanoutResult) string {
	target := notProvided
	reasoning := notProvided
	if declared, ok := result.DeclaredCount(); ok {
		target = strconv.Itoa(declared)
	}
	if result.Details != nil && strings.TrimSpace(result.Details.ReasoningForCount) != "" {
		reasoning = result.Details.ReasoningForCount
	}

	lines := []string{
		titleStyle.Render("Generation plan"),
		field("Query", request.Query),
		field("Mode", request.Mode.Label()),
		field("Target queries", target),
		field("Reasoning", reasoning),
		field("Generated", strconv.Itoa(result.ActualCount())),
	}
	if warn := MismatchWarning(result); warn != "" {
		lines = append(lines, warningStyle.Render(warn))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// MismatchWarning is empty unless the model declared an integer target that
// differs from the number of queries it produced.
func MismatchWarning(result core.FanoutResult) string {
	declared, actual, mismatch := result.CountMismatch()
	if !mismatch {
		return ""
	}
	return fmt.Sprintf("Warning: the model planned %d queries but generated %d.", declared, actual)
}

// Table renders queries in core.Columns order. width <= 0 leaves the table
// at its natural width.
func Table(queries []core.ExpandedQuery, width int) string {
	rows := make([][]string, 0, len(queries))
	for _, query := range queries {
		rows = append(rows, query.Row())
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(core.Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t.String()
}

// Result renders the full view: plan panel followed by the query table, or
// a no-queries notice.
func Result(run core.RunResult, width int) string {
	if run.Result == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(Plan(run.Request, *run.Result))
	b.WriteString("\n\n")
	if run.Result.ActualCount() == 0 {
		b.WriteString(NoQueries())
	} else {
		b.WriteString(Table(run.Result.Queries, width))
	}
	b.WriteString("\n")
	if meta := footer(run); meta != "" {
		b.WriteString(dimStyle.Render(meta))
		b.WriteString("\n")
	}
	return b.String()
}

func NoQueries() string {
	return warningStyle.Render("The model returned no queries. Try rephrasing the query or switching mode.")
}

// Welcome is shown when there is no result to display yet.
func Welcome() string {
	lines := []string{
		titleStyle.Render("Qforia: query fan-out simulator"),
		"Run " + labelStyle.Render(`qforia run "your query"`) + " to generate sub-queries.",
		dimStyle.Render("Use --mode complex for AI Mode depth (20+ queries)."),
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func footer(run core.RunResult) string {
	var parts []string
	if run.Backend != "" {
		parts = append(parts, run.Backend)
	}
	if run.Model != "" {
		parts = append(parts, run.Model)
	}
	if run.Duration > 0 {
		parts = append(parts, run.Duration.Round(10*time.Millisecond).String())
	}
	return strings.Join(parts, " · ")
}
