package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/legal-assistant/wordkit/internal/apply"
	"github.com/legal-assistant/wordkit/internal/history"
	"github.com/legal-assistant/wordkit/internal/logging"
	"github.com/legal-assistant/wordkit/internal/operation"
)

// OutputFormat represents the format for command output
type OutputFormat string

const (
	// TextFormat is plain text output (default)
	TextFormat OutputFormat = "text"

	// JSONFormat is output wrapped in a JSON object
	JSONFormat OutputFormat = "json"
)

// IsValid checks if the output format is valid
func (f OutputFormat) IsValid() bool {
	return f == TextFormat || f == JSONFormat
}

// String returns the string representation of the output format
func (f OutputFormat) String() string {
	return string(f)
}

// FormatOutput formats the given content according to the specified format
func FormatOutput(content string, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		return content, nil
	case JSONFormat:
		jsonData := map[string]string{
			"response": content,
		}
		return marshal(jsonData)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	appliedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"})
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#6E7781", Dark: "#8B949E"})
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"})

	severityStyles = map[operation.Severity]lipgloss.Style{
		operation.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"}),
		operation.SeverityWarning: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"}),
		operation.SeverityRisk:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"}),
	}
)

// Result is what one flow produced, ready to print.
type Result struct {
	RunID    string
	Action   string
	Model    string
	Document string
	DryRun   bool
	Batch    operation.Batch
	Report   apply.Report
	Diff     string
}

type operationView struct {
	Index    int                `json:"index"`
	Type     string             `json:"type"`
	Quote    string             `json:"quote,omitempty"`
	NewText  *string            `json:"new_text,omitempty"`
	Severity operation.Severity `json:"severity,omitempty"`
	Comment  *operation.Comment `json:"comment,omitempty"`
	Status   apply.Status       `json:"status,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type resultView struct {
	RunID      string          `json:"run_id,omitempty"`
	Action     string          `json:"action"`
	Model      string          `json:"model,omitempty"`
	Document   string          `json:"document,omitempty"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Operations []operationView `json:"operations"`
	Applied    int             `json:"applied"`
	Skipped    int             `json:"skipped"`
	Failed     int             `json:"failed"`
	Diff       string          `json:"diff,omitempty"`
}

// FormatResult renders a flow result.
func FormatResult(r Result, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		return resultText(r), nil
	case JSONFormat:
		return marshal(resultJSON(r))
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func outcomeAt(r apply.Report, i int) (apply.Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Index == i {
			return o, true
		}
	}
	return apply.Outcome{}, false
}

func resultJSON(r Result) resultView {
	view := resultView{
		RunID:      r.RunID,
		Action:     r.Action,
		Model:      r.Model,
		Document:   r.Document,
		DryRun:     r.DryRun,
		Operations: make([]operationView, 0, len(r.Batch)),
		Applied:    r.Report.Count(apply.StatusApplied),
		Skipped:    r.Report.Count(apply.StatusSkipped),
		Failed:     r.Report.Count(apply.StatusFailed),
		Diff:       r.Diff,
	}
	for i, op := range r.Batch {
		ov := operationView{
			Index:    i,
			Type:     op.Kind.String(),
			Quote:    op.Quote,
			NewText:  op.NewText,
			Severity: op.Severity,
			Comment:  op.Comment,
		}
		if o, ok := outcomeAt(r.Report, i); ok {
			ov.Status = o.Status
			if o.Err != nil {
				ov.Error = o.Err.Error()
			}
		}
		view.Operations = append(view.Operations, ov)
	}
	return view
}

func resultText(r Result) string {
	var b strings.Builder

	header := []string{r.Action}
	if r.Model != "" {
		header = append(header, r.Model)
	}
	if r.RunID != "" {
		header = append(header, "run "+r.RunID)
	}
	b.WriteString(titleStyle.Render(strings.Join(header, " · ")))
	b.WriteString("\n")

	if len(r.Batch) == 0 {
		b.WriteString(mutedStyle.Render("no suggestions"))
		b.WriteString("\n")
	}
	for i, op := range r.Batch {
		o, applied := outcomeAt(r.Report, i)
		mark, style := "•", mutedStyle
		if applied {
			switch o.Status {
			case apply.StatusApplied:
				mark, style = "✓", appliedStyle
			case apply.StatusSkipped:
				mark, style = "-", skippedStyle
			case apply.StatusFailed:
				mark, style = "✗", failedStyle
			}
		}
		line := fmt.Sprintf("%s %d %s", mark, i+1, op)
		if applied && o.Status != apply.StatusApplied {
			line += " " + string(o.Status)
		}
		b.WriteString("  " + style.Render(line) + "\n")
		if op.HasComment() {
			text := op.Comment.Text()
			if st, ok := severityStyles[op.Severity]; ok {
				text = st.Render(text)
			}
			b.WriteString("      " + strings.ReplaceAll(text, "\n", "\n      ") + "\n")
		}
		if applied && o.Err != nil {
			b.WriteString("      " + failedStyle.Render(o.Err.Error()) + "\n")
		}
	}

	if len(r.Report.Outcomes) > 0 {
		fmt.Fprintf(&b, "%d operations: %d applied, %d skipped, %d failed\n",
			len(r.Report.Outcomes),
			r.Report.Count(apply.StatusApplied),
			r.Report.Count(apply.StatusSkipped),
			r.Report.Count(apply.StatusFailed))
	}
	if r.Diff != "" {
		b.WriteString("\n")
		b.WriteString(r.Diff)
	}
	return strings.TrimRight(b.String(), "\n")
}

type runView struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Source     string `json:"source,omitempty"`
	Model      string `json:"model,omitempty"`
	Document   string `json:"document,omitempty"`
	Operations int    `json:"operations"`
	Applied    int    `json:"applied"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// FormatRuns renders recorded runs, newest first.
func FormatRuns(runs []history.Run, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		if len(runs) == 0 {
			return mutedStyle.Render("no runs recorded"), nil
		}
		lines := make([]string, 0, len(runs))
		for _, run := range runs {
			line := fmt.Sprintf("%s  %-9s %d/%d applied  %s  %s",
				run.CreatedAt.Local().Format(time.DateTime), run.Action, run.Applied, run.Operations,
				run.Duration.Round(time.Millisecond), run.Document)
			style := lipgloss.NewStyle()
			if run.Failed > 0 || run.Error != "" {
				style = failedStyle
			}
			lines = append(lines, style.Render(line)+"  "+mutedStyle.Render(run.ID))
		}
		return strings.Join(lines, "\n"), nil
	case JSONFormat:
		views := make([]runView, 0, len(runs))
		for _, run := range runs {
			views = append(views, toRunView(run))
		}
		return marshal(views)
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func toRunView(run history.Run) runView {
	return runView{
		ID:         run.ID,
		Action:     run.Action,
		Source:     run.Source,
		Model:      run.Model,
		Document:   run.Document,
		Operations: run.Operations,
		Applied:    run.Applied,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		DurationMS: run.Duration.Milliseconds(),
		Error:      run.Error,
		CreatedAt:  run.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type logView struct {
	Timestamp  string            `json:"timestamp"`
	Level      string            `json:"level"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// FormatRun renders one run with the log records written while it ran.
func FormatRun(run history.Run, logs []logging.Log, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		var b strings.Builder
		b.WriteString(titleStyle.Render(fmt.Sprintf("%s · %s", run.Action, run.ID)))
		b.WriteString("\n")
		fields := [][2]string{
			{"created", run.CreatedAt.Local().Format(time.DateTime)},
			{"source", run.Source},
			{"model", run.Model},
			{"document", run.Document},
			{"selection", fmt.Sprintf("[%d,%d)", run.SelectionStart, run.SelectionEnd)},
			{"operations", fmt.Sprintf("%d (%d applied, %d skipped, %d failed)", run.Operations, run.Applied, run.Skipped, run.Failed)},
			{"duration", run.Duration.Round(time.Millisecond).String()},
		}
		for _, f := range fields {
			if f[1] == "" {
				continue
			}
			fmt.Fprintf(&b, "  %-11s %s\n", f[0], f[1])
		}
		if run.Error != "" {
			fmt.Fprintf(&b, "  %-11s %s\n", "error", failedStyle.Render(run.Error))
		}
		if len(logs) > 0 {
			b.WriteString("\n")
		}
		for _, l := range logs {
			line := fmt.Sprintf("%s %-5s %s", l.Timestamp.Local().Format(time.TimeOnly), strings.ToUpper(l.Level), l.Message)
			if l.Level == "error" || l.Level == "warn" {
				line = failedStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
		return strings.TrimRight(b.String(), "\n"), nil
	case JSONFormat:
		views := make([]logView, 0, len(logs))
		for _, l := range logs {
			views = append(views, logView{
				Timestamp:  l.Timestamp.UTC().Format(time.RFC3339Nano),
				Level:      l.Level,
				Message:    l.Message,
				Attributes: l.Attributes,
			})
		}
		return marshal(struct {
			runView
			Logs []logView `json:"logs"`
		}{toRunView(run), views})
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func marshal(v any) (string, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}
