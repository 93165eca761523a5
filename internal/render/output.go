// Package render formats session progress for line oriented terminal output.
package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	session "github.com/koscakluka/cognito-session/core"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

const planIndent = 4

// Renderer formats session snapshots. Pretty output uses colors and renders
// the report as markdown; plain output is stable text for pipes and logs.
type Renderer struct {
	pretty bool
	width  int
}

func New(pretty bool, width int) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	return &Renderer{pretty: pretty, width: width}
}

// StageLabel names what the pipeline does while in stage.
func StageLabel(stage session.Stage) string {
	switch stage {
	case session.StageIdle:
		return "Idle"
	case session.StageArchitect:
		return "Planning"
	case session.StageAwaitingApproval:
		return "Waiting for approval"
	case session.StageResearcher:
		return "Researching"
	case session.StageAnalyst:
		return "Writing report"
	case session.StageCompleted:
		return "Completed"
	default:
		return string(stage)
	}
}

// Stage formats the one line status of state.
func (r *Renderer) Stage(state session.State) string {
	label := StageLabel(state.Stage)
	if !r.pretty {
		return fmt.Sprintf("[%s] %s processing=%v", state.Stage, label, state.IsProcessing)
	}

	marker := color.HiBlackString("○")
	switch {
	case state.IsProcessing:
		marker = color.CyanString("●")
	case state.Stage == session.StageCompleted:
		marker = color.GreenString("✓")
	case state.Stage == session.StageAwaitingApproval:
		marker = color.YellowString("?")
	}
	return fmt.Sprintf("%s %s", marker, label)
}

// Plan formats the research plan as a numbered, wrapped list.
func (r *Renderer) Plan(plan []string) string {
	if len(plan) == 0 {
		return ""
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Research plan") + "\n")
	} else {
		sb.WriteString("Research plan:\n")
	}
	for i, step := range plan {
		number := fmt.Sprintf("%d.", i+1)
		if r.pretty {
			number = color.HiBlackString(number)
		}
		wrapped := wordwrap.String(step, max(r.width-planIndent, 20))
		body := indent.String(wrapped, planIndent)
		fmt.Fprintf(&sb, "  %s %s\n", number, strings.TrimLeft(body, " "))
	}
	return sb.String()
}

// Diagnostic formats a recoverable error on one line.
func (r *Renderer) Diagnostic(d session.Diagnostic) string {
	message := truncate.StringWithTail(strings.ReplaceAll(d.Message, "\n", " "), uint(max(r.width-16, 20)), "…")
	if !r.pretty {
		return fmt.Sprintf("warning: %s: %s", d.Kind, message)
	}
	return fmt.Sprintf("%s %s %s", color.YellowString("!"), color.HiBlackString(string(d.Kind)), message)
}

// Report formats the final report.
func (r *Renderer) Report(report string) string {
	if strings.TrimSpace(report) == "" {
		return ""
	}
	if !r.pretty {
		return strings.TrimRight(report, "\n")
	}
	return Markdown(report, r.width)
}

func (r *Renderer) ApprovalPrompt() string {
	if !r.pretty {
		return "Approve plan? [y/N] "
	}
	return color.YellowString("Approve plan?") + " [y/N] "
}
