package render

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	session "github.com/koscakluka/cognito-session/core"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestPlainStage(t *testing.T) {
	r := New(false, 80)
	out := r.Stage(session.State{Stage: session.StageResearcher, IsProcessing: true})
	assert.Equal(t, "[researcher] Researching processing=true", out)
}

func TestPrettyStageMarkers(t *testing.T) {
	r := New(true, 80)

	tests := []struct {
		state session.State
		want  string
	}{
		{state: session.State{Stage: session.StageArchitect, IsProcessing: true}, want: "● Planning"},
		{state: session.State{Stage: session.StageAwaitingApproval}, want: "? Waiting for approval"},
		{state: session.State{Stage: session.StageCompleted}, want: "✓ Completed"},
		{state: session.State{Stage: session.StageIdle}, want: "○ Idle"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Stage(tt.state))
	}
}

func TestPlanIsNumberedAndWrapped(t *testing.T) {
	r := New(false, 30)
	out := r.Plan([]string{"Short step", "A much longer step that has to wrap across lines"})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "Research plan:", lines[0])
	assert.Equal(t, "  1. Short step", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "  2. A much"))
	assert.Greater(t, len(lines), 3)
	for _, line := range lines[3:] {
		assert.True(t, strings.HasPrefix(line, "    "), "continuation %q is indented", line)
	}
	assert.Empty(t, r.Plan(nil))
}

func TestDiagnosticIsSingleLine(t *testing.T) {
	r := New(false, 40)
	out := r.Diagnostic(session.Diagnostic{
		Kind:    session.DiagnosticParse,
		Message: "parse error: invalid JSON:\ninvalid character 'o' in literal null (expecting 'u')",
	})
	assert.NotContains(t, out, "\n")
	assert.True(t, strings.HasPrefix(out, "warning: parse: parse error"))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestReport(t *testing.T) {
	plain := New(false, 80)
	assert.Equal(t, "# Report\nDone.", plain.Report("# Report\nDone.\n"))
	assert.Empty(t, plain.Report("  \n"))

	pretty := New(true, 80)
	out := pretty.Report("# Report\n\nDone.")
	assert.Contains(t, out, "Report")
	assert.Contains(t, out, "Done.")
}

func TestMarkdownEmptyInput(t *testing.T) {
	assert.Empty(t, Markdown("\n\n", 40))
}
