// Package tui is the interactive terminal front end of a research session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	session "github.com/koscakluka/cognito-session/core"
	"github.com/koscakluka/cognito-session/internal/render"
	"github.com/muesli/reflow/wordwrap"
)

const (
	visibleDiagnostics = 3
	// header, plan border, input, help and spacing
	chromeHeight = 8
)

// Controller is the part of [session.Controller] the UI drives.
type Controller interface {
	StartResearch(ctx context.Context, query string) bool
	ApprovePlan(ctx context.Context, approved bool) bool
	Cancel() bool
	Reset() bool
	Snapshot() session.State
	Subscribe(callback func(session.State)) (unsubscribe func())
}

// stateMsg carries a snapshot published by the controller.
type stateMsg session.State

type Model struct {
	ctx         context.Context
	controller  Controller
	updates     chan session.State
	unsubscribe func()

	keys     KeyMap
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	help     help.Model

	state  session.State
	width  int
	height int
	ready  bool
}

func NewModel(ctx context.Context, controller Controller) Model {
	ti := textinput.New()
	ti.Placeholder = "What should be researched?"
	ti.Prompt = "❯ "
	ti.PromptStyle = inputPromptStyle
	ti.CharLimit = 0
	ti.Width = 80
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stageStyle

	updates := make(chan session.State, 1)
	unsubscribe := controller.Subscribe(func(state session.State) {
		publishLatest(updates, state)
	})

	return Model{
		ctx:         ctx,
		controller:  controller,
		updates:     updates,
		unsubscribe: unsubscribe,
		keys:        DefaultKeyMap(),
		input:       ti,
		spinner:     sp,
		viewport:    viewport.New(80, 10),
		help:        help.New(),
		state:       controller.Snapshot(),
	}
}

// publishLatest keeps only the newest snapshot in ch. Snapshots are complete
// states, so an unread older one can be dropped.
func publishLatest(ch chan session.State, state session.State) {
	for {
		select {
		case ch <- state:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func waitForState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(state)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForState(m.updates))
}

// Close stops listening to the controller.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) acceptsQuery() bool {
	return !m.state.IsProcessing &&
		(m.state.Stage == session.StageIdle || m.state.Stage == session.StageCompleted)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.viewport.Width = max(msg.Width-2, 10)
		m.viewport.Height = max(msg.Height-chromeHeight-len(m.state.Plan), 3)
		m.input.Width = max(msg.Width-4, 10)
		m.help.Width = msg.Width
		m.refreshReport()
		return m, nil

	case stateMsg:
		state := session.State(msg)
		if state.Version > m.state.Version {
			m.applyState(state)
		}
		return m, waitForState(m.updates)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.controller.Cancel()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Cancel):
			m.controller.Cancel()
			return m.sync(), nil

		case key.Matches(msg, m.keys.Reset):
			if m.controller.Reset() {
				m.input.Reset()
			}
			return m.sync(), nil

		case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		if m.state.Stage == session.StageAwaitingApproval {
			switch {
			case key.Matches(msg, m.keys.Approve):
				if m.state.HasPendingApproval() {
					m.controller.ApprovePlan(m.ctx, true)
				}
				return m.sync(), nil
			case key.Matches(msg, m.keys.Reject):
				m.controller.ApprovePlan(m.ctx, false)
				return m.sync(), nil
			}
			return m, nil
		}

		if !m.acceptsQuery() {
			return m, nil
		}
		if key.Matches(msg, m.keys.Submit) {
			query := strings.TrimSpace(m.input.Value())
			if query != "" && m.controller.StartResearch(m.ctx, query) {
				m.input.Reset()
			}
			return m.sync(), nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// sync reads the controller state directly after an action, so the view does
// not wait for the published snapshot.
func (m Model) sync() Model {
	state := m.controller.Snapshot()
	if state.Version > m.state.Version {
		m.applyState(state)
	}
	return m
}

func (m *Model) applyState(state session.State) {
	reportChanged := state.Report != m.state.Report
	m.state = state
	if m.acceptsQuery() {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	if reportChanged {
		m.refreshReport()
	}
}

func (m *Model) refreshReport() {
	if m.state.Report == "" {
		m.viewport.SetContent("")
		return
	}
	m.viewport.SetContent(render.Markdown(m.state.Report, m.viewport.Width))
	if m.state.Stage == session.StageAnalyst {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	sections := []string{m.renderHeader()}
	if plan := m.renderPlan(); plan != "" {
		sections = append(sections, plan)
	}
	if m.state.Report != "" {
		sections = append(sections, m.viewport.View())
	}
	if diagnostics := m.renderDiagnostics(); diagnostics != "" {
		sections = append(sections, diagnostics)
	}
	sections = append(sections, m.renderPrompt(), m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("Cognito")
	label := render.StageLabel(m.state.Stage)

	var status string
	switch {
	case m.state.IsProcessing:
		status = m.spinner.View() + stageStyle.Render(label)
	case m.state.Stage == session.StageAwaitingApproval:
		status = approvalStyle.Render(label)
	case m.state.Stage == session.StageCompleted:
		status = completedStyle.Render("✓ " + label)
	default:
		status = mutedStyle.Render(label)
	}

	header := title + "  " + status
	if m.state.Query != "" {
		header += "\n" + mutedStyle.Render(wordwrap.String(m.state.Query, max(m.width-2, 20)))
	}
	return header
}

func (m Model) renderPlan() string {
	if len(m.state.Plan) == 0 {
		return ""
	}
	width := max(m.width-6, 20)
	lines := make([]string, 0, len(m.state.Plan))
	for i, step := range m.state.Plan {
		lines = append(lines, wordwrap.String(fmt.Sprintf("%d. %s", i+1, step), width))
	}
	return planStyle.Render(strings.Join(lines, "\n"))
}

func (m Model) renderDiagnostics() string {
	diagnostics := m.state.Diagnostics
	if len(diagnostics) == 0 {
		return ""
	}
	if len(diagnostics) > visibleDiagnostics {
		diagnostics = diagnostics[len(diagnostics)-visibleDiagnostics:]
	}
	lines := make([]string, 0, len(diagnostics))
	for _, d := range diagnostics {
		lines = append(lines, diagnosticStyle.Render(fmt.Sprintf("! %s: %s", d.Kind, d.Message)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderPrompt() string {
	switch {
	case m.state.HasPendingApproval():
		return approvalStyle.Render("Approve this plan? ") + mutedStyle.Render("y approve · n reject")
	case m.state.Stage == session.StageAwaitingApproval:
		return approvalStyle.Render("Waiting for the server to confirm the plan... ") + mutedStyle.Render("n reject")
	case m.acceptsQuery():
		return m.input.View()
	default:
		return mutedStyle.Render("ctrl+x to cancel")
	}
}
