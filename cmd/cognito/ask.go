package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	session "github.com/koscakluka/cognito-session/core"
	"github.com/koscakluka/cognito-session/internal/render"
	"github.com/spf13/cobra"
)

func askCmd(flags *globalFlags) *cobra.Command {
	var approve, reject bool

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Run one research query and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve && reject {
				return errors.New("--yes and --reject are mutually exclusive")
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			opts, err := sessionOptions(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := render.New(isTerminal(out), terminalWidth(out))
			p := &progressPrinter{out: out, renderer: r}
			opts = append(opts, session.WithStateCallback(p.print))

			c := session.New(newTransport(cfg), opts...)
			defer c.Close()

			decision := approvalFromFlags(approve, reject)
			if decision == nil {
				decision = promptApproval(cmd.InOrStdin(), out, r)
			}
			return runQuery(cmd, c, strings.Join(args, " "), decision, r)
		},
	}

	cmd.Flags().BoolVarP(&approve, "yes", "y", false, "approve the research plan without asking")
	cmd.Flags().BoolVar(&reject, "reject", false, "reject the research plan")
	return cmd
}

// approvalFunc decides on a plan that waits for approval.
type approvalFunc func(plan []string) (bool, error)

func approvalFromFlags(approve, reject bool) approvalFunc {
	switch {
	case approve:
		return func([]string) (bool, error) { return true, nil }
	case reject:
		return func([]string) (bool, error) { return false, nil }
	default:
		return nil
	}
}

func promptApproval(in io.Reader, out io.Writer, r *render.Renderer) approvalFunc {
	reader := bufio.NewReader(in)
	return func([]string) (bool, error) {
		fmt.Fprint(out, r.ApprovalPrompt())
		answer, err := reader.ReadString('\n')
		if err != nil && (answer == "" || !errors.Is(err, io.EOF)) {
			return false, fmt.Errorf("plan needs approval, pass --yes or --reject: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

func runQuery(cmd *cobra.Command, c *session.Controller, query string, decide approvalFunc, r *render.Renderer) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !c.StartResearch(ctx, query) {
		return errors.New("query must not be empty")
	}
	if err := c.Wait(ctx); err != nil {
		return err
	}

	state := c.Snapshot()
	if state.Stage == session.StageAwaitingApproval {
		if !state.HasPendingApproval() {
			c.ApprovePlan(ctx, false)
			return errors.New("plan is waiting for approval but the server sent no thread id")
		}
		approved, err := decide(state.Plan)
		if err != nil {
			return err
		}
		c.ApprovePlan(ctx, approved)
		if !approved {
			fmt.Fprintln(out, "Plan rejected.")
			return nil
		}
		if err := c.Wait(ctx); err != nil {
			return err
		}
		state = c.Snapshot()
	}

	if state.Stage != session.StageCompleted {
		if n := len(state.Diagnostics); n > 0 {
			return fmt.Errorf("research stopped while %s: %s", strings.ToLower(render.StageLabel(state.Stage)), state.Diagnostics[n-1].Message)
		}
		return fmt.Errorf("research stopped while %s", strings.ToLower(render.StageLabel(state.Stage)))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, r.Report(state.Report))
	return nil
}

// progressPrinter writes stage changes, the plan and new diagnostics as they
// are published.
type progressPrinter struct {
	out      io.Writer
	renderer *render.Renderer

	mu          sync.Mutex
	lastStage   session.Stage
	planShown   bool
	diagnostics int
	runID       string
}

func (p *progressPrinter) print(state session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state.RunID != p.runID {
		p.runID = state.RunID
		p.planShown = false
		p.diagnostics = 0
	}
	if state.Stage != p.lastStage {
		p.lastStage = state.Stage
		fmt.Fprintln(p.out, p.renderer.Stage(state))
	}
	if !p.planShown && len(state.Plan) > 0 {
		p.planShown = true
		fmt.Fprint(p.out, p.renderer.Plan(state.Plan))
	}
	for _, d := range state.Diagnostics[min(p.diagnostics, len(state.Diagnostics)):] {
		fmt.Fprintln(p.out, p.renderer.Diagnostic(d))
	}
	p.diagnostics = len(state.Diagnostics)
}
