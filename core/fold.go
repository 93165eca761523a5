package session

import (
	"slices"

	"github.com/koscakluka/cognito-session/core/events"
	"github.com/koscakluka/cognito-session/internal/utils"
)

// machine holds the configuration the transition rules depend on. The same
// rules serve gated and autonomous deployments.
type machine struct {
	mode       Mode
	reportMode ReportMode
}

type foldOutcome struct {
	// changed is set when the state was mutated.
	changed bool
	// ignored is set when the event did not match a transition for the
	// current stage.
	ignored bool
	// release is set when no further events of the current stream may be
	// folded.
	release bool

	diagnostic *Diagnostic
}

var ignored = foldOutcome{ignored: true}

// fold applies one event to state. It is the only place stream events mutate
// the session.
func (m machine) fold(state *State, event events.Event) foldOutcome {
	switch e := event.(type) {
	case events.Progress:
		return m.foldProgress(state, e)

	case events.Interrupt:
		if m.mode != ModeGated {
			return ignored
		}
		if state.Stage != StageArchitect && state.Stage != StageAwaitingApproval {
			return ignored
		}
		token := e.SessionToken
		if token == "" && state.PendingApprovalToken != nil {
			token = *state.PendingApprovalToken
		}
		state.Stage = StageAwaitingApproval
		state.PendingApprovalToken = utils.Ptr(token)
		state.IsProcessing = false
		return foldOutcome{changed: true, release: true}

	case events.Token:
		// Gated on the stage at fold time, not on the stage the stream
		// started in.
		if m.reportMode != ReportAppend || state.Stage != StageAnalyst {
			return ignored
		}
		if e.Content == "" {
			return foldOutcome{}
		}
		state.Report += e.Content
		return foldOutcome{changed: true}

	case events.Terminate:
		outcome := foldOutcome{release: true}
		if state.IsProcessing {
			state.IsProcessing = false
			outcome.changed = true
		}
		return outcome

	case events.Malformed:
		message := "malformed payload"
		if e.Err != nil {
			message = e.Err.Error()
		}
		return foldOutcome{diagnostic: &Diagnostic{Kind: DiagnosticParse, Message: message}}

	case events.Failure:
		return foldOutcome{diagnostic: &Diagnostic{Kind: DiagnosticServer, Message: e.Message}}

	default:
		return ignored
	}
}

func (m machine) foldProgress(state *State, e events.Progress) foldOutcome {
	switch e.Phase {
	case events.PhaseArchitect:
		if state.Stage != StageArchitect || len(state.Plan) > 0 || len(e.Plan) == 0 {
			return ignored
		}
		state.Plan = slices.Clone(e.Plan)
		if m.mode == ModeGated {
			state.Stage = StageAwaitingApproval
			state.PendingApprovalToken = utils.Ptr(e.SessionToken)
			state.IsProcessing = false
		} else {
			state.Stage = StageResearcher
		}
		return foldOutcome{changed: true}

	case events.PhaseResearcher:
		if state.Stage != StageResearcher {
			return ignored
		}
		state.Stage = StageAnalyst
		return foldOutcome{changed: true}

	case events.PhaseAnalyst:
		if state.Stage != StageAnalyst {
			return ignored
		}
		if m.reportMode == ReportReplace {
			if e.FinalReport == nil {
				return ignored
			}
			state.Report = *e.FinalReport
		}
		state.Stage = StageCompleted
		state.IsProcessing = false
		return foldOutcome{changed: true, release: true}

	default:
		return ignored
	}
}
