package session

import (
	"time"

	"github.com/jinzhu/copier"
)

type DiagnosticKind string

const (
	DiagnosticConnection DiagnosticKind = "connection"
	DiagnosticDecode     DiagnosticKind = "decode"
	DiagnosticParse      DiagnosticKind = "parse"
	DiagnosticServer     DiagnosticKind = "server"
)

// Diagnostic is a recoverable error recorded during a run.
type Diagnostic struct {
	At      time.Time
	RunID   string
	Kind    DiagnosticKind
	Message string
}

// State is the observable view of the session.
//
// Invariants held after every mutation:
//   - IsProcessing is false whenever Stage is idle, awaiting_approval or
//     completed.
//   - PendingApprovalToken is non-nil exactly while Stage is
//     awaiting_approval. The token itself may be empty until the server
//     sends it.
//   - Plan is only set once the architect phase completed; Report only once
//     the analyst phase began.
type State struct {
	Stage                Stage
	Plan                 []string
	Report               string
	IsProcessing         bool
	PendingApprovalToken *string

	RunID       string
	Query       string
	Diagnostics []Diagnostic

	// Version increases with every change, observers may use it to discard
	// snapshots they already handled.
	Version uint64
}

func newIdleState(version uint64) State {
	return State{Stage: StageIdle, Version: version}
}

var copyOptions = copier.Option{
	DeepCopy: true,
	Converters: []copier.TypeConverter{
		{
			SrcType: time.Time{},
			DstType: time.Time{},
			Fn:      func(src any) (any, error) { return src, nil },
		},
	},
}

// clone returns a copy of s sharing no memory with it.
func (s State) clone() State {
	var out State
	if err := copier.CopyWithOption(&out, &s, copyOptions); err != nil {
		logger.Error("failed to copy session state", "error", err)
		out = s
		out.Plan = append([]string(nil), s.Plan...)
		out.Diagnostics = append([]Diagnostic(nil), s.Diagnostics...)
		if s.PendingApprovalToken != nil {
			token := *s.PendingApprovalToken
			out.PendingApprovalToken = &token
		}
	}
	return out
}

// HasPendingApproval reports whether the plan can be approved: the session
// is at the approval gate and the server sent the token approval is
// correlated with. Until then the plan can only be rejected.
func (s State) HasPendingApproval() bool {
	return s.Stage == StageAwaitingApproval && s.PendingApprovalToken != nil && *s.PendingApprovalToken != ""
}
