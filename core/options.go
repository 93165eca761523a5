package session

import (
	"fmt"
	"strings"

	"github.com/koscakluka/cognito-session/core/stream"
)

const defaultMaxDiagnostics = 50

// Mode selects whether a run pauses for approval between planning and
// execution.
type Mode int

const (
	// ModeGated pauses after the plan is produced until ApprovePlan is called.
	ModeGated Mode = iota
	// ModeAutonomous proceeds through all phases without pausing.
	ModeAutonomous
)

func (m Mode) String() string {
	switch m {
	case ModeAutonomous:
		return "autonomous"
	default:
		return "gated"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "gated":
		return ModeGated, nil
	case "autonomous":
		return ModeAutonomous, nil
	default:
		return ModeGated, fmt.Errorf("unknown mode %q", s)
	}
}

// ReportMode selects how the report is built. A run uses exactly one of them.
type ReportMode int

const (
	// ReportReplace takes the report from the analyst progress event.
	ReportReplace ReportMode = iota
	// ReportAppend builds the report from token events while in the analyst
	// stage.
	ReportAppend
)

func (m ReportMode) String() string {
	switch m {
	case ReportAppend:
		return "append"
	default:
		return "replace"
	}
}

func ParseReportMode(s string) (ReportMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replace":
		return ReportReplace, nil
	case "append", "tokens":
		return ReportAppend, nil
	default:
		return ReportReplace, fmt.Errorf("unknown report mode %q", s)
	}
}

type Option func(*Controller)

func WithMode(mode Mode) Option {
	return func(c *Controller) { c.machine.mode = mode }
}

func WithReportMode(mode ReportMode) Option {
	return func(c *Controller) { c.machine.reportMode = mode }
}

// WithMaxLineBytes bounds the size of a single stream line.
func WithMaxLineBytes(n int) Option {
	return func(c *Controller) {
		c.lineOptions = append(c.lineOptions, stream.WithMaxLineBytes(n))
	}
}

// WithMaxDiagnostics bounds the diagnostics kept in the state of a run. The
// oldest entries are dropped first.
func WithMaxDiagnostics(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxDiagnostics = n
		}
	}
}

// WithStateCallback registers an observer that receives every state change.
// It is equivalent to calling Subscribe right after New.
func WithStateCallback(callback func(State)) Option {
	return func(c *Controller) {
		if callback != nil {
			c.observers.add(callback)
		}
	}
}

// WithDiagnosticCallback registers a callback for every recoverable error the
// controller records. err is the original error, when there is one.
func WithDiagnosticCallback(callback func(diagnostic Diagnostic, err error)) Option {
	return func(c *Controller) { c.onDiagnostic = callback }
}
