package events

type Phase string

const (
	PhaseArchitect  Phase = "architect"
	PhaseResearcher Phase = "researcher"
	PhaseAnalyst    Phase = "analyst"
)

// ProgressPayload is the phase specific part of a progress event. Fields not
// produced by the phase are left empty.
type ProgressPayload struct {
	Plan         []string
	FinalReport  *string
	SessionToken string
}

// Progress reports that a pipeline phase finished.
type Progress struct {
	Base
	Phase Phase
	ProgressPayload
}

func (e Progress) String() string { return "progress " + string(e.Phase) }

func NewProgress(phase Phase, payload ProgressPayload) Progress {
	return Progress{Base: NewBase(KindProgress), Phase: phase, ProgressPayload: payload}
}
