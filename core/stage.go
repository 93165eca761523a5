package session

import "slices"

type Stage string

const (
	StageIdle             Stage = "idle"
	StageArchitect        Stage = "architect"
	StageAwaitingApproval Stage = "awaiting_approval"
	StageResearcher       Stage = "researcher"
	StageAnalyst          Stage = "analyst"
	StageCompleted        Stage = "completed"
)

var transitions = map[Stage][]Stage{
	StageIdle:             {StageArchitect},
	StageArchitect:        {StageAwaitingApproval, StageResearcher},
	StageAwaitingApproval: {StageResearcher, StageIdle},
	StageResearcher:       {StageAnalyst},
	StageAnalyst:          {StageCompleted},
	StageCompleted:        {StageArchitect},
}

// CanTransition reports whether to directly follows from in the stage graph.
// Staying in the same stage is always allowed. Reset to idle is an explicit
// action outside the graph.
func CanTransition(from, to Stage) bool {
	if from == to {
		return true
	}
	return slices.Contains(transitions[from], to)
}

func (s Stage) String() string { return string(s) }
