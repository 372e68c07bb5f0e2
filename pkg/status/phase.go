package status

import "fmt"

// Phase is a derived, display-only stage of a project.
// it is recomputed from status and flags on every call, never stored.
type Phase string

// Phase constants in lifecycle order.
const (
	PhaseSubmitted Phase = "submitted"
	PhaseInDesign  Phase = "in_design"
	PhaseReview    Phase = "review"
	PhaseRevisions Phase = "revisions"
	PhaseApproved  Phase = "approved"
	PhaseDelivered Phase = "delivered"
)

// PhaseInfo pairs a phase key with its display label.
type PhaseInfo struct {
	Key   Phase  `json:"key"`
	Label string `json:"label"`
}

// phaseTable is the fixed phase order. index position encodes temporal precedence.
var phaseTable = [...]PhaseInfo{
	{Key: PhaseSubmitted, Label: "Submitted"},
	{Key: PhaseInDesign, Label: "In design"},
	{Key: PhaseReview, Label: "Review"},
	{Key: PhaseRevisions, Label: "Revisions"},
	{Key: PhaseApproved, Label: "Approved"},
	{Key: PhaseDelivered, Label: "Delivered"},
}

// Phases returns the ordered phase list. the result is a copy and safe to modify.
func Phases() []PhaseInfo {
	res := make([]PhaseInfo, len(phaseTable))
	copy(res, phaseTable[:])
	return res
}

// IndexOf returns the position of the phase in lifecycle order, or -1 for an unknown key.
func IndexOf(p Phase) int {
	for i, info := range phaseTable {
		if info.Key == p {
			return i
		}
	}
	return -1
}

// MustIndexOf is like IndexOf but panics on an unknown key.
// an unknown key here means the caller built a Phase outside the closed set.
func MustIndexOf(p Phase) int {
	idx := IndexOf(p)
	if idx < 0 {
		panic(fmt.Sprintf("status: unknown phase %q", string(p)))
	}
	return idx
}

// Valid reports whether the phase is one of the defined keys.
func (p Phase) Valid() bool {
	return IndexOf(p) >= 0
}

// Label returns the human-readable label, or the raw key for unknown phases.
func (p Phase) Label() string {
	if idx := IndexOf(p); idx >= 0 {
		return phaseTable[idx].Label
	}
	return string(p)
}

// String returns the phase key.
func (p Phase) String() string {
	return string(p)
}

// Step is the display state of a phase relative to the current one.
type Step string

// step state constants.
const (
	StepCompleted Step = "completed"
	StepCurrent   Step = "current"
	StepUpcoming  Step = "upcoming"
)

// StepState classifies step against current.
// unknown keys on either side yield StepUpcoming so progress is never over-stated.
func StepState(step, current Phase) Step {
	si, ci := IndexOf(step), IndexOf(current)
	if si < 0 || ci < 0 {
		return StepUpcoming
	}
	switch {
	case si < ci:
		return StepCompleted
	case si == ci:
		return StepCurrent
	default:
		return StepUpcoming
	}
}

// StepInfo is a phase with its computed step state, ready for a stepper widget.
type StepInfo struct {
	PhaseInfo
	State Step `json:"state"`
}

// Steps returns the full ordered phase list annotated with step state for the current phase.
func Steps(current Phase) []StepInfo {
	res := make([]StepInfo, 0, len(phaseTable))
	for _, info := range phaseTable {
		res = append(res, StepInfo{PhaseInfo: info, State: StepState(info.Key, current)})
	}
	return res
}
