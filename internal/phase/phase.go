// Package phase implements the team maturity lifecycle and its tool gating.
//
// A team moves through six strictly ordered phases, one step at a time:
//
//	planning -> pre-alpha -> alpha -> beta -> production -> mature
//
// Team-scoped tools unlock as the team matures. Tools outside the team set
// always pass through the gate untouched.
package phase

import (
	"sort"

	"github.com/levelcode/teamfabric/internal/errors"
)

// Phase is a team lifecycle stage.
type Phase string

// The lifecycle stages, in order.
const (
	Planning   Phase = "planning"
	PreAlpha   Phase = "pre-alpha"
	Alpha      Phase = "alpha"
	Beta       Phase = "beta"
	Production Phase = "production"
	Mature     Phase = "mature"
)

// ordered lists the phases in lifecycle order. Index positions drive every
// comparison in this package.
var ordered = []Phase{Planning, PreAlpha, Alpha, Beta, Production, Mature}

// Default is the phase a newly created team starts in.
const Default = Planning

// All returns the phases in lifecycle order.
func All() []Phase {
	out := make([]Phase, len(ordered))
	copy(out, ordered)
	return out
}

// String returns the phase name.
func (p Phase) String() string {
	return string(p)
}

// Index returns the position of p in the lifecycle, or -1 if p is not a
// known phase.
func (p Phase) Index() int {
	for i, candidate := range ordered {
		if candidate == p {
			return i
		}
	}
	return -1
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	return p.Index() >= 0
}

// Next returns the phase after p, or false if p is the final phase or
// unknown.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i == len(ordered)-1 {
		return "", false
	}
	return ordered[i+1], true
}

// AtLeast reports whether p has reached min in the lifecycle. Unknown
// phases never satisfy any minimum.
func (p Phase) AtLeast(min Phase) bool {
	pi, mi := p.Index(), min.Index()
	return pi >= 0 && mi >= 0 && pi >= mi
}

// CanTransition reports whether from -> to is a legal single forward step.
func CanTransition(from, to Phase) bool {
	fi, ti := from.Index(), to.Index()
	return fi >= 0 && ti >= 0 && ti == fi+1
}

// Transition validates from -> to, returning the canonical transition error
// when the step is backward, skipping, lateral, or involves an unknown
// phase.
func Transition(from, to Phase) error {
	if !CanTransition(from, to) {
		return errors.NewTransitionError(from.String(), to.String())
	}
	return nil
}

// minimumPhase maps each team-scoped tool to the first phase where it
// unlocks. Tools absent from this map are not team-scoped and are never
// gated.
var minimumPhase = map[string]Phase{
	"task_create": Planning,
	"task_update": Planning,
	"task_get":    Planning,
	"task_list":   Planning,

	"send_message": PreAlpha,
	"team_create":  PreAlpha,

	"team_delete":        Alpha,
	"spawn_agents":       Alpha,
	"spawn_agent_inline": Alpha,
}

// IsTeamTool reports whether the tool is subject to phase gating.
func IsTeamTool(tool string) bool {
	_, ok := minimumPhase[tool]
	return ok
}

// IsToolAllowed reports whether the tool may run while the team is in p.
// Non-team tools are always allowed.
func IsToolAllowed(tool string, p Phase) bool {
	min, ok := minimumPhase[tool]
	if !ok {
		return true
	}
	return p.AtLeast(min)
}

// MinimumPhaseForTool returns the first phase where the tool is allowed.
// The second return is false for non-team tools, which have no minimum.
func MinimumPhaseForTool(tool string) (Phase, bool) {
	min, ok := minimumPhase[tool]
	return min, ok
}

// PhaseTools returns the team-scoped tools available in p, sorted by name.
// Later phases always return a superset of earlier ones.
func PhaseTools(p Phase) []string {
	var tools []string
	for tool, min := range minimumPhase {
		if p.AtLeast(min) {
			tools = append(tools, tool)
		}
	}
	sort.Strings(tools)
	return tools
}

// CheckTool returns nil when the tool may run in p, or a gate error naming
// the phase the team must reach first.
func CheckTool(tool string, p Phase) error {
	if IsToolAllowed(tool, p) {
		return nil
	}
	min := minimumPhase[tool]
	return errors.NewGateError(tool, p.String(), min.String())
}
