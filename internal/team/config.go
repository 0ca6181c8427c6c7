package team

import (
	"fmt"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/phase"
)

// TeamSettings holds per-team tunables.
type TeamSettings struct {
	// MaxMembers caps the member list; 0 means unlimited.
	MaxMembers int `json:"maxMembers"`
	// AutoAssign lets the lead hand pending tasks to idle members.
	AutoAssign bool `json:"autoAssign"`
}

// TeamConfig is a team's configuration as persisted in config.json.
//
// LeadAgentID need not match any member's agentId: the orchestrating agent
// rotates its process-wide id between tool calls, and the discovery resolver
// compensates. Do not "fix" a lead id that matches no member.
type TeamConfig struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedAt   int64        `json:"createdAt"`
	LeadAgentID string       `json:"leadAgentId"`
	Phase       phase.Phase  `json:"phase"`
	Members     []TeamMember `json:"members"`
	Settings    TeamSettings `json:"settings"`
}

// NewTeamConfig returns a config for a fresh team in the planning phase.
func NewTeamConfig(name, description, leadAgentID string) *TeamConfig {
	return &TeamConfig{
		Name:        name,
		Description: description,
		CreatedAt:   NowMillis(),
		LeadAgentID: leadAgentID,
		Phase:       phase.Default,
		Members:     []TeamMember{},
		Settings:    TeamSettings{},
	}
}

// Validate checks the config against the schema invariants: the name
// character rule, a known phase, per-member validity, and member
// agentId/name uniqueness.
func (c *TeamConfig) Validate() error {
	if !ValidTeamName(c.Name) {
		return errors.NewTeamNameError().WithValue(c.Name)
	}
	if !c.Phase.IsValid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid team phase %q.", c.Phase)).
			WithField("phase").WithValue(string(c.Phase))
	}

	seenIDs := make(map[string]bool, len(c.Members))
	seenNames := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		if err := m.Validate(); err != nil {
			return err
		}
		if seenIDs[m.AgentID] {
			return errors.NewValidationError(fmt.Sprintf("Duplicate member agentId %q.", m.AgentID)).
				WithField("members").WithValue(m.AgentID)
		}
		if seenNames[m.Name] {
			return errors.NewValidationError(fmt.Sprintf("Duplicate member name %q.", m.Name)).
				WithField("members").WithValue(m.Name)
		}
		seenIDs[m.AgentID] = true
		seenNames[m.Name] = true
	}

	if c.Settings.MaxMembers > 0 && len(c.Members) > c.Settings.MaxMembers {
		return errors.NewValidationError(fmt.Sprintf("Team %q already has the maximum number of members.", c.Name)).
			WithField("members")
	}

	return nil
}

// Clone returns a deep copy of the config.
func (c *TeamConfig) Clone() *TeamConfig {
	out := *c
	out.Members = make([]TeamMember, len(c.Members))
	for i, m := range c.Members {
		out.Members[i] = m.Clone()
	}
	return &out
}

// FindMember returns the member with the given agentId, or nil.
func (c *TeamConfig) FindMember(agentID string) *TeamMember {
	for i := range c.Members {
		if c.Members[i].AgentID == agentID {
			return &c.Members[i]
		}
	}
	return nil
}

// FindMemberByName returns the member with the given name, or nil.
func (c *TeamConfig) FindMemberByName(name string) *TeamMember {
	for i := range c.Members {
		if c.Members[i].Name == name {
			return &c.Members[i]
		}
	}
	return nil
}

// LeadMember returns the member whose agentId equals LeadAgentID, or nil
// when the lead holds no membership record.
func (c *TeamConfig) LeadMember() *TeamMember {
	return c.FindMember(c.LeadAgentID)
}

// MemberNames returns the member names in list order.
func (c *TeamConfig) MemberNames() []string {
	names := make([]string, len(c.Members))
	for i, m := range c.Members {
		names[i] = m.Name
	}
	return names
}

// RepairRoles remaps every unknown member role to the closest built-in
// role. Returns the remapped (old -> new) pairs; empty means the config
// was untouched.
//
// This is the only auto-repair the fabric applies. Task and message schemas
// are never rewritten: silently mutating unknown message shapes would hide
// protocol drift.
func (c *TeamConfig) RepairRoles() map[string]string {
	remapped := make(map[string]string)
	for i := range c.Members {
		old := c.Members[i].Role
		if repaired := RepairRole(old); repaired != old {
			c.Members[i].Role = repaired
			remapped[old] = repaired
		}
	}
	return remapped
}

// TransitionPhase returns a new config in the next phase, leaving c
// untouched. The step must be a single forward transition; persisting the
// result stays with the caller.
func TransitionPhase(c *TeamConfig, next phase.Phase) (*TeamConfig, error) {
	if err := phase.Transition(c.Phase, next); err != nil {
		return nil, err
	}
	out := c.Clone()
	out.Phase = next
	return out, nil
}
