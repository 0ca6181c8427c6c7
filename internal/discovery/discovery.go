// Package discovery resolves which team an agent belongs to.
//
// An agent's process-wide identifier may rotate between the moment a team
// is created and the moment the agent asks "which team am I in?". The
// resolver compensates with a fallback ladder over the team store:
//
//  1. Exact match: a team whose leadAgentId is "lead-"+agentID, or any
//     member whose agentId equals agentID or "lead-"+agentID.
//  2. Single-team shortcut: exactly one team on disk resolves to it.
//  3. Last-active marker: the .last-active-team file names an existing
//     team.
//  4. Otherwise no team.
//
// The resolver is read-only; the marker it consults is written by team
// creation as a best-effort hint.
package discovery

import (
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// DefaultAgentName is returned by FindCurrentTeamAndAgent when a fallback
// resolution has no lead member to take a name from.
const DefaultAgentName = "team-lead"

// Resolver maps agent identifiers to teams.
type Resolver struct {
	store  *store.Store
	logger *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a Resolver over the given store.
func New(st *store.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  st,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FindCurrentTeam resolves the team for an agent identifier. It returns
// (nil, nil) when no rung of the ladder matches; errors are reserved for
// store failures.
func (r *Resolver) FindCurrentTeam(agentID string) (*team.TeamConfig, error) {
	cfg, _, err := r.resolve(agentID)
	return cfg, err
}

// FindCurrentTeamAndAgent resolves the team and the matched member name
// for an agent identifier. When the resolution came from a fallback rung
// (or the lead id matched without a corresponding member entry), the name
// defaults to the lead member's name, or "team-lead" when the team has no
// lead member.
func (r *Resolver) FindCurrentTeamAndAgent(agentID string) (*team.TeamConfig, string, error) {
	cfg, member, err := r.resolve(agentID)
	if err != nil || cfg == nil {
		return nil, "", err
	}
	if member != nil {
		return cfg, member.Name, nil
	}
	return cfg, defaultAgentName(cfg), nil
}

// resolve walks the ladder. The returned member is non-nil only for an
// exact member match.
func (r *Resolver) resolve(agentID string) (*team.TeamConfig, *team.TeamMember, error) {
	teams, err := r.store.ListTeams()
	if err != nil {
		return nil, nil, err
	}

	leadID := "lead-" + agentID

	// Rung 1: exact match on lead id or a member's agent id.
	for _, cfg := range teams {
		if member := cfg.FindMember(agentID); member != nil {
			return cfg, member, nil
		}
		if member := cfg.FindMember(leadID); member != nil {
			return cfg, member, nil
		}
		if cfg.LeadAgentID == leadID {
			r.logger.Debug("resolved team by lead id", "team", cfg.Name, "agent", agentID)
			return cfg, nil, nil
		}
	}

	// Rung 2: a lone team needs no evidence.
	if len(teams) == 1 {
		r.logger.Debug("resolved lone team", "team", teams[0].Name, "agent", agentID)
		return teams[0], nil, nil
	}

	// Rung 3: the last-active marker, if it still names a real team.
	if marker := r.store.LastActiveTeam(); marker != "" {
		for _, cfg := range teams {
			if cfg.Name == marker {
				r.logger.Debug("resolved team by marker", "team", marker, "agent", agentID)
				return cfg, nil, nil
			}
		}
		r.logger.Debug("last-active marker names a missing team", "marker", marker)
	}

	return nil, nil, nil
}

// defaultAgentName picks the fallback member name for a resolution that
// did not match a specific member.
func defaultAgentName(cfg *team.TeamConfig) string {
	if lead := cfg.LeadMember(); lead != nil {
		return lead.Name
	}
	return DefaultAgentName
}
