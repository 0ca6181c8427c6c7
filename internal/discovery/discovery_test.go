package discovery

import (
	"testing"

	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// =============================================================================
// Test Helpers
// =============================================================================

func newTestResolver(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return New(s), s
}

func createTeam(t *testing.T, s *store.Store, name, leadAgentID string, members ...team.TeamMember) {
	t.Helper()
	cfg := team.NewTeamConfig(name, "test team", leadAgentID)
	if err := s.CreateTeam(cfg); err != nil {
		t.Fatalf("CreateTeam(%q) failed: %v", name, err)
	}
	for _, m := range members {
		if err := s.AddTeamMember(name, m); err != nil {
			t.Fatalf("AddTeamMember(%q, %q) failed: %v", name, m.Name, err)
		}
	}
}

func member(agentID, name string) team.TeamMember {
	return team.TeamMember{AgentID: agentID, Name: name, Role: "senior-engineer"}
}

// =============================================================================
// FindCurrentTeam
// =============================================================================

func TestResolver_ExactMemberMatch(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("agent-7", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-8", "tester"))

	cfg, err := r.FindCurrentTeam("agent-8")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg == nil || cfg.Name != "beta" {
		t.Errorf("FindCurrentTeam = %v, want beta", cfg)
	}
}

func TestResolver_ExactLeadPrefixedMemberMatch(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("lead-agent-7", "team-lead"))
	createTeam(t, s, "beta", "lead-y", member("agent-8", "tester"))

	// The member was registered under the rotated "lead-" prefix.
	cfg, name, err := r.FindCurrentTeamAndAgent("agent-7")
	if err != nil {
		t.Fatalf("FindCurrentTeamAndAgent failed: %v", err)
	}
	if cfg == nil || cfg.Name != "alpha" {
		t.Fatalf("resolved team = %v, want alpha", cfg)
	}
	if name != "team-lead" {
		t.Errorf("resolved name = %q, want team-lead (the matched member)", name)
	}
}

func TestResolver_ExactLeadIDMatch(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-agent-7", member("agent-1", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-8", "tester"))

	cfg, err := r.FindCurrentTeam("agent-7")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg == nil || cfg.Name != "alpha" {
		t.Errorf("FindCurrentTeam = %v, want alpha", cfg)
	}
}

func TestResolver_SingleTeamShortcut(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "solo", "lead-x", member("agent-1", "developer"))

	// The agent id matches nothing, but there is only one team.
	cfg, err := r.FindCurrentTeam("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg == nil || cfg.Name != "solo" {
		t.Errorf("FindCurrentTeam = %v, want solo", cfg)
	}
}

func TestResolver_LastActiveMarker(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("agent-1", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-2", "tester"))
	s.SetLastActiveTeam("beta")

	cfg, err := r.FindCurrentTeam("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg == nil || cfg.Name != "beta" {
		t.Errorf("FindCurrentTeam = %v, want beta via marker", cfg)
	}
}

func TestResolver_MarkerNamingMissingTeam(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("agent-1", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-2", "tester"))
	s.SetLastActiveTeam("gamma")

	cfg, err := r.FindCurrentTeam("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("FindCurrentTeam = %v, want nil for a dangling marker", cfg)
	}
}

func TestResolver_NoTeams(t *testing.T) {
	r, _ := newTestResolver(t)

	cfg, err := r.FindCurrentTeam("agent-1")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg != nil {
		t.Errorf("FindCurrentTeam = %v, want nil on an empty store", cfg)
	}
}

func TestResolver_ExactBeatsMarker(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("agent-1", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-2", "tester"))
	s.SetLastActiveTeam("beta")

	cfg, err := r.FindCurrentTeam("agent-1")
	if err != nil {
		t.Fatalf("FindCurrentTeam failed: %v", err)
	}
	if cfg == nil || cfg.Name != "alpha" {
		t.Errorf("FindCurrentTeam = %v, want alpha (exact match wins over marker)", cfg)
	}
}

// =============================================================================
// FindCurrentTeamAndAgent
// =============================================================================

func TestResolver_AgentName_ExactMatch(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x",
		member("agent-1", "developer"),
		member("agent-2", "tester"),
	)
	createTeam(t, s, "beta", "lead-y", member("agent-3", "writer"))

	cfg, name, err := r.FindCurrentTeamAndAgent("agent-2")
	if err != nil {
		t.Fatalf("FindCurrentTeamAndAgent failed: %v", err)
	}
	if cfg == nil || cfg.Name != "alpha" {
		t.Fatalf("resolved team = %v, want alpha", cfg)
	}
	if name != "tester" {
		t.Errorf("resolved name = %q, want tester", name)
	}
}

func TestResolver_AgentName_FallbackUsesLeadMember(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "solo", "lead-1",
		member("lead-1", "orchestrator"),
		member("agent-2", "developer"),
	)

	_, name, err := r.FindCurrentTeamAndAgent("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeamAndAgent failed: %v", err)
	}
	if name != "orchestrator" {
		t.Errorf("resolved name = %q, want the lead member's name", name)
	}
}

func TestResolver_AgentName_FallbackDefault(t *testing.T) {
	r, s := newTestResolver(t)
	// LeadAgentID matches no member, so there is no lead member.
	createTeam(t, s, "solo", "lead-ghost", member("agent-2", "developer"))

	_, name, err := r.FindCurrentTeamAndAgent("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeamAndAgent failed: %v", err)
	}
	if name != DefaultAgentName {
		t.Errorf("resolved name = %q, want %q", name, DefaultAgentName)
	}
}

func TestResolver_AgentName_NoMatch(t *testing.T) {
	r, s := newTestResolver(t)
	createTeam(t, s, "alpha", "lead-x", member("agent-1", "developer"))
	createTeam(t, s, "beta", "lead-y", member("agent-2", "tester"))

	cfg, name, err := r.FindCurrentTeamAndAgent("unknown-agent")
	if err != nil {
		t.Fatalf("FindCurrentTeamAndAgent failed: %v", err)
	}
	if cfg != nil || name != "" {
		t.Errorf("FindCurrentTeamAndAgent = (%v, %q), want (nil, \"\")", cfg, name)
	}
}
