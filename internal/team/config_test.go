package team

import (
	"testing"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/phase"
)

func validConfig() *TeamConfig {
	cfg := NewTeamConfig("alpha", "test team", "lead-1")
	cfg.Members = []TeamMember{
		{AgentID: "lead-1", Name: "team-lead", Role: RoleTeamLead, JoinedAt: NowMillis(), Status: StatusActive},
		{AgentID: "dev-1", Name: "dev", Role: RoleSeniorEngineer, JoinedAt: NowMillis(), Status: StatusIdle},
	}
	return cfg
}

func TestNewTeamConfig(t *testing.T) {
	cfg := NewTeamConfig("alpha", "a team", "lead-1")

	if cfg.Phase != phase.Planning {
		t.Errorf("Phase = %q, want planning", cfg.Phase)
	}
	if cfg.CreatedAt == 0 {
		t.Error("CreatedAt not stamped")
	}
	if cfg.Members == nil {
		t.Error("Members is nil, want empty slice")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("fresh config rejected: %v", err)
	}
}

func TestTeamConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("bad name", func(t *testing.T) {
		cfg := validConfig()
		cfg.Name = "team with spaces"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Validate() = nil, want error")
		}
		want := "Team name may only contain letters, numbers, hyphens, and underscores."
		if err.Error() != want {
			t.Errorf("error = %q, want %q", err.Error(), want)
		}
	})

	t.Run("bad phase", func(t *testing.T) {
		cfg := validConfig()
		cfg.Phase = "gamma"
		if err := cfg.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("duplicate agentId", func(t *testing.T) {
		cfg := validConfig()
		cfg.Members = append(cfg.Members, TeamMember{
			AgentID: "dev-1", Name: "dev-2", Role: RoleQAEngineer, Status: StatusIdle,
		})
		if err := cfg.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("duplicate name", func(t *testing.T) {
		cfg := validConfig()
		cfg.Members = append(cfg.Members, TeamMember{
			AgentID: "dev-2", Name: "dev", Role: RoleQAEngineer, Status: StatusIdle,
		})
		if err := cfg.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("lead need not be a member", func(t *testing.T) {
		cfg := validConfig()
		cfg.LeadAgentID = "lead-rotated-9999"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil (lead id without membership is legal)", err)
		}
	})

	t.Run("max members", func(t *testing.T) {
		cfg := validConfig()
		cfg.Settings.MaxMembers = 1
		if err := cfg.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}

		cfg.Settings.MaxMembers = 2
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil at the cap", err)
		}
	})

	t.Run("invalid member surfaces", func(t *testing.T) {
		cfg := validConfig()
		cfg.Members[1].Role = "rockstar"
		if err := cfg.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})
}

func TestTeamConfig_Clone(t *testing.T) {
	cfg := validConfig()
	cfg.Members[0].ToolOverrides = &ToolOverrides{Allowed: []string{"task_create"}}

	clone := cfg.Clone()
	clone.Name = "beta"
	clone.Members[0].Name = "mutated"
	clone.Members[0].ToolOverrides.Allowed[0] = "mutated"
	clone.Members = append(clone.Members, TeamMember{AgentID: "x", Name: "x", Role: RoleIntern, Status: StatusIdle})

	if cfg.Name != "alpha" {
		t.Error("Clone shares Name with the original")
	}
	if cfg.Members[0].Name != "team-lead" {
		t.Error("Clone shares Members backing array with the original")
	}
	if cfg.Members[0].ToolOverrides.Allowed[0] != "task_create" {
		t.Error("Clone shares ToolOverrides with the original")
	}
	if len(cfg.Members) != 2 {
		t.Error("append to clone grew the original member list")
	}
}

func TestTeamConfig_Lookups(t *testing.T) {
	cfg := validConfig()

	if m := cfg.FindMember("dev-1"); m == nil || m.Name != "dev" {
		t.Errorf("FindMember(dev-1) = %v, want dev", m)
	}
	if m := cfg.FindMember("ghost"); m != nil {
		t.Errorf("FindMember(ghost) = %v, want nil", m)
	}
	if m := cfg.FindMemberByName("team-lead"); m == nil || m.AgentID != "lead-1" {
		t.Errorf("FindMemberByName(team-lead) = %v, want lead-1", m)
	}
	if m := cfg.LeadMember(); m == nil || m.AgentID != "lead-1" {
		t.Errorf("LeadMember() = %v, want lead-1", m)
	}

	cfg.LeadAgentID = "rotated"
	if m := cfg.LeadMember(); m != nil {
		t.Errorf("LeadMember() = %v, want nil for non-member lead", m)
	}

	names := cfg.MemberNames()
	if len(names) != 2 || names[0] != "team-lead" || names[1] != "dev" {
		t.Errorf("MemberNames() = %v", names)
	}
}

func TestTeamConfig_RepairRoles(t *testing.T) {
	cfg := validConfig()
	cfg.Members[0].Role = "Engineering Director"
	cfg.Members[1].Role = "code wizard"

	remapped := cfg.RepairRoles()

	if len(remapped) != 2 {
		t.Fatalf("remapped %d roles, want 2: %v", len(remapped), remapped)
	}
	if cfg.Members[0].Role != RoleDirector {
		t.Errorf("Members[0].Role = %q, want director", cfg.Members[0].Role)
	}
	if cfg.Members[1].Role != RoleMidLevelEngineer {
		t.Errorf("Members[1].Role = %q, want mid-level-engineer", cfg.Members[1].Role)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config still invalid after repair: %v", err)
	}

	// Built-in roles stay put.
	if again := cfg.RepairRoles(); len(again) != 0 {
		t.Errorf("second repair remapped %v, want nothing", again)
	}
}

func TestTransitionPhase(t *testing.T) {
	cfg := validConfig()

	next, err := TransitionPhase(cfg, phase.PreAlpha)
	if err != nil {
		t.Fatalf("TransitionPhase failed: %v", err)
	}
	if next.Phase != phase.PreAlpha {
		t.Errorf("next.Phase = %q, want pre-alpha", next.Phase)
	}
	if cfg.Phase != phase.Planning {
		t.Errorf("original config mutated to %q, want planning", cfg.Phase)
	}

	// Skipping fails with the canonical message.
	_, err = TransitionPhase(cfg, phase.Alpha)
	if err == nil {
		t.Fatal("TransitionPhase(planning -> alpha) succeeded, want error")
	}
	want := `Cannot transition from "planning" to "alpha". Only forward single-step transitions are allowed.`
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
