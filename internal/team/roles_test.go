package team

import "testing"

func TestBuiltinRoles(t *testing.T) {
	roles := BuiltinRoles()
	if len(roles) != 23 {
		t.Fatalf("BuiltinRoles() returned %d roles, want 23", len(roles))
	}

	seen := map[string]bool{}
	for _, r := range roles {
		if seen[r] {
			t.Errorf("duplicate role %q", r)
		}
		seen[r] = true
		if !IsBuiltinRole(r) {
			t.Errorf("IsBuiltinRole(%q) = false for a built-in", r)
		}
	}

	// The repair targets must all be built-ins.
	for _, r := range []string{RoleDirector, RoleManager, RoleSeniorEngineer, RoleProductLead, RoleMidLevelEngineer} {
		if !seen[r] {
			t.Errorf("repair target %q missing from built-ins", r)
		}
	}

	if IsBuiltinRole("rockstar") {
		t.Error(`IsBuiltinRole("rockstar") = true, want false`)
	}
}

func TestRepairRole(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		// Built-ins pass through untouched.
		{RoleSeniorEngineer, RoleSeniorEngineer},
		{RoleIntern, RoleIntern},

		// Substring matches, in precedence order.
		{"Engineering Director", RoleDirector},
		{"assistant-director", RoleDirector},
		{"Product Manager II", RoleManager},
		{"eng manager", RoleManager},
		{"software engineer", RoleSeniorEngineer},
		{"ML Engineer", RoleSeniorEngineer},
		{"squad lead", RoleProductLead},
		{"Lead Designer", RoleProductLead},

		// "engineer" outranks "lead".
		{"engineering-leader", RoleSeniorEngineer},

		// "director" outranks "manager".
		{"director of engineering managers", RoleDirector},

		// No keyword at all.
		{"code wizard", RoleMidLevelEngineer},
		{"", RoleMidLevelEngineer},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := RepairRole(tt.role); got != tt.want {
				t.Errorf("RepairRole(%q) = %q, want %q", tt.role, got, tt.want)
			}
		})
	}
}
