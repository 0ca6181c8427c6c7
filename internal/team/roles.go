package team

import "strings"

// Built-in member roles. Role strings on the wire must be one of these;
// configs from other versions carrying unknown roles are recovered through
// RepairRoles.
const (
	RoleDirector           = "director"
	RoleManager            = "manager"
	RoleEngineeringManager = "engineering-manager"
	RoleProductLead        = "product-lead"
	RoleTeamLead           = "team-lead"
	RoleTechLead           = "tech-lead"

	RolePrincipalEngineer = "principal-engineer"
	RoleStaffEngineer     = "staff-engineer"
	RoleSeniorEngineer    = "senior-engineer"
	RoleMidLevelEngineer  = "mid-level-engineer"
	RoleJuniorEngineer    = "junior-engineer"
	RoleIntern            = "intern"

	RoleArchitect        = "architect"
	RoleFrontendEngineer = "frontend-engineer"
	RoleBackendEngineer  = "backend-engineer"
	RoleDevopsEngineer   = "devops-engineer"
	RoleSecurityEngineer = "security-engineer"
	RoleQAEngineer       = "qa-engineer"
	RoleDataEngineer     = "data-engineer"

	RoleProductManager  = "product-manager"
	RoleDesigner        = "designer"
	RoleTechnicalWriter = "technical-writer"
	RoleResearcher      = "researcher"
)

// builtinRoles is the full role vocabulary, in display order.
var builtinRoles = []string{
	RoleDirector,
	RoleManager,
	RoleEngineeringManager,
	RoleProductLead,
	RoleTeamLead,
	RoleTechLead,
	RolePrincipalEngineer,
	RoleStaffEngineer,
	RoleSeniorEngineer,
	RoleMidLevelEngineer,
	RoleJuniorEngineer,
	RoleIntern,
	RoleArchitect,
	RoleFrontendEngineer,
	RoleBackendEngineer,
	RoleDevopsEngineer,
	RoleSecurityEngineer,
	RoleQAEngineer,
	RoleDataEngineer,
	RoleProductManager,
	RoleDesigner,
	RoleTechnicalWriter,
	RoleResearcher,
}

var builtinRoleSet = func() map[string]bool {
	set := make(map[string]bool, len(builtinRoles))
	for _, r := range builtinRoles {
		set[r] = true
	}
	return set
}()

// BuiltinRoles returns the built-in role names in display order.
func BuiltinRoles() []string {
	out := make([]string, len(builtinRoles))
	copy(out, builtinRoles)
	return out
}

// IsBuiltinRole reports whether role is one of the built-in role names.
func IsBuiltinRole(role string) bool {
	return builtinRoleSet[role]
}

// RepairRole maps an unknown role string to the closest built-in role.
// Built-in roles are returned unchanged. The substring checks run in a
// fixed order so "engineering-lead" repairs to senior-engineer, not
// product-lead.
func RepairRole(role string) string {
	if IsBuiltinRole(role) {
		return role
	}

	lower := strings.ToLower(role)
	switch {
	case strings.Contains(lower, "director"):
		return RoleDirector
	case strings.Contains(lower, "manager"):
		return RoleManager
	case strings.Contains(lower, "engineer"):
		return RoleSeniorEngineer
	case strings.Contains(lower, "lead"):
		return RoleProductLead
	default:
		return RoleMidLevelEngineer
	}
}
