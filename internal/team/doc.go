// Package team defines the entities shared across the fabric: team
// configurations, members, and tasks, together with their validation rules.
//
// # Main Types
//
//   - [TeamConfig]: a team's on-disk configuration (members, phase, settings)
//   - [TeamMember]: one agent's membership record
//   - [TeamTask]: a unit of work with dependency links to other tasks
//   - [TaskPatch]: a partial update applied by the store's UpdateTask
//
// Entities carry their wire shape directly: JSON field names are camelCase
// and timestamps are epoch milliseconds, so files written by other fabric
// implementations load unchanged.
//
// # Validation
//
// [TeamConfig.Validate] and [TeamTask.Validate] enforce the schema invariants
// (name and id character rules, enum membership, member uniqueness). Their
// failure messages are stable because coordinating agents match on them.
//
// Member roles must be one of the built-in role names (see [BuiltinRoles]).
// Configs written by other versions may carry unknown roles; [RepairRoles]
// remaps those to the closest built-in so the store's load path can recover
// the file instead of rejecting it.
package team
