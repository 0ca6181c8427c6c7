package team

import (
	"fmt"
	"regexp"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
)

var (
	teamNameRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
	memberNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
	taskIDRe     = regexp.MustCompile(`^[0-9]+$`)
)

// ValidTeamName reports whether name satisfies the team name character rule.
func ValidTeamName(name string) bool {
	return teamNameRe.MatchString(name)
}

// ValidMemberName reports whether name satisfies the member name character rule.
func ValidMemberName(name string) bool {
	return memberNameRe.MatchString(name)
}

// ValidTaskID reports whether id is a numeric task id.
func ValidTaskID(id string) bool {
	return taskIDRe.MatchString(id)
}

// NowMillis returns the current wall clock as epoch milliseconds, the
// timestamp representation used throughout the on-disk format.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// MemberStatus describes what a member is currently doing.
type MemberStatus string

const (
	// StatusActive indicates the member is available and responsive.
	StatusActive MemberStatus = "active"

	// StatusIdle indicates the member has no current assignment.
	StatusIdle MemberStatus = "idle"

	// StatusWorking indicates the member is executing a task.
	StatusWorking MemberStatus = "working"

	// StatusBlocked indicates the member is waiting on a dependency.
	StatusBlocked MemberStatus = "blocked"

	// StatusCompleted indicates the member finished its assignment and exited.
	StatusCompleted MemberStatus = "completed"

	// StatusFailed indicates the member terminated abnormally.
	StatusFailed MemberStatus = "failed"
)

// String returns the string representation of the status.
func (s MemberStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized member status.
func (s MemberStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusWorking, StatusBlocked, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// TaskStatus describes where a task sits in its lifecycle.
type TaskStatus string

const (
	// TaskPending indicates the task has not been started.
	TaskPending TaskStatus = "pending"

	// TaskInProgress indicates a member is actively working the task.
	TaskInProgress TaskStatus = "in_progress"

	// TaskCompleted indicates the task is done.
	TaskCompleted TaskStatus = "completed"

	// TaskBlocked indicates the task waits on unfinished dependencies.
	TaskBlocked TaskStatus = "blocked"
)

// String returns the string representation of the status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized task status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked:
		return true
	default:
		return false
	}
}

// IsFinished returns true for statuses that need no further work.
func (s TaskStatus) IsFinished() bool {
	return s == TaskCompleted
}

// TaskPriority orders tasks by urgency.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

// DefaultPriority is assigned to tasks created without a priority.
const DefaultPriority = PriorityMedium

// String returns the string representation of the priority.
func (p TaskPriority) String() string {
	return string(p)
}

// IsValid returns true if this is a recognized priority.
func (p TaskPriority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the sort position of the priority: critical sorts first.
// Unknown priorities sort last.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// ToolOverrides narrows or widens the tool set one member may use,
// independent of the team's phase gating.
type ToolOverrides struct {
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

// TeamMember is one agent's membership record within a team.
type TeamMember struct {
	AgentID       string         `json:"agentId"`
	Name          string         `json:"name"`
	Role          string         `json:"role"`
	AgentType     string         `json:"agentType,omitempty"`
	Model         string         `json:"model,omitempty"`
	JoinedAt      int64          `json:"joinedAt"`
	Status        MemberStatus   `json:"status"`
	CurrentTaskID string         `json:"currentTaskId,omitempty"`
	Cwd           string         `json:"cwd,omitempty"`
	ToolOverrides *ToolOverrides `json:"toolOverrides,omitempty"`
}

// Validate checks the member record against the schema invariants.
func (m TeamMember) Validate() error {
	if m.AgentID == "" {
		return errors.NewValidationError("Member agentId is required.").WithField("agentId")
	}
	if !ValidMemberName(m.Name) {
		return errors.NewMemberNameError().WithValue(m.Name)
	}
	if !IsBuiltinRole(m.Role) {
		return errors.NewValidationError(fmt.Sprintf("Unknown member role %q.", m.Role)).
			WithField("role").WithValue(m.Role)
	}
	if !m.Status.IsValid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid member status %q.", m.Status)).
			WithField("status").WithValue(string(m.Status))
	}
	return nil
}

// Clone returns a deep copy of the member.
func (m TeamMember) Clone() TeamMember {
	out := m
	if m.ToolOverrides != nil {
		overrides := ToolOverrides{
			Allowed: append([]string(nil), m.ToolOverrides.Allowed...),
			Blocked: append([]string(nil), m.ToolOverrides.Blocked...),
		}
		out.ToolOverrides = &overrides
	}
	return out
}

// TeamTask is a unit of work tracked within a team.
//
// BlockedBy and Blocks reference other task ids in the same team. References
// are not checked at write time; the integrity checker surfaces dangling
// links instead, so tasks can be written through independent file locks.
type TeamTask struct {
	ID          string         `json:"id"`
	Subject     string         `json:"subject"`
	Description string         `json:"description,omitempty"`
	Status      TaskStatus     `json:"status"`
	Priority    TaskPriority   `json:"priority"`
	Owner       string         `json:"owner,omitempty"`
	BlockedBy   []string       `json:"blockedBy,omitempty"`
	Blocks      []string       `json:"blocks,omitempty"`
	Phase       string         `json:"phase,omitempty"`
	ActiveForm  string         `json:"activeForm,omitempty"`
	CreatedAt   int64          `json:"createdAt"`
	UpdatedAt   int64          `json:"updatedAt"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Normalize fills defaulted fields: an empty priority becomes medium and an
// empty status becomes pending.
func (t *TeamTask) Normalize() {
	if t.Priority == "" {
		t.Priority = DefaultPriority
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
}

// Validate checks the task against the schema invariants. Call Normalize
// first when accepting caller input.
func (t TeamTask) Validate() error {
	if !ValidTaskID(t.ID) {
		return errors.NewTaskIDError().WithValue(t.ID)
	}
	if !t.Status.IsValid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid task status %q.", t.Status)).
			WithField("status").WithValue(string(t.Status))
	}
	if !t.Priority.IsValid() {
		return errors.NewValidationError(fmt.Sprintf("Invalid task priority %q.", t.Priority)).
			WithField("priority").WithValue(string(t.Priority))
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t TeamTask) Clone() TeamTask {
	out := t
	out.BlockedBy = append([]string(nil), t.BlockedBy...)
	out.Blocks = append([]string(nil), t.Blocks...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// IsClaimable returns true if the task is pending with no unfinished
// dependencies recorded on it.
func (t TeamTask) IsClaimable() bool {
	return t.Status == TaskPending && len(t.BlockedBy) == 0
}

// TaskPatch is a partial task update. Nil fields are left untouched;
// non-nil fields overwrite. The store stamps UpdatedAt on every patch.
type TaskPatch struct {
	Subject     *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	Owner       *string
	BlockedBy   *[]string
	Blocks      *[]string
	Phase       *string
	ActiveForm  *string
	Metadata    *map[string]any
}

// Apply overwrites t's fields with the patch's non-nil values.
func (t *TeamTask) Apply(p TaskPatch) {
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Owner != nil {
		t.Owner = *p.Owner
	}
	if p.BlockedBy != nil {
		t.BlockedBy = append([]string(nil), (*p.BlockedBy)...)
	}
	if p.Blocks != nil {
		t.Blocks = append([]string(nil), (*p.Blocks)...)
	}
	if p.Phase != nil {
		t.Phase = *p.Phase
	}
	if p.ActiveForm != nil {
		t.ActiveForm = *p.ActiveForm
	}
	if p.Metadata != nil {
		t.Metadata = make(map[string]any, len(*p.Metadata))
		for k, v := range *p.Metadata {
			t.Metadata[k] = v
		}
	}
}

// MemberPatch is a partial member update for the fields that churn while a
// team runs. Identity fields (agentId, name, role) are fixed at add time.
type MemberPatch struct {
	Status        *MemberStatus
	CurrentTaskID *string
	Model         *string
	Cwd           *string
}

// Apply overwrites m's fields with the patch's non-nil values. Setting
// CurrentTaskID to a pointer to "" clears the assignment.
func (m *TeamMember) Apply(p MemberPatch) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.CurrentTaskID != nil {
		m.CurrentTaskID = *p.CurrentTaskID
	}
	if p.Model != nil {
		m.Model = *p.Model
	}
	if p.Cwd != nil {
		m.Cwd = *p.Cwd
	}
}

// Ptr returns a pointer to v. It keeps TaskPatch literals readable.
func Ptr[T any](v T) *T {
	return &v
}
