package team

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
)

func TestValidTeamName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"alpha", true},
		{"alpha-2", true},
		{"Alpha_Team", true},
		{"a", true},
		{"0123456789012345678901234567890123456789012345678_", true}, // 50 chars
		{"", false},
		{"team with spaces", false},
		{"team/slash", false},
		{"team.dot", false},
		{"..", false},
		{"01234567890123456789012345678901234567890123456789_", false}, // 51 chars
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTeamName(tt.name); got != tt.want {
				t.Errorf("ValidTeamName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidTaskID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0", true},
		{"1", true},
		{"42", true},
		{"00123", true},
		{"", false},
		{"-1", false},
		{"1.5", false},
		{"abc", false},
		{"1a", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := ValidTaskID(tt.id); got != tt.want {
				t.Errorf("ValidTaskID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestMemberStatus_IsValid(t *testing.T) {
	valid := []MemberStatus{StatusActive, StatusIdle, StatusWorking, StatusBlocked, StatusCompleted, StatusFailed}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", s)
		}
	}
	if MemberStatus("sleeping").IsValid() {
		t.Error(`MemberStatus("sleeping").IsValid() = true, want false`)
	}
}

func TestTaskStatusOrPriority_IsValid(t *testing.T) {
	for _, s := range []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskBlocked} {
		if !s.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", s)
		}
	}
	if TaskStatus("done").IsValid() {
		t.Error(`TaskStatus("done").IsValid() = true, want false`)
	}

	for _, p := range []TaskPriority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow} {
		if !p.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", p)
		}
	}
	if TaskPriority("urgent").IsValid() {
		t.Error(`TaskPriority("urgent").IsValid() = true, want false`)
	}
}

func TestTaskPriority_Rank(t *testing.T) {
	if !(PriorityCritical.Rank() < PriorityHigh.Rank() &&
		PriorityHigh.Rank() < PriorityMedium.Rank() &&
		PriorityMedium.Rank() < PriorityLow.Rank() &&
		PriorityLow.Rank() < TaskPriority("?").Rank()) {
		t.Error("priority ranks are not strictly ordered critical < high < medium < low < unknown")
	}
}

func TestTeamMember_Validate(t *testing.T) {
	valid := TeamMember{
		AgentID:  "dev-1",
		Name:     "dev",
		Role:     RoleSeniorEngineer,
		JoinedAt: NowMillis(),
		Status:   StatusActive,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid member rejected: %v", err)
	}

	t.Run("missing agentId", func(t *testing.T) {
		m := valid
		m.AgentID = ""
		if err := m.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("bad name", func(t *testing.T) {
		m := valid
		m.Name = "has spaces"
		err := m.Validate()
		if err == nil {
			t.Fatal("Validate() = nil, want error")
		}
		want := "Member name may only contain letters, numbers, hyphens, and underscores."
		if err.Error() != want {
			t.Errorf("error = %q, want %q", err.Error(), want)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		m := valid
		m.Role = "rockstar"
		if err := m.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("bad status", func(t *testing.T) {
		m := valid
		m.Status = "napping"
		if err := m.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})
}

func TestTeamMember_Clone(t *testing.T) {
	m := TeamMember{
		AgentID: "dev-1",
		Name:    "dev",
		Role:    RoleSeniorEngineer,
		Status:  StatusActive,
		ToolOverrides: &ToolOverrides{
			Allowed: []string{"task_create"},
			Blocked: []string{"team_delete"},
		},
	}

	clone := m.Clone()
	clone.ToolOverrides.Allowed[0] = "mutated"
	clone.ToolOverrides.Blocked = append(clone.ToolOverrides.Blocked, "extra")

	if m.ToolOverrides.Allowed[0] != "task_create" {
		t.Error("Clone shares the Allowed slice with the original")
	}
	if len(m.ToolOverrides.Blocked) != 1 {
		t.Error("Clone shares the Blocked slice with the original")
	}
}

func TestTeamTask_NormalizeAndValidate(t *testing.T) {
	task := TeamTask{
		ID:      "1",
		Subject: "wire the store",
	}
	task.Normalize()

	if task.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q after Normalize", task.Priority, PriorityMedium)
	}
	if task.Status != TaskPending {
		t.Errorf("Status = %q, want %q after Normalize", task.Status, TaskPending)
	}
	if err := task.Validate(); err != nil {
		t.Errorf("normalized task rejected: %v", err)
	}

	t.Run("non-numeric id", func(t *testing.T) {
		bad := task
		bad.ID = "task-1"
		err := bad.Validate()
		if err == nil {
			t.Fatal("Validate() = nil, want error")
		}
		if err.Error() != "Task ID must be numeric." {
			t.Errorf("error = %q, want canonical task-id message", err.Error())
		}
	})

	t.Run("bad status", func(t *testing.T) {
		bad := task
		bad.Status = "done"
		if err := bad.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})

	t.Run("bad priority", func(t *testing.T) {
		bad := task
		bad.Priority = "urgent"
		if err := bad.Validate(); !errors.IsValidation(err) {
			t.Errorf("Validate() = %v, want validation error", err)
		}
	})
}

func TestTeamTask_Apply(t *testing.T) {
	task := TeamTask{
		ID:        "7",
		Subject:   "original subject",
		Status:    TaskPending,
		Priority:  PriorityMedium,
		Owner:     "dev",
		BlockedBy: []string{"6"},
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}

	task.Apply(TaskPatch{
		Status:    Ptr(TaskInProgress),
		BlockedBy: Ptr([]string{}),
		Metadata:  Ptr(map[string]any{"attempt": 2}),
	})

	if task.Status != TaskInProgress {
		t.Errorf("Status = %q, want in_progress", task.Status)
	}
	if len(task.BlockedBy) != 0 {
		t.Errorf("BlockedBy = %v, want empty", task.BlockedBy)
	}
	if task.Subject != "original subject" {
		t.Errorf("Subject changed to %q, want untouched", task.Subject)
	}
	if task.Owner != "dev" {
		t.Errorf("Owner changed to %q, want untouched", task.Owner)
	}
	if task.Metadata["attempt"] != 2 {
		t.Errorf("Metadata = %v, want attempt=2", task.Metadata)
	}
}

func TestTeamTask_IsClaimable(t *testing.T) {
	tests := []struct {
		name string
		task TeamTask
		want bool
	}{
		{"pending unblocked", TeamTask{Status: TaskPending}, true},
		{"pending blocked", TeamTask{Status: TaskPending, BlockedBy: []string{"1"}}, false},
		{"in progress", TeamTask{Status: TaskInProgress}, false},
		{"completed", TeamTask{Status: TaskCompleted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.task.IsClaimable(); got != tt.want {
				t.Errorf("IsClaimable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTeamTask_JSONShape(t *testing.T) {
	task := TeamTask{
		ID:        "3",
		Subject:   "ship it",
		Status:    TaskCompleted,
		Priority:  PriorityHigh,
		BlockedBy: []string{"2"},
		CreatedAt: 1700000000000,
		UpdatedAt: 1700000001000,
	}

	data, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	// Wire names are camelCase so other fabric implementations read them.
	for _, key := range []string{"id", "subject", "status", "priority", "blockedBy", "createdAt", "updatedAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("marshaled task missing %q key: %s", key, data)
		}
	}
	if _, ok := raw["owner"]; ok {
		t.Error("empty owner serialized, want omitted")
	}
}

func TestNowMillis(t *testing.T) {
	before := time.Now().UnixMilli()
	got := NowMillis()
	after := time.Now().UnixMilli()

	if got < before || got > after {
		t.Errorf("NowMillis() = %d, want between %d and %d", got, before, after)
	}
}
