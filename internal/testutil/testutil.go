// Package testutil provides shared fixtures for fabric tests.
package testutil

import (
	"encoding/json"
	"os/exec"
	"testing"
	"time"

	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// NewStore creates a store rooted in a fresh temp directory. The directory
// is cleaned up when the test completes.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	return st
}

// Member builds an active roster entry joined now. Config validation
// rejects members without a status, so the fixture stamps both fields.
func Member(agentID, name, role string) team.TeamMember {
	return team.TeamMember{
		AgentID:  agentID,
		Name:     name,
		Role:     role,
		Status:   team.StatusActive,
		JoinedAt: team.NowMillis(),
	}
}

// SeedTeam creates a team whose roster is a lead named team-lead plus the
// given members, and delivers one message to every member so each inbox
// file exists on disk.
func SeedTeam(t *testing.T, st *store.Store, name string, members ...team.TeamMember) *team.TeamConfig {
	t.Helper()

	cfg := team.NewTeamConfig(name, "test team", "lead-1")
	cfg.Members = append([]team.TeamMember{Member("lead-1", "team-lead", team.RoleTeamLead)}, members...)
	if err := st.CreateTeam(cfg); err != nil {
		t.Fatalf("CreateTeam(%q) failed: %v", name, err)
	}
	for _, m := range cfg.Members {
		Deliver(t, st, name, m.Name)
	}
	return cfg
}

// SeedTask writes a task onto the team's board, normalizing defaulted
// fields first.
func SeedTask(t *testing.T, st *store.Store, teamName string, task team.TeamTask) *team.TeamTask {
	t.Helper()

	task.Normalize()
	if err := st.CreateTask(teamName, &task); err != nil {
		t.Fatalf("CreateTask(%q, %q) failed: %v", teamName, task.ID, err)
	}
	return &task
}

// Deliver writes one raw message into each named member's inbox.
func Deliver(t *testing.T, st *store.Store, teamName string, names ...string) {
	t.Helper()

	for _, name := range names {
		if err := st.SendMessage(teamName, name, json.RawMessage(`{"type":"message"}`)); err != nil {
			t.Fatalf("SendMessage(%q, %q) failed: %v", teamName, name, err)
		}
	}
}

// WaitFor polls cond until it holds, failing the test after five seconds.
// Use it for assertions on asynchronous deliveries (watchers, labelers).
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// SkipIfNoGolangciLint skips the test if golangci-lint is not installed.
func SkipIfNoGolangciLint(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("golangci-lint"); err != nil {
		t.Skip("golangci-lint not found in PATH, skipping test")
	}
}
