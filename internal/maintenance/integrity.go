package maintenance

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/lockfile"
	"github.com/levelcode/teamfabric/internal/team"
)

// IssueType classifies an integrity finding.
type IssueType string

const (
	IssueMissingConfig   IssueType = "missing_config"
	IssueInvalidConfig   IssueType = "invalid_config"
	IssueInvalidTask     IssueType = "invalid_task"
	IssueOrphanedInbox   IssueType = "orphaned_inbox"
	IssueMissingInbox    IssueType = "missing_inbox"
	IssueStaleLock       IssueType = "stale_lock"
	IssueDanglingTaskRef IssueType = "dangling_task_reference"
)

// Issue is a single integrity finding. Issues are data, not errors: the
// checker never mutates the store, and the caller decides what to act on.
type Issue struct {
	Type   IssueType `json:"type"`
	Path   string    `json:"path,omitempty"`
	Detail string    `json:"detail"`
}

// ValidateTeamIntegrity scans a team's on-disk state and reports every
// finding as a typed issue. A clean team yields an empty slice.
func (e *Engine) ValidateTeamIntegrity(teamName string) ([]Issue, error) {
	teamDir, err := e.store.TeamDir(teamName)
	if err != nil {
		return nil, err
	}
	tasksDir, err := e.store.TeamTasksDir(teamName)
	if err != nil {
		return nil, err
	}
	if !dirExists(teamDir) && !dirExists(tasksDir) {
		return nil, errors.NewTeamNotFoundError(teamName)
	}

	issues := []Issue{}
	cfg, configIssues := e.checkConfig(teamName)
	issues = append(issues, configIssues...)
	issues = append(issues, e.checkTasks(tasksDir)...)
	issues = append(issues, e.checkInboxes(teamName, cfg)...)
	issues = append(issues, e.checkLocks(teamName)...)
	return issues, nil
}

// checkConfig reads the config file directly, without the load path's
// auto-repair, so the check stays read-only. The parsed config is returned
// even when invalid so the inbox checks can still use its member names.
func (e *Engine) checkConfig(teamName string) (*team.TeamConfig, []Issue) {
	path, err := e.store.ConfigPath(teamName)
	if err != nil {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, []Issue{{Type: IssueMissingConfig, Path: path, Detail: "config.json does not exist"}}
		}
		return nil, []Issue{{Type: IssueInvalidConfig, Path: path, Detail: err.Error()}}
	}
	var cfg team.TeamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, []Issue{{Type: IssueInvalidConfig, Path: path, Detail: err.Error()}}
	}
	if err := cfg.Validate(); err != nil {
		return &cfg, []Issue{{Type: IssueInvalidConfig, Path: path, Detail: err.Error()}}
	}
	return &cfg, nil
}

// checkTasks parses every task file and reports those that fail schema
// validation, then cross-checks blockedBy/blocks references among the valid
// ones.
func (e *Engine) checkTasks(tasksDir string) []Issue {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil
	}

	type parsedTask struct {
		task team.TeamTask
		path string
	}

	var issues []Issue
	var parsed []parsedTask
	ids := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(tasksDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, Issue{Type: IssueInvalidTask, Path: path, Detail: err.Error()})
			continue
		}
		var t team.TeamTask
		if err := json.Unmarshal(data, &t); err != nil {
			issues = append(issues, Issue{Type: IssueInvalidTask, Path: path, Detail: err.Error()})
			continue
		}
		t.Normalize()
		if err := t.Validate(); err != nil {
			issues = append(issues, Issue{Type: IssueInvalidTask, Path: path, Detail: err.Error()})
			continue
		}
		ids[t.ID] = true
		parsed = append(parsed, parsedTask{task: t, path: path})
	}

	for _, pt := range parsed {
		for _, ref := range pt.task.BlockedBy {
			if !ids[ref] {
				issues = append(issues, Issue{Type: IssueDanglingTaskRef, Path: pt.path,
					Detail: fmt.Sprintf("task %q blockedBy missing task %q", pt.task.ID, ref)})
			}
		}
		for _, ref := range pt.task.Blocks {
			if !ids[ref] {
				issues = append(issues, Issue{Type: IssueDanglingTaskRef, Path: pt.path,
					Detail: fmt.Sprintf("task %q blocks missing task %q", pt.task.ID, ref)})
			}
		}
	}
	return issues
}

// checkInboxes compares inbox file stems against member names in both
// directions. Without a parseable config there is no member list to compare,
// so inbox checks are skipped.
func (e *Engine) checkInboxes(teamName string, cfg *team.TeamConfig) []Issue {
	if cfg == nil {
		return nil
	}
	inboxDir, err := e.store.InboxDir(teamName)
	if err != nil {
		return nil
	}

	onDisk := make(map[string]string)
	if entries, err := os.ReadDir(inboxDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			stem := strings.TrimSuffix(entry.Name(), ".json")
			onDisk[stem] = filepath.Join(inboxDir, entry.Name())
		}
	}

	members := make(map[string]bool, len(cfg.Members))
	var issues []Issue
	for _, name := range cfg.MemberNames() {
		members[name] = true
		if _, ok := onDisk[name]; !ok {
			issues = append(issues, Issue{Type: IssueMissingInbox,
				Path:   filepath.Join(inboxDir, name+".json"),
				Detail: fmt.Sprintf("member %q has no inbox file", name)})
		}
	}

	stems := make([]string, 0, len(onDisk))
	for stem := range onDisk {
		stems = append(stems, stem)
	}
	sort.Strings(stems)
	for _, stem := range stems {
		if !members[stem] {
			issues = append(issues, Issue{Type: IssueOrphanedInbox, Path: onDisk[stem],
				Detail: fmt.Sprintf("inbox %q matches no member", stem)})
		}
	}
	return issues
}

// checkLocks reports lock sidecars whose holder looks dead: an unparseable
// body or an age past the default stale threshold.
func (e *Engine) checkLocks(teamName string) []Issue {
	dirs, err := e.teamScopedDirs(teamName)
	if err != nil {
		return nil
	}

	var issues []Issue
	now := time.Now()
	for _, dir := range dirs {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, lockfile.Suffix) {
				return nil
			}
			body, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			ts, ok := lockfile.ParseTimestamp(body)
			if !ok {
				issues = append(issues, Issue{Type: IssueStaleLock, Path: path,
					Detail: "lock body is not a timestamp"})
				return nil
			}
			if age := now.Sub(ts); age > lockfile.DefaultStaleTimeout {
				issues = append(issues, Issue{Type: IssueStaleLock, Path: path,
					Detail: fmt.Sprintf("lock held for %s", age.Round(time.Millisecond))})
			}
			return nil
		})
	}
	return issues
}
