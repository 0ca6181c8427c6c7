package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/team"
)

// Task persistence. Each task is its own JSON file under tasks/<team>/ so
// independent tasks never contend on a shared lock. Dependency ids inside a
// task are not checked against other task files at write time; the
// integrity checker reports dangling references instead.

// CreateTask writes a new task file under the per-task lock. The id is
// caller-chosen; creating an id that already exists fails with
// ErrTaskExists.
func (s *Store) CreateTask(teamName string, t *team.TeamTask) error {
	if t == nil {
		return errors.NewValidationError("Task is required.")
	}
	t.Normalize()
	if t.CreatedAt == 0 {
		t.CreatedAt = team.NowMillis()
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.Validate(); err != nil {
		return err
	}

	path, err := s.TaskPath(teamName, t.ID)
	if err != nil {
		return err
	}
	if !s.TeamExists(teamName) {
		return errors.NewTeamNotFoundError(teamName)
	}

	err = s.withLock(path, func() error {
		if _, statErr := os.Stat(path); statErr == nil {
			return errors.NewStoreError("create task", errors.ErrTaskExists).
				WithTeam(teamName).WithPath(path)
		}
		return writeJSONFile(path, t)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("task created", "team", teamName, "task", t.ID, "status", t.Status.String())
	return nil
}

// UpdateTask applies a patch to an existing task under the per-task lock
// and returns the updated task. UpdatedAt always moves forward, even for an
// empty patch, so callers can use it as a change marker.
func (s *Store) UpdateTask(teamName, id string, patch team.TaskPatch) (*team.TeamTask, error) {
	path, err := s.TaskPath(teamName, id)
	if err != nil {
		return nil, err
	}
	if !s.TeamExists(teamName) {
		return nil, errors.NewTeamNotFoundError(teamName)
	}

	var updated *team.TeamTask
	err = s.withLock(path, func() error {
		t, err := s.readTask(teamName, path)
		if err != nil {
			return err
		}
		if t == nil {
			return errors.NewTaskNotFoundError(teamName, id)
		}

		t.Apply(patch)
		// The wall clock may not tick between consecutive updates; keep
		// updatedAt strictly increasing regardless.
		now := team.NowMillis()
		if now <= t.UpdatedAt {
			now = t.UpdatedAt + 1
		}
		t.UpdatedAt = now

		if err := t.Validate(); err != nil {
			return err
		}
		if err := writeJSONFile(path, t); err != nil {
			return err
		}
		clone := t.Clone()
		updated = &clone
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("task updated", "team", teamName, "task", id)
	return updated, nil
}

// GetTask returns a task by id, or nil when the task does not exist. The
// read is lock-free.
func (s *Store) GetTask(teamName, id string) (*team.TeamTask, error) {
	path, err := s.TaskPath(teamName, id)
	if err != nil {
		return nil, err
	}
	return s.readTask(teamName, path)
}

// ListTasks returns every task in the team ordered by numeric id. Task
// files that fail to parse or validate are skipped with a warning; the
// integrity checker reports them as issues.
func (s *Store) ListTasks(teamName string) ([]*team.TeamTask, error) {
	dir, err := s.TeamTasksDir(teamName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("list tasks", err).WithTeam(teamName).WithPath(dir)
	}

	var tasks []*team.TeamTask
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		if !team.ValidTaskID(id) {
			continue
		}
		t, err := s.readTask(teamName, filepath.Join(dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable task",
				"team", teamName, "task", id, "error", err.Error())
			continue
		}
		if t != nil {
			tasks = append(tasks, t)
		}
	}

	sort.Slice(tasks, func(i, j int) bool {
		return lessNumericID(tasks[i].ID, tasks[j].ID)
	})
	return tasks, nil
}

// readTask reads and validates one task file. A missing file returns
// (nil, nil).
func (s *Store) readTask(teamName, path string) (*team.TeamTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("read task", err).WithTeam(teamName).WithPath(path)
	}
	var t team.TeamTask
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.NewCorruptedError("task", path, err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, errors.NewCorruptedError("task", path, err)
	}
	return &t, nil
}

// lessNumericID orders numeric-string ids without parsing them, so ids
// larger than an int64 still sort correctly.
func lessNumericID(a, b string) bool {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
