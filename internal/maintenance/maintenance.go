// Package maintenance provides whole-store housekeeping for teams:
// stale-lock cleanup, completed-task pruning, orphaned-inbox removal,
// config repair, statistics, integrity checking, and archival.
//
// Every operation reads the store non-exclusively and is safe to run
// while agents are active. Problems surface as data (returned paths,
// typed issues) rather than panics; individual unreadable files are
// skipped, not fatal.
package maintenance

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/lockfile"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// archiveStampLayout renders the archive timestamp before the character
// replacement pass. RFC 3339 with millisecond precision.
const archiveStampLayout = "2006-01-02T15:04:05.000Z07:00"

// Engine runs maintenance operations over a store.
type Engine struct {
	store  *store.Store
	logger *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine over the given store.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CleanupStaleLocks removes sidecar lock files across the team's config,
// inbox, and task directories whose body timestamp is older than the
// stale threshold, or whose body does not parse at all. It returns the
// removed paths. A non-positive threshold uses the lockfile default.
func (e *Engine) CleanupStaleLocks(teamName string, stale time.Duration) ([]string, error) {
	if stale <= 0 {
		stale = lockfile.DefaultStaleTimeout
	}

	dirs, err := e.teamScopedDirs(teamName)
	if err != nil {
		return nil, err
	}

	var removed []string
	now := time.Now()
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if d.IsDir() || !strings.HasSuffix(path, lockfile.Suffix) {
				return nil
			}

			body, err := os.ReadFile(path)
			if err != nil {
				// Released between walk and read; nothing to do.
				return nil
			}
			ts, ok := lockfile.ParseTimestamp(body)
			if ok && now.Sub(ts) <= stale {
				return nil // fresh and well-formed: the holder is alive
			}

			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				e.logger.Warn("failed to remove stale lock", "path", path, "error", err.Error())
				return nil
			}
			e.logger.Info("removed stale lock", "team", teamName, "path", path)
			removed = append(removed, path)
			return nil
		})
		if err != nil {
			return removed, errors.NewStoreError("walk for stale locks", err).WithTeam(teamName).WithPath(dir)
		}
	}
	return removed, nil
}

// PruneCompletedTasks moves completed tasks whose updatedAt is older than
// the threshold into the team's completed/ directory. It returns the
// pruned task ids.
func (e *Engine) PruneCompletedTasks(teamName string, olderThan time.Duration) ([]string, error) {
	tasks, err := e.store.ListTasks(teamName)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}

	completedDir, err := e.store.CompletedTasksDir(teamName)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	var pruned []string
	for _, t := range tasks {
		if t.Status != team.TaskCompleted || t.UpdatedAt >= cutoff {
			continue
		}
		src, err := e.store.TaskPath(teamName, t.ID)
		if err != nil {
			continue
		}
		if len(pruned) == 0 {
			if err := os.MkdirAll(completedDir, 0o755); err != nil {
				return nil, errors.NewStoreError("create completed directory", err).WithTeam(teamName).WithPath(completedDir)
			}
		}
		dest := filepath.Join(completedDir, t.ID+".json")
		if err := os.Rename(src, dest); err != nil {
			e.logger.Warn("failed to prune task", "team", teamName, "task", t.ID, "error", err.Error())
			continue
		}
		e.logger.Info("pruned completed task", "team", teamName, "task", t.ID)
		pruned = append(pruned, t.ID)
	}
	return pruned, nil
}

// CleanupOrphanedInboxes removes inbox files whose stem is not a current
// member name. It returns the removed stems.
func (e *Engine) CleanupOrphanedInboxes(teamName string) ([]string, error) {
	cfg, err := e.store.LoadTeamConfig(teamName)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, errors.NewTeamNotFoundError(teamName)
	}

	members := make(map[string]bool, len(cfg.Members))
	for _, name := range cfg.MemberNames() {
		members[name] = true
	}

	inboxDir, err := e.store.InboxDir(teamName)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("list inboxes", err).WithTeam(teamName).WithPath(inboxDir)
	}

	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".json")
		if members[stem] {
			continue
		}
		path := filepath.Join(inboxDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove orphaned inbox", "team", teamName, "inbox", stem, "error", err.Error())
			continue
		}
		e.logger.Info("removed orphaned inbox", "team", teamName, "inbox", stem)
		removed = append(removed, stem)
	}
	return removed, nil
}

// ArchiveTeam moves the team's directories out of the live tree into
// archive/<team>-<stamp>/{team,tasks}. The stamp is the current UTC time
// in RFC 3339 millisecond form with ':' and '.' replaced by '-'. Returns
// the archive directory.
func (e *Engine) ArchiveTeam(teamName string) (string, error) {
	teamDir, err := e.store.TeamDir(teamName)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(teamDir); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewTeamNotFoundError(teamName)
		}
		return "", errors.NewStoreError("stat team directory", err).WithTeam(teamName).WithPath(teamDir)
	}
	tasksDir, err := e.store.TeamTasksDir(teamName)
	if err != nil {
		return "", err
	}

	stamp := strings.NewReplacer(":", "-", ".", "-").
		Replace(time.Now().UTC().Format(archiveStampLayout))
	dest := filepath.Join(e.store.ArchiveDir(), teamName+"-"+stamp)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", errors.NewStoreError("create archive directory", err).WithTeam(teamName).WithPath(dest)
	}

	if err := os.Rename(teamDir, filepath.Join(dest, "team")); err != nil {
		return "", errors.NewStoreError("archive team directory", err).WithTeam(teamName).WithPath(teamDir)
	}
	if _, err := os.Stat(tasksDir); err == nil {
		if err := os.Rename(tasksDir, filepath.Join(dest, "tasks")); err != nil {
			return "", errors.NewStoreError("archive tasks directory", err).WithTeam(teamName).WithPath(tasksDir)
		}
	}

	e.logger.Info("archived team", "team", teamName, "dest", dest)
	return dest, nil
}

// teamScopedDirs returns the directories owned by a team that can carry
// lock sidecars: the team directory (config + inboxes) and its tasks
// directory. Missing directories are filtered out.
func (e *Engine) teamScopedDirs(teamName string) ([]string, error) {
	teamDir, err := e.store.TeamDir(teamName)
	if err != nil {
		return nil, err
	}
	tasksDir, err := e.store.TeamTasksDir(teamName)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, dir := range []string{teamDir, tasksDir} {
		if _, err := os.Stat(dir); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}
