// Package store implements the durable, file-backed coordination substrate.
// Teams, tasks, and inboxes live as JSON files under a single fabric root;
// every mutation goes through a sidecar file lock so concurrent agent
// processes on the same host never tear each other's writes.
//
// Layout under the root:
//
//	.last-active-team
//	teams/<team>/config.json
//	teams/<team>/inboxes/<agent>.json
//	tasks/<team>/<taskId>.json
//	tasks/<team>/completed/<taskId>.json
//	archive/<team>-<stamp>/{team,tasks}/...
//
// Reads never take the lock: writes land via temp-file-plus-rename, so a
// reader observes either the previous or the next complete file. A read that
// fails to parse means the reader raced a writer that bypassed the rename
// discipline; such reads surface as corrupted errors and callers retry.
//
// Writes to different files are concurrent and unordered with respect to one
// another. Operations that touch more than one file (removing a member and
// clearing their inbox, say) are not atomic as a pair; callers needing that
// must sequence the writes themselves.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/levelcode/teamfabric/internal/errors"
	"github.com/levelcode/teamfabric/internal/lockfile"
	"github.com/levelcode/teamfabric/internal/logging"
	"github.com/levelcode/teamfabric/internal/phase"
	"github.com/levelcode/teamfabric/internal/team"
)

// ConfigFileName is the name of a team's config file within its directory.
const ConfigFileName = "config.json"

// MarkerFileName is the root-level marker naming the most recently created
// team. The discovery resolver uses it as a tiebreaker.
const MarkerFileName = ".last-active-team"

// CompletedDirName is the subdirectory of a team's task directory that
// pruned completed tasks are moved into.
const CompletedDirName = "completed"

const (
	teamsDirName   = "teams"
	tasksDirName   = "tasks"
	inboxesDirName = "inboxes"
	archiveDirName = "archive"
)

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// Store is the file-backed team store. A Store is safe for use from multiple
// goroutines, and multiple processes may share the same root.
type Store struct {
	root        string
	logger      *logging.Logger
	lockTimeout time.Duration
	lockOpts    []lockfile.Option
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for store diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLockTimeout overrides the default deadline for acquiring file locks.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithStaleLockTimeout overrides the age after which another process's lock
// is treated as abandoned and reclaimed.
func WithStaleLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockOpts = append(s.lockOpts, lockfile.WithStaleTimeout(d))
		}
	}
}

// New creates a Store rooted at the given directory, creating the directory
// if it does not exist.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.NewValidationError("Store root directory is required.")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewStoreError("resolve root directory", err).WithPath(root)
	}

	s := &Store{
		root:        abs,
		logger:      logging.NopLogger(),
		lockTimeout: lockfile.DefaultAcquireTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lockOpts = append(s.lockOpts, lockfile.WithLogger(s.logger))

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, errors.NewStoreError("create root directory", err).WithPath(abs)
	}
	return s, nil
}

// withLock runs fn while holding the sidecar lock for path.
func (s *Store) withLock(path string, fn func() error) error {
	return lockfile.WithLock(path, s.lockTimeout, fn, s.lockOpts...)
}

// -----------------------------------------------------------------------------
// Path Resolution
// -----------------------------------------------------------------------------

// Root returns the absolute fabric root directory.
func (s *Store) Root() string {
	return s.root
}

// TeamsDir returns the parent directory of all team directories.
func (s *Store) TeamsDir() string {
	return filepath.Join(s.root, teamsDirName)
}

// TasksDir returns the parent directory of all per-team task directories.
func (s *Store) TasksDir() string {
	return filepath.Join(s.root, tasksDirName)
}

// ArchiveDir returns the directory archived teams are moved into.
func (s *Store) ArchiveDir() string {
	return filepath.Join(s.root, archiveDirName)
}

// TeamDir returns the directory holding a team's config and inboxes.
func (s *Store) TeamDir(name string) (string, error) {
	if !team.ValidTeamName(name) {
		return "", errors.NewTeamNameError()
	}
	return containedPath(s.TeamsDir(), name)
}

// ConfigPath returns the path of a team's config file.
func (s *Store) ConfigPath(name string) (string, error) {
	dir, err := s.TeamDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// InboxDir returns the directory holding a team's inbox files.
func (s *Store) InboxDir(name string) (string, error) {
	dir, err := s.TeamDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, inboxesDirName), nil
}

// InboxPath returns the inbox file for a member name within a team.
func (s *Store) InboxPath(name, agent string) (string, error) {
	dir, err := s.InboxDir(name)
	if err != nil {
		return "", err
	}
	if !team.ValidMemberName(agent) {
		return "", errors.NewMemberNameError()
	}
	return containedPath(dir, agent+".json")
}

// TeamTasksDir returns the directory holding a team's task files.
func (s *Store) TeamTasksDir(name string) (string, error) {
	if !team.ValidTeamName(name) {
		return "", errors.NewTeamNameError()
	}
	return containedPath(s.TasksDir(), name)
}

// TaskPath returns the file path for a task id within a team.
func (s *Store) TaskPath(name, id string) (string, error) {
	dir, err := s.TeamTasksDir(name)
	if err != nil {
		return "", err
	}
	if !team.ValidTaskID(id) {
		return "", errors.NewTaskIDError()
	}
	return containedPath(dir, id+".json")
}

// CompletedTasksDir returns the directory pruned completed tasks move into.
func (s *Store) CompletedTasksDir(name string) (string, error) {
	dir, err := s.TeamTasksDir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CompletedDirName), nil
}

func (s *Store) markerPath() string {
	return filepath.Join(s.root, MarkerFileName)
}

// containedPath joins elem under parent and verifies the cleaned result is
// still inside parent. Name validation already makes escapes unreachable;
// the check still runs on every resolved path as a second fence.
func containedPath(parent string, elem ...string) (string, error) {
	p := filepath.Join(append([]string{parent}, elem...)...)
	if p != parent && !strings.HasPrefix(p, parent+string(os.PathSeparator)) {
		return "", errors.NewPathTraversalError(p, parent)
	}
	return p, nil
}

// -----------------------------------------------------------------------------
// Team Operations
// -----------------------------------------------------------------------------

// TeamExists reports whether a team's config file is present on disk.
func (s *Store) TeamExists(name string) bool {
	path, err := s.ConfigPath(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// TeamNames returns the names of all team directories, sorted.
func (s *Store) TeamNames() ([]string, error) {
	entries, err := os.ReadDir(s.TeamsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("list teams", err).WithPath(s.TeamsDir())
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListTeams loads every team config that parses and validates. Teams whose
// configs cannot be loaded are skipped; the integrity checker reports them.
func (s *Store) ListTeams() ([]*team.TeamConfig, error) {
	names, err := s.TeamNames()
	if err != nil {
		return nil, err
	}
	var configs []*team.TeamConfig
	for _, name := range names {
		cfg, err := s.LoadTeamConfig(name)
		if err != nil {
			s.logger.Debug("skipping unreadable team", "team", name, "error", err.Error())
			continue
		}
		if cfg != nil {
			configs = append(configs, cfg)
		}
	}
	return configs, nil
}

// CreateTeam creates the team's directory skeleton and writes its config
// atomically. Creating a team that already exists fails with ErrTeamExists.
func (s *Store) CreateTeam(cfg *team.TeamConfig) error {
	if cfg == nil {
		return errors.NewValidationError("Team config is required.")
	}
	if cfg.Phase == "" {
		cfg.Phase = phase.Default
	}
	if cfg.CreatedAt == 0 {
		cfg.CreatedAt = team.NowMillis()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	configPath, err := s.ConfigPath(cfg.Name)
	if err != nil {
		return err
	}
	inboxDir, err := s.InboxDir(cfg.Name)
	if err != nil {
		return err
	}
	tasksDir, err := s.TeamTasksDir(cfg.Name)
	if err != nil {
		return err
	}

	err = s.withLock(configPath, func() error {
		if _, statErr := os.Stat(configPath); statErr == nil {
			return errors.NewStoreError("create team", errors.ErrTeamExists).
				WithTeam(cfg.Name).WithPath(configPath)
		}
		if mkErr := os.MkdirAll(inboxDir, 0755); mkErr != nil {
			return errors.NewStoreError("create team directories", mkErr).WithTeam(cfg.Name)
		}
		if mkErr := os.MkdirAll(tasksDir, 0755); mkErr != nil {
			return errors.NewStoreError("create team directories", mkErr).WithTeam(cfg.Name)
		}
		return writeJSONFile(configPath, cfg)
	})
	if err != nil {
		return err
	}

	s.logger.Info("team created",
		"team", cfg.Name,
		"phase", cfg.Phase.String(),
		"members", len(cfg.Members))
	return nil
}

// LoadTeamConfig reads and validates a team's config. A missing team returns
// (nil, nil). When validation fails, the store runs one auto-repair pass
// that remaps unknown member roles to built-ins; a successful repair is
// persisted and logged at WARN. A config that still fails validation after
// the repair pass also returns (nil, nil) so the caller decides what to do.
func (s *Store) LoadTeamConfig(name string) (*team.TeamConfig, error) {
	path, err := s.ConfigPath(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewStoreError("read team config", err).WithTeam(name).WithPath(path)
	}

	var cfg team.TeamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewCorruptedError("team config", path, err)
	}

	vErr := cfg.Validate()
	if vErr == nil {
		return &cfg, nil
	}

	// One repair pass: remap unknown roles, then revalidate. Nothing else
	// is ever repaired automatically.
	remapped := cfg.RepairRoles()
	if len(remapped) == 0 {
		s.logger.Warn("team config failed validation",
			"team", name, "path", path, "error", vErr.Error())
		return nil, nil
	}
	if vErr = cfg.Validate(); vErr != nil {
		s.logger.Warn("team config failed validation after role repair",
			"team", name, "path", path, "error", vErr.Error())
		return nil, nil
	}

	s.logger.Warn("team config auto-repaired",
		"team", name, "path", path, "roles", fmt.Sprintf("%v", remapped))
	if saveErr := s.SaveTeamConfig(name, &cfg); saveErr != nil {
		s.logger.Warn("failed to persist repaired team config",
			"team", name, "error", saveErr.Error())
	}
	return &cfg, nil
}

// SaveTeamConfig writes a team's config under the config lock, creating
// parent directories as needed.
func (s *Store) SaveTeamConfig(name string, cfg *team.TeamConfig) error {
	if cfg == nil {
		return errors.NewValidationError("Team config is required.")
	}
	if cfg.Name != name {
		return errors.NewValidationError(
			fmt.Sprintf("Config name %q does not match team %q.", cfg.Name, name))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	path, err := s.ConfigPath(name)
	if err != nil {
		return err
	}
	return s.withLock(path, func() error {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.NewStoreError("create team directory", err).WithTeam(name)
		}
		return writeJSONFile(path, cfg)
	})
}

// DeleteTeam removes the team's directory and its task directory. Deleting a
// team that does not exist is a no-op.
func (s *Store) DeleteTeam(name string) error {
	teamDir, err := s.TeamDir(name)
	if err != nil {
		return err
	}
	tasksDir, err := s.TeamTasksDir(name)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(teamDir)
	existed := statErr == nil

	if err := os.RemoveAll(teamDir); err != nil {
		return errors.NewStoreError("delete team", err).WithTeam(name).WithPath(teamDir)
	}
	if err := os.RemoveAll(tasksDir); err != nil {
		return errors.NewStoreError("delete team tasks", err).WithTeam(name).WithPath(tasksDir)
	}
	if existed {
		s.logger.Info("team deleted", "team", name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Member Operations
// -----------------------------------------------------------------------------

// AddTeamMember appends a member to the team's config under the config
// lock. Duplicate agent ids and duplicate member names are rejected.
func (s *Store) AddTeamMember(name string, m team.TeamMember) error {
	if m.Status == "" {
		m.Status = team.StatusActive
	}
	if m.JoinedAt == 0 {
		m.JoinedAt = team.NowMillis()
	}
	if err := m.Validate(); err != nil {
		return err
	}
	path, err := s.ConfigPath(name)
	if err != nil {
		return err
	}

	err = s.withLock(path, func() error {
		cfg, err := s.readConfigLocked(name, path)
		if err != nil {
			return err
		}
		if cfg.FindMember(m.AgentID) != nil || cfg.FindMemberByName(m.Name) != nil {
			return errors.NewStoreError("add member", errors.ErrMemberExists).WithTeam(name)
		}
		cfg.Members = append(cfg.Members, m)
		if err := cfg.Validate(); err != nil {
			return err
		}
		return writeJSONFile(path, cfg)
	})
	if err != nil {
		return err
	}

	s.logger.Info("member added", "team", name, "member", m.Name, "role", m.Role)
	return nil
}

// RemoveTeamMember removes the member with the given agent id. Removal only
// edits the member list; the member's inbox file stays behind for
// maintenance to clean up.
func (s *Store) RemoveTeamMember(name, agentID string) error {
	if agentID == "" {
		return errors.NewValidationError("Member agentId is required.")
	}
	path, err := s.ConfigPath(name)
	if err != nil {
		return err
	}

	err = s.withLock(path, func() error {
		cfg, err := s.readConfigLocked(name, path)
		if err != nil {
			return err
		}
		idx := -1
		for i := range cfg.Members {
			if cfg.Members[i].AgentID == agentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return errors.NewStoreError("remove member", errors.ErrMemberNotFound).WithTeam(name)
		}
		cfg.Members = append(cfg.Members[:idx], cfg.Members[idx+1:]...)
		return writeJSONFile(path, cfg)
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed", "team", name, "agentId", agentID)
	return nil
}

// UpdateTeamMember applies a patch to one member under the config lock and
// returns the updated member.
func (s *Store) UpdateTeamMember(name, agentID string, patch team.MemberPatch) (*team.TeamMember, error) {
	if agentID == "" {
		return nil, errors.NewValidationError("Member agentId is required.")
	}
	path, err := s.ConfigPath(name)
	if err != nil {
		return nil, err
	}

	var updated *team.TeamMember
	err = s.withLock(path, func() error {
		cfg, err := s.readConfigLocked(name, path)
		if err != nil {
			return err
		}
		m := cfg.FindMember(agentID)
		if m == nil {
			return errors.NewStoreError("update member", errors.ErrMemberNotFound).WithTeam(name)
		}
		m.Apply(patch)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := writeJSONFile(path, cfg); err != nil {
			return err
		}
		clone := m.Clone()
		updated = &clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// readConfigLocked loads a config for read-modify-write; the caller must
// hold the config lock. Unknown roles are repaired in memory only: the
// caller's subsequent write persists the repair along with its own change.
func (s *Store) readConfigLocked(name, path string) (*team.TeamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewTeamNotFoundError(name)
		}
		return nil, errors.NewStoreError("read team config", err).WithTeam(name).WithPath(path)
	}
	var cfg team.TeamConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.NewCorruptedError("team config", path, err)
	}
	if vErr := cfg.Validate(); vErr != nil {
		if remapped := cfg.RepairRoles(); len(remapped) > 0 {
			s.logger.Warn("team config auto-repaired",
				"team", name, "path", path, "roles", fmt.Sprintf("%v", remapped))
		}
		if vErr = cfg.Validate(); vErr != nil {
			return nil, errors.NewCorruptedError("team config", path, vErr)
		}
	}
	return &cfg, nil
}

// -----------------------------------------------------------------------------
// Last-Active Marker
// -----------------------------------------------------------------------------

// SetLastActiveTeam records the most recently created team in the root
// marker. The write is best-effort: failures are logged and never surfaced,
// because losing the resolver's tiebreaker must not fail team creation.
func (s *Store) SetLastActiveTeam(name string) {
	if !team.ValidTeamName(name) {
		s.logger.Debug("ignoring invalid last-active team name", "team", name)
		return
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		s.logger.Warn("failed to write last-active marker", "error", err.Error())
		return
	}
	if err := atomicWriteFile(s.markerPath(), []byte(name), 0644); err != nil {
		s.logger.Warn("failed to write last-active marker", "error", err.Error())
	}
}

// LastActiveTeam returns the trimmed contents of the last-active marker, or
// "" when the marker is missing or unreadable.
func (s *Store) LastActiveTeam() string {
	data, err := os.ReadFile(s.markerPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// -----------------------------------------------------------------------------
// Helper Functions
// -----------------------------------------------------------------------------

// writeJSONFile marshals v with two-space indentation and writes it
// atomically.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.NewStoreError("encode json", err).WithPath(path)
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return errors.NewStoreError("write file", err).WithPath(path)
	}
	return nil
}

// atomicWriteFile writes data to a temporary file in the target directory,
// syncs it, then renames it into place so readers never observe a
// partially-written file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
