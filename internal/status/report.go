// Package status composes human-readable reports from store state.
//
// A Report is a point-in-time snapshot assembled by the Builder from the
// team store and the maintenance engine. Rendering is separate from
// building so the CLI can emit either styled terminal output (Render) or
// plain text for pipes and logs (RenderPlain).
package status

import (
	"sort"
	"time"

	"github.com/levelcode/teamfabric/internal/maintenance"
	"github.com/levelcode/teamfabric/internal/store"
	"github.com/levelcode/teamfabric/internal/team"
)

// Report is a snapshot of one team's state.
type Report struct {
	Team        *team.TeamConfig       `json:"team"`
	Stats       *maintenance.TeamStats `json:"stats"`
	Tasks       []*team.TeamTask       `json:"tasks"`
	Issues      []maintenance.Issue    `json:"issues"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// Uptime returns how long the team has existed.
func (r *Report) Uptime() time.Duration {
	if r.Stats == nil {
		return 0
	}
	return time.Duration(r.Stats.UptimeMillis) * time.Millisecond
}

// Builder assembles reports from the store and the maintenance engine.
type Builder struct {
	store  *store.Store
	engine *maintenance.Engine
}

// NewBuilder creates a Builder. Both dependencies are required.
func NewBuilder(st *store.Store, engine *maintenance.Engine) *Builder {
	return &Builder{store: st, engine: engine}
}

// Build assembles a report for one team. Tasks are ordered by priority
// then numeric id so the rendering is stable across runs.
func (b *Builder) Build(teamName string) (*Report, error) {
	stats, err := b.engine.Stats(teamName)
	if err != nil {
		return nil, err
	}

	cfg, err := b.store.LoadTeamConfig(teamName)
	if err != nil {
		return nil, err
	}

	tasks, err := b.store.ListTasks(teamName)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks)

	issues, err := b.engine.ValidateTeamIntegrity(teamName)
	if err != nil {
		return nil, err
	}

	return &Report{
		Team:        cfg,
		Stats:       stats,
		Tasks:       tasks,
		Issues:      issues,
		GeneratedAt: time.Now(),
	}, nil
}

// TeamSummary is one row of the team listing.
type TeamSummary struct {
	Name        string `json:"name"`
	Phase       string `json:"phase"`
	MemberCount int    `json:"memberCount"`
	TaskCount   int    `json:"taskCount"`
	LastActive  bool   `json:"lastActive"`
}

// Summaries lists every team on disk with its phase and sizes. Teams whose
// config cannot be loaded are skipped; the integrity command reports them.
func (b *Builder) Summaries() ([]TeamSummary, error) {
	names, err := b.store.TeamNames()
	if err != nil {
		return nil, err
	}
	marker := b.store.LastActiveTeam()

	summaries := make([]TeamSummary, 0, len(names))
	for _, name := range names {
		cfg, err := b.store.LoadTeamConfig(name)
		if err != nil || cfg == nil {
			continue
		}
		tasks, err := b.store.ListTasks(name)
		if err != nil {
			tasks = nil
		}
		summaries = append(summaries, TeamSummary{
			Name:        cfg.Name,
			Phase:       cfg.Phase.String(),
			MemberCount: len(cfg.Members),
			TaskCount:   len(tasks),
			LastActive:  cfg.Name == marker,
		})
	}
	return summaries, nil
}

// sortTasks orders by priority rank, then numeric id.
func sortTasks(tasks []*team.TeamTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Priority.Rank(), tasks[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return lessID(tasks[i].ID, tasks[j].ID)
	})
}

// lessID compares numeric task ids by magnitude, falling back to string
// order for equal lengths.
func lessID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
