package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/levelcode/teamfabric/internal/maintenance"
	"github.com/levelcode/teamfabric/internal/team"
	"github.com/levelcode/teamfabric/internal/util"
)

// DefaultWidth is the rendering width when the terminal width is unknown.
const DefaultWidth = 80

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#60A5FA"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))

	memberStatusStyles = map[team.MemberStatus]lipgloss.Style{
		team.StatusActive:    okStyle,
		team.StatusWorking:   okStyle,
		team.StatusIdle:      mutedStyle,
		team.StatusBlocked:   warnStyle,
		team.StatusCompleted: mutedStyle,
		team.StatusFailed:    errStyle,
	}

	taskStatusStyles = map[team.TaskStatus]lipgloss.Style{
		team.TaskPending:    mutedStyle,
		team.TaskInProgress: okStyle,
		team.TaskCompleted:  mutedStyle,
		team.TaskBlocked:    warnStyle,
	}
)

// Render produces styled terminal output for a report.
func Render(r *Report, width int) string {
	return render(r, width, true)
}

// RenderPlain produces unstyled output suitable for pipes and logs.
func RenderPlain(r *Report, width int) string {
	return render(r, width, false)
}

func render(r *Report, width int, styled bool) string {
	if width <= 0 {
		width = DefaultWidth
	}

	var b strings.Builder
	writeSummary(&b, r, width, styled)
	writeMembers(&b, r, width, styled)
	writeTasks(&b, r, width, styled)
	writeIssues(&b, r, width, styled)
	return b.String()
}

func writeSummary(b *strings.Builder, r *Report, width int, styled bool) {
	name := r.Stats.Team
	header := fmt.Sprintf("Team %s", name)
	if styled {
		header = titleStyle.Render(header)
	}
	b.WriteString(header + "\n")
	b.WriteString(rule(width) + "\n")

	if r.Team != nil && r.Team.Description != "" {
		b.WriteString(util.TruncateANSI(r.Team.Description, width) + "\n")
	}
	b.WriteString(fmt.Sprintf("Phase:   %s\n", r.Stats.Phase))
	b.WriteString(fmt.Sprintf("Uptime:  %s\n", formatDuration(r.Uptime())))
	b.WriteString(fmt.Sprintf("Size:    %s, %s\n",
		util.Pluralize(r.Stats.MemberCount, "member"),
		util.Pluralize(r.Stats.TaskCount, "task")))
	b.WriteString("\n")
}

func writeMembers(b *strings.Builder, r *Report, width int, styled bool) {
	b.WriteString(section("MEMBERS", styled) + "\n")
	b.WriteString(rule(width) + "\n")

	if r.Team == nil || len(r.Team.Members) == 0 {
		b.WriteString(dim("no members", styled) + "\n\n")
		return
	}

	nameW, roleW := 20, 22
	for _, m := range r.Team.Members {
		status := string(m.Status)
		if styled {
			if style, ok := memberStatusStyles[m.Status]; ok {
				status = style.Render(status)
			}
		}
		row := util.PadANSI(m.Name, nameW) + " " + util.PadANSI(m.Role, roleW) + " " + status
		if m.CurrentTaskID != "" {
			row += dim(fmt.Sprintf("  task %s", m.CurrentTaskID), styled)
		}
		b.WriteString(util.TruncateANSI(row, width) + "\n")
	}
	b.WriteString("\n")
}

func writeTasks(b *strings.Builder, r *Report, width int, styled bool) {
	b.WriteString(section("TASKS", styled) + "\n")
	b.WriteString(rule(width) + "\n")

	counts := make([]string, 0, 4)
	for _, st := range []team.TaskStatus{team.TaskPending, team.TaskInProgress, team.TaskBlocked, team.TaskCompleted} {
		if n := r.Stats.TasksByStatus[st]; n > 0 {
			counts = append(counts, fmt.Sprintf("%d %s", n, st))
		}
	}
	if len(counts) > 0 {
		b.WriteString(strings.Join(counts, ", ") + "\n")
	}

	if len(r.Tasks) == 0 {
		b.WriteString(dim("no tasks", styled) + "\n\n")
		return
	}

	for _, task := range r.Tasks {
		status := string(task.Status)
		if styled {
			if style, ok := taskStatusStyles[task.Status]; ok {
				status = style.Render(status)
			}
		}
		row := fmt.Sprintf("#%s %s %s  %s",
			task.ID,
			util.PadANSI(status, 11),
			util.PadANSI(string(task.Priority), 8),
			task.Subject)
		if len(task.BlockedBy) > 0 {
			row += dim(fmt.Sprintf("  blocked by %s", strings.Join(task.BlockedBy, ",")), styled)
		}
		if task.Owner != "" {
			row += dim("  @"+task.Owner, styled)
		}
		b.WriteString(util.TruncateANSI(row, width) + "\n")
	}
	b.WriteString("\n")
}

func writeIssues(b *strings.Builder, r *Report, width int, styled bool) {
	if len(r.Issues) == 0 {
		msg := "integrity: clean"
		if styled {
			msg = okStyle.Render(msg)
		}
		b.WriteString(msg + "\n")
		return
	}

	b.WriteString(section("INTEGRITY ISSUES", styled) + "\n")
	b.WriteString(rule(width) + "\n")
	for _, issue := range r.Issues {
		b.WriteString(util.TruncateANSI(FormatIssue(issue, styled), width) + "\n")
	}
}

// FormatIssue renders a single integrity finding as one line.
func FormatIssue(issue maintenance.Issue, styled bool) string {
	label := string(issue.Type)
	if styled {
		label = warnStyle.Render(label)
	}
	line := label + ": " + issue.Detail
	if issue.Path != "" {
		line += " (" + issue.Path + ")"
	}
	return line
}

// RenderSummaries renders the team listing, one row per team. The
// last-active team is marked with an asterisk.
func RenderSummaries(summaries []TeamSummary, width int, styled bool) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if len(summaries) == 0 {
		return dim("no teams", styled) + "\n"
	}

	var b strings.Builder
	for _, s := range summaries {
		marker := " "
		if s.LastActive {
			marker = "*"
		}
		name := s.Name
		if styled {
			name = titleStyle.Render(name)
		}
		row := fmt.Sprintf("%s %s %s  %s, %s",
			marker,
			util.PadANSI(name, 24),
			util.PadANSI(s.Phase, 10),
			util.Pluralize(s.MemberCount, "member"),
			util.Pluralize(s.TaskCount, "task"))
		b.WriteString(util.TruncateANSI(row, width) + "\n")
	}
	return b.String()
}

func section(name string, styled bool) string {
	if styled {
		return sectionStyle.Render(name)
	}
	return name
}

func dim(s string, styled bool) string {
	if styled {
		return mutedStyle.Render(s)
	}
	return s
}

func rule(width int) string {
	if width > DefaultWidth {
		width = DefaultWidth
	}
	return strings.Repeat("─", width)
}

// formatDuration renders an uptime compactly: 90m becomes "1h30m", days
// are spelled out past 48h.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	default:
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		if h == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd%dh", days, h)
	}
}
