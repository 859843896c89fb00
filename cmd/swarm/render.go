package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agent-swarm/internal/adapter/workflow"
	"agent-swarm/internal/domain"
	"agent-swarm/internal/usecase/multiagent"
	"agent-swarm/internal/usecase/sessioncache"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	cell    lipgloss.Style
	empty   lipgloss.Style
	key     lipgloss.Style
	value   lipgloss.Style
	ok      lipgloss.Style
	warning lipgloss.Style
	fail    lipgloss.Style
	tiers   map[domain.Tier]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("241")),
		cell:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		empty:   lipgloss.NewStyle().Faint(true),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		tiers: map[domain.Tier]lipgloss.Style{
			domain.TierBasic:        lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
			domain.TierIntermediate: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
			domain.TierAdvanced:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		},
	}
}

var agentColumns = []struct {
	title string
	width int
}{
	{"ID", 10},
	{"NAME", 36},
	{"TIER", 14},
	{"STATUS", 9},
	{"WEIGHT", 7},
	{"CAPABILITIES", 0},
}

func renderAgents(agents []domain.Agent, s styles) string {
	lines := []string{s.title.Render(fmt.Sprintf("Agents (%d)", len(agents)))}
	if len(agents) == 0 {
		lines = append(lines, s.empty.Render("No agents. Create one with 'swarm create --tier basic'."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	header := make([]string, len(agentColumns))
	for i, c := range agentColumns {
		header[i] = s.header.Width(c.width).Render(c.title)
	}
	lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, a := range agents {
		tier := string(a.Tier)
		if a.Durable {
			tier += "*"
		}
		cells := []string{
			s.cell.Width(agentColumns[0].width).Render(shortID(a.ID)),
			s.cell.Width(agentColumns[1].width).Render(a.Name),
			s.tierStyle(a.Tier).Width(agentColumns[2].width).Render(tier),
			s.statusStyle(a.Status).Width(agentColumns[3].width).Render(string(a.Status)),
			s.cell.Width(agentColumns[4].width).Render(fmt.Sprint(a.Weight())),
			s.cell.Render(strings.Join(a.Capabilities, ", ")),
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	lines = append(lines, s.empty.Render("* promoted; record does not expire"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAgent(label string, a domain.Agent, s styles) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render(label),
		s.row("id", a.ID),
		s.row("name", a.Name),
		s.key.Render("tier")+s.tierStyle(a.Tier).Render(string(a.Tier)),
		s.key.Render("status")+s.statusStyle(a.Status).Render(string(a.Status)),
		s.row("capabilities", strings.Join(a.Capabilities, ", ")),
	)
}

func renderAssignment(task domain.Task, res multiagent.Assignment, ok bool, s styles) string {
	lines := []string{
		s.title.Render("Assignment"),
		s.row("task", fmt.Sprintf("%s (%s)", task.Title, task.ID)),
		s.row("complexity", fmt.Sprintf("%.2f (%s)", res.Complexity, multiagent.TierFor(res.Complexity))),
	}
	if res.Created != nil {
		lines = append(lines, s.row("provisioned", fmt.Sprintf("%s [%s]", res.Created.Name, res.Created.Tier)))
	}
	if !ok {
		lines = append(lines, s.warning.Render("no idle agent available"))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}
	lines = append(lines,
		s.key.Render("assigned to")+s.ok.Render(res.Agent.Name),
		s.row("agent id", res.AgentID),
		s.key.Render("tier")+s.tierStyle(res.Agent.Tier).Render(string(res.Agent.Tier)),
	)
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderProcess(res sessioncache.Result, maxBytes int, s styles) string {
	persisted := s.ok.Render("yes")
	if !res.Persisted {
		persisted = s.warning.Render(fmt.Sprintf("no (context exceeds %s)", humanBytes(maxBytes)))
	}
	status := s.ok.Render(res.Workflow.Status)
	if res.Workflow.Status != workflow.StatusCompleted {
		status = s.warning.Render(res.Workflow.Status)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render("Session"),
		s.row("session", res.SessionID),
		s.row("context", humanBytes(res.SizeBytes)),
		s.key.Render("persisted")+persisted,
		s.key.Render("status")+status,
		s.row("result", res.Workflow.Result),
	)
}

func renderEstimate(e domain.ResourceEstimate, agents, tasks int, s styles) string {
	return lipgloss.JoinVertical(lipgloss.Left,
		s.title.Render("Resource estimate"),
		s.header.Render(fmt.Sprintf("agents: %d  tasks: %d", agents, tasks)),
		s.key.Render("cpu")+renderBar(e.CPUUsage, 24, s),
		s.key.Render("memory")+renderBar(e.MemoryUsage, 24, s),
		s.row("efficiency", fmt.Sprintf("%.0f%%", e.Efficiency*100)),
	)
}

// renderBar draws pct (clamped to 0..100 for the bar only) followed by the
// unclamped figure.
func renderBar(pct float64, width int, s styles) string {
	filled := int(min(max(pct, 0), 100) / 100 * float64(width))
	style := s.ok
	switch {
	case pct >= 90:
		style = s.fail
	case pct >= 70:
		style = s.warning
	}
	bar := style.Render(strings.Repeat("█", filled)) + s.empty.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("[%s] %5.1f%%", bar, pct)
}

func (s styles) row(key, value string) string {
	return s.key.Render(key) + s.value.Render(value)
}

func (s styles) tierStyle(t domain.Tier) lipgloss.Style {
	if st, ok := s.tiers[t]; ok {
		return st
	}
	return s.cell
}

func (s styles) statusStyle(st domain.AgentStatus) lipgloss.Style {
	switch st {
	case domain.AgentIdle:
		return s.ok
	case domain.AgentActive:
		return s.warning
	default:
		return s.empty
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
