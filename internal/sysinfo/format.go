package sysinfo

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

func percentStyle(percent float64) lipgloss.Style {
	switch {
	case percent <= 70:
		return okStyle
	case percent <= 80:
		return warnStyle
	default:
		return badStyle
	}
}

func onlineBadge(online bool) string {
	if online {
		return okStyle.Render("online")
	}
	return badStyle.Render("offline")
}

// Format renders the snapshot as a bulleted status block.
func Format(s Snapshot) string {
	var b strings.Builder

	b.WriteString(headingStyle.Render("System Status") + "\n")

	line := func(label, value string) {
		fmt.Fprintf(&b, "  %s %s\n", labelStyle.Render(label+":"), value)
	}

	osLine := s.OS
	if s.Kernel != "" {
		osLine += dimStyle.Render(" (kernel " + s.Kernel + ")")
	}
	line("OS", osLine)
	if s.Hostname != "" {
		line("Host", s.Hostname)
	}
	if s.Uptime > 0 {
		line("Uptime", humanUptime(s.Uptime))
	}

	cpuLine := s.CPUModel
	if s.CPUCores > 0 {
		cpuLine += fmt.Sprintf(", %d threads", s.CPUCores)
	}
	cpuLine += fmt.Sprintf(" at %s", percentStyle(s.CPUPercent).Render(fmt.Sprintf("%.1f%%", s.CPUPercent)))
	line("CPU", strings.TrimPrefix(cpuLine, ", "))

	line("Memory", fmt.Sprintf("%s / %s (%s)",
		humanBytes(s.MemoryUsed), humanBytes(s.MemoryTotal),
		percentStyle(s.MemoryPercent).Render(fmt.Sprintf("%.1f%%", s.MemoryPercent))))

	for _, d := range s.Disks {
		if d.Err != nil {
			line("Disk "+d.Mount, badStyle.Render("unavailable: "+d.Err.Error()))
			continue
		}
		line("Disk "+d.Mount, fmt.Sprintf("%s / %s (%s)",
			humanBytes(d.Used), humanBytes(d.Total),
			percentStyle(d.Percent).Render(fmt.Sprintf("%.1f%%", d.Percent))))
	}

	if s.GPU != "" {
		line("GPU", s.GPU)
	}

	ollamaLine := onlineBadge(s.OllamaOnline)
	if len(s.Models) > 0 {
		ollamaLine += dimStyle.Render(fmt.Sprintf(" (%d models: %s)", len(s.Models), strings.Join(s.Models, ", ")))
	}
	line("Ollama", ollamaLine)

	dbLine := onlineBadge(s.DBConnected)
	if s.DBConnected && len(s.DBTables) > 0 {
		dbLine += dimStyle.Render(" (tables: " + strings.Join(s.DBTables, ", ") + ")")
	}
	line("Database", dbLine)

	return strings.TrimRight(b.String(), "\n")
}
