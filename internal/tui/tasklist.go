package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/fleetsim/internal/models"
)

var (
	statusIdle     = lipgloss.NewStyle().Foreground(successColor)
	statusEnRoute  = lipgloss.NewStyle().Foreground(cyanColor)
	statusCharging = lipgloss.NewStyle().Foreground(warningColor)
	statusError    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	statusOffline  = lipgloss.NewStyle().Foreground(mutedColor)
)

func formatRobotStatus(s models.RobotStatus) string {
	label := fmt.Sprintf("%-9s", strings.ToUpper(string(s)))
	switch s {
	case models.RobotStatusIdle:
		return statusIdle.Render("● " + label)
	case models.RobotStatusEnRoute:
		return statusEnRoute.Render("▶ " + label)
	case models.RobotStatusCharging:
		return statusCharging.Render("⚡ " + label)
	case models.RobotStatusError:
		return statusError.Render("✗ " + label)
	case models.RobotStatusOffline:
		return statusOffline.Render("○ " + label)
	}
	return string(s)
}

func formatTaskStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusQueued:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ QUEUED")
	case models.TaskStatusAssigned:
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◐ ASSIGNED")
	case models.TaskStatusInProgress:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◑ IN PROGRESS")
	case models.TaskStatusCompleted:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE")
	case models.TaskStatusCancelled:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("– CANCELLED")
	case models.TaskStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED")
	}
	return string(s)
}

func formatSeverity(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return lipgloss.NewStyle().Foreground(errorColor).Bold(true).Render("CRIT")
	case models.SeverityWarning:
		return lipgloss.NewStyle().Foreground(warningColor).Render("WARN")
	}
	return lipgloss.NewStyle().Foreground(cyanColor).Render("INFO")
}

// batteryBar renders a ten-cell gauge.
func batteryBar(pct float64) string {
	cells := int(pct/10 + 0.5)
	cells = min(max(cells, 0), 10)
	color := successColor
	switch {
	case pct < 20:
		color = errorColor
	case pct < 50:
		color = warningColor
	}
	bar := strings.Repeat("█", cells) + strings.Repeat("░", 10-cells)
	return lipgloss.NewStyle().Foreground(color).Render(bar) + fmt.Sprintf(" %3.0f%%", pct)
}

// window keeps the selected line visible in a list of the given height.
func window(lines []string, selected, height int) []string {
	if height <= 0 || len(lines) <= height {
		return lines
	}
	start := max(selected-height/2, 0)
	end := start + height
	if end > len(lines) {
		end = len(lines)
		start = max(0, end-height)
	}
	return lines[start:end]
}

func row(selected bool, text string) string {
	if selected {
		return selectedStyle.Render("▶ " + text)
	}
	return itemStyle.Render("  " + text)
}

func (a *App) renderRobotList(height int) string {
	if len(a.robots) == 0 {
		return "\n  No robots registered.\n"
	}
	header := headerStyle.Render(fmt.Sprintf("  %-10s %-13s %-16s %-5s %-14s %s",
		"ROBOT", "STATUS", "BATTERY", "FLOOR", "POSE", "TASK"))

	lines := make([]string, 0, len(a.robots))
	for i, r := range a.robots {
		task := r.CurrentTaskID
		if task == "" {
			task = "-"
		}
		text := fmt.Sprintf("%-10s %s %s  %-5d (%5.1f,%5.1f)  %s",
			r.Name, formatRobotStatus(r.Status), batteryBar(r.Battery), r.Floor, r.Pose.X, r.Pose.Y, shortID(task))
		lines = append(lines, row(i == a.selectedIdx, text))
	}
	return header + "\n" + strings.Join(window(lines, a.selectedIdx, height-1), "\n")
}

func (a *App) renderTaskList(height int) string {
	tasks := a.visibleTasks()
	filter := lipgloss.NewStyle().Foreground(mutedColor).Render(fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx]))
	if len(tasks) == 0 {
		return filter + "\n\n  No tasks found. Type: add <from>, <to>, <payload>\n"
	}

	lines := make([]string, 0, len(tasks))
	for i, t := range tasks {
		robot := t.AssignedRobot
		if robot == "" {
			robot = "-"
		}
		eta := ""
		if t.ETAMinutes != nil {
			eta = fmt.Sprintf(" eta %.1fm", *t.ETAMinutes)
		}
		text := fmt.Sprintf("%-9s %s  %s → %s  [%s]  %s%s",
			shortID(t.ID), formatTaskStatus(t.Status), t.FromZone, t.ToZone, t.Priority, robot, eta)
		lines = append(lines, row(i == a.selectedIdx, text))
	}
	return filter + "\n" + strings.Join(window(lines, a.selectedIdx, height-1), "\n")
}

func (a *App) renderAlertList(height int) string {
	if len(a.alerts) == 0 {
		return "\n  No alerts.\n"
	}
	lines := make([]string, 0, len(a.alerts))
	for i, al := range a.alerts {
		mark := "!"
		switch {
		case al.Resolved:
			mark = "✓"
		case al.Acknowledged:
			mark = "·"
		}
		text := fmt.Sprintf("%s %s %s  %-10s %s",
			mark, formatSeverity(al.Severity), al.Timestamp.Local().Format("15:04:05"), al.RobotID, al.Message)
		lines = append(lines, row(i == a.selectedIdx, text))
	}
	return strings.Join(window(lines, a.selectedIdx, height), "\n")
}

func (a *App) renderEventFeed(height int) string {
	if len(a.feed) == 0 {
		if !a.streaming {
			return "\n  Event stream disconnected. Reconnecting...\n"
		}
		return "\n  Waiting for events...\n"
	}
	lines := a.feed
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	return strings.Join(lines, "\n")
}

// visibleTasks applies the status filter.
func (a *App) visibleTasks() []models.Task {
	status := taskFilters[a.filterIdx]
	if status == "" {
		return a.tasks
	}
	var out []models.Task
	for _, t := range a.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
