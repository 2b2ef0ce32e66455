package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/fleetsim/internal/models"
)

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginTop(1)
)

func field(b *strings.Builder, label, value string) {
	b.WriteString("  " + labelStyle.Render(label) + valueStyle.Render(value) + "\n")
}

func (a *App) renderRobotDetail(r models.Robot) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  %s  %s\n\n", lipgloss.NewStyle().Bold(true).Render(r.Name), formatRobotStatus(r.Status)))
	field(&b, "ID", r.ID)
	field(&b, "Battery", batteryBar(r.Battery))
	field(&b, "Floor", fmt.Sprintf("%d", r.Floor))
	field(&b, "Pose", fmt.Sprintf("x=%.1f y=%.1f θ=%.2f", r.Pose.X, r.Pose.Y, r.Pose.Theta))
	field(&b, "Speed", fmt.Sprintf("%.2f m/s", r.Speed))
	field(&b, "Localization", fmt.Sprintf("%.0f%%", r.LocalizationConfidence*100))
	field(&b, "Last seen", r.LastSeen.Local().Format("15:04:05"))

	if r.CurrentTaskID != "" {
		b.WriteString(sectionStyle.Render("  Current delivery") + "\n")
		if t := a.findTask(r.CurrentTaskID); t != nil {
			b.WriteString(fmt.Sprintf("    %s → %s  (%s)\n", t.FromZone, t.ToZone, t.Payload))
			if t.ETAMinutes != nil {
				b.WriteString(fmt.Sprintf("    ETA %.1f min\n", *t.ETAMinutes))
			}
		} else {
			b.WriteString("    " + r.CurrentTaskID + "\n")
		}
	}

	var recent []models.Alert
	for _, al := range a.alerts {
		if al.RobotID == r.ID {
			recent = append(recent, al)
		}
		if len(recent) == 3 {
			break
		}
	}
	if len(recent) > 0 {
		b.WriteString(sectionStyle.Render("  Recent alerts") + "\n")
		for _, al := range recent {
			b.WriteString(fmt.Sprintf("    %s %s\n", formatSeverity(al.Severity), al.Message))
		}
	}

	b.WriteString("\n  " + helpStyle.Render("fault <type> | recover | status <status> | Esc:back") + "\n")
	return b.String()
}

func (a *App) renderTaskDetail(t models.Task) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("\n  %s  %s\n\n",
		lipgloss.NewStyle().Bold(true).Render(t.FromZone+" → "+t.ToZone), formatTaskStatus(t.Status)))
	field(&b, "ID", t.ID)
	field(&b, "Payload", t.Payload)
	field(&b, "Priority", string(t.Priority))
	field(&b, "Requester", t.Requester)
	field(&b, "Created", t.CreatedAt.Local().Format("15:04:05"))
	if t.AssignedRobot != "" {
		field(&b, "Robot", t.AssignedRobot)
	}
	if t.ETAMinutes != nil {
		field(&b, "ETA", fmt.Sprintf("%.1f min", *t.ETAMinutes))
	}
	if t.CompletedAt != nil {
		field(&b, "Completed", t.CompletedAt.Local().Format("15:04:05"))
	}
	if t.Notes != "" {
		b.WriteString(sectionStyle.Render("  Notes") + "\n")
		b.WriteString("    " + t.Notes + "\n")
	}

	b.WriteString("\n  " + helpStyle.Render("cancel | assign <robot> | Esc:back") + "\n")
	return b.String()
}

func (a *App) findTask(id string) *models.Task {
	for i := range a.tasks {
		if a.tasks[i].ID == id {
			return &a.tasks[i]
		}
	}
	return nil
}
