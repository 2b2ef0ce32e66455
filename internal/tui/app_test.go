package tui

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/sim"
)

func loadedApp(t *testing.T) *App {
	t.Helper()
	now := time.Now().UTC()
	a := New("http://127.0.0.1:1")
	a.Update(snapshotMsg{
		robots: models.SeedRobots(now),
		tasks:  models.SeedTasks(now),
		alerts: models.SeedAlerts(now),
		stats:  &sim.Stats{Running: true, SpeedMultiplier: 2},
	})
	return a
}

func frame(t *testing.T, e events.Event) EventFrame {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return EventFrame{Type: e.Topic(), Payload: data}
}

func TestAppViews(t *testing.T) {
	a := loadedApp(t)

	out := a.View()
	for _, want := range []string{"FLEETSIM", "R-07", "R-11", "running", "2x"} {
		if !strings.Contains(out, want) {
			t.Errorf("robot view missing %q", want)
		}
	}

	a.Update(tea.KeyMsg{Type: tea.KeyTab})
	if a.view != viewTasks {
		t.Fatalf("tab should switch to tasks, got %v", a.view)
	}
	if out := a.View(); !strings.Contains(out, "Ward 5B") || !strings.Contains(out, "Filter: [ALL]") {
		t.Error("task view missing rows")
	}

	a.Update(tea.KeyMsg{Type: tea.KeyCtrlF})
	if got := a.visibleTasks(); len(got) != 1 || got[0].ID != "task_002" {
		t.Errorf("queued filter = %+v", got)
	}

	a.Update(tea.KeyMsg{Type: tea.KeyTab})
	if out := a.View(); !strings.Contains(out, "Wheel slip detected") || !strings.Contains(out, "ALERTS (2)") {
		t.Error("alert view missing rows or unacknowledged count")
	}
}

func TestAppSelection(t *testing.T) {
	a := loadedApp(t)

	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	a.Update(tea.KeyMsg{Type: tea.KeyDown})
	sel := a.selection()
	if sel.RobotID != "robot_R10" || sel.TaskID != "task_003" {
		t.Errorf("selection = %+v", sel)
	}

	a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !a.detail {
		t.Fatal("enter on empty input should open detail")
	}
	if out := a.View(); !strings.Contains(out, "Storage Room → ICU") {
		t.Error("robot detail should show its delivery")
	}
	a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if a.detail {
		t.Error("esc should close detail")
	}

	for i := 0; i < 10; i++ {
		a.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	if a.selectedIdx != 4 {
		t.Errorf("selection should stop at last robot, got %d", a.selectedIdx)
	}
}

func TestAppApplyEvents(t *testing.T) {
	a := loadedApp(t)

	a.Update(eventMsg{frame(t, events.Telemetry{
		RobotID: "robot_R08",
		Pose:    models.Pose{X: 42, Y: 24},
		Battery: 55,
		State:   models.RobotStatusEnRoute,
		Speed:   1,
	})})
	if r := a.robots[1]; r.Pose.X != 42 || r.Battery != 55 || r.Status != models.RobotStatusEnRoute {
		t.Errorf("telemetry not applied: %+v", r)
	}

	a.Update(eventMsg{frame(t, events.TaskUpdate{TaskID: "task_002", Message: "Task assigned to R-08"})})
	a.Update(eventMsg{frame(t, events.Alert{Severity: models.SeverityCritical, Message: "Wheel slip"})})
	a.Update(eventMsg{frame(t, events.Tick{Seq: 17})})
	if len(a.feed) != 2 || !strings.Contains(a.feed[0], "Task assigned to R-08") {
		t.Errorf("feed = %q", a.feed)
	}
	if a.lastTick != 17 {
		t.Errorf("lastTick = %d", a.lastTick)
	}

	for i := 0; i < feedLimit+10; i++ {
		a.pushFeed("x")
	}
	if len(a.feed) != feedLimit {
		t.Errorf("feed length = %d, want %d", len(a.feed), feedLimit)
	}
}

func TestAppFetchFailure(t *testing.T) {
	a := loadedApp(t)
	a.Update(fetchFailedMsg{err: errTest("connection refused")})
	if a.online {
		t.Error("failed fetch should mark daemon offline")
	}
	if out := a.View(); !strings.Contains(out, "connection refused") {
		t.Error("error message not shown")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
