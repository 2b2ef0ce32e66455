package tui

import (
	"time"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/sim"
)

// view is a top-level screen of the monitor.
type view int

const (
	viewRobots view = iota
	viewTasks
	viewAlerts
	viewEvents
)

var viewNames = []string{"ROBOTS", "TASKS", "ALERTS", "EVENTS"}

var taskFilters = []models.TaskStatus{
	"",
	models.TaskStatusQueued,
	models.TaskStatusInProgress,
	models.TaskStatusCompleted,
	models.TaskStatusCancelled,
	models.TaskStatusFailed,
}
var filterNames = []string{"ALL", "QUEUED", "IN PROGRESS", "DONE", "CANCELLED", "FAILED"}

// selection holds the IDs commands fall back to when none is given.
type selection struct {
	RobotID string
	TaskID  string
	AlertID string
}

type snapshotMsg struct {
	robots []models.Robot
	tasks  []models.Task
	alerts []models.Alert
	stats  *sim.Stats
	// scheduled is set for fetches started by the poll loop.
	scheduled bool
}

type fetchFailedMsg struct {
	err       error
	scheduled bool
}

type commandResultMsg struct {
	message string
}

type pollMsg time.Time

type streamOpenedMsg struct {
	frames <-chan EventFrame
}

type streamClosedMsg struct {
	err error
}

type reconnectMsg struct{}

type eventMsg struct {
	frame EventFrame
}
