package store

import (
	"fmt"
	"time"

	"github.com/fentz26/fleetsim/internal/models"
)

// Tx is a handle on the store held for the duration of an Update or View.
// Pointers it returns are live and must not be retained after the callback.
type Tx struct {
	s *Store
}

// Now returns the store's current time.
func (tx *Tx) Now() time.Time {
	return tx.s.now()
}

// Robot returns the live robot with the given ID.
func (tx *Tx) Robot(id string) (*models.Robot, error) {
	r, ok := tx.s.robotIdx[id]
	if !ok {
		return nil, fmt.Errorf("robot %s: %w", id, ErrRobotNotFound)
	}
	return r, nil
}

// Robots returns the live robots in store order.
func (tx *Tx) Robots() []*models.Robot {
	return tx.s.robots
}

// Task returns the live task with the given ID.
func (tx *Tx) Task(id string) (*models.Task, error) {
	t, ok := tx.s.taskIdx[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
	}
	return t, nil
}

// Tasks returns the live tasks in creation order.
func (tx *Tx) Tasks() []*models.Task {
	return tx.s.tasks
}

// InsertTask appends t and returns the stored copy.
func (tx *Tx) InsertTask(t models.Task) *models.Task {
	c := cloneTask(&t)
	tx.s.tasks = append(tx.s.tasks, &c)
	tx.s.taskIdx[c.ID] = &c
	return &c
}

// AddAlert prepends a and returns it.
func (tx *Tx) AddAlert(a models.Alert) models.Alert {
	if a.Timestamp.IsZero() {
		a.Timestamp = tx.Now()
	}
	tx.s.alerts = append([]*models.Alert{&a}, tx.s.alerts...)
	return a
}

// SetBattery stores v clamped to [0,100].
func (tx *Tx) SetBattery(r *models.Robot, v float64) {
	r.Battery = clampBattery(v)
}

// --- Task transitions ---

// AssignTask moves a queued task to in_progress on an idle robot.
func (tx *Tx) AssignTask(t *models.Task, r *models.Robot, eta float64) error {
	if t.Status != models.TaskStatusQueued {
		return invalid("task %s is %s, not queued", t.ID, t.Status)
	}
	if r.Status != models.RobotStatusIdle || r.CurrentTaskID != "" {
		return invalid("robot %s is %s, not idle", r.ID, r.Status)
	}
	t.Status = models.TaskStatusInProgress
	t.AssignedRobot = r.ID
	t.ETAMinutes = &eta
	r.Status = models.RobotStatusEnRoute
	r.CurrentTaskID = t.ID
	return nil
}

// CompleteTask finishes an in-progress task and returns its robot to idle.
// It returns the released robot, if any.
func (tx *Tx) CompleteTask(t *models.Task) (*models.Robot, error) {
	if t.Status != models.TaskStatusInProgress {
		return nil, invalid("task %s is %s, not in_progress", t.ID, t.Status)
	}
	now := tx.Now()
	t.Status = models.TaskStatusCompleted
	t.CompletedAt = &now
	t.ETAMinutes = nil

	r := tx.unbind(t)
	if r != nil {
		r.Status = models.RobotStatusIdle
	}
	return r, nil
}

// FailTask retires a task whose robot can no longer carry it. The robot's
// status is left to the caller.
func (tx *Tx) FailTask(t *models.Task) (*models.Robot, error) {
	if t.Status.Terminal() {
		return nil, invalid("task %s is already %s", t.ID, t.Status)
	}
	t.Status = models.TaskStatusFailed
	t.ETAMinutes = nil
	return tx.unbind(t), nil
}

// RequeueTask returns an assigned task to the queue.
func (tx *Tx) RequeueTask(t *models.Task) (*models.Robot, error) {
	if t.Status != models.TaskStatusInProgress && t.Status != models.TaskStatusAssigned {
		return nil, invalid("task %s is %s, cannot requeue", t.ID, t.Status)
	}
	r := tx.unbind(t)
	t.Status = models.TaskStatusQueued
	t.AssignedRobot = ""
	t.ETAMinutes = nil
	return r, nil
}

// CancelTask retires a task that has not finished. A robot carrying it goes
// back to idle.
func (tx *Tx) CancelTask(t *models.Task) error {
	if t.Status.Terminal() {
		return invalid("task %s is already %s", t.ID, t.Status)
	}
	t.Status = models.TaskStatusCancelled
	t.ETAMinutes = nil
	if r := tx.unbind(t); r != nil && r.Status == models.RobotStatusEnRoute {
		r.Status = models.RobotStatusIdle
	}
	return nil
}

// BoundTask returns the in-progress task r is carrying, or nil.
func (tx *Tx) BoundTask(r *models.Robot) *models.Task {
	if r.CurrentTaskID == "" {
		return nil
	}
	return tx.s.taskIdx[r.CurrentTaskID]
}

// unbind clears the robot's reference to t and returns the robot.
func (tx *Tx) unbind(t *models.Task) *models.Robot {
	if t.AssignedRobot == "" {
		return nil
	}
	r, ok := tx.s.robotIdx[t.AssignedRobot]
	if !ok || r.CurrentTaskID != t.ID {
		return nil
	}
	r.CurrentTaskID = ""
	return r
}
