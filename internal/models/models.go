// Package models defines the core domain types for the fleet simulator.
package models

import "time"

// RobotStatus represents the operational state of a robot.
type RobotStatus string

const (
	RobotStatusIdle     RobotStatus = "idle"
	RobotStatusEnRoute  RobotStatus = "en_route"
	RobotStatusCharging RobotStatus = "charging"
	RobotStatusError    RobotStatus = "error"
	RobotStatusOffline  RobotStatus = "offline"
)

// Valid reports whether s is a known robot status.
func (s RobotStatus) Valid() bool {
	switch s {
	case RobotStatusIdle, RobotStatusEnRoute, RobotStatusCharging, RobotStatusError, RobotStatusOffline:
		return true
	}
	return false
}

// TaskStatus represents the current state of a delivery task.
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the task has been retired.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled || s == TaskStatusFailed
}

// Priority is the urgency of a delivery task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// FaultType names a fault that can be injected into a robot.
type FaultType string

const (
	FaultWheelSlip        FaultType = "wheel_slip"
	FaultLocalizationLoss FaultType = "localization_loss"
	FaultBatteryCritical  FaultType = "battery_critical"
)

// Pose is a position and heading in facility coordinates.
type Pose struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// Robot is an autonomous mobile robot in the fleet.
type Robot struct {
	ID                     string      `json:"id"`
	Name                   string      `json:"name"`
	Status                 RobotStatus `json:"status"`
	Battery                float64     `json:"battery"`
	Floor                  int         `json:"floor"`
	Pose                   Pose        `json:"pose"`
	LocalizationConfidence float64     `json:"localization_confidence"`
	CurrentTaskID          string      `json:"current_task_id,omitempty"`
	LastSeen               time.Time   `json:"last_seen"`
	Speed                  float64     `json:"speed"`
}

// Task is a delivery request between two zones.
type Task struct {
	ID            string     `json:"id"`
	Requester     string     `json:"requester"`
	FromZone      string     `json:"from_zone"`
	ToZone        string     `json:"to_zone"`
	Priority      Priority   `json:"priority"`
	Payload       string     `json:"payload"`
	Status        TaskStatus `json:"status"`
	AssignedRobot string     `json:"assigned_robot,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	// ETAMinutes is set only while the task is in progress.
	ETAMinutes *float64 `json:"eta_minutes,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// Alert is an operator-facing notification about a robot.
type Alert struct {
	ID           string    `json:"id"`
	RobotID      string    `json:"robot_id"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
	Resolved     bool      `json:"resolved,omitempty"`
}

// Zone is a named polygon on a floor.
type Zone struct {
	ID      string      `json:"id" yaml:"id"`
	Type    string      `json:"type" yaml:"type"`
	Name    string      `json:"name" yaml:"name"`
	Polygon [][]float64 `json:"polygon" yaml:"polygon"`
	Access  string      `json:"access" yaml:"access"`
	Floor   int         `json:"floor" yaml:"floor"`
}

// FloorMap is the static geometry of one facility floor.
type FloorMap struct {
	MapID string `json:"map_id" yaml:"map_id"`
	Floor int    `json:"floor" yaml:"floor"`
	Name  string `json:"name" yaml:"name"`
	Zones []Zone `json:"zones" yaml:"zones"`
}

// CreateTaskRequest is the input of the task-creation interface.
type CreateTaskRequest struct {
	Requester string   `json:"requester" validate:"required"`
	FromZone  string   `json:"from_zone" validate:"required"`
	ToZone    string   `json:"to_zone" validate:"required,nefield=FromZone"`
	Priority  Priority `json:"priority" validate:"required,oneof=low normal high critical"`
	Payload   string   `json:"payload" validate:"required"`
	Notes     string   `json:"notes,omitempty" validate:"max=500"`
}

// FaultRequest asks the engine to inject a fault.
type FaultRequest struct {
	FaultType FaultType `json:"fault_type" validate:"required,oneof=wheel_slip localization_loss battery_critical"`
}

// RobotStatusRequest overrides a robot's status from outside the tick loop.
type RobotStatusRequest struct {
	Status RobotStatus `json:"status" validate:"required,oneof=idle charging error offline"`
}

// AssignTaskRequest binds a queued task to a specific robot.
type AssignTaskRequest struct {
	RobotID string `json:"robot_id" validate:"required"`
}

// SpeedRequest changes the simulation speed multiplier.
type SpeedRequest struct {
	Multiplier float64 `json:"multiplier" validate:"gt=0,lte=100"`
}
