// Package events provides the typed publish/subscribe channel the simulation
// engine emits all state changes through.
//
// The set of topics is closed. Every topic has exactly one payload type and
// subscribers are bound to that type at compile time through Subscribe.
package events

import (
	"time"

	"github.com/fentz26/fleetsim/internal/models"
)

// Topic names an event category.
type Topic string

const (
	TopicTelemetry  Topic = "telemetry"
	TopicAlert      Topic = "alert"
	TopicTaskUpdate Topic = "task_update"
	TopicTick       Topic = "tick"
)

// Topics lists every topic in a stable order.
var Topics = []Topic{TopicTelemetry, TopicAlert, TopicTaskUpdate, TopicTick}

// Event is implemented only by the payload types of this package.
type Event interface {
	Topic() Topic
	isEvent()
}

// Payload constrains Subscribe to the concrete event types.
type Payload interface {
	Telemetry | Alert | TaskUpdate | Tick
	Event
}

// Telemetry is a snapshot of a robot's kinematic and health state.
//
// LocalizationConfidence carries the raw generated value; the store keeps the
// clamped one.
type Telemetry struct {
	RobotID                string             `json:"robot_id"`
	Timestamp              time.Time          `json:"timestamp"`
	Pose                   models.Pose        `json:"pose"`
	Battery                float64            `json:"battery_pct"`
	State                  models.RobotStatus `json:"state"`
	CurrentTaskID          string             `json:"current_task_id,omitempty"`
	LocalizationConfidence float64            `json:"localization_confidence"`
	Speed                  float64            `json:"speed"`
}

// Alert announces a new alert.
type Alert struct {
	ID        string          `json:"id"`
	RobotID   string          `json:"robot_id"`
	Severity  models.Severity `json:"severity"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// TaskUpdate reports a task status change.
type TaskUpdate struct {
	TaskID    string            `json:"task_id"`
	Status    models.TaskStatus `json:"status"`
	RobotID   string            `json:"robot_id,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// Tick marks the end of one telemetry pass.
type Tick struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
}

func (Telemetry) Topic() Topic  { return TopicTelemetry }
func (Alert) Topic() Topic      { return TopicAlert }
func (TaskUpdate) Topic() Topic { return TopicTaskUpdate }
func (Tick) Topic() Topic       { return TopicTick }

func (Telemetry) isEvent()  {}
func (Alert) isEvent()      {}
func (TaskUpdate) isEvent() {}
func (Tick) isEvent()       {}

// AlertFrom converts a stored alert into its event form.
func AlertFrom(a models.Alert) Alert {
	return Alert{
		ID:        a.ID,
		RobotID:   a.RobotID,
		Severity:  a.Severity,
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
}
