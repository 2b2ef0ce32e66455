package tui

import (
	"errors"
	"strings"
	"testing"

	"github.com/fentz26/fleetsim/internal/models"
)

// fakeAPI records calls as "method arg...".
type fakeAPI struct {
	calls []string
	err   error
}

func (f *fakeAPI) record(parts ...string) error {
	f.calls = append(f.calls, strings.Join(parts, " "))
	return f.err
}

func (f *fakeAPI) CreateTask(req models.CreateTaskRequest) (string, error) {
	return "3f2a9c1e-0000-0000-0000-000000000000", f.record("create", req.FromZone, "|", req.ToZone, "|", req.Payload, "|", string(req.Priority))
}
func (f *fakeAPI) CancelTask(id string) error { return f.record("cancel", id) }
func (f *fakeAPI) AssignTask(taskID, robotID string) error {
	return f.record("assign", taskID, robotID)
}
func (f *fakeAPI) InjectFault(robotID string, fault models.FaultType) error {
	return f.record("fault", robotID, string(fault))
}
func (f *fakeAPI) Recover(robotID string) error { return f.record("recover", robotID) }
func (f *fakeAPI) SetRobotStatus(robotID string, status models.RobotStatus) error {
	return f.record("status", robotID, string(status))
}
func (f *fakeAPI) AckAlert(id string) error       { return f.record("ack", id) }
func (f *fakeAPI) ResolveAlert(id string) error   { return f.record("resolve", id) }
func (f *fakeAPI) StartSimulation() error         { return f.record("start") }
func (f *fakeAPI) StopSimulation() error          { return f.record("stop") }
func (f *fakeAPI) SetSpeed(multiplier float64) error {
	if multiplier == 2.5 {
		return f.record("speed", "2.5")
	}
	return f.record("speed", "?")
}

func TestRunCommand(t *testing.T) {
	sel := selection{RobotID: "robot_R08", TaskID: "task_002", AlertID: "alert_101"}

	cases := []struct {
		input string
		call  string
	}{
		{"fault slip", "fault robot_R08 wheel_slip"},
		{"fault localization_loss @robot_R10", "fault robot_R10 localization_loss"},
		{"recover", "recover robot_R08"},
		{"recover robot_R11", "recover robot_R11"},
		{"status offline", "status robot_R08 offline"},
		{"cancel", "cancel task_002"},
		{"cancel @task_003", "cancel task_003"},
		{"assign robot_R09", "assign task_002 robot_R09"},
		{"assign @robot_R09 @task_005", "assign task_005 robot_R09"},
		{"ack", "ack alert_101"},
		{"resolve alert_102", "resolve alert_102"},
		{"start", "start"},
		{"stop", "stop"},
		{"speed 2.5x", "speed 2.5"},
		{"add Pharmacy, Ward 5B, Medication", "create Pharmacy | Ward 5B | Medication | normal"},
		{"add Laboratory , ICU, Sample, critical", "create Laboratory | ICU | Sample | critical"},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			api := &fakeAPI{}
			msg, err := runCommand(api, tc.input, sel)
			if err != nil {
				t.Fatalf("runCommand failed: %v", err)
			}
			if len(api.calls) != 1 || api.calls[0] != tc.call {
				t.Errorf("calls = %q, want %q (message %q)", api.calls, tc.call, msg)
			}
		})
	}
}

func TestRunCommandUsage(t *testing.T) {
	for _, input := range []string{"cancel", "recover", "ack", "fault", "assign", "speed", "speed fast", "status"} {
		t.Run(input, func(t *testing.T) {
			api := &fakeAPI{}
			msg, err := runCommand(api, input, selection{})
			if err != nil {
				t.Fatalf("runCommand failed: %v", err)
			}
			if !strings.HasPrefix(msg, "Usage:") {
				t.Errorf("message = %q, want usage", msg)
			}
			if len(api.calls) != 0 {
				t.Errorf("unexpected calls %q", api.calls)
			}
		})
	}
}

func TestRunCommandErrors(t *testing.T) {
	api := &fakeAPI{err: errors.New("API error: robot not found")}
	if _, err := runCommand(api, "recover robot_X", selection{}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected API error, got %v", err)
	}

	if _, err := runCommand(&fakeAPI{}, "add Pharmacy, ICU", selection{}); err == nil {
		t.Error("add with two fields should fail")
	}

	msg, err := runCommand(&fakeAPI{}, "teleport", selection{})
	if err != nil || !strings.HasPrefix(msg, "Unknown") {
		t.Errorf("unknown command = %q, %v", msg, err)
	}
}
