package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fentz26/fleetsim/internal/models"
)

// fleetAPI is the part of Client the command bar drives.
type fleetAPI interface {
	CreateTask(req models.CreateTaskRequest) (string, error)
	CancelTask(id string) error
	AssignTask(taskID, robotID string) error
	InjectFault(robotID string, fault models.FaultType) error
	Recover(robotID string) error
	SetRobotStatus(robotID string, status models.RobotStatus) error
	AckAlert(id string) error
	ResolveAlert(id string) error
	StartSimulation() error
	StopSimulation() error
	SetSpeed(multiplier float64) error
}

var errNoSelection = errors.New("nothing selected")

var faultAliases = map[string]models.FaultType{
	"slip":    models.FaultWheelSlip,
	"loc":     models.FaultLocalizationLoss,
	"battery": models.FaultBatteryCritical,
}

const usageAdd = "Usage: add <from>, <to>, <payload>[, <priority>]"

// runCommand executes one command line. Arguments that name a robot, task or
// alert may be omitted to act on the current selection, and may be written
// with a leading @.
func runCommand(api fleetAPI, input string, sel selection) (string, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return "", nil
	}
	cmd, args := parts[0], parts[1:]
	for i, a := range args {
		args[i] = strings.TrimPrefix(a, "@")
	}

	switch cmd {
	case "add":
		req, err := parseAdd(strings.TrimSpace(strings.TrimPrefix(input, "add")))
		if err != nil {
			return "", err
		}
		id, err := api.CreateTask(req)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Created task %s", shortID(id)), nil

	case "cancel":
		id, err := pick(args, 0, sel.TaskID)
		if err != nil {
			return "Usage: cancel [task]", nil
		}
		if err := api.CancelTask(id); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Cancelled %s", shortID(id)), nil

	case "assign":
		if len(args) < 1 {
			return "Usage: assign <robot> [task]", nil
		}
		id, err := pick(args, 1, sel.TaskID)
		if err != nil {
			return "Usage: assign <robot> [task]", nil
		}
		if err := api.AssignTask(id, args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Assigned %s to %s", shortID(id), args[0]), nil

	case "fault":
		if len(args) < 1 {
			return "Usage: fault <wheel_slip|localization_loss|battery_critical> [robot]", nil
		}
		fault := models.FaultType(args[0])
		if alias, ok := faultAliases[args[0]]; ok {
			fault = alias
		}
		id, err := pick(args, 1, sel.RobotID)
		if err != nil {
			return "Usage: fault <type> [robot]", nil
		}
		if err := api.InjectFault(id, fault); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Injected %s into %s", fault, id), nil

	case "recover":
		id, err := pick(args, 0, sel.RobotID)
		if err != nil {
			return "Usage: recover [robot]", nil
		}
		if err := api.Recover(id); err != nil {
			return "", err
		}
		return fmt.Sprintf("Recovering %s...", id), nil

	case "status":
		if len(args) < 1 {
			return "Usage: status <idle|charging|error|offline> [robot]", nil
		}
		id, err := pick(args, 1, sel.RobotID)
		if err != nil {
			return "Usage: status <status> [robot]", nil
		}
		if err := api.SetRobotStatus(id, models.RobotStatus(args[0])); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ %s is now %s", id, args[0]), nil

	case "ack", "resolve":
		id, err := pick(args, 0, sel.AlertID)
		if err != nil {
			return fmt.Sprintf("Usage: %s [alert]", cmd), nil
		}
		done := "acknowledged"
		if cmd == "ack" {
			err = api.AckAlert(id)
		} else {
			err = api.ResolveAlert(id)
			done = "resolved"
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Alert %s %s", id, done), nil

	case "start":
		if err := api.StartSimulation(); err != nil {
			return "", err
		}
		return "✓ Simulation running", nil

	case "stop":
		if err := api.StopSimulation(); err != nil {
			return "", err
		}
		return "✓ Simulation stopped", nil

	case "speed":
		if len(args) != 1 {
			return "Usage: speed <multiplier>", nil
		}
		m, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "x"), 64)
		if err != nil {
			return "Usage: speed <multiplier>", nil
		}
		if err := api.SetSpeed(m); err != nil {
			return "", err
		}
		return fmt.Sprintf("✓ Speed %gx", m), nil
	}

	return fmt.Sprintf("Unknown: %s (try: add, fault, recover, cancel, assign, ack, speed)", cmd), nil
}

// parseAdd reads "<from>, <to>, <payload>[, <priority>]". Zone names may
// contain spaces.
func parseAdd(s string) (models.CreateTaskRequest, error) {
	fields := strings.Split(s, ",")
	if len(fields) < 3 || len(fields) > 4 {
		return models.CreateTaskRequest{}, errors.New(usageAdd)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	req := models.CreateTaskRequest{
		Requester: "tui",
		FromZone:  fields[0],
		ToZone:    fields[1],
		Payload:   fields[2],
		Priority:  models.PriorityNormal,
	}
	if len(fields) == 4 {
		req.Priority = models.Priority(fields[3])
	}
	return req, nil
}

func pick(args []string, i int, fallback string) (string, error) {
	if len(args) > i {
		return args[i], nil
	}
	if fallback == "" {
		return "", errNoSelection
	}
	return fallback, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
