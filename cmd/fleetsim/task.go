package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage delivery tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue a new delivery",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign [task-id] [robot-id]",
	Short: "Assign a queued task to a robot",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskAssign,
}

var (
	taskReq    models.CreateTaskRequest
	taskStatus string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskCancelCmd, taskAssignCmd)

	hostname, _ := os.Hostname()
	f := taskAddCmd.Flags()
	f.StringVar(&taskReq.FromZone, "from", "", "Pickup zone (required)")
	f.StringVar(&taskReq.ToZone, "to", "", "Drop-off zone (required)")
	f.StringVar(&taskReq.Payload, "payload", "", "What is being delivered (required)")
	f.StringVar((*string)(&taskReq.Priority), "priority", string(models.PriorityNormal), "Priority (low, normal, high, critical)")
	f.StringVar(&taskReq.Requester, "requester", fmt.Sprintf("cli@%s", hostname), "Requester")
	f.StringVar(&taskReq.Notes, "notes", "", "Notes for the operator")
	taskAddCmd.MarkFlagRequired("from")
	taskAddCmd.MarkFlagRequired("to")
	taskAddCmd.MarkFlagRequired("payload")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (queued, in_progress, completed, cancelled, failed)")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := apiPost("/tasks", taskReq, &task); err != nil {
		return err
	}
	fmt.Printf("Created task: %s\n", task.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	url := "/tasks"
	if taskStatus != "" {
		url += "?status=" + taskStatus
	}

	var tasks []models.Task
	if err := apiGet(url, &tasks); err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROUTE\tPAYLOAD\tPRIORITY\tSTATUS\tROBOT\tETA")
	for _, t := range tasks {
		eta := ""
		if t.ETAMinutes != nil {
			eta = fmt.Sprintf("%.0fm", *t.ETAMinutes)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(t.ID), truncate(t.FromZone+" → "+t.ToZone, 40), truncate(t.Payload, 24),
			t.Priority, t.Status, t.AssignedRobot, eta)
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := apiGet("/tasks/"+args[0], &task); err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", task.ID)
	fmt.Printf("Route:     %s → %s\n", task.FromZone, task.ToZone)
	fmt.Printf("Payload:   %s\n", task.Payload)
	fmt.Printf("Priority:  %s\n", task.Priority)
	fmt.Printf("Status:    %s\n", task.Status)
	fmt.Printf("Requester: %s\n", task.Requester)
	if task.AssignedRobot != "" {
		fmt.Printf("Robot:     %s\n", task.AssignedRobot)
	}
	if task.ETAMinutes != nil {
		fmt.Printf("ETA:       %.0f min\n", *task.ETAMinutes)
	}
	fmt.Printf("Created:   %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", task.CompletedAt.Format(time.RFC3339))
	}
	if task.Notes != "" {
		fmt.Printf("Notes:     %s\n", task.Notes)
	}
	return nil
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	if err := apiPost("/tasks/"+args[0]+"/cancel", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Cancelled task %s\n", args[0])
	return nil
}

func runTaskAssign(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := apiPost("/tasks/"+args[0]+"/assign", models.AssignTaskRequest{RobotID: args[1]}, &task); err != nil {
		return err
	}
	fmt.Printf("Assigned task %s to %s\n", task.ID, task.AssignedRobot)
	return nil
}

// --- Helpers ---

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
