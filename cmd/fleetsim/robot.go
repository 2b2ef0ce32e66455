package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/fleetsim/internal/controlplane"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/spf13/cobra"
)

var robotCmd = &cobra.Command{
	Use:   "robot",
	Short: "Inspect and control robots",
}

var robotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List robots",
	RunE:  runRobotList,
}

var robotFaultCmd = &cobra.Command{
	Use:   "fault [robot-id] [wheel_slip|localization_loss|battery_critical]",
	Short: "Inject a fault into a robot",
	Args:  cobra.ExactArgs(2),
	RunE:  runRobotFault,
}

var robotRecoverCmd = &cobra.Command{
	Use:   "recover [robot-id]",
	Short: "Attempt to recover a faulted robot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRobotRecover,
}

var robotStatusCmd = &cobra.Command{
	Use:   "status [robot-id] [idle|charging|error|offline]",
	Short: "Override a robot's status",
	Args:  cobra.ExactArgs(2),
	RunE:  runRobotStatus,
}

var recoverAsync bool

func init() {
	robotCmd.AddCommand(robotListCmd, robotFaultCmd, robotRecoverCmd, robotStatusCmd)
	robotRecoverCmd.Flags().BoolVar(&recoverAsync, "async", false, "Return immediately; the outcome is published as an alert")
}

func runRobotList(cmd *cobra.Command, args []string) error {
	var robots []models.Robot
	if err := apiGet("/robots", &robots); err != nil {
		return err
	}

	if len(robots) == 0 {
		fmt.Println("No robots found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tBATTERY\tFLOOR\tPOSE\tTASK")
	for _, r := range robots {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d\t(%.0f, %.0f)\t%s\n",
			r.ID, r.Name, r.Status, r.Battery, r.Floor, r.Pose.X, r.Pose.Y, r.CurrentTaskID)
	}
	w.Flush()
	return nil
}

func runRobotFault(cmd *cobra.Command, args []string) error {
	var alert models.Alert
	body := models.FaultRequest{FaultType: models.FaultType(args[1])}
	if err := apiPost("/robots/"+args[0]+"/fault", body, &alert); err != nil {
		return err
	}
	fmt.Printf("[%s] %s\n", alert.Severity, alert.Message)
	return nil
}

func runRobotRecover(cmd *cobra.Command, args []string) error {
	path := "/robots/" + args[0] + "/recover"
	if recoverAsync {
		path += "?async=true"
	}

	var res controlplane.RecoveryResponse
	if err := apiPost(path, nil, &res); err != nil {
		return err
	}

	switch {
	case res.Pending:
		fmt.Printf("Recovery of %s started\n", res.RobotID)
	case res.Recovered:
		fmt.Printf("%s recovered\n", res.RobotID)
	default:
		fmt.Printf("Recovery of %s failed\n", res.RobotID)
	}
	return nil
}

func runRobotStatus(cmd *cobra.Command, args []string) error {
	var r models.Robot
	body := models.RobotStatusRequest{Status: models.RobotStatus(args[1])}
	if err := apiPut("/robots/"+args[0]+"/status", body, &r); err != nil {
		return err
	}
	fmt.Printf("%s is now %s\n", r.ID, r.Status)
	return nil
}
