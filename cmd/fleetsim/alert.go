package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/spf13/cobra"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Review fleet alerts",
}

var alertListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE:  runAlertList,
}

var alertAckCmd = &cobra.Command{
	Use:   "ack [alert-id]",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertAck,
}

var alertResolveCmd = &cobra.Command{
	Use:   "resolve [alert-id]",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertResolve,
}

var alertOpenOnly bool

func init() {
	alertCmd.AddCommand(alertListCmd, alertAckCmd, alertResolveCmd)
	alertListCmd.Flags().BoolVar(&alertOpenOnly, "open", false, "Only show unacknowledged alerts")
}

func runAlertList(cmd *cobra.Command, args []string) error {
	var alerts []models.Alert
	if err := apiGet("/alerts", &alerts); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSEVERITY\tROBOT\tMESSAGE\tACK")
	n := 0
	for _, a := range alerts {
		if alertOpenOnly && a.Acknowledged {
			continue
		}
		ack := ""
		if a.Acknowledged {
			ack = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(a.ID), a.Timestamp.Local().Format("15:04:05"), a.Severity, a.RobotID, truncate(a.Message, 50), ack)
		n++
	}
	if n == 0 {
		fmt.Println("No alerts found")
		return nil
	}
	w.Flush()
	return nil
}

func runAlertAck(cmd *cobra.Command, args []string) error {
	if err := apiPost("/alerts/"+args[0]+"/ack", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Acknowledged alert %s\n", args[0])
	return nil
}

func runAlertResolve(cmd *cobra.Command, args []string) error {
	if err := apiPost("/alerts/"+args[0]+"/resolve", nil, nil); err != nil {
		return err
	}
	fmt.Printf("Resolved alert %s\n", args[0])
	return nil
}
