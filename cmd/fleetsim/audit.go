package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fentz26/fleetsim/internal/audit"
	"github.com/spf13/cobra"
)

var (
	auditLimit  int
	auditAction string
	auditTarget string
	auditSince  time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show recent operator actions",
	RunE:  runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.IntVar(&auditLimit, "limit", 20, "Number of records to show (0 for all)")
	f.StringVar(&auditAction, "action", "", "Only show this action (e.g. robot.fault)")
	f.StringVar(&auditTarget, "target", "", "Only show actions on this robot, task or alert ID")
	f.DurationVar(&auditSince, "since", 0, "Only show actions from the last duration (e.g. 15m)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	var recs []audit.Record
	q := url.Values{}
	q.Set("limit", strconv.Itoa(auditLimit))
	if auditAction != "" {
		q.Set("action", auditAction)
	}
	if auditTarget != "" {
		q.Set("target", auditTarget)
	}
	if auditSince > 0 {
		q.Set("since", time.Now().Add(-auditSince).UTC().Format(time.RFC3339))
	}

	if err := apiGet("/audit?"+q.Encode(), &recs); err != nil {
		return err
	}

	if len(recs) == 0 {
		fmt.Println("No actions recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tTARGET\tOUTCOME\tDETAILS")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.At.Local().Format("15:04:05"), r.Action, r.Target, r.Outcome, truncate(r.Details, 50))
	}
	w.Flush()
	return nil
}
