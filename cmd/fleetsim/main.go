package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fleetsim",
	Short: "fleetsim - delivery robot fleet simulator",
	Long: `fleetsim runs a discrete-time simulation of a hospital delivery robot fleet
and exposes it over an HTTP API, an event stream and a terminal monitor.`,
}

var (
	apiAddr string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(robotCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(alertCmd)
	rootCmd.AddCommand(simCmd)
	rootCmd.AddCommand(facilityCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tuiCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
