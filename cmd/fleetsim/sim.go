package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/sim"
	"github.com/spf13/cobra"
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Control the simulation clock",
}

var simStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine state and fleet counts",
	RunE:  runSimStatus,
}

var simStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tick loops",
	RunE:  func(cmd *cobra.Command, args []string) error { return simAction("/simulation/start") },
}

var simStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tick loops",
	RunE:  func(cmd *cobra.Command, args []string) error { return simAction("/simulation/stop") },
}

var simSpeedCmd = &cobra.Command{
	Use:   "speed [multiplier]",
	Short: "Set the speed multiplier (e.g. 2 or 0.5x)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimSpeed,
}

func init() {
	simCmd.AddCommand(simStatusCmd, simStartCmd, simStopCmd, simSpeedCmd)
}

func runSimStatus(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth()
	if err != nil {
		return err
	}

	var st sim.Stats
	if err := apiGet("/simulation", &st); err != nil {
		return err
	}

	printStats(st)
	fmt.Printf("Registry:  %s\n", health.DB)
	fmt.Printf("Version:   %s\n", health.Version)
	return nil
}

func simAction(path string) error {
	var st sim.Stats
	if err := apiPost(path, nil, &st); err != nil {
		return err
	}
	printStats(st)
	return nil
}

func runSimSpeed(cmd *cobra.Command, args []string) error {
	m, err := strconv.ParseFloat(strings.TrimSuffix(args[0], "x"), 64)
	if err != nil {
		return fmt.Errorf("invalid multiplier %q", args[0])
	}

	var st sim.Stats
	if err := apiPut("/simulation/speed", models.SpeedRequest{Multiplier: m}, &st); err != nil {
		return err
	}
	printStats(st)
	return nil
}

func printStats(st sim.Stats) {
	state := "stopped"
	if st.Running {
		state = "running"
	}
	fmt.Printf("Engine:    %s at %gx\n", state, st.SpeedMultiplier)
	fmt.Printf("Ticks:     %d telemetry, %d task, %d alert\n", st.TelemetryTicks, st.TaskTicks, st.AlertTicks)
	fmt.Printf("Robots:    %s\n", counts(st.Robots))
	fmt.Printf("Tasks:     %s\n", counts(st.Tasks))
}

func counts[K ~string](m map[K]int) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[K(k)])
	}
	return strings.Join(parts, " ")
}
