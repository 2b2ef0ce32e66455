package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fentz26/fleetsim/internal/tui"
	"github.com/spf13/cobra"
)

var noSpawn bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the fleet monitor",
	RunE:  runTUI,
}

func init() {
	tuiCmd.Flags().BoolVar(&noSpawn, "no-spawn", false, "Do not start a daemon when none is reachable")
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !isDaemonRunning() && !noSpawn {
		fmt.Println("fleetsim daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(apiAddr)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func isDaemonRunning() bool {
	// A degraded daemon still answers with a health payload.
	h, _ := CheckHealth()
	return h != nil
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "daemon")
	// Detach so the daemon outlives the monitor.
	configureDaemonProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if isDaemonRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
