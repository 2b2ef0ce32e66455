package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/fleetsim/internal/config"
	"github.com/fentz26/fleetsim/internal/controlplane"
	"github.com/fentz26/fleetsim/internal/registry"
	"github.com/fentz26/fleetsim/internal/sim"
	"github.com/fentz26/fleetsim/internal/store"
	"github.com/spf13/cobra"
)

var configPath string

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the fleetsim daemon",
	Long: `Starts the simulation engine and the HTTP API. The fleet and facility
are read from the SQLite registry at startup; runtime state is kept in memory.`,
	RunE: runDaemon,
}

func init() {
	def := sim.DefaultConfig()
	f := daemonCmd.Flags()
	f.StringVar(&configPath, "config", "", "Path to a YAML config file")
	f.String("listen", "127.0.0.1:7466", "Listen address for the API server")
	f.String("registry", config.DefaultRegistryPath(), "Path to the SQLite fleet registry")
	f.String("facility", "", "Facility YAML to import into the registry before starting")
	f.Bool("autostart", true, "Start the simulation immediately")
	f.Bool("demo", true, "Load the demo task backlog and alert history")
	f.Float64("speed", def.SpeedMultiplier, "Simulation speed multiplier")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting fleetsim daemon...")

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.Registry)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if seeded, err := reg.SeedDefaults(now); err != nil {
		reg.Close()
		return err
	} else if seeded {
		log.Printf("Seeded registry %s with the demo fleet", cfg.Registry)
	}
	if cfg.Facility != "" {
		res, err := reg.ImportFacility(cfg.Facility)
		if err != nil {
			reg.Close()
			return err
		}
		log.Printf("Imported %s: %d floors, %d zones, %d robots", cfg.Facility, res.Floors, res.Zones, res.Robots)
	}

	snap, err := reg.Snapshot(now, cfg.Demo)
	if err != nil {
		reg.Close()
		return err
	}
	log.Printf("Loaded %d robots, %d floors, %d tasks", len(snap.Robots), len(snap.FloorMaps), len(snap.Tasks))

	engine := sim.New(store.New(snap), sim.WithConfig(cfg.Simulation))
	if cfg.Autostart {
		if err := engine.Start(); err != nil {
			reg.Close()
			return err
		}
	}

	server := controlplane.NewServer(controlplane.NewService(engine, reg), cfg.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()
	log.Printf("API listening on %s", cfg.Listen)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			engine.Stop()
			reg.Close()
			return err
		}
	}

	log.Println("Stopping simulation...")
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing registry...")
	if err := reg.Close(); err != nil {
		log.Printf("Registry close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
