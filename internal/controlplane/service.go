// Package controlplane provides the HTTP API and live event stream for the
// fleet simulator.
package controlplane

import (
	"context"
	"time"

	"github.com/fentz26/fleetsim/internal/audit"
	"github.com/fentz26/fleetsim/internal/sim"
)

// Version is reported by the health endpoint.
var Version = "0.1.0"

// Pinger checks a backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service bundles what the API handlers act on.
type Service struct {
	engine   *sim.Engine
	registry Pinger
	audit    *audit.Log
}

// NewService creates a control plane service. registry may be nil.
func NewService(engine *sim.Engine, registry Pinger) *Service {
	return &Service{
		engine:   engine,
		registry: registry,
		audit:    audit.New(audit.DefaultCapacity),
	}
}

// Engine returns the simulation engine.
func (s *Service) Engine() *sim.Engine { return s.engine }

// Audit returns the operator action trail.
func (s *Service) Audit() *audit.Log { return s.audit }

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Running bool   `json:"running"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Health reports daemon and registry status.
func (s *Service) Health(ctx context.Context) HealthResponse {
	h := HealthResponse{
		OK:      true,
		DB:      "ok",
		Running: s.engine.IsRunning(),
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.registry == nil {
		h.DB = "none"
		return h
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.registry.Ping(ctx); err != nil {
		h.OK = false
		h.DB = err.Error()
	}
	return h
}
