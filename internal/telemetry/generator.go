// Package telemetry synthesizes per-robot pose, battery and localization
// updates, one pass over the fleet per tick.
package telemetry

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

// Facility bounds for generated waypoints.
const (
	MinX = 20.0
	MaxX = 280.0
	MinY = 20.0
	MaxY = 200.0
)

const (
	PathLength     = 10
	WaypointJitter = 20.0 // max per-axis offset between waypoints
	ArrivalRadius  = 5.0
	StepLength     = 3.0 // distance units per tick at speed 1

	MinForwardSpeed   = 0.8
	ForwardSpeedRange = 0.4

	DrainPerTick  = 0.02
	ChargePerTick = 0.5

	LowBattery     = 20.0
	ChargedBattery = 95.0

	ConfidenceNoise = 0.01
	MinConfidence   = 0.7
	MaxConfidence   = 1.0
)

// Rand is the randomness the generator needs.
type Rand interface {
	Float64() float64
}

type point struct{ X, Y float64 }

// Generator owns the waypoint paths of moving robots. Paths survive engine
// restarts so a speed change does not reroute the fleet.
type Generator struct {
	store *store.Store
	bus   *events.Bus
	rng   Rand

	mu    sync.Mutex
	paths map[string][]point
}

// New creates a generator over the given store.
func New(s *store.Store, bus *events.Bus, rng Rand) *Generator {
	return &Generator{
		store: s,
		bus:   bus,
		rng:   rng,
		paths: make(map[string][]point),
	}
}

// Tick updates every robot once. speed scales the distance covered per tick.
// Events for a robot are published after its update is committed.
func (g *Generator) Tick(speed float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ids []string
	_ = g.store.View(func(tx *store.Tx) error {
		for _, r := range tx.Robots() {
			ids = append(ids, r.ID)
		}
		return nil
	})

	for _, id := range ids {
		evts, err := g.update(id, speed)
		if err != nil {
			log.Printf("[telemetry] skip robot %s: %v", id, err)
			continue
		}
		g.bus.PublishAll(evts)
	}
}

func (g *Generator) update(id string, speed float64) ([]events.Event, error) {
	var out []events.Event
	err := g.store.Update(func(tx *store.Tx) error {
		r, err := tx.Robot(id)
		if err != nil {
			return err
		}
		now := tx.Now()

		pose, fwd := r.Pose, 0.0
		if r.Status == models.RobotStatusEnRoute {
			var moved bool
			pose, moved = g.advance(r.ID, r.Pose, speed)
			fwd = r.Speed
			if moved {
				fwd = MinForwardSpeed + g.rng.Float64()*ForwardSpeedRange
			}
		} else {
			delete(g.paths, r.ID)
		}

		battery := r.Battery
		switch r.Status {
		case models.RobotStatusEnRoute:
			battery -= DrainPerTick
		case models.RobotStatusCharging:
			battery += ChargePerTick
		}

		confidence := r.LocalizationConfidence + (g.rng.Float64()-0.5)*2*ConfidenceNoise

		r.Pose = pose
		r.Speed = fwd
		tx.SetBattery(r, battery)
		r.LocalizationConfidence = clamp(confidence, MinConfidence, MaxConfidence)
		r.LastSeen = now

		out = append(out, events.Telemetry{
			RobotID:                r.ID,
			Timestamp:              now,
			Pose:                   r.Pose,
			Battery:                r.Battery,
			State:                  r.Status,
			CurrentTaskID:          r.CurrentTaskID,
			LocalizationConfidence: confidence,
			Speed:                  fwd,
		})

		evts, err := g.afterCommit(tx, r)
		if err != nil {
			return err
		}
		out = append(out, evts...)
		return nil
	})
	return out, err
}

// afterCommit applies the battery-driven status changes.
func (g *Generator) afterCommit(tx *store.Tx, r *models.Robot) ([]events.Event, error) {
	var out []events.Event
	now := tx.Now()

	switch {
	case r.Battery < LowBattery && r.Status != models.RobotStatusCharging:
		if t := tx.BoundTask(r); t != nil {
			if _, err := tx.RequeueTask(t); err != nil {
				return nil, fmt.Errorf("requeue task %s: %w", t.ID, err)
			}
			out = append(out, events.TaskUpdate{
				TaskID:    t.ID,
				Status:    t.Status,
				RobotID:   r.ID,
				Message:   fmt.Sprintf("Task requeued: %s battery low", r.Name),
				Timestamp: now,
			})
		}
		r.Status = models.RobotStatusCharging
		delete(g.paths, r.ID)

		a := tx.AddAlert(store.NewAlert(r.ID, models.SeverityInfo,
			fmt.Sprintf("%s returning to charging station (battery: %d%%)", r.Name, int(math.Round(r.Battery))), now))
		out = append(out, events.AlertFrom(a))

	case r.Status == models.RobotStatusCharging && r.Battery >= ChargedBattery:
		r.Status = models.RobotStatusIdle
		r.Battery = 100
	}
	return out, nil
}

// advance moves pose one step along the robot's path and reports whether it
// moved. Reaching a waypoint consumes the tick.
func (g *Generator) advance(id string, pose models.Pose, speed float64) (models.Pose, bool) {
	path := g.paths[id]
	if len(path) == 0 {
		path = g.generatePath(point{pose.X, pose.Y})
	}

	target := path[0]
	dx, dy := target.X-pose.X, target.Y-pose.Y
	dist := math.Hypot(dx, dy)

	if dist < ArrivalRadius {
		path = path[1:]
		if len(path) == 0 {
			path = g.generatePath(point{pose.X, pose.Y})
		}
		g.paths[id] = path
		return pose, false
	}
	g.paths[id] = path

	step := math.Min(StepLength*speed, dist)
	return models.Pose{
		X:     pose.X + dx/dist*step,
		Y:     pose.Y + dy/dist*step,
		Theta: math.Atan2(dy, dx),
	}, true
}

func (g *Generator) generatePath(start point) []point {
	path := make([]point, 0, PathLength)
	cur := start
	for i := 0; i < PathLength; i++ {
		cur = point{
			X: clamp(cur.X+(g.rng.Float64()-0.5)*2*WaypointJitter, MinX, MaxX),
			Y: clamp(cur.Y+(g.rng.Float64()-0.5)*2*WaypointJitter, MinY, MaxY),
		}
		path = append(path, cur)
	}
	return path
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
