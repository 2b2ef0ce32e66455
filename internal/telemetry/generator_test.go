package telemetry

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

// fixedRand always returns the same value.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }

type recorder struct {
	telemetry []events.Telemetry
	alerts    []events.Alert
	updates   []events.TaskUpdate
}

func record(bus *events.Bus) *recorder {
	rec := &recorder{}
	events.Subscribe(bus, func(e events.Telemetry) { rec.telemetry = append(rec.telemetry, e) })
	events.Subscribe(bus, func(e events.Alert) { rec.alerts = append(rec.alerts, e) })
	events.Subscribe(bus, func(e events.TaskUpdate) { rec.updates = append(rec.updates, e) })
	return rec
}

func seededStore() *store.Store {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return store.New(store.Snapshot{
		Robots:    models.SeedRobots(now),
		Tasks:     models.SeedTasks(now),
		FloorMaps: models.SeedFloorMaps(),
	})
}

func TestBatteryStaysInRange(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		s := seededStore()
		bus := events.NewBus()
		g := New(s, bus, rand.New(rand.NewSource(seed)))

		for i := 0; i < 2000; i++ {
			g.Tick(4)
			for _, r := range s.Robots() {
				if r.Battery < 0 || r.Battery > 100 {
					t.Fatalf("seed %d tick %d: robot %s battery %v out of range", seed, i, r.ID, r.Battery)
				}
				if r.LocalizationConfidence < MinConfidence || r.LocalizationConfidence > MaxConfidence {
					t.Fatalf("seed %d tick %d: robot %s confidence %v out of range", seed, i, r.ID, r.LocalizationConfidence)
				}
			}
		}
	}
}

func TestTelemetryPublishedPerRobot(t *testing.T) {
	s := seededStore()
	bus := events.NewBus()
	rec := record(bus)
	g := New(s, bus, rand.New(rand.NewSource(1)))

	g.Tick(1)

	if len(rec.telemetry) != len(s.Robots()) {
		t.Fatalf("Expected %d telemetry events, got %d", len(s.Robots()), len(rec.telemetry))
	}
	for i, r := range s.Robots() {
		e := rec.telemetry[i]
		if e.RobotID != r.ID {
			t.Errorf("event %d robot = %s, want %s (store order)", i, e.RobotID, r.ID)
		}
		if e.Battery != r.Battery || e.Pose != r.Pose {
			t.Errorf("event for %s does not match committed state", r.ID)
		}
	}
}

func TestEnRouteRobotMovesWithinStep(t *testing.T) {
	s := seededStore()
	g := New(s, events.NewBus(), rand.New(rand.NewSource(7)))

	prev, _ := s.Robot("robot_R07")
	for i := 0; i < 200; i++ {
		g.Tick(2)
		cur, _ := s.Robot("robot_R07")
		if cur.Status != models.RobotStatusEnRoute {
			break
		}
		d := math.Hypot(cur.Pose.X-prev.Pose.X, cur.Pose.Y-prev.Pose.Y)
		if d > StepLength*2+1e-9 {
			t.Fatalf("tick %d: moved %v, more than one step", i, d)
		}
		if cur.Pose.X < MinX-StepLength*2 || cur.Pose.X > MaxX+StepLength*2 ||
			cur.Pose.Y < MinY-StepLength*2 || cur.Pose.Y > MaxY+StepLength*2 {
			t.Fatalf("tick %d: pose %+v left the facility", i, cur.Pose)
		}
		prev = cur
	}
}

func TestIdleRobotDoesNotMove(t *testing.T) {
	s := seededStore()
	g := New(s, events.NewBus(), rand.New(rand.NewSource(3)))

	before, _ := s.Robot("robot_R08")
	g.Tick(1)
	after, _ := s.Robot("robot_R08")

	if after.Pose != before.Pose {
		t.Errorf("idle robot moved from %+v to %+v", before.Pose, after.Pose)
	}
	if after.Battery != before.Battery {
		t.Errorf("idle robot battery changed from %v to %v", before.Battery, after.Battery)
	}
	if after.Speed != 0 {
		t.Errorf("idle robot speed = %v, want 0", after.Speed)
	}
}

func TestBatteryDrainAndCharge(t *testing.T) {
	s := seededStore()
	g := New(s, events.NewBus(), fixedRand(0.5))

	g.Tick(1)

	r7, _ := s.Robot("robot_R07")
	if math.Abs(r7.Battery-(72-DrainPerTick)) > 1e-9 {
		t.Errorf("en_route battery = %v, want %v", r7.Battery, 72-DrainPerTick)
	}
	r9, _ := s.Robot("robot_R09")
	if math.Abs(r9.Battery-(45+ChargePerTick)) > 1e-9 {
		t.Errorf("charging battery = %v, want %v", r9.Battery, 45+ChargePerTick)
	}
}

func TestRawConfidenceEmittedClampedStored(t *testing.T) {
	s := store.New(store.Snapshot{Robots: []models.Robot{
		{ID: "r1", Name: "R-1", Status: models.RobotStatusIdle, Battery: 50, LocalizationConfidence: 1},
	}})
	bus := events.NewBus()
	rec := record(bus)
	g := New(s, bus, fixedRand(1))

	g.Tick(1)

	if len(rec.telemetry) != 1 {
		t.Fatalf("Expected 1 telemetry event, got %d", len(rec.telemetry))
	}
	if raw := rec.telemetry[0].LocalizationConfidence; raw <= 1 {
		t.Errorf("emitted confidence = %v, want raw value above 1", raw)
	}
	r, _ := s.Robot("r1")
	if r.LocalizationConfidence != 1 {
		t.Errorf("stored confidence = %v, want 1", r.LocalizationConfidence)
	}
}

func TestLowBatterySendsRobotToCharge(t *testing.T) {
	eta := 6.0
	s := store.New(store.Snapshot{
		Robots: []models.Robot{{ID: "r1", Name: "R-1", Status: models.RobotStatusEnRoute,
			Battery: 20.01, LocalizationConfidence: 0.9, CurrentTaskID: "t1", Pose: models.Pose{X: 100, Y: 100}}},
		Tasks: []models.Task{{ID: "t1", Status: models.TaskStatusInProgress, AssignedRobot: "r1", ETAMinutes: &eta}},
	})
	bus := events.NewBus()
	rec := record(bus)
	g := New(s, bus, rand.New(rand.NewSource(1)))

	g.Tick(1)

	r, _ := s.Robot("r1")
	if r.Status != models.RobotStatusCharging || r.CurrentTaskID != "" {
		t.Errorf("robot = %+v, want charging with no task", r)
	}
	task, _ := s.Task("t1")
	if task.Status != models.TaskStatusQueued || task.AssignedRobot != "" || task.ETAMinutes != nil {
		t.Errorf("task = %+v, want requeued", task)
	}

	if len(rec.alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(rec.alerts))
	}
	a := rec.alerts[0]
	if a.Severity != models.SeverityInfo || a.RobotID != "r1" {
		t.Errorf("unexpected alert %+v", a)
	}
	if !strings.Contains(a.Message, "R-1 returning to charging station (battery: 20%)") {
		t.Errorf("alert message = %q", a.Message)
	}
	if len(s.Alerts()) != 1 {
		t.Errorf("alert not stored")
	}
	if len(rec.updates) != 1 || rec.updates[0].Status != models.TaskStatusQueued {
		t.Errorf("updates = %+v, want one queued update", rec.updates)
	}

	// Already charging: no second alert.
	g.Tick(1)
	if len(rec.alerts) != 1 {
		t.Errorf("charging robot raised another alert")
	}
}

func TestChargedRobotBecomesIdle(t *testing.T) {
	s := store.New(store.Snapshot{Robots: []models.Robot{
		{ID: "r1", Name: "R-1", Status: models.RobotStatusCharging, Battery: 94.6, LocalizationConfidence: 0.9},
	}})
	g := New(s, events.NewBus(), fixedRand(0.5))

	g.Tick(1)

	r, _ := s.Robot("r1")
	if r.Status != models.RobotStatusIdle || r.Battery != 100 {
		t.Errorf("robot = %s at %v, want idle at 100", r.Status, r.Battery)
	}
}

func TestGeneratedPathInBounds(t *testing.T) {
	g := New(store.New(store.Snapshot{}), events.NewBus(), rand.New(rand.NewSource(11)))

	for _, start := range []point{{20, 20}, {280, 200}, {150, 100}} {
		path := g.generatePath(start)
		if len(path) != PathLength {
			t.Fatalf("path length = %d, want %d", len(path), PathLength)
		}
		prev := start
		for _, p := range path {
			if p.X < MinX || p.X > MaxX || p.Y < MinY || p.Y > MaxY {
				t.Errorf("waypoint %+v out of bounds", p)
			}
			if math.Abs(p.X-prev.X) > WaypointJitter || math.Abs(p.Y-prev.Y) > WaypointJitter {
				t.Errorf("waypoint %+v jumped too far from %+v", p, prev)
			}
			prev = p
		}
	}
}
