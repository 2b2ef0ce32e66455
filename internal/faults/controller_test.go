package faults

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

// lockedRand makes a *rand.Rand safe for concurrent recovery attempts.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

func newRand(seed int64) *lockedRand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

// fixedRand always returns the same value.
type fixedRand float64

func (f fixedRand) Float64() float64 { return float64(f) }
func (f fixedRand) Intn(n int) int   { return 0 }

func seededStore() *store.Store {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return store.New(store.Snapshot{
		Robots: models.SeedRobots(now),
		Tasks:  models.SeedTasks(now),
	})
}

func fastConfig() Config {
	return Config{RecoveryDelay: time.Millisecond, RecoverySuccessRate: 0.7}
}

func TestInjectFaultFromAnyStatus(t *testing.T) {
	for _, id := range []string{"robot_R07", "robot_R08", "robot_R09", "robot_R10", "robot_R11"} {
		t.Run(id, func(t *testing.T) {
			s := seededStore()
			bus := events.NewBus()
			var alerts []events.Alert
			events.Subscribe(bus, func(a events.Alert) { alerts = append(alerts, a) })
			c := New(s, bus, newRand(1), fastConfig())

			if _, err := c.InjectFault(id, models.FaultWheelSlip); err != nil {
				t.Fatalf("InjectFault failed: %v", err)
			}

			r, _ := s.Robot(id)
			if r.Status != models.RobotStatusError {
				t.Errorf("Expected error, got %s", r.Status)
			}
			if r.CurrentTaskID != "" {
				t.Errorf("faulted robot still holds task %s", r.CurrentTaskID)
			}
			if len(alerts) != 1 {
				t.Fatalf("Expected exactly 1 alert, got %d", len(alerts))
			}
			a := alerts[0]
			if a.Severity != models.SeverityCritical || a.RobotID != id {
				t.Errorf("unexpected alert %+v", a)
			}
			if !strings.HasSuffix(a.Message, ": Wheel slip detected - emergency stop activated") {
				t.Errorf("message = %q", a.Message)
			}
		})
	}
}

func TestInjectFaultFailsBoundTask(t *testing.T) {
	s := seededStore()
	bus := events.NewBus()
	var updates []events.TaskUpdate
	events.Subscribe(bus, func(u events.TaskUpdate) { updates = append(updates, u) })
	c := New(s, bus, newRand(1), fastConfig())

	if _, err := c.InjectFault("robot_R07", models.FaultLocalizationLoss); err != nil {
		t.Fatalf("InjectFault failed: %v", err)
	}

	task, _ := s.Task("task_001")
	if task.Status != models.TaskStatusFailed || task.ETAMinutes != nil {
		t.Errorf("task = %+v, want failed without ETA", task)
	}
	if len(updates) != 1 || updates[0].Status != models.TaskStatusFailed {
		t.Errorf("updates = %+v", updates)
	}
}

func TestInjectFaultErrors(t *testing.T) {
	c := New(seededStore(), events.NewBus(), newRand(1), fastConfig())

	if _, err := c.InjectFault("robot_R08", "flat_tire"); !errors.Is(err, ErrInvalidFault) {
		t.Errorf("Expected ErrInvalidFault, got %v", err)
	}
	if _, err := c.InjectFault("robot_X", models.FaultWheelSlip); !errors.Is(err, store.ErrRobotNotFound) {
		t.Errorf("Expected ErrRobotNotFound, got %v", err)
	}
}

func TestRecoverySuccess(t *testing.T) {
	s := seededStore()
	bus := events.NewBus()
	var alerts []events.Alert
	events.Subscribe(bus, func(a events.Alert) { alerts = append(alerts, a) })
	c := New(s, bus, fixedRand(0.1), fastConfig())

	ok, err := c.AttemptRecovery(context.Background(), "robot_R11")
	if err != nil {
		t.Fatalf("AttemptRecovery failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected success")
	}
	r, _ := s.Robot("robot_R11")
	if r.Status != models.RobotStatusIdle {
		t.Errorf("Expected idle, got %s", r.Status)
	}
	if len(alerts) != 1 || alerts[0].Severity != models.SeverityInfo ||
		alerts[0].Message != "R-11: Recovery successful, resuming operations" {
		t.Errorf("alerts = %+v", alerts)
	}
}

func TestRecoveryFailureLeavesState(t *testing.T) {
	s := seededStore()
	bus := events.NewBus()
	published := 0
	events.Subscribe(bus, func(events.Alert) { published++ })
	c := New(s, bus, fixedRand(0.9), fastConfig())

	ok, err := c.AttemptRecovery(context.Background(), "robot_R11")
	if err != nil || ok {
		t.Fatalf("AttemptRecovery = %v, %v; want false, nil", ok, err)
	}
	r, _ := s.Robot("robot_R11")
	if r.Status != models.RobotStatusError {
		t.Errorf("Expected error, got %s", r.Status)
	}
	if published != 0 {
		t.Errorf("failed recovery published %d alerts", published)
	}
}

func TestRecoveryWaitsForDelay(t *testing.T) {
	c := New(seededStore(), events.NewBus(), fixedRand(0.1),
		Config{RecoveryDelay: 50 * time.Millisecond, RecoverySuccessRate: 0.7})

	start := time.Now()
	if _, err := c.AttemptRecovery(context.Background(), "robot_R11"); err != nil {
		t.Fatalf("AttemptRecovery failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("recovery resolved after %v, before the delay", elapsed)
	}
}

func TestRecoveryUnknownRobot(t *testing.T) {
	c := New(seededStore(), events.NewBus(), newRand(1), DefaultConfig())

	start := time.Now()
	_, err := c.AttemptRecovery(context.Background(), "robot_X")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("unknown robot should fail without waiting")
	}
}

func TestRecoveryAborted(t *testing.T) {
	s := seededStore()
	c := New(s, events.NewBus(), fixedRand(0.1),
		Config{RecoveryDelay: time.Minute, RecoverySuccessRate: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.AttemptRecovery(ctx, "robot_R11")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrRecoveryAborted) {
			t.Errorf("Expected ErrRecoveryAborted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for aborted recovery")
	}
	r, _ := s.Robot("robot_R11")
	if r.Status != models.RobotStatusError {
		t.Errorf("aborted recovery changed status to %s", r.Status)
	}
}

func TestRecoverySuccessRate(t *testing.T) {
	c := New(seededStore(), events.NewBus(), newRand(99), fastConfig())

	const trials = 400
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < trials; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.AttemptRecovery(context.Background(), "robot_R11")
			if err != nil {
				t.Errorf("AttemptRecovery failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	rate := float64(successes) / trials
	if rate < 0.6 || rate > 0.8 {
		t.Errorf("success rate = %.2f, want about 0.7", rate)
	}
}

func TestBackgroundAlerts(t *testing.T) {
	s := seededStore()
	bus := events.NewBus()
	var alerts []events.Alert
	events.Subscribe(bus, func(a events.Alert) { alerts = append(alerts, a) })

	never := New(s, bus, fixedRand(0.5), fastConfig())
	if never.Tick(0.1) {
		t.Error("Tick raised an alert when the draw exceeded p")
	}

	always := New(s, bus, fixedRand(0.01), fastConfig())
	if !always.Tick(0.02) {
		t.Fatal("Tick did not raise an alert")
	}
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.RobotID != "robot_R07" || a.Message != "R-07: Routine diagnostic check completed" {
		t.Errorf("unexpected alert %+v", a)
	}
	if s.Alerts()[0].ID != a.ID {
		t.Error("background alert not stored first")
	}
}

func TestBackgroundAlertRate(t *testing.T) {
	c := New(seededStore(), events.NewBus(), newRand(5), fastConfig())

	raised := 0
	for i := 0; i < 10000; i++ {
		if c.Tick(0.02) {
			raised++
		}
	}
	if raised < 120 || raised > 280 {
		t.Errorf("raised %d alerts in 10000 ticks, want about 200", raised)
	}
}
