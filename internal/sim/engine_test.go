package sim

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/faults"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

func seededStore() *store.Store {
	now := time.Now().UTC()
	return store.New(store.Snapshot{
		Robots:    models.SeedRobots(now),
		Tasks:     models.SeedTasks(now),
		Alerts:    models.SeedAlerts(now),
		FloorMaps: models.SeedFloorMaps(),
	})
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 10 * time.Millisecond
	cfg.TaskTickInterval = 10 * time.Millisecond
	cfg.AlertTickInterval = 10 * time.Millisecond
	cfg.AlertProbabilityPerTick = 1
	cfg.RecoveryDelay = 20 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := New(seededStore(), WithRand(rand.New(rand.NewSource(1))), WithConfig(cfg))
	t.Cleanup(e.Stop)
	return e
}

// counter counts events per topic.
type counter struct {
	telemetry, updates, alerts, ticks atomic.Int64
}

func count(bus *events.Bus) *counter {
	c := &counter{}
	events.Subscribe(bus, func(events.Telemetry) { c.telemetry.Add(1) })
	events.Subscribe(bus, func(events.TaskUpdate) { c.updates.Add(1) })
	events.Subscribe(bus, func(events.Alert) { c.alerts.Add(1) })
	events.Subscribe(bus, func(events.Tick) { c.ticks.Add(1) })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-timeout:
			t.Fatalf("Timeout waiting for %s", what)
		case <-ticker.C:
			if cond() {
				return
			}
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	if e.IsRunning() {
		t.Fatal("new engine should be stopped")
	}
	e.Stop()

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if !e.IsRunning() {
		t.Fatal("engine should be running")
	}

	e.Stop()
	e.Stop()
	if e.IsRunning() {
		t.Fatal("engine should be stopped")
	}
}

func TestStartWithIgnoredWhileRunning(t *testing.T) {
	e := newTestEngine(t, fastConfig())
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	other := fastConfig()
	other.SpeedMultiplier = 7
	if err := e.StartWith(other); err != nil {
		t.Fatalf("StartWith failed: %v", err)
	}
	if got := e.Config().SpeedMultiplier; got != 1 {
		t.Errorf("speed = %v, want 1 (config ignored while running)", got)
	}
}

func TestInvalidConfig(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	bad := fastConfig()
	bad.SpeedMultiplier = 0
	if err := e.StartWith(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	if e.IsRunning() {
		t.Error("invalid config should not start the engine")
	}
	if err := e.SetSpeed(-1); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("SetSpeed(-1): expected ErrInvalidConfig, got %v", err)
	}
	bad = fastConfig()
	bad.AlertProbabilityPerTick = 1.5
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("probability 1.5: expected ErrInvalidConfig, got %v", err)
	}
}

func TestNoEventsAfterStop(t *testing.T) {
	e := newTestEngine(t, fastConfig())
	c := count(e.Bus())

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "telemetry", func() bool { return c.telemetry.Load() > 0 && c.alerts.Load() > 0 })

	e.Stop()
	telemetry, updates, alerts := c.telemetry.Load(), c.updates.Load(), c.alerts.Load()
	ticks := e.Stats().TelemetryTicks

	time.Sleep(100 * time.Millisecond)

	if c.telemetry.Load() != telemetry || c.updates.Load() != updates || c.alerts.Load() != alerts {
		t.Errorf("events after Stop: telemetry %d->%d updates %d->%d alerts %d->%d",
			telemetry, c.telemetry.Load(), updates, c.updates.Load(), alerts, c.alerts.Load())
	}
	if e.Stats().TelemetryTicks != ticks {
		t.Error("ticks advanced after Stop")
	}

	if err := e.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	waitFor(t, "telemetry after restart", func() bool { return c.telemetry.Load() > telemetry })
}

func TestTickEventFollowsTelemetryPass(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	robots := len(e.Store().Robots())
	var seen []int
	var telemetry int
	events.Subscribe(e.Bus(), func(events.Telemetry) { telemetry++ })
	events.Subscribe(e.Bus(), func(tk events.Tick) {
		seen = append(seen, telemetry)
		if tk.Seq != uint64(len(seen)) {
			t.Errorf("tick seq = %d, want %d", tk.Seq, len(seen))
		}
	})

	e.TelemetryTick()
	e.TelemetryTick()

	if len(seen) != 2 || seen[0] != robots || seen[1] != 2*robots {
		t.Errorf("tick events after telemetry counts %v, want [%d %d]", seen, robots, 2*robots)
	}
}

func TestSetSpeedKeepsRunning(t *testing.T) {
	e := newTestEngine(t, fastConfig())
	c := count(e.Bus())

	if err := e.SetSpeed(2); err != nil {
		t.Fatalf("SetSpeed while stopped failed: %v", err)
	}
	if e.IsRunning() {
		t.Error("SetSpeed should not start a stopped engine")
	}

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := e.Config().SpeedMultiplier; got != 2 {
		t.Errorf("speed = %v, want 2", got)
	}
	if err := e.SetSpeed(4); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if !e.IsRunning() || e.Config().SpeedMultiplier != 4 {
		t.Errorf("after SetSpeed: running=%v speed=%v", e.IsRunning(), e.Config().SpeedMultiplier)
	}
	before := c.telemetry.Load()
	waitFor(t, "telemetry after speed change", func() bool { return c.telemetry.Load() > before })
}

func TestAssignmentViaTaskTick(t *testing.T) {
	s := store.New(store.Snapshot{
		Robots: []models.Robot{{ID: "r1", Name: "R-1", Status: models.RobotStatusIdle, Battery: 90}},
	})
	e := New(s, WithRand(rand.New(rand.NewSource(3))))

	task, err := e.CreateTask(models.CreateTaskRequest{
		Requester: "u", FromZone: "A", ToZone: "B", Priority: models.PriorityLow, Payload: "x",
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	e.TaskTick()

	got, _ := s.Task(task.ID)
	if got.Status != models.TaskStatusInProgress || got.AssignedRobot != "r1" {
		t.Errorf("task = %+v", got)
	}
	if *got.ETAMinutes < 5 || *got.ETAMinutes >= 13 {
		t.Errorf("ETA %v out of [5,13)", *got.ETAMinutes)
	}
	r, _ := s.Robot("r1")
	if r.Status != models.RobotStatusEnRoute || r.CurrentTaskID != task.ID {
		t.Errorf("robot = %+v", r)
	}
}

func TestInvariantsUnderLoad(t *testing.T) {
	cfg := fastConfig()
	cfg.TickInterval = time.Millisecond
	cfg.TaskTickInterval = time.Millisecond
	cfg.AlertTickInterval = 2 * time.Millisecond
	cfg.SpeedMultiplier = 50
	cfg.RecoveryDelay = time.Millisecond
	e := newTestEngine(t, cfg)
	s := e.Store()

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = e.CreateTask(models.CreateTaskRequest{
				Requester: "u", FromZone: "Pharmacy", ToZone: "ICU", Priority: models.PriorityNormal, Payload: "x",
			})
			robot := []string{"robot_R07", "robot_R08", "robot_R09", "robot_R10", "robot_R11"}[i%5]
			if i%4 == 0 {
				_, _ = e.InjectFault(robot, models.FaultWheelSlip)
				_, _ = e.AttemptRecovery(context.Background(), robot)
			}
		}(i)
	}
	wg.Wait()
	time.Sleep(50 * time.Millisecond)
	e.Stop()

	snap := s.Snapshot()
	holders := make(map[string]string)
	for _, task := range snap.Tasks {
		if task.Status == models.TaskStatusInProgress {
			if task.AssignedRobot == "" {
				t.Errorf("in-progress task %s has no robot", task.ID)
			}
			holders[task.AssignedRobot] = task.ID
		}
		if (task.ETAMinutes != nil) != (task.Status == models.TaskStatusInProgress) {
			t.Errorf("task %s: ETA %v while %s", task.ID, task.ETAMinutes, task.Status)
		}
	}
	for _, r := range snap.Robots {
		if r.Battery < 0 || r.Battery > 100 {
			t.Errorf("robot %s battery %v", r.ID, r.Battery)
		}
		if r.CurrentTaskID != holders[r.ID] {
			t.Errorf("robot %s current task %q, want %q", r.ID, r.CurrentTaskID, holders[r.ID])
		}
		if r.CurrentTaskID != "" && r.Status != models.RobotStatusEnRoute {
			t.Errorf("robot %s holds a task while %s", r.ID, r.Status)
		}
	}
	for _, a := range snap.Alerts {
		if a.Resolved && !a.Acknowledged {
			t.Errorf("alert %s resolved but not acknowledged", a.ID)
		}
	}
}

func TestRecoveryAbortedByStop(t *testing.T) {
	cfg := fastConfig()
	cfg.RecoveryDelay = time.Minute
	e := newTestEngine(t, cfg)
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.AttemptRecovery(context.Background(), "robot_R11")
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, faults.ErrRecoveryAborted) {
			t.Errorf("Expected ErrRecoveryAborted, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not abort recovery")
	}
	r, _ := e.Store().Robot("robot_R11")
	if r.Status != models.RobotStatusError {
		t.Errorf("aborted recovery changed status to %s", r.Status)
	}
}

func TestRecoverySurvivesSpeedChange(t *testing.T) {
	cfg := fastConfig()
	cfg.RecoveryDelay = 100 * time.Millisecond
	cfg.RecoverySuccessRate = 1
	e := newTestEngine(t, cfg)
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := make(chan bool, 1)
	go func() {
		ok, err := e.AttemptRecovery(context.Background(), "robot_R11")
		if err != nil {
			t.Errorf("AttemptRecovery failed: %v", err)
		}
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	if err := e.SetSpeed(3); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}

	select {
	case ok := <-done:
		if !ok {
			t.Error("Expected recovery to succeed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for recovery")
	}
}

func TestRecoveryWhileStopped(t *testing.T) {
	cfg := fastConfig()
	cfg.RecoverySuccessRate = 1
	e := newTestEngine(t, cfg)
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()

	ok, err := e.AttemptRecovery(context.Background(), "robot_R11")
	if err != nil || !ok {
		t.Fatalf("AttemptRecovery after Stop = %v, %v", ok, err)
	}
	r, _ := e.Store().Robot("robot_R11")
	if r.Status != models.RobotStatusIdle {
		t.Errorf("Expected idle, got %s", r.Status)
	}
}

func TestHandlerMayCallEngine(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	var created atomic.Bool
	events.Subscribe(e.Bus(), func(u events.TaskUpdate) {
		if u.Status == models.TaskStatusCompleted && created.CompareAndSwap(false, true) {
			_, err := e.CreateTask(models.CreateTaskRequest{
				Requester: "u", FromZone: "Pharmacy", ToZone: "ICU", Priority: models.PriorityNormal, Payload: "x",
			})
			if err != nil {
				t.Errorf("CreateTask from handler failed: %v", err)
			}
			_ = e.Stats()
		}
	})

	if err := e.SetSpeed(100); err != nil {
		t.Fatalf("SetSpeed failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "handler to create a task", created.Load)
}

func TestCreateTaskRejectsInvalidRequest(t *testing.T) {
	e := newTestEngine(t, fastConfig())
	c := count(e.Bus())

	_, err := e.CreateTask(models.CreateTaskRequest{FromZone: "ICU", ToZone: "ICU", Priority: "urgent-ish"})
	if !errors.Is(err, store.ErrInvalidTask) {
		t.Fatalf("Expected ErrInvalidTask, got %v", err)
	}
	if n := len(e.Store().Tasks(models.TaskStatusQueued)); n != 1 {
		t.Errorf("queued tasks = %d, want the seeded 1", n)
	}
	if c.updates.Load() != 0 {
		t.Error("rejected task should not publish an update")
	}
}

func TestHandlerMayStopEngine(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	returned := make(chan struct{})
	var once sync.Once
	events.Subscribe(e.Bus(), func(events.Tick) {
		once.Do(func() {
			e.Stop()
			close(returned)
		})
	})

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop from a tick handler did not return")
	}
	if e.IsRunning() {
		t.Error("engine should be stopped")
	}

	// Lifecycle calls from outside still work afterwards.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.Start(); err != nil {
			t.Errorf("restart failed: %v", err)
		}
		e.Stop()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle blocked after a handler stopped the engine")
	}
}

func TestHandlerMaySetSpeed(t *testing.T) {
	e := newTestEngine(t, fastConfig())

	var changed atomic.Bool
	events.Subscribe(e.Bus(), func(events.Tick) {
		if changed.CompareAndSwap(false, true) {
			if err := e.SetSpeed(4); err != nil {
				t.Errorf("SetSpeed from handler failed: %v", err)
			}
		}
	})

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "speed change", func() bool { return e.Config().SpeedMultiplier == 4 })

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after a handler changed speed")
	}
}

func TestGoid(t *testing.T) {
	main := goid()
	if main == 0 {
		t.Fatal("goid returned 0")
	}
	other := make(chan uint64)
	go func() { other <- goid() }()
	if id := <-other; id == main || id == 0 {
		t.Errorf("goroutine ids %d and %d should differ", main, id)
	}
}

func TestStats(t *testing.T) {
	e := newTestEngine(t, fastConfig())
	e.TelemetryTick()
	e.TaskTick()
	e.AlertTick()

	st := e.Stats()
	if st.Running {
		t.Error("Stats reports running for a stopped engine")
	}
	if st.TelemetryTicks != 1 || st.TaskTicks != 1 || st.AlertTicks != 1 {
		t.Errorf("tick counters = %d/%d/%d, want 1/1/1", st.TelemetryTicks, st.TaskTicks, st.AlertTicks)
	}
	total := 0
	for _, n := range st.Robots {
		total += n
	}
	if total != 5 {
		t.Errorf("robot counts sum to %d, want 5", total)
	}
}
