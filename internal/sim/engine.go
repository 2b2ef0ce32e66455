// Package sim is the simulation engine: it owns the clock that drives the
// telemetry, task and alert loops and exposes the operations external
// collaborators use to steer the fleet.
package sim

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/faults"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/scheduler"
	"github.com/fentz26/fleetsim/internal/store"
	"github.com/fentz26/fleetsim/internal/telemetry"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	rng      *rand.Rand
	bus      *events.Bus
	config   Config
	schedCfg *scheduler.Config
}

// WithRand seeds all engine randomness from r.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithBus publishes on an existing bus.
func WithBus(b *events.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithConfig sets the configuration used by Start.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithSchedulerConfig overrides the dispatch thresholds.
func WithSchedulerConfig(cfg *scheduler.Config) Option {
	return func(o *options) { o.schedCfg = cfg }
}

// Engine runs the fleet simulation.
type Engine struct {
	store     *store.Store
	bus       *events.Bus
	rng       *lockedRand
	telemetry *telemetry.Generator
	scheduler *scheduler.Scheduler
	faults    *faults.Controller

	// lifecycle; never taken by tick code
	mu      sync.Mutex
	cancel  context.CancelFunc
	loops   *sync.WaitGroup
	running atomic.Bool
	config  atomic.Pointer[Config]
	// goroutine ids of live tick loops
	loopIDs sync.Map

	recoveryMu     sync.Mutex
	recoveryCtx    context.Context
	recoveryCancel context.CancelFunc

	tickSeq        atomic.Uint64
	telemetryTicks atomic.Uint64
	taskTicks      atomic.Uint64
	alertTicks     atomic.Uint64
}

// New creates a stopped engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	o := options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = events.NewBus()
	}

	rng := newLockedRand(o.rng)
	e := &Engine{
		store:     s,
		bus:       o.bus,
		rng:       rng,
		telemetry: telemetry.New(s, o.bus, rng),
		scheduler: scheduler.New(s, o.bus, rng, o.schedCfg),
		faults:    faults.New(s, o.bus, rng, recoveryConfig(o.config)),
	}
	cfg := o.config
	e.config.Store(&cfg)
	e.recoveryCtx, e.recoveryCancel = context.WithCancel(context.Background())
	return e
}

func recoveryConfig(c Config) faults.Config {
	return faults.Config{
		RecoveryDelay:       c.RecoveryDelay,
		RecoverySuccessRate: c.RecoverySuccessRate,
	}
}

// Store returns the engine's entity store.
func (e *Engine) Store() *store.Store { return e.store }

// Bus returns the engine's event channel.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Config returns the current configuration.
func (e *Engine) Config() Config { return *e.config.Load() }

// On subscribes an untyped handler to topic. Use events.Subscribe on Bus()
// for typed payloads. Handlers run on the tick goroutines; a handler that
// calls Stop or SetSpeed does not wait for its own tick to finish.
func (e *Engine) On(topic events.Topic, h events.Handler) (unsubscribe func()) {
	return e.bus.On(topic, h)
}

// --- Lifecycle ---

// Start runs the engine with its current configuration.
func (e *Engine) Start() error {
	return e.StartWith(e.Config())
}

// StartWith validates cfg and starts the three tick loops. It is a no-op if
// the engine is already running, in which case cfg is ignored.
func (e *Engine) StartWith(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	e.start(cfg)
	log.Printf("[sim] started (speed %.2gx)", cfg.SpeedMultiplier)
	return nil
}

// start launches the loops. Caller holds e.mu.
func (e *Engine) start(cfg Config) {
	e.config.Store(&cfg)
	e.faults.SetConfig(recoveryConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	e.cancel = cancel
	e.loops = wg
	e.running.Store(true)

	speed := cfg.SpeedMultiplier
	wg.Add(3)
	go e.runLoop(ctx, wg, cfg.scaled(cfg.TickInterval), func() { e.telemetryTick(speed) })
	go e.runLoop(ctx, wg, cfg.scaled(cfg.TaskTickInterval), func() { e.taskTick(speed) })
	go e.runLoop(ctx, wg, cfg.scaled(cfg.AlertTickInterval), func() { e.alertTick(cfg.AlertProbabilityPerTick) })
}

// Stop cancels the tick loops and waits for any tick in flight, so no tick
// runs after Stop returns. In-flight recovery attempts are aborted. Stop is
// a no-op when the engine is stopped.
//
// Called from an event handler on a tick, Stop cancels the loops and
// returns without waiting; the calling tick finishes after it.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running.Load() {
		e.mu.Unlock()
		return
	}
	loops := e.halt()
	e.mu.Unlock()

	e.abortRecoveries()
	e.wait(loops)
	log.Println("[sim] stopped")
}

// halt cancels the loops and returns their WaitGroup. Caller holds e.mu.
func (e *Engine) halt() *sync.WaitGroup {
	e.cancel()
	e.cancel = nil
	e.running.Store(false)
	return e.loops
}

// wait blocks until halted loops exit. On a tick goroutine it returns at
// once: that loop cannot exit before its own tick does.
func (e *Engine) wait(loops *sync.WaitGroup) {
	if e.onLoop() {
		return
	}
	loops.Wait()
}

func (e *Engine) onLoop() bool {
	_, ok := e.loopIDs.Load(goid())
	return ok
}

// IsRunning reports whether the tick loops are active.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// SetSpeed changes the speed multiplier. A running engine is restarted with
// the new rate; robot paths and recovery attempts are kept.
func (e *Engine) SetSpeed(multiplier float64) error {
	e.mu.Lock()
	cfg := e.Config()
	cfg.SpeedMultiplier = multiplier
	if err := cfg.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}
	if !e.running.Load() {
		e.config.Store(&cfg)
		e.mu.Unlock()
		return nil
	}
	old := e.halt()
	e.start(cfg)
	e.mu.Unlock()

	e.wait(old)
	log.Printf("[sim] speed set to %.2gx", multiplier)
	return nil
}

func (e *Engine) runLoop(ctx context.Context, wg *sync.WaitGroup, period time.Duration, tick func()) {
	defer wg.Done()

	id := goid()
	e.loopIDs.Store(id, struct{}{})
	defer e.loopIDs.Delete(id)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop may have raced the ticker.
			if ctx.Err() != nil {
				return
			}
			tick()
		}
	}
}

// --- Ticks ---

// TelemetryTick runs one telemetry pass at the configured speed.
func (e *Engine) TelemetryTick() { e.telemetryTick(e.Config().SpeedMultiplier) }

// TaskTick runs one scheduler pass at the configured speed.
func (e *Engine) TaskTick() { e.taskTick(e.Config().SpeedMultiplier) }

// AlertTick runs one background alert draw.
func (e *Engine) AlertTick() { e.alertTick(e.Config().AlertProbabilityPerTick) }

func (e *Engine) telemetryTick(speed float64) {
	e.telemetry.Tick(speed)
	e.telemetryTicks.Add(1)
	e.bus.Publish(events.Tick{Seq: e.tickSeq.Add(1), Time: e.store.Now()})
}

func (e *Engine) taskTick(speed float64) {
	e.scheduler.Tick(speed)
	e.taskTicks.Add(1)
}

func (e *Engine) alertTick(p float64) {
	e.faults.Tick(p)
	e.alertTicks.Add(1)
}

// --- Faults ---

// InjectFault forces a robot into error and raises a critical alert.
func (e *Engine) InjectFault(robotID string, fault models.FaultType) (models.Alert, error) {
	return e.faults.InjectFault(robotID, fault)
}

// AttemptRecovery blocks for the recovery delay and reports whether the
// robot recovered. The attempt is aborted when ctx ends or the engine stops.
func (e *Engine) AttemptRecovery(ctx context.Context, robotID string) (bool, error) {
	e.recoveryMu.Lock()
	engineCtx := e.recoveryCtx
	e.recoveryMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	detach := context.AfterFunc(engineCtx, cancel)
	defer detach()

	return e.faults.AttemptRecovery(ctx, robotID)
}

func (e *Engine) abortRecoveries() {
	e.recoveryMu.Lock()
	defer e.recoveryMu.Unlock()
	e.recoveryCancel()
	e.recoveryCtx, e.recoveryCancel = context.WithCancel(context.Background())
}

// --- Tasks and robots ---

// CreateTask queues a new delivery.
func (e *Engine) CreateTask(req models.CreateTaskRequest) (models.Task, error) {
	t, err := e.store.CreateTask(req)
	if err != nil {
		return models.Task{}, err
	}
	e.bus.Publish(events.TaskUpdate{
		TaskID:    t.ID,
		Status:    t.Status,
		Message:   fmt.Sprintf("Task created: %s → %s", t.FromZone, t.ToZone),
		Timestamp: t.CreatedAt,
	})
	return t, nil
}

// CancelTask retires an unfinished task and frees its robot.
func (e *Engine) CancelTask(id string) (models.Task, error) {
	t, err := e.store.CancelTask(id)
	if err != nil {
		return models.Task{}, err
	}
	e.bus.Publish(events.TaskUpdate{
		TaskID:    t.ID,
		Status:    t.Status,
		RobotID:   t.AssignedRobot,
		Message:   "Task cancelled",
		Timestamp: e.store.Now(),
	})
	return t, nil
}

// AssignTask binds a queued task to a specific idle robot.
func (e *Engine) AssignTask(taskID, robotID string) (models.Task, error) {
	return e.scheduler.Assign(taskID, robotID)
}

// SetRobotStatus overrides a robot's status.
func (e *Engine) SetRobotStatus(id string, status models.RobotStatus) (models.Robot, error) {
	return e.store.SetRobotStatus(id, status)
}

// AcknowledgeAlert marks an alert as seen.
func (e *Engine) AcknowledgeAlert(id string) (models.Alert, error) {
	return e.store.AcknowledgeAlert(id)
}

// ResolveAlert closes an alert.
func (e *Engine) ResolveAlert(id string) (models.Alert, error) {
	return e.store.ResolveAlert(id)
}

// --- Stats ---

// Stats is a point-in-time summary of the engine.
type Stats struct {
	Running         bool                       `json:"running"`
	SpeedMultiplier float64                    `json:"speed_multiplier"`
	TelemetryTicks  uint64                     `json:"telemetry_ticks"`
	TaskTicks       uint64                     `json:"task_ticks"`
	AlertTicks      uint64                     `json:"alert_ticks"`
	Robots          map[models.RobotStatus]int `json:"robots"`
	Tasks           map[models.TaskStatus]int  `json:"tasks"`
	Scheduler       map[string]interface{}     `json:"scheduler"`
}

// Stats returns engine counters and fleet counts by status.
func (e *Engine) Stats() Stats {
	st := Stats{
		Running:         e.IsRunning(),
		SpeedMultiplier: e.Config().SpeedMultiplier,
		TelemetryTicks:  e.telemetryTicks.Load(),
		TaskTicks:       e.taskTicks.Load(),
		AlertTicks:      e.alertTicks.Load(),
		Robots:          make(map[models.RobotStatus]int),
		Tasks:           make(map[models.TaskStatus]int),
		Scheduler:       e.scheduler.GetStats(),
	}
	_ = e.store.View(func(tx *store.Tx) error {
		for _, r := range tx.Robots() {
			st.Robots[r.Status]++
		}
		for _, t := range tx.Tasks() {
			st.Tasks[t.Status]++
		}
		return nil
	})
	return st
}
