package scheduler

import (
	"fmt"
	"log"
	"sync"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

// Rand is the randomness the scheduler needs.
type Rand interface {
	Intn(n int) int
}

// Scheduler progresses the task lifecycle one tick at a time.
type Scheduler struct {
	store  *store.Store
	bus    *events.Bus
	rng    Rand
	config *Config

	mu        sync.Mutex
	assigned  int
	completed int
}

// New creates a new scheduler.
func New(s *store.Store, bus *events.Bus, rng Rand, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		store:  s,
		bus:    bus,
		rng:    rng,
		config: cfg,
	}
}

// Tick makes one pass over all tasks in creation order. In-progress tasks
// lose speed/60 minutes of ETA and complete when it runs out; queued tasks
// go to the first idle robot in store order with enough charge.
func (sch *Scheduler) Tick(speed float64) {
	sch.mu.Lock()
	var out []events.Event
	err := sch.store.Update(func(tx *store.Tx) error {
		for _, t := range tx.Tasks() {
			var (
				e   events.Event
				err error
			)
			switch {
			case t.Status == models.TaskStatusInProgress && t.ETAMinutes != nil:
				e, err = sch.progress(tx, t, speed)
			case t.Status == models.TaskStatusQueued:
				e, err = sch.dispatch(tx, t)
			}
			if err != nil {
				log.Printf("[scheduler] skip task %s: %v", t.ID, err)
				continue
			}
			if e != nil {
				out = append(out, e)
			}
		}
		return nil
	})
	sch.mu.Unlock()

	if err != nil {
		log.Printf("[scheduler] tick: %v", err)
		return
	}
	// Handlers may call back into the scheduler.
	sch.bus.PublishAll(out)
}

func (sch *Scheduler) progress(tx *store.Tx, t *models.Task, speed float64) (events.Event, error) {
	eta := *t.ETAMinutes - speed/60
	if eta > 0 {
		t.ETAMinutes = &eta
		return nil, nil
	}

	r, err := tx.CompleteTask(t)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	sch.completed++

	e := events.TaskUpdate{
		TaskID:    t.ID,
		Status:    t.Status,
		Message:   fmt.Sprintf("Delivery completed: %s → %s", t.FromZone, t.ToZone),
		Timestamp: *t.CompletedAt,
	}
	if r != nil {
		e.RobotID = r.ID
		log.Printf("[scheduler] task %s completed, robot %s released", t.ID, r.ID)
	}
	return e, nil
}

func (sch *Scheduler) dispatch(tx *store.Tx, t *models.Task) (events.Event, error) {
	var robot *models.Robot
	for _, r := range tx.Robots() {
		if r.Status == models.RobotStatusIdle && r.Battery > sch.config.MinBattery {
			robot = r
			break
		}
	}
	if robot == nil {
		return nil, nil
	}

	eta := float64(sch.config.MinETAMinutes + sch.rng.Intn(sch.config.ETASpreadMinutes))
	if err := tx.AssignTask(t, robot, eta); err != nil {
		return nil, fmt.Errorf("assign to %s: %w", robot.ID, err)
	}
	sch.assigned++
	log.Printf("[scheduler] dispatched task %s to %s (eta %.0f min)", t.ID, robot.ID, eta)

	return events.TaskUpdate{
		TaskID:    t.ID,
		Status:    t.Status,
		RobotID:   robot.ID,
		Message:   fmt.Sprintf("Task assigned to %s", robot.Name),
		Timestamp: tx.Now(),
	}, nil
}

// Assign binds a queued task to a chosen idle robot, bypassing the battery
// threshold. The ETA is drawn the same way as for automatic dispatch.
func (sch *Scheduler) Assign(taskID, robotID string) (models.Task, error) {
	sch.mu.Lock()
	var (
		out models.Task
		e   events.TaskUpdate
	)
	err := sch.store.Update(func(tx *store.Tx) error {
		t, err := tx.Task(taskID)
		if err != nil {
			return err
		}
		r, err := tx.Robot(robotID)
		if err != nil {
			return err
		}
		eta := float64(sch.config.MinETAMinutes + sch.rng.Intn(sch.config.ETASpreadMinutes))
		if err := tx.AssignTask(t, r, eta); err != nil {
			return err
		}
		sch.assigned++
		out = *t
		own := eta
		out.ETAMinutes = &own
		e = events.TaskUpdate{
			TaskID:    t.ID,
			Status:    t.Status,
			RobotID:   r.ID,
			Message:   fmt.Sprintf("Task assigned to %s", r.Name),
			Timestamp: tx.Now(),
		}
		return nil
	})
	sch.mu.Unlock()

	if err != nil {
		return models.Task{}, fmt.Errorf("assign task: %w", err)
	}
	sch.bus.Publish(e)
	return out, nil
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return map[string]interface{}{
		"assigned":    sch.assigned,
		"completed":   sch.completed,
		"min_battery": sch.config.MinBattery,
	}
}
