// Package faults injects robot faults, runs timed recovery attempts and
// synthesizes background alerts.
package faults

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fentz26/fleetsim/internal/events"
	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
)

var (
	ErrInvalidFault    = errors.New("invalid fault type")
	ErrRecoveryAborted = errors.New("recovery aborted")
)

var faultMessages = map[models.FaultType]string{
	models.FaultWheelSlip:        "Wheel slip detected - emergency stop activated",
	models.FaultLocalizationLoss: "Localization lost - manual intervention required",
	models.FaultBatteryCritical:  "Critical battery level - immediate return to base",
}

type catalogEntry struct {
	severity models.Severity
	message  string
}

// background alerts, unrelated to the robot's actual state
var catalog = []catalogEntry{
	{models.SeverityInfo, "Routine diagnostic check completed"},
	{models.SeverityWarning, "Minor obstacle detected, rerouting"},
	{models.SeverityWarning, "Localization confidence dropped below 90%"},
}

// Rand is the randomness the controller needs.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Config tunes recovery attempts.
type Config struct {
	RecoveryDelay       time.Duration
	RecoverySuccessRate float64
}

// DefaultConfig returns the default recovery settings.
func DefaultConfig() Config {
	return Config{
		RecoveryDelay:       3 * time.Second,
		RecoverySuccessRate: 0.7,
	}
}

// Controller owns fault state changes.
type Controller struct {
	store *store.Store
	bus   *events.Bus
	rng   Rand

	mu     sync.RWMutex
	config Config
}

// New creates a controller.
func New(s *store.Store, bus *events.Bus, rng Rand, cfg Config) *Controller {
	return &Controller{store: s, bus: bus, rng: rng, config: cfg}
}

// SetConfig replaces the recovery settings. Attempts already waiting keep
// the settings they started with.
func (c *Controller) SetConfig(cfg Config) {
	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
}

func (c *Controller) settings() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

// ValidFault reports whether f is a known fault type.
func ValidFault(f models.FaultType) bool {
	_, ok := faultMessages[f]
	return ok
}

// InjectFault puts a robot into error regardless of its current status and
// raises one critical alert. A delivery the robot was carrying fails.
func (c *Controller) InjectFault(robotID string, fault models.FaultType) (models.Alert, error) {
	msg, ok := faultMessages[fault]
	if !ok {
		return models.Alert{}, fmt.Errorf("%w: %q", ErrInvalidFault, fault)
	}

	var (
		alert models.Alert
		out   []events.Event
	)
	err := c.store.Update(func(tx *store.Tx) error {
		r, err := tx.Robot(robotID)
		if err != nil {
			return err
		}
		now := tx.Now()

		if t := tx.BoundTask(r); t != nil {
			if _, err := tx.FailTask(t); err != nil {
				return fmt.Errorf("fail task %s: %w", t.ID, err)
			}
			out = append(out, events.TaskUpdate{
				TaskID:    t.ID,
				Status:    t.Status,
				RobotID:   r.ID,
				Message:   fmt.Sprintf("Delivery failed: %s fault on %s", fault, r.Name),
				Timestamp: now,
			})
		}
		r.Status = models.RobotStatusError
		r.Speed = 0

		alert = tx.AddAlert(store.NewAlert(r.ID, models.SeverityCritical,
			fmt.Sprintf("%s: %s", r.Name, msg), now))
		out = append(out, events.AlertFrom(alert))
		return nil
	})
	if err != nil {
		return models.Alert{}, fmt.Errorf("inject fault: %w", err)
	}

	log.Printf("[faults] injected %s into %s", fault, robotID)
	c.bus.PublishAll(out)
	return alert, nil
}

// AttemptRecovery waits out the recovery delay and then succeeds with the
// configured probability. On success the robot goes back to idle and an info
// alert is raised. The delay is wall-clock time, independent of simulation
// speed. Concurrent attempts on the same robot are not deduplicated.
//
// If ctx ends first the attempt is abandoned and ErrRecoveryAborted is
// returned with no state change.
func (c *Controller) AttemptRecovery(ctx context.Context, robotID string) (bool, error) {
	if _, err := c.store.Robot(robotID); err != nil {
		return false, fmt.Errorf("attempt recovery: %w", err)
	}

	cfg := c.settings()
	timer := time.NewTimer(cfg.RecoveryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		log.Printf("[faults] recovery of %s aborted: %v", robotID, ctx.Err())
		return false, fmt.Errorf("%w: %v", ErrRecoveryAborted, ctx.Err())
	case <-timer.C:
	}

	if c.rng.Float64() >= cfg.RecoverySuccessRate {
		log.Printf("[faults] recovery of %s failed", robotID)
		return false, nil
	}

	var out []events.Event
	err := c.store.Update(func(tx *store.Tx) error {
		r, err := tx.Robot(robotID)
		if err != nil {
			return err
		}
		now := tx.Now()

		if t := tx.BoundTask(r); t != nil {
			if _, err := tx.RequeueTask(t); err != nil {
				return fmt.Errorf("requeue task %s: %w", t.ID, err)
			}
			out = append(out, events.TaskUpdate{
				TaskID:    t.ID,
				Status:    t.Status,
				RobotID:   r.ID,
				Message:   fmt.Sprintf("Task requeued: %s recovered", r.Name),
				Timestamp: now,
			})
		}
		r.Status = models.RobotStatusIdle
		r.LastSeen = now

		a := tx.AddAlert(store.NewAlert(r.ID, models.SeverityInfo,
			fmt.Sprintf("%s: Recovery successful, resuming operations", r.Name), now))
		out = append(out, events.AlertFrom(a))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("attempt recovery: %w", err)
	}

	log.Printf("[faults] recovery of %s succeeded", robotID)
	c.bus.PublishAll(out)
	return true, nil
}

// Tick raises a random catalog alert against a random robot with
// probability p. It reports whether an alert was raised.
func (c *Controller) Tick(p float64) bool {
	if c.rng.Float64() >= p {
		return false
	}

	var (
		alert  models.Alert
		raised bool
	)
	_ = c.store.Update(func(tx *store.Tx) error {
		robots := tx.Robots()
		if len(robots) == 0 {
			return nil
		}
		r := robots[c.rng.Intn(len(robots))]
		entry := catalog[c.rng.Intn(len(catalog))]
		alert = tx.AddAlert(store.NewAlert(r.ID, entry.severity,
			fmt.Sprintf("%s: %s", r.Name, entry.message), tx.Now()))
		raised = true
		return nil
	})
	if raised {
		c.bus.Publish(events.AlertFrom(alert))
	}
	return raised
}
