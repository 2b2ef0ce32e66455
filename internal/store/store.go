// Package store holds the authoritative in-memory state of the fleet:
// robots, tasks, alerts and the static facility description.
//
// All access goes through a single mutex. Reads return copies; mutations run
// inside Update so that a multi-entity change is never observed half-applied.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Snapshot is a consistent copy of the store contents.
type Snapshot struct {
	Robots    []models.Robot
	Tasks     []models.Task
	Alerts    []models.Alert
	FloorMaps []models.FloorMap
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the Entity Store.
type Store struct {
	mu sync.RWMutex

	robots   []*models.Robot
	robotIdx map[string]*models.Robot
	tasks    []*models.Task
	taskIdx  map[string]*models.Task
	alerts   []*models.Alert // newest first
	floors   []models.FloorMap
	zones    map[string]struct{}

	now func() time.Time
}

// New creates a store seeded with the given contents. Iteration order of
// robots and tasks follows the order in seed.
func New(seed Snapshot, opts ...Option) *Store {
	s := &Store{
		robotIdx: make(map[string]*models.Robot, len(seed.Robots)),
		taskIdx:  make(map[string]*models.Task, len(seed.Tasks)),
		zones:    make(map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	for i := range seed.Robots {
		r := seed.Robots[i]
		r.Battery = clampBattery(r.Battery)
		s.robots = append(s.robots, &r)
		s.robotIdx[r.ID] = &r
	}
	for i := range seed.Tasks {
		t := cloneTask(&seed.Tasks[i])
		s.tasks = append(s.tasks, &t)
		s.taskIdx[t.ID] = &t
	}
	for i := range seed.Alerts {
		a := seed.Alerts[i]
		s.alerts = append(s.alerts, &a)
	}
	s.floors = append(s.floors, seed.FloorMaps...)
	for _, fm := range s.floors {
		for _, z := range fm.Zones {
			s.zones[z.Name] = struct{}{}
		}
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Update runs fn with exclusive access. Changes made through tx are visible
// to other callers only after fn returns.
func (s *Store) Update(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// View runs fn with shared access. fn must not mutate entities.
func (s *Store) View(fn func(tx *Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&Tx{s: s})
}

// Snapshot returns a copy of everything in the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Robots:    make([]models.Robot, 0, len(s.robots)),
		Tasks:     make([]models.Task, 0, len(s.tasks)),
		Alerts:    make([]models.Alert, 0, len(s.alerts)),
		FloorMaps: append([]models.FloorMap(nil), s.floors...),
	}
	for _, r := range s.robots {
		snap.Robots = append(snap.Robots, *r)
	}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, cloneTask(t))
	}
	for _, a := range s.alerts {
		snap.Alerts = append(snap.Alerts, *a)
	}
	return snap
}

// --- Robot Operations ---

// Robots returns all robots in store order.
func (s *Store) Robots() []models.Robot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Robot, 0, len(s.robots))
	for _, r := range s.robots {
		out = append(out, *r)
	}
	return out
}

// Robot returns a robot by ID.
func (s *Store) Robot(id string) (models.Robot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.robotIdx[id]
	if !ok {
		return models.Robot{}, fmt.Errorf("get robot %s: %w", id, ErrRobotNotFound)
	}
	return *r, nil
}

// SetRobotStatus overrides a robot's status from outside the tick loop.
// en_route can only be entered through task assignment, and a robot holding
// a task must give it up through the task first.
func (s *Store) SetRobotStatus(id string, status models.RobotStatus) (models.Robot, error) {
	var out models.Robot
	err := s.Update(func(tx *Tx) error {
		r, err := tx.Robot(id)
		if err != nil {
			return err
		}
		if !status.Valid() || status == models.RobotStatusEnRoute {
			return invalid("robot %s cannot be set to %q", id, status)
		}
		if r.CurrentTaskID != "" {
			return invalid("robot %s is bound to task %s", id, r.CurrentTaskID)
		}
		r.Status = status
		r.LastSeen = tx.Now()
		out = *r
		return nil
	})
	if err != nil {
		return models.Robot{}, fmt.Errorf("set robot status: %w", err)
	}
	return out, nil
}

// --- Task Operations ---

// Tasks returns tasks in creation order, optionally filtered by status.
func (s *Store) Tasks(status models.TaskStatus) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, cloneTask(t))
	}
	return out
}

// Task returns a task by ID.
func (s *Store) Task(id string) (models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.taskIdx[id]
	if !ok {
		return models.Task{}, fmt.Errorf("get task %s: %w", id, ErrTaskNotFound)
	}
	return cloneTask(t), nil
}

// CreateTask appends a new queued task. The request is validated against
// its struct tags, and zone names are checked against the facility when one
// is loaded.
func (s *Store) CreateTask(req models.CreateTaskRequest) (models.Task, error) {
	if err := validate.Struct(req); err != nil {
		return models.Task{}, fmt.Errorf("create task: %w: %w", ErrInvalidTask, err)
	}

	var out models.Task
	err := s.Update(func(tx *Tx) error {
		for _, zone := range []string{req.FromZone, req.ToZone} {
			if !s.hasZoneLocked(zone) {
				return fmt.Errorf("%w: %q", ErrUnknownZone, zone)
			}
		}
		out = *tx.InsertTask(models.Task{
			ID:        uuid.New().String(),
			Requester: req.Requester,
			FromZone:  req.FromZone,
			ToZone:    req.ToZone,
			Priority:  req.Priority,
			Payload:   req.Payload,
			Notes:     req.Notes,
			Status:    models.TaskStatusQueued,
			CreatedAt: tx.Now(),
		})
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("create task: %w", err)
	}
	return out, nil
}

// AssignTask binds a queued task to an idle robot with the given ETA.
func (s *Store) AssignTask(taskID, robotID string, eta float64) (models.Task, error) {
	var out models.Task
	err := s.Update(func(tx *Tx) error {
		t, err := tx.Task(taskID)
		if err != nil {
			return err
		}
		r, err := tx.Robot(robotID)
		if err != nil {
			return err
		}
		if err := tx.AssignTask(t, r, eta); err != nil {
			return err
		}
		out = cloneTask(t)
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("assign task: %w", err)
	}
	return out, nil
}

// CancelTask retires a task that has not finished and releases its robot.
func (s *Store) CancelTask(id string) (models.Task, error) {
	var out models.Task
	err := s.Update(func(tx *Tx) error {
		t, err := tx.Task(id)
		if err != nil {
			return err
		}
		if err := tx.CancelTask(t); err != nil {
			return err
		}
		out = cloneTask(t)
		return nil
	})
	if err != nil {
		return models.Task{}, fmt.Errorf("cancel task: %w", err)
	}
	return out, nil
}

// --- Alert Operations ---

// NewAlert builds an unacknowledged alert with a fresh ID.
func NewAlert(robotID string, severity models.Severity, message string, at time.Time) models.Alert {
	return models.Alert{
		ID:        uuid.New().String(),
		RobotID:   robotID,
		Severity:  severity,
		Message:   message,
		Timestamp: at,
	}
}

// Alerts returns all alerts, newest first.
func (s *Store) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, *a)
	}
	return out
}

// AddAlert prepends an alert.
func (s *Store) AddAlert(a models.Alert) models.Alert {
	var out models.Alert
	_ = s.Update(func(tx *Tx) error {
		out = tx.AddAlert(a)
		return nil
	})
	return out
}

// AcknowledgeAlert marks an alert as seen by an operator.
func (s *Store) AcknowledgeAlert(id string) (models.Alert, error) {
	return s.mutateAlert(id, func(a *models.Alert) {
		a.Acknowledged = true
	})
}

// ResolveAlert closes an alert. Resolving implies acknowledging.
func (s *Store) ResolveAlert(id string) (models.Alert, error) {
	return s.mutateAlert(id, func(a *models.Alert) {
		a.Acknowledged = true
		a.Resolved = true
	})
}

func (s *Store) mutateAlert(id string, fn func(*models.Alert)) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.alerts {
		if a.ID == id {
			fn(a)
			return *a, nil
		}
	}
	return models.Alert{}, fmt.Errorf("update alert %s: %w", id, ErrAlertNotFound)
}

// --- Facility ---

// FloorMaps returns the facility floor maps.
func (s *Store) FloorMaps() []models.FloorMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.FloorMap(nil), s.floors...)
}

// FloorMap returns the map of one floor.
func (s *Store) FloorMap(floor int) (models.FloorMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, fm := range s.floors {
		if fm.Floor == floor {
			return fm, nil
		}
	}
	return models.FloorMap{}, fmt.Errorf("floor %d: %w", floor, ErrNotFound)
}

// HasZone reports whether name is a zone of the facility.
func (s *Store) HasZone(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasZoneLocked(name)
}

func (s *Store) hasZoneLocked(name string) bool {
	if len(s.zones) == 0 {
		return true
	}
	_, ok := s.zones[name]
	return ok
}

func cloneTask(t *models.Task) models.Task {
	c := *t
	if t.ETAMinutes != nil {
		eta := *t.ETAMinutes
		c.ETAMinutes = &eta
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

func clampBattery(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
