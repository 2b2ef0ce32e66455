// Package registry provides the SQLite-backed fleet and facility registry the
// simulation is seeded from at process start. The running simulation never
// writes back to it.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/fleetsim/internal/models"
	"github.com/fentz26/fleetsim/internal/store"
	_ "modernc.org/sqlite"
)

// Registry provides access to the fleetsim SQLite database.
type Registry struct {
	db *sql.DB
}

// New opens (creating if needed) the registry database and runs migrations.
func New(dbPath string) (*Registry, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Ping checks the database connection is alive.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS robots (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'idle',
		battery REAL NOT NULL DEFAULT 100,
		floor INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		theta REAL NOT NULL DEFAULT 0,
		localization_confidence REAL NOT NULL DEFAULT 1,
		position INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS floor_maps (
		map_id TEXT PRIMARY KEY,
		floor INTEGER NOT NULL UNIQUE,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS zones (
		id TEXT NOT NULL,
		map_id TEXT NOT NULL,
		type TEXT NOT NULL,
		name TEXT NOT NULL,
		polygon TEXT NOT NULL,
		access TEXT NOT NULL,
		floor INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (map_id, id),
		FOREIGN KEY (map_id) REFERENCES floor_maps(map_id)
	);

	CREATE INDEX IF NOT EXISTS idx_zones_name ON zones(name);
	`
	_, err := r.db.Exec(schema)
	return err
}

// --- Robots ---

// UpsertRobot inserts or replaces a robot profile. Robots keep the position
// of their first insert so load order is stable.
func (r *Registry) UpsertRobot(rb models.Robot) error {
	_, err := r.db.Exec(`
		INSERT INTO robots (id, name, status, battery, floor, x, y, theta, localization_confidence, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM robots))
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			battery = excluded.battery,
			floor = excluded.floor,
			x = excluded.x,
			y = excluded.y,
			theta = excluded.theta,
			localization_confidence = excluded.localization_confidence`,
		rb.ID, rb.Name, rb.Status, rb.Battery, rb.Floor, rb.Pose.X, rb.Pose.Y, rb.Pose.Theta, rb.LocalizationConfidence,
	)
	if err != nil {
		return fmt.Errorf("upsert robot %s: %w", rb.ID, err)
	}
	return nil
}

// LoadRobots returns all robot profiles in registration order.
func (r *Registry) LoadRobots() ([]models.Robot, error) {
	rows, err := r.db.Query(`
		SELECT id, name, status, battery, floor, x, y, theta, localization_confidence
		FROM robots ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query robots: %w", err)
	}
	defer rows.Close()

	var robots []models.Robot
	for rows.Next() {
		var rb models.Robot
		if err := rows.Scan(&rb.ID, &rb.Name, &rb.Status, &rb.Battery, &rb.Floor,
			&rb.Pose.X, &rb.Pose.Y, &rb.Pose.Theta, &rb.LocalizationConfidence); err != nil {
			return nil, fmt.Errorf("scan robot: %w", err)
		}
		robots = append(robots, rb)
	}
	return robots, rows.Err()
}

// CountRobots returns the number of registered robots.
func (r *Registry) CountRobots() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM robots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count robots: %w", err)
	}
	return n, nil
}

// --- Facility ---

// SaveFloorMap replaces a floor map and all of its zones.
func (r *Registry) SaveFloorMap(fm models.FloorMap) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zones WHERE map_id = ?`, fm.MapID); err != nil {
		return fmt.Errorf("clear zones: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM floor_maps WHERE map_id = ? OR floor = ?`, fm.MapID, fm.Floor); err != nil {
		return fmt.Errorf("clear floor map: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO floor_maps (map_id, floor, name) VALUES (?, ?, ?)`,
		fm.MapID, fm.Floor, fm.Name); err != nil {
		return fmt.Errorf("insert floor map: %w", err)
	}

	for i, z := range fm.Zones {
		polygon, err := encodePolygon(z.Polygon)
		if err != nil {
			return fmt.Errorf("zone %s: %w", z.ID, err)
		}
		floor := z.Floor
		if floor == 0 {
			floor = fm.Floor
		}
		if _, err := tx.Exec(`
			INSERT INTO zones (id, map_id, type, name, polygon, access, floor, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			z.ID, fm.MapID, z.Type, z.Name, polygon, z.Access, floor, i,
		); err != nil {
			return fmt.Errorf("insert zone %s: %w", z.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadFloorMaps returns all floor maps ordered by floor, zones included.
func (r *Registry) LoadFloorMaps() ([]models.FloorMap, error) {
	rows, err := r.db.Query(`SELECT map_id, floor, name FROM floor_maps ORDER BY floor`)
	if err != nil {
		return nil, fmt.Errorf("query floor maps: %w", err)
	}
	var maps []models.FloorMap
	for rows.Next() {
		var fm models.FloorMap
		if err := rows.Scan(&fm.MapID, &fm.Floor, &fm.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan floor map: %w", err)
		}
		maps = append(maps, fm)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	// One connection: the map cursor has to be closed before zones are read.
	for i := range maps {
		zones, err := r.loadZones(maps[i].MapID)
		if err != nil {
			return nil, err
		}
		maps[i].Zones = zones
	}
	return maps, nil
}

func (r *Registry) loadZones(mapID string) ([]models.Zone, error) {
	rows, err := r.db.Query(`
		SELECT id, type, name, polygon, access, floor
		FROM zones WHERE map_id = ? ORDER BY position`, mapID)
	if err != nil {
		return nil, fmt.Errorf("query zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var z models.Zone
		var polygon string
		if err := rows.Scan(&z.ID, &z.Type, &z.Name, &polygon, &z.Access, &z.Floor); err != nil {
			return nil, fmt.Errorf("scan zone: %w", err)
		}
		if z.Polygon, err = decodePolygon(polygon); err != nil {
			return nil, fmt.Errorf("zone %s: %w", z.ID, err)
		}
		zones = append(zones, z)
	}
	return zones, rows.Err()
}

// --- Bootstrap ---

// SeedDefaults fills an empty registry with the demo fleet and facility.
// It reports whether anything was written.
func (r *Registry) SeedDefaults(now time.Time) (bool, error) {
	n, err := r.CountRobots()
	if err != nil {
		return false, err
	}
	maps, err := r.LoadFloorMaps()
	if err != nil {
		return false, err
	}

	seeded := false
	if n == 0 {
		for _, rb := range models.SeedRobots(now) {
			if err := r.UpsertRobot(rb); err != nil {
				return false, err
			}
		}
		seeded = true
	}
	if len(maps) == 0 {
		for _, fm := range models.SeedFloorMaps() {
			if err := r.SaveFloorMap(fm); err != nil {
				return false, err
			}
		}
		seeded = true
	}
	return seeded, nil
}

// Snapshot builds the initial entity store contents from the registry. With
// demo set, the demo task backlog and alert history are included and the
// robots carrying demo deliveries start bound to them. Robots that are
// en_route without a delivery start idle.
func (r *Registry) Snapshot(now time.Time, demo bool) (store.Snapshot, error) {
	robots, err := r.LoadRobots()
	if err != nil {
		return store.Snapshot{}, err
	}
	maps, err := r.LoadFloorMaps()
	if err != nil {
		return store.Snapshot{}, err
	}

	snap := store.Snapshot{Robots: robots, FloorMaps: maps}
	if demo {
		snap.Tasks = models.SeedTasks(now)
		snap.Alerts = models.SeedAlerts(now)
	}
	bindTasks(&snap, now)
	return snap, nil
}

// bindTasks makes robot task references agree with the in-progress tasks.
// An in-progress task whose robot is missing or already taken is requeued.
func bindTasks(snap *store.Snapshot, now time.Time) {
	idx := make(map[string]int, len(snap.Robots))
	for i := range snap.Robots {
		snap.Robots[i].CurrentTaskID = ""
		snap.Robots[i].LastSeen = now
		idx[snap.Robots[i].ID] = i
	}

	for i := range snap.Tasks {
		t := &snap.Tasks[i]
		if t.Status != models.TaskStatusInProgress {
			t.ETAMinutes = nil
			continue
		}
		ri, ok := idx[t.AssignedRobot]
		if !ok || snap.Robots[ri].CurrentTaskID != "" || t.ETAMinutes == nil {
			t.Status = models.TaskStatusQueued
			t.AssignedRobot = ""
			t.ETAMinutes = nil
			continue
		}
		snap.Robots[ri].Status = models.RobotStatusEnRoute
		snap.Robots[ri].CurrentTaskID = t.ID
	}

	for i := range snap.Robots {
		rb := &snap.Robots[i]
		if rb.Status == models.RobotStatusEnRoute && rb.CurrentTaskID == "" {
			rb.Status = models.RobotStatusIdle
		}
	}
}
