package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fentz26/fleetsim/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFacility is returned for a facility file that fails validation.
var ErrInvalidFacility = errors.New("invalid facility description")

// FacilityFile is the YAML facility description.
//
//	floors:
//	  - map_id: floor1_v1
//	    floor: 1
//	    name: Ground Floor
//	    zones:
//	      - {id: pharmacy, type: pharmacy, name: Pharmacy, access: staff_only,
//	         polygon: [[200, 20], [280, 20], [280, 100], [200, 100]]}
//	robots:
//	  - {id: robot_R08, name: R-08, floor: 1, battery: 98, pose: {x: 80, y: 120}}
type FacilityFile struct {
	Floors []models.FloorMap `yaml:"floors"`
	Robots []RobotSpec       `yaml:"robots"`
}

// RobotSpec is a robot entry of a facility file.
type RobotSpec struct {
	ID                     string             `yaml:"id"`
	Name                   string             `yaml:"name"`
	Floor                  int                `yaml:"floor"`
	Status                 models.RobotStatus `yaml:"status"`
	Battery                *float64           `yaml:"battery"`
	LocalizationConfidence *float64           `yaml:"localization_confidence"`
	Pose                   models.Pose        `yaml:"pose"`
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Floors int `json:"floors"`
	Zones  int `json:"zones"`
	Robots int `json:"robots"`
}

// LoadFacility parses and validates a facility file.
func LoadFacility(path string) (*FacilityFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read facility: %w", err)
	}

	var f FacilityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse facility: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ImportFacility loads a facility file into the registry. Floors replace any
// existing floor with the same map ID or number; robots are upserted.
func (r *Registry) ImportFacility(path string) (ImportResult, error) {
	f, err := LoadFacility(path)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for _, fm := range f.Floors {
		if err := r.SaveFloorMap(fm); err != nil {
			return res, err
		}
		res.Floors++
		res.Zones += len(fm.Zones)
	}
	for _, spec := range f.Robots {
		if err := r.UpsertRobot(spec.robot()); err != nil {
			return res, err
		}
		res.Robots++
	}
	return res, nil
}

func (f *FacilityFile) validate() error {
	floors := make(map[int]bool)
	for _, fm := range f.Floors {
		if fm.MapID == "" {
			return fmt.Errorf("%w: floor %d has no map_id", ErrInvalidFacility, fm.Floor)
		}
		if floors[fm.Floor] {
			return fmt.Errorf("%w: floor %d defined twice", ErrInvalidFacility, fm.Floor)
		}
		floors[fm.Floor] = true

		for _, z := range fm.Zones {
			if z.ID == "" || z.Name == "" {
				return fmt.Errorf("%w: zone on %s needs id and name", ErrInvalidFacility, fm.MapID)
			}
			if len(z.Polygon) < 3 {
				return fmt.Errorf("%w: zone %s needs at least 3 vertices", ErrInvalidFacility, z.ID)
			}
			for _, p := range z.Polygon {
				if len(p) != 2 {
					return fmt.Errorf("%w: zone %s has a vertex that is not [x, y]", ErrInvalidFacility, z.ID)
				}
			}
		}
	}

	seen := make(map[string]bool)
	for _, rs := range f.Robots {
		if rs.ID == "" {
			return fmt.Errorf("%w: robot without id", ErrInvalidFacility)
		}
		if seen[rs.ID] {
			return fmt.Errorf("%w: robot %s defined twice", ErrInvalidFacility, rs.ID)
		}
		seen[rs.ID] = true
		if rs.Status != "" && !rs.Status.Valid() {
			return fmt.Errorf("%w: robot %s has unknown status %q", ErrInvalidFacility, rs.ID, rs.Status)
		}
		if rs.Battery != nil && (*rs.Battery < 0 || *rs.Battery > 100) {
			return fmt.Errorf("%w: robot %s battery %v outside [0,100]", ErrInvalidFacility, rs.ID, *rs.Battery)
		}
	}
	return nil
}

func (rs RobotSpec) robot() models.Robot {
	rb := models.Robot{
		ID:                     rs.ID,
		Name:                   rs.Name,
		Floor:                  rs.Floor,
		Status:                 rs.Status,
		Battery:                100,
		LocalizationConfidence: 1,
		Pose:                   rs.Pose,
	}
	if rb.Name == "" {
		rb.Name = rs.ID
	}
	if rb.Status == "" {
		rb.Status = models.RobotStatusIdle
	}
	if rs.Battery != nil {
		rb.Battery = *rs.Battery
	}
	if rs.LocalizationConfidence != nil {
		rb.LocalizationConfidence = *rs.LocalizationConfidence
	}
	return rb
}

func encodePolygon(p [][]float64) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode polygon: %w", err)
	}
	return string(b), nil
}

func decodePolygon(s string) ([][]float64, error) {
	var p [][]float64
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("decode polygon: %w", err)
	}
	return p, nil
}
