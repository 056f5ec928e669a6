package mission

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zypherlabs/skywarden/internal/model"
)

// LoadWaypoints reads a waypoint file: a JSON array of objects with
// numeric lat, lon, and optional alt. Waypoints without an altitude
// fall back to defaultAltM.
func LoadWaypoints(path string, defaultAltM float64) ([]model.Waypoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read waypoint file: %w", err)
	}
	var raw []struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
		Alt *float64 `json:"alt"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse waypoint file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("waypoint file %s is empty", path)
	}
	wps := make([]model.Waypoint, 0, len(raw))
	for i, r := range raw {
		if r.Lat == nil || r.Lon == nil {
			return nil, fmt.Errorf("waypoint %d: lat and lon are required", i)
		}
		if *r.Lat < -90 || *r.Lat > 90 || *r.Lon < -180 || *r.Lon > 180 {
			return nil, fmt.Errorf("waypoint %d: coordinates out of range", i)
		}
		wp := model.Waypoint{Lat: *r.Lat, Lon: *r.Lon, Alt: defaultAltM}
		if r.Alt != nil {
			wp.Alt = *r.Alt
		}
		wps = append(wps, wp)
	}
	return wps, nil
}
