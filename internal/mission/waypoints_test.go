package mission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWaypointFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "waypoints.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWaypoints(t *testing.T) {
	path := writeWaypointFile(t, `[
		{"lat": 51.5007, "lon": -0.1246, "alt": 40},
		{"lat": 51.5033, "lon": -0.1195}
	]`)

	wps, err := LoadWaypoints(path, 30)
	require.NoError(t, err)
	require.Len(t, wps, 2)

	assert.Equal(t, 51.5007, wps[0].Lat)
	assert.Equal(t, -0.1246, wps[0].Lon)
	assert.Equal(t, 40.0, wps[0].Alt)
	assert.Equal(t, 30.0, wps[1].Alt, "missing alt falls back to default")
}

func TestLoadWaypoints_ZeroAltIsExplicit(t *testing.T) {
	path := writeWaypointFile(t, `[{"lat": 0.0, "lon": 0.0, "alt": 0}]`)

	wps, err := LoadWaypoints(path, 30)
	require.NoError(t, err)
	assert.Equal(t, 0.0, wps[0].Alt)
}

func TestLoadWaypoints_Errors(t *testing.T) {
	cases := map[string]struct {
		body    string
		wantErr string
	}{
		"empty array":   {`[]`, "is empty"},
		"missing lat":   {`[{"lon": -0.1246}]`, "lat and lon are required"},
		"missing lon":   {`[{"lat": 51.5}]`, "lat and lon are required"},
		"lat range":     {`[{"lat": 91, "lon": 0}]`, "out of range"},
		"lon range":     {`[{"lat": 0, "lon": -181}]`, "out of range"},
		"not an array":  {`{"lat": 51.5, "lon": 0}`, "parse waypoint file"},
		"bad json":      {`[{`, "parse waypoint file"},
		"second is bad": {`[{"lat": 1, "lon": 2}, {"lat": 3}]`, "waypoint 1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeWaypointFile(t, tc.body)
			_, err := LoadWaypoints(path, 30)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadWaypoints_MissingFile(t *testing.T) {
	_, err := LoadWaypoints(filepath.Join(t.TempDir(), "nope.json"), 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read waypoint file")
}
