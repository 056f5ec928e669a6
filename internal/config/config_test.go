package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("SKYWARDEN_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err, "explicit config path must exist")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SKYWARDEN_CONFIG_PATH", "")
	wd := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(wd))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/etc/skywarden/identity", cfg.Drone.IdentityDir)
	assert.Equal(t, "udp:127.0.0.1:14550", cfg.Flight.Connection)
	assert.Equal(t, 2.0, cfg.Flight.WaypointToleranceM)
	assert.Equal(t, 0.5, cfg.Vision.ConfidenceThreshold)
	assert.Equal(t, []string{"person", "vehicle"}, cfg.Vision.TargetClasses)
	assert.Equal(t, 30.0, cfg.Surveillance.AlertCooldownS)
	assert.Equal(t, 25, cfg.Surveillance.RTLBatteryPct)
	assert.Equal(t, 30, cfg.Surveillance.MinBatteryPct)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
drone:
  identity_dir: /tmp/identity
  org_id: acme
flight:
  connection: tcp:10.0.0.1:5760
  waypoint_tolerance_m: 3.5
surveillance:
  rtl_battery_pct: 20
mqtt:
  broker: broker.local
  qos: 2
`), 0o644))
	t.Setenv("SKYWARDEN_CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/identity", cfg.Drone.IdentityDir)
	assert.Equal(t, "acme", cfg.Drone.OrgID)
	assert.Equal(t, "tcp:10.0.0.1:5760", cfg.Flight.Connection)
	assert.Equal(t, 3.5, cfg.Flight.WaypointToleranceM)
	assert.Equal(t, 20, cfg.Surveillance.RTLBatteryPct)
	assert.Equal(t, "broker.local", cfg.MQTT.Broker)
	assert.Equal(t, 2, cfg.MQTT.QoS)
	// Untouched keys keep their defaults.
	assert.Equal(t, 5.0, cfg.Surveillance.WaypointHoverS)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"no connection": "flight:\n  connection: \"\"\n",
		"bad tolerance": "flight:\n  waypoint_tolerance_m: 0\n",
		"bad rtl pct":   "surveillance:\n  rtl_battery_pct: 150\n",
		"bad qos":       "mqtt:\n  qos: 7\n",
		"bad log level": "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			t.Setenv("SKYWARDEN_CONFIG_PATH", path)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drone:\n  org_id: acme\n"), 0o644))
	t.Setenv("SKYWARDEN_CONFIG_PATH", path)
	t.Setenv("SKYWARDEN_DRONE_ORG_ID", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Drone.OrgID)
}
