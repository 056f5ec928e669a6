package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTelemetry_BatteryZeroIsKnown(t *testing.T) {
	ts := newTelemetryStore()
	ts.apply(SysStatus{VoltageBatteryMV: 9800, BatteryRemaining: 0})

	s := ts.State()
	assert.True(t, s.BatteryKnown, "a 0 percent reading is a valid reading")
	assert.Equal(t, 0.0, s.BatteryPct)
	assert.InDelta(t, 9.8, s.BatteryVoltage, 1e-3)
}

func TestTelemetry_BatterySentinelStaysUnknown(t *testing.T) {
	ts := newTelemetryStore()
	ts.apply(SysStatus{VoltageBatteryMV: 12600, BatteryRemaining: -1})

	s := ts.State()
	assert.False(t, s.BatteryKnown)
	assert.InDelta(t, 12.6, s.BatteryVoltage, 1e-3, "voltage applies even without a percentage")
}

func TestTelemetry_BatteryKnownSurvivesSentinel(t *testing.T) {
	ts := newTelemetryStore()
	ts.apply(SysStatus{BatteryRemaining: 42})
	ts.apply(SysStatus{BatteryRemaining: -1})

	s := ts.State()
	assert.True(t, s.BatteryKnown)
	assert.Equal(t, 42.0, s.BatteryPct, "sentinel keeps the last good reading")
}
