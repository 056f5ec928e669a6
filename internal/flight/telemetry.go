package flight

import (
	"sync"
	"time"
)

// TelemetryState is a point-in-time snapshot of vehicle telemetry.
// Zero values mean "not yet reported".
type TelemetryState struct {
	Lat            float64
	Lon            float64
	AltM           float64 // relative to home
	HeadingDeg     float64
	GroundspeedMS  float64
	VelNorthMS     float64
	VelEastMS      float64
	VelDownMS      float64
	BatteryPct     float64
	BatteryKnown   bool // a 0% reading is valid, distinguish it from no reading
	BatteryVoltage float64
	Mode           string
	Armed          bool
	GPSFixType     int
	Satellites     int
	RollRad        float64
	PitchRad       float64
	YawRad         float64
	LastHeartbeat  time.Time
	LastUpdate     time.Time
}

// HasPosition reports whether a global position fix has been received.
func (s TelemetryState) HasPosition() bool {
	return s.Lat != 0 || s.Lon != 0
}

// telemetryStore holds the latest telemetry, updated piecewise as
// messages arrive.
type telemetryStore struct {
	mu    sync.Mutex
	state TelemetryState
	now   func() time.Time
}

func newTelemetryStore() *telemetryStore {
	return &telemetryStore{now: time.Now}
}

// State returns a copy of the current snapshot.
func (t *telemetryStore) State() TelemetryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// apply folds a decoded message into the snapshot.
func (t *telemetryStore) apply(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.state.LastUpdate = now

	switch m := msg.(type) {
	case Heartbeat:
		t.state.Armed = m.Armed()
		if name, ok := copterModeNames[m.CustomMode]; ok {
			t.state.Mode = name
		}
		t.state.LastHeartbeat = now
	case SysStatus:
		t.state.BatteryVoltage = float64(m.VoltageBatteryMV) / 1000.0
		if m.BatteryRemaining >= 0 {
			t.state.BatteryPct = float64(m.BatteryRemaining)
			t.state.BatteryKnown = true
		}
	case GPSRawInt:
		t.state.GPSFixType = int(m.FixType)
		t.state.Satellites = int(m.SatellitesVisible)
	case Attitude:
		t.state.RollRad = float64(m.Roll)
		t.state.PitchRad = float64(m.Pitch)
		t.state.YawRad = float64(m.Yaw)
	case GlobalPositionInt:
		t.state.Lat = float64(m.LatE7) / 1e7
		t.state.Lon = float64(m.LonE7) / 1e7
		t.state.AltM = float64(m.RelativeAltMM) / 1000.0
		t.state.HeadingDeg = float64(m.HdgCdeg) / 100.0
		t.state.VelNorthMS = float64(m.VxCM) / 100.0
		t.state.VelEastMS = float64(m.VyCM) / 100.0
		t.state.VelDownMS = float64(m.VzCM) / 100.0
	case VFRHud:
		t.state.GroundspeedMS = float64(m.Groundspeed)
	}
}
