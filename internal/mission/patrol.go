// Package mission runs the patrol state machine: preflight checks,
// waypoint traversal, detection-triggered loiter, battery interlock,
// and the pause/resume/abort/complete lifecycle.
package mission

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/alert"
	"github.com/zypherlabs/skywarden/internal/audit"
	"github.com/zypherlabs/skywarden/internal/flight"
	"github.com/zypherlabs/skywarden/internal/logging"
	"github.com/zypherlabs/skywarden/internal/model"
	"github.com/zypherlabs/skywarden/internal/store"
	"github.com/zypherlabs/skywarden/internal/vision"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StatePreflight State = "preflight"
	StateActive    State = "active"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Flight is the subset of the flight controller the patrol loop
// drives.
type Flight interface {
	Connected() bool
	Telemetry() flight.TelemetryState
	DrainTelemetry() error
	SetMode(mode string) error
	Arm() error
	Takeoff(altM float64) error
	SetSpeed(speedMS float64) error
	Goto(lat, lon, altM float64) error
	Land() error
	ReturnToLaunch() error
	ReachedWaypoint(lat, lon, toleranceM float64) bool
}

// Alerter runs one detection-processing cycle.
type Alerter interface {
	Process(missionID string, frame vision.Frame, detections []vision.Detection, pos alert.Position) ([]model.Finding, error)
}

// StatusPublisher reports lifecycle events off-drone. Optional.
type StatusPublisher interface {
	PublishStatus(status map[string]any) error
}

// Config tunes the patrol loop.
type Config struct {
	WaypointToleranceM float64
	HoverDuration      time.Duration
	LoiterDuration     time.Duration
	RTLBatteryPct      float64
	MinBatteryPct      float64
}

const (
	loopInterval       = 100 * time.Millisecond
	takeoffWait        = 30 * time.Second
	takeoffAltFraction = 0.9
)

// ErrPreflight carries every failing preflight condition.
type ErrPreflight struct {
	Failures []string
}

func (e *ErrPreflight) Error() string {
	return fmt.Sprintf("preflight failed: %d condition(s) not met", len(e.Failures))
}

// Controller executes one mission at a time.
type Controller struct {
	cfg       Config
	fc        Flight
	camera    vision.Camera
	detector  vision.Detector
	alerter   Alerter
	store     *store.Store
	auditor   *audit.Logger
	publisher StatusPublisher
	log       *zap.Logger

	mu       sync.Mutex
	state    State
	running  bool
	paused   bool
	mission  *model.Mission
	findings int
	waypoint int

	// Pause/Resume/Abort may be called from other goroutines (signal
	// handler, command channel). They only record a request here; the
	// control loop applies it, so all vehicle traffic stays on one
	// goroutine.
	pending     request
	abortReason string
}

type request int

const (
	reqNone request = iota
	reqPause
	reqResume
	reqAbort
)

func NewController(cfg Config, fc Flight, cam vision.Camera, det vision.Detector, al Alerter, st *store.Store, auditor *audit.Logger, pub StatusPublisher, log *zap.Logger) *Controller {
	return &Controller{
		cfg:       cfg,
		fc:        fc,
		camera:    cam,
		detector:  det,
		alerter:   al,
		store:     st,
		auditor:   auditor,
		publisher: pub,
		log:       log.With(logging.Component("mission")),
		state:     StateIdle,
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Findings returns the number of findings recorded so far.
func (c *Controller) Findings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findings
}

// Preflight evaluates every launch condition and returns the full
// list of failures, empty when the vehicle is ready.
func (c *Controller) Preflight(m *model.Mission) []string {
	c.mu.Lock()
	c.state = StatePreflight
	c.mu.Unlock()

	var failures []string
	if c.fc == nil || !c.fc.Connected() {
		failures = append(failures, "flight link not connected")
	}
	if c.camera == nil {
		failures = append(failures, "capture device unavailable")
	}
	if c.detector == nil {
		failures = append(failures, "detection backend unavailable")
	}
	if m == nil || len(m.Waypoints) == 0 {
		failures = append(failures, "mission has no waypoints")
	}
	if c.fc != nil && c.fc.Connected() {
		t := c.fc.Telemetry()
		if t.BatteryKnown && t.BatteryPct < c.cfg.MinBatteryPct {
			failures = append(failures, fmt.Sprintf("battery %.0f%% below minimum %.0f%%", t.BatteryPct, c.cfg.MinBatteryPct))
		}
		if t.GPSFixType < 3 {
			failures = append(failures, fmt.Sprintf("gps fix type %d, need 3D", t.GPSFixType))
		}
	}
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return failures
}

// Start launches the mission and runs the patrol loop to termination.
// It fails closed: any preflight failure or launch-sequence failure
// aborts before the loop begins.
func (c *Controller) Start(m *model.Mission) error {
	if failures := c.Preflight(m); len(failures) > 0 {
		return &ErrPreflight{Failures: failures}
	}

	c.mu.Lock()
	c.state = StateActive
	c.running = true
	c.paused = false
	c.mission = m
	c.findings = 0
	c.waypoint = 0
	c.mu.Unlock()

	if err := c.store.UpdateMissionStatus(m.ID, model.StatusActive); err != nil {
		c.stop(StateIdle)
		return fmt.Errorf("persist active status: %w", err)
	}
	if _, err := c.auditor.Log("mission_start", map[string]any{
		"mission_id": m.ID,
		"waypoints":  len(m.Waypoints),
		"altitude":   m.Parameters.AltitudeM,
		"speed":      m.Parameters.SpeedMS,
		"loop":       m.Parameters.Loop,
	}); err != nil {
		c.stop(StateIdle)
		return fmt.Errorf("audit mission start: %w", err)
	}

	if err := c.launch(m); err != nil {
		if c.isRunning() {
			c.abortInternal("launch_failure", err.Error())
		}
		return err
	}

	c.log.Info("patrol started", logging.MissionID(m.ID))
	return c.patrol(m)
}

// launch runs the takeoff sequence: mode, arm, takeoff, climb wait,
// cruise speed.
func (c *Controller) launch(m *model.Mission) error {
	if err := c.fc.SetMode("GUIDED"); err != nil {
		return fmt.Errorf("enter guided mode: %w", err)
	}
	if err := c.fc.Arm(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if err := c.fc.Takeoff(m.Parameters.AltitudeM); err != nil {
		return fmt.Errorf("takeoff: %w", err)
	}

	target := m.Parameters.AltitudeM * takeoffAltFraction
	deadline := time.Now().Add(takeoffWait)
	for {
		if !c.isRunning() || c.applyPending() {
			return errors.New("stopped during climb")
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("altitude %.1fm not reached within %s", target, takeoffWait)
		}
		if err := c.fc.DrainTelemetry(); err != nil {
			return fmt.Errorf("drain telemetry: %w", err)
		}
		if c.fc.Telemetry().AltM >= target {
			break
		}
		time.Sleep(loopInterval)
	}

	if m.Parameters.SpeedMS > 0 {
		if err := c.fc.SetSpeed(m.Parameters.SpeedMS); err != nil {
			// Cruise speed is advisory, not a launch gate.
			c.log.Warn("set cruise speed failed", zap.Error(err))
		}
	}
	return nil
}

// patrol iterates waypoints until the mission terminates.
func (c *Controller) patrol(m *model.Mission) error {
	for {
		for i, wp := range m.Waypoints {
			if !c.isRunning() {
				return nil
			}
			c.mu.Lock()
			c.waypoint = i
			c.mu.Unlock()

			alt := wp.Alt
			if alt <= 0 {
				alt = m.Parameters.AltitudeM
			}
			c.log.Info("navigating to waypoint", logging.Waypoint(i), logging.Lat(wp.Lat), logging.Lon(wp.Lon))
			issued := c.gotoWaypoint(i, wp.Lat, wp.Lon, alt)
			reached := c.waitUntil(func() bool {
				if !issued {
					issued = c.gotoWaypoint(i, wp.Lat, wp.Lon, alt)
					return false
				}
				return c.fc.ReachedWaypoint(wp.Lat, wp.Lon, c.cfg.WaypointToleranceM)
			}, 0)
			if !c.isRunning() {
				return nil
			}
			if reached {
				c.hover()
			}
			if !c.isRunning() {
				return nil
			}
		}
		if !m.Parameters.Loop {
			return c.Complete()
		}
		c.log.Info("waypoint sequence complete, looping", logging.MissionID(m.ID))
	}
}

// gotoWaypoint issues the position target, reporting whether the
// vehicle accepted it. Failures are retried on the next loop cycle.
func (c *Controller) gotoWaypoint(i int, lat, lon, alt float64) bool {
	if err := c.fc.Goto(lat, lon, alt); err != nil {
		c.log.Warn("goto failed, retrying next cycle", logging.Waypoint(i), zap.Error(err))
		return false
	}
	return true
}

// hover dwells at the current waypoint running detection; a finding
// during the hover window extends the dwell by the loiter duration.
func (c *Controller) hover() {
	before := c.Findings()
	c.waitUntil(nil, c.cfg.HoverDuration)
	if c.Findings() > before && c.isRunning() {
		c.log.Info("finding during hover, loitering",
			logging.Waypoint(c.currentWaypoint()),
			zap.Duration("loiter", c.cfg.LoiterDuration))
		c.waitUntil(nil, c.cfg.LoiterDuration)
	}
}

// waitUntil polls at the loop interval until done() reports true, the
// timeout (if nonzero) expires, or the mission stops. Each cycle
// drains telemetry, runs one detection cycle, and checks the battery
// interlock. While paused, only telemetry and the interlock run.
func (c *Controller) waitUntil(done func() bool, timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for c.isRunning() {
		if err := c.fc.DrainTelemetry(); err != nil {
			c.log.Warn("telemetry drain failed", zap.Error(err))
		}
		if c.applyPending() {
			return false
		}
		if c.batteryInterlock() {
			return false
		}
		if !c.isPaused() {
			c.cycleFindings()
			if done != nil && done() {
				return true
			}
			if timeout > 0 && time.Now().After(deadline) {
				return false
			}
		}
		time.Sleep(loopInterval)
	}
	return false
}

// cycleFindings captures one frame, runs detection, and feeds the
// alert pipeline. Returns the number of findings created.
func (c *Controller) cycleFindings() int {
	frame, err := c.camera.Capture()
	if err != nil {
		c.log.Warn("frame capture failed", zap.Error(err))
		return 0
	}
	detections, err := c.detector.Detect(frame)
	if err != nil {
		c.log.Warn("detection failed", zap.Error(err))
		return 0
	}
	if len(detections) == 0 {
		return 0
	}
	t := c.fc.Telemetry()
	pos := alert.Position{Lat: t.Lat, Lon: t.Lon, Alt: t.AltM}
	findings, err := c.alerter.Process(c.missionID(), frame, detections, pos)
	if err != nil {
		c.log.Error("alert pipeline failed", zap.Error(err))
	}
	if len(findings) > 0 {
		c.mu.Lock()
		c.findings += len(findings)
		c.mu.Unlock()
	}
	return len(findings)
}

// batteryInterlock force-stops the mission and returns to launch when
// battery falls below the RTL threshold. Returns true if triggered.
func (c *Controller) batteryInterlock() bool {
	t := c.fc.Telemetry()
	if !t.BatteryKnown || t.BatteryPct >= c.cfg.RTLBatteryPct {
		return false
	}
	c.log.Error("battery below threshold, forcing return",
		logging.BatteryPct(int(t.BatteryPct)),
		logging.MissionID(c.missionID()))

	c.stop(StateAborted)
	if _, err := c.auditor.Log("battery_rtl", map[string]any{
		"mission_id":  c.missionID(),
		"battery_pct": t.BatteryPct,
		"threshold":   c.cfg.RTLBatteryPct,
	}); err != nil {
		c.log.Error("audit battery event failed", zap.Error(err))
	}
	if err := c.store.UpdateMissionStatus(c.missionID(), model.StatusAborted); err != nil {
		c.log.Error("persist aborted status failed", zap.Error(err))
	}
	if err := c.fc.ReturnToLaunch(); err != nil {
		c.log.Error("return to launch failed", zap.Error(err))
	}
	c.closeCamera()
	return true
}

// Pause requests a hold: the control loop switches to LOITER and
// suspends waypoint progression until resumed or aborted.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused {
		return errors.New("mission is not active")
	}
	c.pending = reqPause
	return nil
}

// Resume requests that guided navigation continue after a pause.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.paused {
		return errors.New("mission is not paused")
	}
	c.pending = reqResume
	return nil
}

// Abort requests a stop from any active phase; the control loop
// returns the vehicle to launch.
func (c *Controller) Abort(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return errors.New("no active mission")
	}
	c.pending = reqAbort
	c.abortReason = reason
	return nil
}

// applyPending executes any queued lifecycle request on the control
// loop's goroutine. Returns true if the mission stopped.
func (c *Controller) applyPending() bool {
	c.mu.Lock()
	req := c.pending
	reason := c.abortReason
	c.pending = reqNone
	c.mu.Unlock()

	switch req {
	case reqPause:
		if err := c.fc.SetMode("LOITER"); err != nil {
			c.log.Error("pause: enter loiter failed", zap.Error(err))
			return false
		}
		c.mu.Lock()
		c.paused = true
		c.state = StatePaused
		c.mu.Unlock()
		if err := c.store.UpdateMissionStatus(c.missionID(), model.StatusPaused); err != nil {
			c.log.Error("persist paused status failed", zap.Error(err))
		}
		if _, err := c.auditor.Log("mission_pause", map[string]any{"mission_id": c.missionID()}); err != nil {
			c.log.Error("audit pause failed", zap.Error(err))
		}
		c.log.Info("mission paused", logging.MissionID(c.missionID()))
	case reqResume:
		if err := c.fc.SetMode("GUIDED"); err != nil {
			c.log.Error("resume: enter guided failed", zap.Error(err))
			return false
		}
		c.mu.Lock()
		c.paused = false
		c.state = StateActive
		c.mu.Unlock()
		if err := c.store.UpdateMissionStatus(c.missionID(), model.StatusActive); err != nil {
			c.log.Error("persist active status failed", zap.Error(err))
		}
		if _, err := c.auditor.Log("mission_resume", map[string]any{"mission_id": c.missionID()}); err != nil {
			c.log.Error("audit resume failed", zap.Error(err))
		}
		c.log.Info("mission resumed", logging.MissionID(c.missionID()))
	case reqAbort:
		c.abortInternal("operator_abort", reason)
		return true
	}
	return false
}

func (c *Controller) abortInternal(action, reason string) {
	c.mu.Lock()
	findings := c.findings
	waypoint := c.waypoint
	c.mu.Unlock()
	c.stop(StateAborted)

	if _, err := c.auditor.Log(action, map[string]any{
		"mission_id":    c.missionID(),
		"reason":        reason,
		"findings":      findings,
		"last_waypoint": waypoint,
	}); err != nil {
		c.log.Error("audit abort failed", zap.Error(err))
	}
	if err := c.store.UpdateMissionStatus(c.missionID(), model.StatusAborted); err != nil {
		c.log.Error("persist aborted status failed", zap.Error(err))
	}
	if err := c.fc.ReturnToLaunch(); err != nil {
		c.log.Error("return to launch failed", zap.Error(err))
	}
	c.closeCamera()
	c.log.Info("mission aborted", logging.MissionID(c.missionID()), zap.String("reason", reason))
}

// Complete terminates the mission normally: land, persist, publish.
func (c *Controller) Complete() error {
	c.mu.Lock()
	findings := c.findings
	c.mu.Unlock()
	c.stop(StateCompleted)

	if _, err := c.auditor.Log("mission_complete", map[string]any{
		"mission_id": c.missionID(),
		"findings":   findings,
	}); err != nil {
		return fmt.Errorf("audit completion: %w", err)
	}
	if err := c.store.UpdateMissionStatus(c.missionID(), model.StatusCompleted); err != nil {
		return fmt.Errorf("persist completed status: %w", err)
	}
	if err := c.fc.Land(); err != nil {
		c.log.Error("land failed", zap.Error(err))
	}
	c.closeCamera()
	if c.publisher != nil {
		if err := c.publisher.PublishStatus(map[string]any{
			"event":      "mission_complete",
			"mission_id": c.missionID(),
			"findings":   findings,
			"timestamp":  model.Now(),
		}); err != nil {
			c.log.Warn("status publish failed", zap.Error(err))
		}
	}
	c.log.Info("mission completed", logging.MissionID(c.missionID()), zap.Int("findings", findings))
	return nil
}

func (c *Controller) stop(final State) {
	c.mu.Lock()
	c.running = false
	c.paused = false
	c.state = final
	c.mu.Unlock()
}

func (c *Controller) closeCamera() {
	if c.camera != nil {
		if err := c.camera.Close(); err != nil {
			c.log.Warn("camera close failed", zap.Error(err))
		}
	}
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) isPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) missionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mission == nil {
		return ""
	}
	return c.mission.ID
}

func (c *Controller) currentWaypoint() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waypoint
}
