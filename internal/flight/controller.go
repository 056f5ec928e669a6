package flight

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/zypherlabs/skywarden/internal/logging"
)

// ArduCopter custom mode numbers.
var copterModes = map[string]uint32{
	"STABILIZE":    0,
	"ACRO":         1,
	"ALT_HOLD":     2,
	"AUTO":         3,
	"GUIDED":       4,
	"LOITER":       5,
	"RTL":          6,
	"CIRCLE":       7,
	"LAND":         9,
	"DRIFT":        11,
	"SPORT":        13,
	"BRAKE":        17,
	"GUIDED_NOGPS": 20,
	"SMART_RTL":    21,
}

var copterModeNames = func() map[uint32]string {
	m := make(map[uint32]string, len(copterModes))
	for name, id := range copterModes {
		m[id] = name
	}
	return m
}()

// Overridable in tests.
var (
	heartbeatWait = 30 * time.Second
	ackWait       = 5 * time.Second
)

const (
	modeConfirmTries = 10
	modeConfirmWait  = 200 * time.Millisecond
	streamRateHz     = 4
	earthRadiusM     = 6371000.0
)

// ErrNotConnected is returned by operations issued before Connect.
var ErrNotConnected = errors.New("flight: not connected")

// Controller drives an autopilot over a Link: mode changes, arming,
// guided navigation, and telemetry collection.
type Controller struct {
	// Dialer opens the transport. Defaults to Dial.
	Dialer func(conn string) (Link, error)

	log       *zap.Logger
	link      Link
	parser    parser
	telemetry *telemetryStore
	seq       uint8
	sysID     uint8 // autopilot system id, learned from the first heartbeat
	connected bool
}

func NewController(log *zap.Logger) *Controller {
	return &Controller{
		Dialer:    Dial,
		log:       log.With(logging.Component("flight")),
		telemetry: newTelemetryStore(),
	}
}

// Connect opens the link, waits for a heartbeat, and requests
// telemetry streams.
func (c *Controller) Connect(ctx context.Context, conn string) error {
	link, err := c.Dialer(conn)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	c.link = link
	c.log.Info("link open, waiting for heartbeat", logging.Conn(conn))

	deadline := time.Now().Add(heartbeatWait)
	for {
		if err := ctx.Err(); err != nil {
			c.link.Close()
			return err
		}
		if time.Now().After(deadline) {
			c.link.Close()
			return fmt.Errorf("no heartbeat within %s", heartbeatWait)
		}
		sysID, msg, err := c.recvOne()
		if err != nil {
			if errors.Is(err, errLinkIdle) {
				continue
			}
			c.link.Close()
			return fmt.Errorf("recv: %w", err)
		}
		if hb, ok := msg.(Heartbeat); ok {
			c.sysID = sysID
			c.connected = true
			c.telemetry.apply(hb)
			break
		}
	}
	c.log.Info("heartbeat received", zap.Uint8("system_id", c.sysID))

	if err := c.send(RequestDataStream{
		TargetSystem: c.sysID,
		StreamID:     dataStreamAll,
		RateHz:       streamRateHz,
		Start:        true,
	}); err != nil {
		return fmt.Errorf("request data stream: %w", err)
	}
	return nil
}

// Disconnect closes the link. Safe to call when not connected.
func (c *Controller) Disconnect() error {
	if c.link == nil {
		return nil
	}
	err := c.link.Close()
	c.link = nil
	c.connected = false
	return err
}

// Connected reports whether a heartbeat has been seen on an open link.
func (c *Controller) Connected() bool { return c.connected }

// Telemetry returns the latest telemetry snapshot.
func (c *Controller) Telemetry() TelemetryState { return c.telemetry.State() }

// DrainTelemetry consumes all buffered inbound messages, folding them
// into the telemetry snapshot.
func (c *Controller) DrainTelemetry() error {
	if c.link == nil {
		return ErrNotConnected
	}
	for {
		_, _, err := c.recvOne()
		if err != nil {
			if errors.Is(err, errLinkIdle) {
				return nil
			}
			return err
		}
	}
}

// SetMode switches flight mode and waits for the heartbeat to confirm.
func (c *Controller) SetMode(mode string) error {
	if c.link == nil {
		return ErrNotConnected
	}
	id, ok := copterModes[mode]
	if !ok {
		return fmt.Errorf("unknown flight mode %q", mode)
	}
	if err := c.send(SetMode{TargetSystem: c.sysID, CustomMode: id}); err != nil {
		return err
	}
	for i := 0; i < modeConfirmTries; i++ {
		if err := c.DrainTelemetry(); err != nil {
			return err
		}
		if c.telemetry.State().Mode == mode {
			c.log.Info("mode changed", logging.Mode(mode))
			return nil
		}
		time.Sleep(modeConfirmWait)
	}
	return fmt.Errorf("mode change to %s not confirmed", mode)
}

// Arm arms the vehicle motors.
func (c *Controller) Arm() error {
	return c.commandAck(CommandLong{
		TargetSystem:    c.sysID,
		TargetComponent: 1,
		Command:         CmdArmDisarm,
		Params:          [7]float32{1},
	})
}

// Disarm disarms the vehicle motors.
func (c *Controller) Disarm() error {
	return c.commandAck(CommandLong{
		TargetSystem:    c.sysID,
		TargetComponent: 1,
		Command:         CmdArmDisarm,
		Params:          [7]float32{0},
	})
}

// Takeoff climbs to the given altitude above home. The vehicle must
// be armed and in GUIDED mode.
func (c *Controller) Takeoff(altM float64) error {
	return c.commandAck(CommandLong{
		TargetSystem:    c.sysID,
		TargetComponent: 1,
		Command:         CmdNavTakeoff,
		Params:          [7]float32{0, 0, 0, 0, 0, 0, float32(altM)},
	})
}

// SetSpeed sets the target groundspeed in m/s.
func (c *Controller) SetSpeed(speedMS float64) error {
	return c.commandAck(CommandLong{
		TargetSystem:    c.sysID,
		TargetComponent: 1,
		Command:         CmdDoChangeSpeed,
		Params:          [7]float32{1, float32(speedMS), -1},
	})
}

// Goto commands guided flight toward a global position. It does not
// wait for arrival; poll ReachedWaypoint.
func (c *Controller) Goto(lat, lon, altM float64) error {
	if c.link == nil {
		return ErrNotConnected
	}
	c.log.Debug("goto", logging.Lat(lat), logging.Lon(lon), logging.Alt(altM))
	return c.send(SetPositionTargetGlobalInt{
		TargetSystem:    c.sysID,
		TargetComponent: 1,
		LatE7:           int32(math.Round(lat * 1e7)),
		LonE7:           int32(math.Round(lon * 1e7)),
		AltM:            float32(altM),
	})
}

// Land switches to LAND mode.
func (c *Controller) Land() error { return c.SetMode("LAND") }

// ReturnToLaunch switches to RTL mode.
func (c *Controller) ReturnToLaunch() error { return c.SetMode("RTL") }

// ReachedWaypoint reports whether the current position is within
// toleranceM meters of the target, using ground distance only.
func (c *Controller) ReachedWaypoint(lat, lon, toleranceM float64) bool {
	s := c.telemetry.State()
	if !s.HasPosition() {
		return false
	}
	return haversineM(s.Lat, s.Lon, lat, lon) <= toleranceM
}

// commandAck sends a command and waits for a positive acknowledgement,
// applying any other telemetry received while waiting.
func (c *Controller) commandAck(cmd CommandLong) error {
	if c.link == nil {
		return ErrNotConnected
	}
	if err := c.send(cmd); err != nil {
		return err
	}
	deadline := time.Now().Add(ackWait)
	for time.Now().Before(deadline) {
		_, msg, err := c.recvOne()
		if err != nil {
			if errors.Is(err, errLinkIdle) {
				continue
			}
			return err
		}
		if ack, ok := msg.(CommandAck); ok && ack.Command == cmd.Command {
			if ack.Result != ResultAccepted {
				return fmt.Errorf("command %d rejected with result %d", ack.Command, ack.Result)
			}
			c.log.Debug("command accepted", logging.Command(ack.Command))
			return nil
		}
	}
	return fmt.Errorf("no ack for command %d within %s", cmd.Command, ackWait)
}

// send marshals and transmits one message.
func (c *Controller) send(msg Message) error {
	if c.link == nil {
		return ErrNotConnected
	}
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	f := frame{SysID: 255, CompID: 190, MsgID: msg.msgID(), Payload: payload}
	raw, err := marshalFrame(&f, c.seq)
	if err != nil {
		return err
	}
	c.seq++
	return c.link.Send(raw)
}

// recvOne returns the next decodable message, reading from the link
// as needed. Returns errLinkIdle when the link has nothing buffered.
func (c *Controller) recvOne() (uint8, Message, error) {
	for {
		if f, ok := c.parser.next(); ok {
			msg, ok := decodeMessage(f)
			if !ok {
				continue
			}
			c.telemetry.apply(msg)
			return f.SysID, msg, nil
		}
		b, err := c.link.Recv()
		if err != nil {
			return 0, nil, err
		}
		c.parser.feed(b)
	}
}

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}
