package flight

import "fmt"

// Protocol constants from the common dialect.
const (
	CmdArmDisarm     uint16 = 400 // MAV_CMD_COMPONENT_ARM_DISARM
	CmdNavTakeoff    uint16 = 22  // MAV_CMD_NAV_TAKEOFF
	CmdDoChangeSpeed uint16 = 178 // MAV_CMD_DO_CHANGE_SPEED

	ResultAccepted uint8 = 0 // MAV_RESULT_ACCEPTED

	modeFlagSafetyArmed       uint8 = 128 // MAV_MODE_FLAG_SAFETY_ARMED
	modeFlagCustomModeEnabled uint8 = 1   // MAV_MODE_FLAG_CUSTOM_MODE_ENABLED

	frameGlobalRelativeAltInt uint8 = 6 // MAV_FRAME_GLOBAL_RELATIVE_ALT_INT
	dataStreamAll             uint8 = 0 // MAV_DATA_STREAM_ALL

	// type_mask for position-only targets: velocity, acceleration,
	// yaw, and yaw-rate bits all ignored.
	positionOnlyTypeMask uint16 = 0x0FF8
)

// Message is a decoded or encodable protocol message.
type Message interface {
	msgID() uint8
}

// Heartbeat reports armed state, mode, and liveness.
type Heartbeat struct {
	CustomMode uint32
	BaseMode   uint8
}

func (Heartbeat) msgID() uint8 { return msgIDHeartbeat }

// Armed reports whether the safety-armed flag is set.
func (h Heartbeat) Armed() bool { return h.BaseMode&modeFlagSafetyArmed != 0 }

// SysStatus reports battery level and voltage.
type SysStatus struct {
	VoltageBatteryMV uint16
	BatteryRemaining int8 // percent, -1 if unknown
}

func (SysStatus) msgID() uint8 { return msgIDSysStatus }

// GPSRawInt reports GPS fix quality.
type GPSRawInt struct {
	FixType           uint8 // 0-1 none, 2 = 2D, 3 = 3D
	SatellitesVisible uint8
}

func (GPSRawInt) msgID() uint8 { return msgIDGPSRawInt }

// Attitude reports vehicle orientation in radians.
type Attitude struct {
	Roll  float32
	Pitch float32
	Yaw   float32
}

func (Attitude) msgID() uint8 { return msgIDAttitude }

// GlobalPositionInt reports the fused global position estimate.
type GlobalPositionInt struct {
	LatE7         int32 // degrees * 1e7
	LonE7         int32
	AltMM         int32 // MSL, millimeters
	RelativeAltMM int32
	VxCM          int16 // cm/s
	VyCM          int16
	VzCM          int16
	HdgCdeg       uint16 // centidegrees
}

func (GlobalPositionInt) msgID() uint8 { return msgIDGlobalPositionInt }

// VFRHud reports groundspeed.
type VFRHud struct {
	Groundspeed float32
}

func (VFRHud) msgID() uint8 { return msgIDVFRHud }

// CommandAck confirms or rejects a previously issued command.
type CommandAck struct {
	Command uint16
	Result  uint8
}

func (CommandAck) msgID() uint8 { return msgIDCommandAck }

// CommandLong issues a parameterized command to the vehicle.
type CommandLong struct {
	TargetSystem    uint8
	TargetComponent uint8
	Command         uint16
	Params          [7]float32
}

func (CommandLong) msgID() uint8 { return msgIDCommandLong }

// SetMode requests a flight-mode change.
type SetMode struct {
	TargetSystem uint8
	CustomMode   uint32
}

func (SetMode) msgID() uint8 { return msgIDSetMode }

// RequestDataStream asks the vehicle to stream telemetry at a rate.
type RequestDataStream struct {
	TargetSystem    uint8
	TargetComponent uint8
	StreamID        uint8
	RateHz          uint16
	Start           bool
}

func (RequestDataStream) msgID() uint8 { return msgIDRequestDataStream }

// SetPositionTargetGlobalInt commands a position target for guided
// navigation.
type SetPositionTargetGlobalInt struct {
	TargetSystem    uint8
	TargetComponent uint8
	LatE7           int32
	LonE7           int32
	AltM            float32 // relative to home
}

func (SetPositionTargetGlobalInt) msgID() uint8 { return msgIDSetPositionTargetGlobalInt }

// decodeMessage decodes a frame's payload into a typed message.
// Unhandled or truncated frames yield (nil, false) and are dropped.
func decodeMessage(f *frame) (Message, bool) {
	p := wrapPayload(f.Payload)
	switch f.MsgID {
	case msgIDHeartbeat:
		if p.short(9) {
			return nil, false
		}
		customMode := p.u32()
		p.skip(2) // type, autopilot
		baseMode := p.u8()
		return Heartbeat{CustomMode: customMode, BaseMode: baseMode}, true

	case msgIDSysStatus:
		if p.short(31) {
			return nil, false
		}
		p.skip(12) // sensor bitmasks
		p.skip(2)  // load
		voltage := p.u16()
		p.skip(2 + 2 + 2 + 8) // current, drop_rate, errors_comm, errors_count1-4
		remaining := p.i8()
		return SysStatus{VoltageBatteryMV: voltage, BatteryRemaining: remaining}, true

	case msgIDGPSRawInt:
		if p.short(30) {
			return nil, false
		}
		p.skip(8)  // time_usec
		p.skip(12) // lat, lon, alt
		p.skip(8)  // eph, epv, vel, cog
		fixType := p.u8()
		sats := p.u8()
		return GPSRawInt{FixType: fixType, SatellitesVisible: sats}, true

	case msgIDAttitude:
		if p.short(28) {
			return nil, false
		}
		p.skip(4) // time_boot_ms
		roll := p.f32()
		pitch := p.f32()
		yaw := p.f32()
		return Attitude{Roll: roll, Pitch: pitch, Yaw: yaw}, true

	case msgIDGlobalPositionInt:
		if p.short(28) {
			return nil, false
		}
		p.skip(4) // time_boot_ms
		lat := p.i32()
		lon := p.i32()
		alt := p.i32()
		relAlt := p.i32()
		vx := p.i16()
		vy := p.i16()
		vz := p.i16()
		hdg := p.u16()
		return GlobalPositionInt{
			LatE7: lat, LonE7: lon, AltMM: alt, RelativeAltMM: relAlt,
			VxCM: vx, VyCM: vy, VzCM: vz, HdgCdeg: hdg,
		}, true

	case msgIDVFRHud:
		if p.short(20) {
			return nil, false
		}
		p.skip(4) // airspeed
		groundspeed := p.f32()
		return VFRHud{Groundspeed: groundspeed}, true

	case msgIDCommandAck:
		if p.short(3) {
			return nil, false
		}
		cmd := p.u16()
		result := p.u8()
		return CommandAck{Command: cmd, Result: result}, true
	}
	return nil, false
}

// encodeMessage builds a frame payload for an outbound message.
func encodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Heartbeat:
		p := newPayload(9)
		p.putU32(m.CustomMode)
		p.putU8(6) // MAV_TYPE_GCS
		p.putU8(8) // MAV_AUTOPILOT_INVALID
		p.putU8(m.BaseMode)
		p.putU8(0) // system_status
		p.putU8(3) // mavlink_version
		return p.bytes(), nil

	case CommandLong:
		p := newPayload(33)
		for _, v := range m.Params {
			p.putF32(v)
		}
		p.putU16(m.Command)
		p.putU8(m.TargetSystem)
		p.putU8(m.TargetComponent)
		p.putU8(0) // confirmation
		return p.bytes(), nil

	case SetMode:
		p := newPayload(6)
		p.putU32(m.CustomMode)
		p.putU8(m.TargetSystem)
		p.putU8(modeFlagCustomModeEnabled)
		return p.bytes(), nil

	case RequestDataStream:
		p := newPayload(6)
		p.putU16(m.RateHz)
		p.putU8(m.TargetSystem)
		p.putU8(m.TargetComponent)
		p.putU8(m.StreamID)
		if m.Start {
			p.putU8(1)
		} else {
			p.putU8(0)
		}
		return p.bytes(), nil

	case SetPositionTargetGlobalInt:
		p := newPayload(53)
		p.putU32(0) // time_boot_ms
		p.putI32(m.LatE7)
		p.putI32(m.LonE7)
		p.putF32(m.AltM)
		for i := 0; i < 8; i++ { // vx..afz, yaw, yaw_rate
			p.putF32(0)
		}
		p.putU16(positionOnlyTypeMask)
		p.putU8(m.TargetSystem)
		p.putU8(m.TargetComponent)
		p.putU8(frameGlobalRelativeAltInt)
		return p.bytes(), nil
	}
	return nil, fmt.Errorf("message %T is not encodable", msg)
}
