package flight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalFrame_ParserRoundTrip(t *testing.T) {
	payload, err := encodeMessage(Heartbeat{CustomMode: 4, BaseMode: modeFlagSafetyArmed})
	require.NoError(t, err)
	f := frame{SysID: 1, CompID: 1, MsgID: msgIDHeartbeat, Payload: payload}
	raw, err := marshalFrame(&f, 7)
	require.NoError(t, err)
	assert.Equal(t, byte(frameMagic), raw[0])

	var p parser
	p.feed(raw)
	got, ok := p.next()
	require.True(t, ok)
	assert.Equal(t, uint8(1), got.SysID)
	assert.Equal(t, uint8(msgIDHeartbeat), got.MsgID)
	assert.Equal(t, payload, got.Payload)

	_, ok = p.next()
	assert.False(t, ok, "no second frame buffered")
}

func TestParser_ResyncsAfterGarbage(t *testing.T) {
	payload, err := encodeMessage(Heartbeat{CustomMode: 6})
	require.NoError(t, err)
	raw, err := marshalFrame(&frame{SysID: 1, CompID: 1, MsgID: msgIDHeartbeat, Payload: payload}, 0)
	require.NoError(t, err)

	var p parser
	p.feed([]byte{0x00, 0xFE, 0x13, 0x37}) // noise, including a stray magic byte
	p.feed(raw)
	got, ok := p.next()
	require.True(t, ok)
	assert.Equal(t, uint8(msgIDHeartbeat), got.MsgID)
}

func TestParser_RejectsCorruptChecksum(t *testing.T) {
	payload, err := encodeMessage(Heartbeat{CustomMode: 6})
	require.NoError(t, err)
	raw, err := marshalFrame(&frame{SysID: 1, CompID: 1, MsgID: msgIDHeartbeat, Payload: payload}, 0)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF

	var p parser
	p.feed(raw)
	_, ok := p.next()
	assert.False(t, ok)
}

func TestParser_PartialFrameAcrossFeeds(t *testing.T) {
	payload, err := encodeMessage(Heartbeat{CustomMode: 6})
	require.NoError(t, err)
	raw, err := marshalFrame(&frame{SysID: 1, CompID: 1, MsgID: msgIDHeartbeat, Payload: payload}, 0)
	require.NoError(t, err)

	var p parser
	p.feed(raw[:5])
	_, ok := p.next()
	require.False(t, ok)

	p.feed(raw[5:])
	got, ok := p.next()
	require.True(t, ok)
	assert.Equal(t, uint8(msgIDHeartbeat), got.MsgID)
}

func TestDecodeMessage_Heartbeat(t *testing.T) {
	p := newPayload(9)
	p.putU32(4) // GUIDED
	p.putU8(2)  // MAV_TYPE_QUADROTOR
	p.putU8(3)  // MAV_AUTOPILOT_ARDUPILOTMEGA
	p.putU8(modeFlagSafetyArmed | modeFlagCustomModeEnabled)
	p.putU8(4)
	p.putU8(3)

	msg, ok := decodeMessage(&frame{MsgID: msgIDHeartbeat, Payload: p.bytes()})
	require.True(t, ok)
	hb, ok := msg.(Heartbeat)
	require.True(t, ok)
	assert.Equal(t, uint32(4), hb.CustomMode)
	assert.True(t, hb.Armed())
}

func TestDecodeMessage_GlobalPositionInt(t *testing.T) {
	p := newPayload(28)
	p.putU32(1000)       // time_boot_ms
	p.putI32(515007000)  // lat * 1e7
	p.putI32(-1246000)   // lon * 1e7
	p.putI32(75000)      // alt mm MSL
	p.putI32(50000)      // relative alt mm
	p.putI16(120)        // vx cm/s
	p.putI16(-30)        // vy
	p.putI16(0)          // vz
	p.putU16(18050)      // heading cdeg

	msg, ok := decodeMessage(&frame{MsgID: msgIDGlobalPositionInt, Payload: p.bytes()})
	require.True(t, ok)
	gp, ok := msg.(GlobalPositionInt)
	require.True(t, ok)
	assert.Equal(t, int32(515007000), gp.LatE7)
	assert.Equal(t, int32(50000), gp.RelativeAltMM)
	assert.Equal(t, int16(-30), gp.VyCM)
	assert.Equal(t, uint16(18050), gp.HdgCdeg)
}

func TestDecodeMessage_SysStatus(t *testing.T) {
	p := newPayload(31)
	p.putU32(0)
	p.putU32(0)
	p.putU32(0)     // sensor bitmasks
	p.putU16(500)   // load
	p.putU16(12600) // voltage mV
	p.putI16(1500)  // current
	p.putU16(0)     // drop rate
	p.putU16(0)     // errors_comm
	p.putU16(0)
	p.putU16(0)
	p.putU16(0)
	p.putU16(0) // errors_count1-4
	p.putU8(87) // battery remaining, signed on the wire

	msg, ok := decodeMessage(&frame{MsgID: msgIDSysStatus, Payload: p.bytes()})
	require.True(t, ok)
	ss, ok := msg.(SysStatus)
	require.True(t, ok)
	assert.Equal(t, uint16(12600), ss.VoltageBatteryMV)
	assert.Equal(t, int8(87), ss.BatteryRemaining)
}

func TestDecodeMessage_TruncatedPayload(t *testing.T) {
	_, ok := decodeMessage(&frame{MsgID: msgIDSysStatus, Payload: []byte{1, 2, 3}})
	assert.False(t, ok)
}

func TestDecodeMessage_CommandAck(t *testing.T) {
	p := newPayload(3)
	p.putU16(CmdArmDisarm)
	p.putU8(ResultAccepted)

	msg, ok := decodeMessage(&frame{MsgID: msgIDCommandAck, Payload: p.bytes()})
	require.True(t, ok)
	ack := msg.(CommandAck)
	assert.Equal(t, CmdArmDisarm, ack.Command)
	assert.Equal(t, ResultAccepted, ack.Result)
}

func TestEncodeMessage_PayloadLengths(t *testing.T) {
	cases := []struct {
		msg  Message
		want int
	}{
		{Heartbeat{}, 9},
		{CommandLong{Command: CmdNavTakeoff}, 33},
		{SetMode{CustomMode: 4}, 6},
		{RequestDataStream{RateHz: 4, Start: true}, 6},
		{SetPositionTargetGlobalInt{LatE7: 1, LonE7: 2, AltM: 50}, 53},
	}
	for _, tc := range cases {
		payload, err := encodeMessage(tc.msg)
		require.NoError(t, err)
		assert.Len(t, payload, tc.want, "%T", tc.msg)
	}
}

func TestEncodeMessage_NotEncodable(t *testing.T) {
	_, err := encodeMessage(SysStatus{})
	assert.Error(t, err)
}
