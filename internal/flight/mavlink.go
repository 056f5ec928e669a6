// MAVLink v1 wire codec for the message subset the controller speaks.
//
// Frame layout: 0xFE | len | seq | sysid | compid | msgid | payload |
// crc_lo | crc_hi. The checksum is X.25 over len..payload with the
// per-message CRC_EXTRA byte appended, which catches both corruption
// and dialect mismatches.

package flight

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	frameMagic    = 0xFE
	frameOverhead = 8 // magic, len, seq, sysid, compid, msgid, crc x2
	maxPayloadLen = 255
)

// Message ids used by the controller.
const (
	msgIDHeartbeat                  = 0
	msgIDSysStatus                  = 1
	msgIDSetMode                    = 11
	msgIDGPSRawInt                  = 24
	msgIDAttitude                   = 30
	msgIDGlobalPositionInt          = 33
	msgIDRequestDataStream          = 66
	msgIDVFRHud                     = 74
	msgIDCommandLong                = 76
	msgIDCommandAck                 = 77
	msgIDSetPositionTargetGlobalInt = 86
)

// crcExtras holds the per-message CRC seed bytes from the common
// dialect. A frame whose msgid is not listed here is skipped.
var crcExtras = map[uint8]uint8{
	msgIDHeartbeat:                  50,
	msgIDSysStatus:                  124,
	msgIDSetMode:                    89,
	msgIDGPSRawInt:                  24,
	msgIDAttitude:                   39,
	msgIDGlobalPositionInt:          104,
	msgIDRequestDataStream:          148,
	msgIDVFRHud:                     20,
	msgIDCommandLong:                152,
	msgIDCommandAck:                 143,
	msgIDSetPositionTargetGlobalInt: 5,
}

// frame is a raw decoded protocol frame.
type frame struct {
	SysID   uint8
	CompID  uint8
	MsgID   uint8
	Payload []byte
}

// crcX25 computes the X.25 / MCRF4XX checksum used by the protocol.
func crcX25(data []byte, extra uint8) uint16 {
	crc := uint16(0xFFFF)
	acc := func(b uint8) {
		tmp := b ^ uint8(crc&0xFF)
		tmp ^= tmp << 4
		crc = (crc >> 8) ^ (uint16(tmp) << 8) ^ (uint16(tmp) << 3) ^ (uint16(tmp) >> 4)
	}
	for _, b := range data {
		acc(b)
	}
	acc(extra)
	return crc
}

// marshalFrame encodes one frame with the given sequence number.
func marshalFrame(f *frame, seq uint8) ([]byte, error) {
	if len(f.Payload) > maxPayloadLen {
		return nil, fmt.Errorf("payload too long: %d", len(f.Payload))
	}
	extra, ok := crcExtras[f.MsgID]
	if !ok {
		return nil, fmt.Errorf("unknown message id: %d", f.MsgID)
	}

	buf := make([]byte, 0, frameOverhead+len(f.Payload))
	buf = append(buf, frameMagic, uint8(len(f.Payload)), seq, f.SysID, f.CompID, f.MsgID)
	buf = append(buf, f.Payload...)

	crc := crcX25(buf[1:], extra)
	buf = append(buf, uint8(crc&0xFF), uint8(crc>>8))
	return buf, nil
}

// parser accumulates raw bytes and yields complete, checksum-valid
// frames. Bytes that do not form a known-good frame are discarded a
// byte at a time, resynchronizing on the next magic byte.
type parser struct {
	buf []byte
}

func (p *parser) feed(data []byte) {
	p.buf = append(p.buf, data...)
}

func (p *parser) next() (*frame, bool) {
	for {
		// Resync on the frame magic.
		start := 0
		for start < len(p.buf) && p.buf[start] != frameMagic {
			start++
		}
		p.buf = p.buf[start:]
		if len(p.buf) < frameOverhead {
			return nil, false
		}

		payloadLen := int(p.buf[1])
		total := frameOverhead + payloadLen
		if len(p.buf) < total {
			return nil, false
		}

		msgID := p.buf[5]
		extra, known := crcExtras[msgID]
		if known {
			want := uint16(p.buf[total-2]) | uint16(p.buf[total-1])<<8
			if crcX25(p.buf[1:total-2], extra) == want {
				f := &frame{
					SysID:   p.buf[3],
					CompID:  p.buf[4],
					MsgID:   msgID,
					Payload: append([]byte(nil), p.buf[6:6+payloadLen]...),
				}
				p.buf = p.buf[total:]
				return f, true
			}
		}

		// Unknown msgid or bad checksum: skip the magic byte and rescan.
		p.buf = p.buf[1:]
	}
}

// payload is a little-endian payload reader/writer.
type payload struct {
	b   []byte
	off int
}

func newPayload(size int) *payload  { return &payload{b: make([]byte, 0, size)} }
func wrapPayload(b []byte) *payload { return &payload{b: b} }
func (p *payload) bytes() []byte    { return p.b }
func (p *payload) short(n int) bool { return p.off+n > len(p.b) }

func (p *payload) putU8(v uint8)    { p.b = append(p.b, v) }
func (p *payload) putU16(v uint16)  { p.b = binary.LittleEndian.AppendUint16(p.b, v) }
func (p *payload) putU32(v uint32)  { p.b = binary.LittleEndian.AppendUint32(p.b, v) }
func (p *payload) putI16(v int16)   { p.putU16(uint16(v)) }
func (p *payload) putI32(v int32)   { p.putU32(uint32(v)) }
func (p *payload) putF32(v float32) { p.putU32(math.Float32bits(v)) }

func (p *payload) u8() uint8 {
	v := p.b[p.off]
	p.off++
	return v
}

func (p *payload) u16() uint16 {
	v := binary.LittleEndian.Uint16(p.b[p.off:])
	p.off += 2
	return v
}

func (p *payload) u32() uint32 {
	v := binary.LittleEndian.Uint32(p.b[p.off:])
	p.off += 4
	return v
}

func (p *payload) u64() uint64 {
	v := binary.LittleEndian.Uint64(p.b[p.off:])
	p.off += 8
	return v
}

func (p *payload) i8() int8   { return int8(p.u8()) }
func (p *payload) i16() int16 { return int16(p.u16()) }
func (p *payload) i32() int32 { return int32(p.u32()) }
func (p *payload) f32() float32 {
	return math.Float32frombits(p.u32())
}

func (p *payload) skip(n int) { p.off += n }
