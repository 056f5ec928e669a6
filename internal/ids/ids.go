// Package ids generates time-ordered unique identifiers.
//
// Identifiers are UUIDv7 strings: a 48-bit Unix-millisecond timestamp in
// the high bits makes them sortable by creation time, which keeps audit
// trails and mission listings in chronological order. A per-generator
// counter disambiguates ids minted within the same millisecond so sort
// order is strict even under rapid succession.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator mints UUIDv7 identifiers. Safe for concurrent use. Inject
// one instance per process rather than sharing hidden global state.
type Generator struct {
	mu      sync.Mutex
	lastMS  int64
	counter uint16
	now     func() time.Time
}

// NewGenerator returns a Generator using the wall clock.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

// New returns the next time-ordered identifier.
func (g *Generator) New() string {
	g.mu.Lock()
	ms := g.now().UnixMilli()
	if ms == g.lastMS {
		g.counter++
	} else {
		g.counter = 0
		g.lastMS = ms
	}
	counter := g.counter
	g.mu.Unlock()

	var u uuid.UUID

	// 48-bit millisecond timestamp
	u[0] = byte(ms >> 40)
	u[1] = byte(ms >> 32)
	u[2] = byte(ms >> 24)
	u[3] = byte(ms >> 16)
	u[4] = byte(ms >> 8)
	u[5] = byte(ms)

	// 12-bit counter in rand_a, version 7
	u[6] = 0x70 | byte(counter>>8&0x0F)
	u[7] = byte(counter)

	var tail [8]byte
	if _, err := rand.Read(tail[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// the timestamp so the id remains unique-enough rather than zero.
		binary.BigEndian.PutUint64(tail[:], uint64(ms))
	}
	copy(u[8:], tail[:])

	// variant 10
	u[8] = 0x80 | (u[8] & 0x3F)

	return u.String()
}
