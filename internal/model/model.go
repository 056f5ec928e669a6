// Package model defines the persisted entity types.
//
// Findings and audit entries carry Ed25519 signatures computed over a
// canonical byte encoding at creation time; the encoding functions here
// are the single source of truth for what those signatures cover.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MissionStatus is the lifecycle state of a mission.
type MissionStatus string

// Mission lifecycle states.
const (
	StatusDraft     MissionStatus = "draft"
	StatusActive    MissionStatus = "active"
	StatusPaused    MissionStatus = "paused"
	StatusCompleted MissionStatus = "completed"
	StatusAborted   MissionStatus = "aborted"
)

// Valid reports whether s is a known mission status.
func (s MissionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusAborted:
		return true
	}
	return false
}

// Waypoint is a single patrol coordinate. Alt of zero falls back to the
// mission default altitude.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt,omitempty"`
}

// Parameters is the tunable parameter set of a mission.
type Parameters struct {
	AltitudeM        float64  `json:"altitude_m"`
	SpeedMS          float64  `json:"speed_ms"`
	Loop             bool     `json:"loop"`
	DetectionClasses []string `json:"detection_classes"`
}

// Mission is a patrol mission definition. Waypoints are immutable after
// creation; only Status changes over the mission's life.
type Mission struct {
	ID         string        `json:"id"`
	Type       string        `json:"type"`
	Status     MissionStatus `json:"status"`
	CreatedAt  string        `json:"created_at"`
	CreatedBy  string        `json:"created_by"`
	Waypoints  []Waypoint    `json:"waypoints"`
	Parameters Parameters    `json:"parameters"`
}

// Finding is a detection event, signed at creation for tamper evidence.
type Finding struct {
	ID             string  `json:"id"`
	MissionID      string  `json:"mission_id"`
	Timestamp      string  `json:"timestamp"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Alt            float64 `json:"alt"`
	DetectionClass string  `json:"detection_class"`
	Confidence     float64 `json:"confidence"`
	ImagePath      string  `json:"image_path"`
	ImageHash      string  `json:"image_hash"`
	Signature      string  `json:"signature"`
}

// SignablePayload is the canonical byte string that gets signed.
// ID and Signature are excluded: the signature is the output, and the
// id is assigned before signing.
func (f *Finding) SignablePayload() []byte {
	parts := []string{
		f.MissionID,
		f.Timestamp,
		fmt.Sprintf("%.8f", f.Lat),
		fmt.Sprintf("%.8f", f.Lon),
		fmt.Sprintf("%.2f", f.Alt),
		f.DetectionClass,
		fmt.Sprintf("%.4f", f.Confidence),
		f.ImageHash,
	}
	return []byte(strings.Join(parts, "|"))
}

// AuditEntry is a tamper-evident audit log record. Each entry embeds
// the content hash of its predecessor, forming a hash chain: editing,
// reordering, or deleting any entry breaks the chain from that point.
type AuditEntry struct {
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Details   map[string]any    `json:"details"`
	PrevHash  string            `json:"prev_hash"`
	Signature string            `json:"signature"`
}

// DetailsJSON returns the canonical key-sorted serialization of the
// detail map. Hashing and signing must always go through this so the
// digest is reproducible.
func (e *AuditEntry) DetailsJSON() string {
	if len(e.Details) == 0 {
		return "{}"
	}
	// encoding/json marshals map keys in sorted order.
	b, err := json.Marshal(e.Details)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// SignablePayload is the canonical byte string covered by the entry's
// signature.
func (e *AuditEntry) SignablePayload() []byte {
	parts := []string{
		e.Timestamp,
		e.Actor,
		e.Action,
		e.DetailsJSON(),
		e.PrevHash,
	}
	return []byte(strings.Join(parts, "|"))
}

// ContentHash is the hash of this entry's content, used as PrevHash of
// the next entry. It covers the signed payload plus the signature
// bytes, so it depends on both content and authenticity.
func (e *AuditEntry) ContentHash() string {
	h := sha256.Sum256(append(e.SignablePayload(), []byte(e.Signature)...))
	return hex.EncodeToString(h[:])
}

// Now returns the canonical timestamp string for persisted records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
