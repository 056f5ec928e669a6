package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissionStatus_Valid(t *testing.T) {
	for _, s := range []MissionStatus{StatusDraft, StatusActive, StatusPaused, StatusCompleted, StatusAborted} {
		assert.True(t, s.Valid(), "status %q", s)
	}
	assert.False(t, MissionStatus("landed").Valid())
	assert.False(t, MissionStatus("").Valid())
}

func TestFinding_SignablePayload(t *testing.T) {
	f := Finding{
		ID:             "f-1",
		MissionID:      "m-1",
		Timestamp:      "2026-08-30T10:00:00Z",
		Lat:            51.5007,
		Lon:            -0.1246,
		Alt:            50,
		DetectionClass: "person",
		Confidence:     0.91,
		ImageHash:      "abc123",
		Signature:      "sig",
	}
	payload := string(f.SignablePayload())

	parts := strings.Split(payload, "|")
	require.Len(t, parts, 8)
	assert.Equal(t, "m-1", parts[0])
	assert.Equal(t, "51.50070000", parts[2])
	assert.Equal(t, "-0.12460000", parts[3])
	assert.Equal(t, "0.9100", parts[6])

	// Neither the id nor the signature is part of the signed content.
	assert.NotContains(t, payload, "f-1")
	assert.NotContains(t, payload, "sig")
}

func TestFinding_SignablePayloadChangesWithContent(t *testing.T) {
	f := Finding{MissionID: "m-1", Timestamp: "t", DetectionClass: "person", Confidence: 0.9}
	g := f
	g.Confidence = 0.91
	assert.NotEqual(t, f.SignablePayload(), g.SignablePayload())
}

func TestAuditEntry_DetailsJSONSorted(t *testing.T) {
	e := AuditEntry{Details: map[string]any{"zulu": 1, "alpha": "x", "mike": true}}
	assert.Equal(t, `{"alpha":"x","mike":true,"zulu":1}`, e.DetailsJSON())
}

func TestAuditEntry_DetailsJSONEmpty(t *testing.T) {
	e := AuditEntry{}
	assert.Equal(t, "{}", e.DetailsJSON())
	e.Details = map[string]any{}
	assert.Equal(t, "{}", e.DetailsJSON())
}

func TestAuditEntry_ContentHashCoversSignature(t *testing.T) {
	e := AuditEntry{
		Timestamp: "2026-08-30T10:00:00Z",
		Actor:     "drone-1",
		Action:    "mission_start",
		Details:   map[string]any{"mission_id": "m-1"},
		Signature: "sig-a",
	}
	h1 := e.ContentHash()
	e.Signature = "sig-b"
	h2 := e.ContentHash()
	assert.NotEqual(t, h1, h2)
}

func TestAuditEntry_SignablePayloadExcludesID(t *testing.T) {
	e := AuditEntry{
		ID:        "entry-id",
		Timestamp: "t",
		Actor:     "a",
		Action:    "act",
		PrevHash:  "ph",
	}
	assert.NotContains(t, string(e.SignablePayload()), "entry-id")
}
