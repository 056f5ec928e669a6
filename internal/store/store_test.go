package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zypherlabs/skywarden/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "missions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testMission(id string) *model.Mission {
	return &model.Mission{
		ID:        id,
		Type:      "patrol",
		Status:    model.StatusDraft,
		CreatedAt: model.Now(),
		CreatedBy: "drone-1",
		Waypoints: []model.Waypoint{
			{Lat: 51.5007, Lon: -0.1246, Alt: 50},
			{Lat: 51.5010, Lon: -0.1250, Alt: 60},
		},
		Parameters: model.Parameters{
			AltitudeM:        50,
			SpeedMS:          5,
			Loop:             true,
			DetectionClasses: []string{"person", "car"},
		},
	}
}

func TestSaveMission_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	m := testMission("m-1")
	require.NoError(t, st.SaveMission(m))

	got, err := st.GetMission("m-1")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestGetMission_NotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetMission("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMissionStatus(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveMission(testMission("m-1")))

	require.NoError(t, st.UpdateMissionStatus("m-1", model.StatusActive))
	got, err := st.GetMission("m-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	assert.ErrorIs(t, st.UpdateMissionStatus("ghost", model.StatusActive), ErrNotFound)
}

func TestListMissions_Filter(t *testing.T) {
	st := newTestStore(t)
	a := testMission("m-a")
	b := testMission("m-b")
	require.NoError(t, st.SaveMission(a))
	require.NoError(t, st.SaveMission(b))
	require.NoError(t, st.UpdateMissionStatus("m-b", model.StatusCompleted))

	all, err := st.ListMissions("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := st.ListMissions(model.StatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "m-b", completed[0].ID)
}

func testFinding(id, missionID, ts string) *model.Finding {
	return &model.Finding{
		ID:             id,
		MissionID:      missionID,
		Timestamp:      ts,
		Lat:            51.5007,
		Lon:            -0.1246,
		Alt:            50,
		DetectionClass: "person",
		Confidence:     0.92,
		ImagePath:      "/var/skywarden/detections/person.jpg",
		ImageHash:      "deadbeef",
		Signature:      "c2ln",
	}
}

func TestSaveFinding_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveMission(testMission("m-1")))

	f1 := testFinding("f-1", "m-1", "2026-08-30T10:00:01Z")
	f2 := testFinding("f-2", "m-1", "2026-08-30T10:00:00Z")
	require.NoError(t, st.SaveFinding(f1))
	require.NoError(t, st.SaveFinding(f2))

	got, err := st.FindingsByMission("m-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "f-2", got[0].ID, "findings ordered by timestamp")
	assert.Equal(t, f1, got[1])

	n, err := st.FindingCount("m-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveFinding_NoDuplicateIDs(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveMission(testMission("m-1")))

	f := testFinding("f-1", "m-1", "2026-08-30T10:00:00Z")
	require.NoError(t, st.SaveFinding(f))
	assert.Error(t, st.SaveFinding(f), "finding rows are insert-only")
}

func testAuditEntry(id, prevHash string) *model.AuditEntry {
	return &model.AuditEntry{
		ID:        id,
		Timestamp: model.Now(),
		Actor:     "drone-1",
		Action:    "mission_start",
		Details:   map[string]any{"mission_id": "m-1"},
		PrevHash:  prevHash,
		Signature: "c2ln",
	}
}

func TestAppendAudit_OrderAndHead(t *testing.T) {
	st := newTestStore(t)

	head, err := st.LastAuditEntry()
	require.NoError(t, err)
	assert.Nil(t, head, "empty log has no head")

	e1 := testAuditEntry("00000001-aaaa-7aaa-8aaa-aaaaaaaaaaaa", "")
	e2 := testAuditEntry("00000002-aaaa-7aaa-8aaa-aaaaaaaaaaaa", "h1")
	require.NoError(t, st.AppendAudit(e1))
	require.NoError(t, st.AppendAudit(e2))

	head, err = st.LastAuditEntry()
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, e2.ID, head.ID)

	entries, err := st.AuditEntries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e1.ID, entries[0].ID)
	assert.Equal(t, map[string]any{"mission_id": "m-1"}, entries[0].Details)

	recent, err := st.RecentAudit(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, e2.ID, recent[0].ID)
}

func TestOpen_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "missions.db")
	st, err := Open(path)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveMission(testMission("m-1")))
}
