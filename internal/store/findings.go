package store

import (
	"fmt"

	"github.com/zypherlabs/skywarden/internal/model"
)

// SaveFinding inserts a finding row. Findings are immutable after
// signing; there is no update path.
func (s *Store) SaveFinding(f *model.Finding) error {
	_, err := s.db.Exec(`INSERT INTO findings
		(id, mission_id, timestamp, lat, lon, alt, detection_class,
		 confidence, image_path, image_hash, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.MissionID, f.Timestamp, f.Lat, f.Lon, f.Alt,
		f.DetectionClass, f.Confidence, f.ImagePath, f.ImageHash, f.Signature)
	if err != nil {
		return fmt.Errorf("save finding: %w", err)
	}
	return nil
}

// FindingsByMission returns a mission's findings in timestamp order.
func (s *Store) FindingsByMission(missionID string) ([]*model.Finding, error) {
	rows, err := s.db.Query(`SELECT id, mission_id, timestamp, lat, lon, alt,
		detection_class, confidence, image_path, image_hash, signature
		FROM findings WHERE mission_id = ? ORDER BY timestamp`, missionID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []*model.Finding
	for rows.Next() {
		var f model.Finding
		if err := rows.Scan(&f.ID, &f.MissionID, &f.Timestamp, &f.Lat, &f.Lon,
			&f.Alt, &f.DetectionClass, &f.Confidence, &f.ImagePath,
			&f.ImageHash, &f.Signature); err != nil {
			return nil, err
		}
		findings = append(findings, &f)
	}
	return findings, rows.Err()
}

// FindingCount returns the number of findings for a mission.
func (s *Store) FindingCount(missionID string) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM findings WHERE mission_id = ?", missionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return n, nil
}
