package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/zypherlabs/skywarden/internal/model"
)

// SaveMission inserts or replaces a mission row. Called on creation and
// on every status change.
func (s *Store) SaveMission(m *model.Mission) error {
	waypoints, err := json.Marshal(m.Waypoints)
	if err != nil {
		return fmt.Errorf("marshal waypoints: %w", err)
	}
	parameters, err := json.Marshal(m.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO missions
		(id, type, status, created_at, created_by, waypoints, parameters)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Type, string(m.Status), m.CreatedAt, m.CreatedBy,
		string(waypoints), string(parameters))
	if err != nil {
		return fmt.Errorf("save mission: %w", err)
	}
	return nil
}

// GetMission returns the mission with the given id, or ErrNotFound.
func (s *Store) GetMission(id string) (*model.Mission, error) {
	row := s.db.QueryRow(`SELECT id, type, status, created_at, created_by,
		waypoints, parameters FROM missions WHERE id = ?`, id)
	m, err := scanMission(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

// UpdateMissionStatus updates only the status column.
func (s *Store) UpdateMissionStatus(id string, status model.MissionStatus) error {
	res, err := s.db.Exec("UPDATE missions SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update mission status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMissions returns missions most recent first, optionally filtered
// by status ("" for all).
func (s *Store) ListMissions(status model.MissionStatus) ([]*model.Mission, error) {
	query := `SELECT id, type, status, created_at, created_by, waypoints, parameters
		FROM missions`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, m)
	}
	return missions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMission(r rowScanner) (*model.Mission, error) {
	var m model.Mission
	var status, waypoints, parameters string
	if err := r.Scan(&m.ID, &m.Type, &status, &m.CreatedAt, &m.CreatedBy, &waypoints, &parameters); err != nil {
		return nil, err
	}
	m.Status = model.MissionStatus(status)
	if err := json.Unmarshal([]byte(waypoints), &m.Waypoints); err != nil {
		return nil, fmt.Errorf("unmarshal waypoints: %w", err)
	}
	if err := json.Unmarshal([]byte(parameters), &m.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &m, nil
}
