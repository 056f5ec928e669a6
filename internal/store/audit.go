package store

import (
	"encoding/json"
	"fmt"

	"github.com/zypherlabs/skywarden/internal/model"
)

// AppendAudit inserts an audit entry. The audit table is append-only:
// no code path updates or deletes rows. Callers must serialize appends
// through a single writer (see the audit package).
func (s *Store) AppendAudit(e *model.AuditEntry) error {
	_, err := s.db.Exec(`INSERT INTO audit_log
		(id, timestamp, actor, action, details, prev_hash, signature)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, e.Actor, e.Action, e.DetailsJSON(), e.PrevHash, e.Signature)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// LastAuditEntry returns the most recent audit entry by creation order,
// or nil if the log is empty.
func (s *Store) LastAuditEntry() (*model.AuditEntry, error) {
	rows, err := s.db.Query(auditSelect + " ORDER BY id DESC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("query last audit entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAuditEntry(rows)
}

// AuditEntries returns all audit entries in creation order. Ids are
// time-sortable, so id order is creation order.
func (s *Store) AuditEntries() ([]*model.AuditEntry, error) {
	rows, err := s.db.Query(auditSelect + " ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecentAudit returns up to limit entries, most recent first.
func (s *Store) RecentAudit(limit int) ([]*model.AuditEntry, error) {
	rows, err := s.db.Query(auditSelect+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query recent audit: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const auditSelect = `SELECT id, timestamp, actor, action, details, prev_hash, signature FROM audit_log`

func scanAuditEntry(r rowScanner) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var details string
	if err := r.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &details, &e.PrevHash, &e.Signature); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
		return nil, fmt.Errorf("unmarshal audit details: %w", err)
	}
	return &e, nil
}
