package store

import (
	"database/sql"
	"fmt"
	"slices"

	"github.com/BTreeMap/JarvisPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanMessages reads rows of (role, content, created_at) newest first and returns them oldest first.
func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	defer rows.Close()
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var role string
		if err := rows.Scan(&role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message failed: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message rows: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// scanActionRecords reads rows of action_events newest first and returns them oldest first.
func scanActionRecords(rows *sql.Rows) ([]models.ActionRecord, error) {
	defer rows.Close()
	var out []models.ActionRecord
	for rows.Next() {
		var r models.ActionRecord
		var kind, event string
		var detail sql.NullString
		if err := rows.Scan(&r.ActionID, &kind, &event, &r.FireAt, &r.At, &detail); err != nil {
			return nil, fmt.Errorf("scan action record failed: %w", err)
		}
		r.Kind = models.ActionKind(kind)
		r.Event = models.ActionEvent(event)
		r.Detail = detail.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action rows: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// sqliteLimit maps a non-positive limit to SQLite's "no limit".
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// postgresLimit maps a non-positive limit to LIMIT NULL, which Postgres treats as no limit.
func postgresLimit(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}
