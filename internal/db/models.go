package db

import (
	"database/sql"
	"time"
)

// Session is the persisted record of one terminal session's lifecycle.
// It carries metadata only; the session's scrollback is in-memory state
// owned by the scrollback registry.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Command   string    `json:"command"`
	WorkDir   string    `json:"work_dir,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// SessionFilter narrows SessionRepo.List.
type SessionFilter struct {
	Status string
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		ts = nowUTC()
	}
	return ts.UTC().Format(time.RFC3339)
}

func parseTimestamp(v string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

func nullIfZero(ts time.Time) sql.NullString {
	if ts.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTimestamp(ts), Valid: true}
}
