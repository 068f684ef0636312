package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create inserts a session record. The caller supplies the id (sessions are
// keyed by the terminal manager's id so metadata and scrollback stay aligned).
func (r *SessionRepo) Create(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = nowUTC()
	}
	if session.Status == "" {
		session.Status = "running"
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO sessions (id, name, command, work_dir, status, created_at, ended_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, session.ID, session.Name, session.Command, session.WorkDir, session.Status, formatTimestamp(session.CreatedAt), nullIfZero(session.EndedAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// Get returns the session with the given id, or nil when it does not exist.
func (r *SessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, command, work_dir, status, created_at, ended_at
FROM sessions
WHERE id = ?
`, id)

	session, err := scanSession(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session %q: %w", id, err)
	}
	return session, nil
}

func (r *SessionRepo) List(ctx context.Context, filter SessionFilter) ([]*Session, error) {
	query := `SELECT id, name, command, work_dir, status, created_at, ended_at FROM sessions`
	args := []any{}
	where := []string{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while iterating sessions: %w", err)
	}

	return sessions, nil
}

// ListActive returns sessions whose child process has not ended.
func (r *SessionRepo) ListActive(ctx context.Context) ([]*Session, error) {
	return r.List(ctx, SessionFilter{Status: "running"})
}

func (r *SessionRepo) Update(ctx context.Context, session *Session) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sessions
SET name = ?, command = ?, work_dir = ?, status = ?, ended_at = ?
WHERE id = ?
`, session.Name, session.Command, session.WorkDir, session.Status, nullIfZero(session.EndedAt), session.ID)
	if err != nil {
		return fmt.Errorf("failed to update session %q: %w", session.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for session %q: %w", session.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %q not found", session.ID)
	}
	return nil
}

// MarkEnded records that the session is over.
func (r *SessionRepo) MarkEnded(ctx context.Context, id string, status string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sessions SET status = ?, ended_at = ? WHERE id = ?
`, status, formatTimestamp(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to mark session %q ended: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read updated rows for session %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %q not found", id)
	}
	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %q: %w", id, err)
	}
	return nil
}

func scanSession(scan func(dest ...any) error) (*Session, error) {
	var s Session
	var createdAtRaw string
	var endedAtRaw sql.NullString

	if err := scan(&s.ID, &s.Name, &s.Command, &s.WorkDir, &s.Status, &createdAtRaw, &endedAtRaw); err != nil {
		return nil, err
	}

	var err error
	s.CreatedAt, err = parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}
	if endedAtRaw.Valid {
		s.EndedAt, err = parseTimestamp(endedAtRaw.String)
		if err != nil {
			return nil, fmt.Errorf("invalid ended_at: %w", err)
		}
	}
	return &s, nil
}
