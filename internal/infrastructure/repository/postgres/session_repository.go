package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const schemaLockID = int64(2026101401)

// SessionRepository implements ports.SessionStore. Messages are stored one
// row per message with a per-session position so history order is stable.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	session_id TEXT PRIMARY KEY,
	query_count INTEGER NOT NULL DEFAULT 0,
	message_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_session_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES chat_sessions(session_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (session_id, position)
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetOrCreate(ctx context.Context, sessionID string) (*domain.Session, error) {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (session_id, query_count, message_count, created_at, updated_at)
VALUES ($1, 0, 0, $2, $2)
ON CONFLICT (session_id) DO NOTHING
`, sessionID, r.now())
	if err != nil {
		return nil, fmt.Errorf("ensure session insert: %w", err)
	}
	return r.Get(ctx, sessionID)
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT session_id, query_count, created_at, updated_at
FROM chat_sessions
WHERE session_id = $1
`, sessionID)

	var s domain.Session
	if err := row.Scan(&s.ID, &s.QueryCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "get session", err)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT role, content
FROM chat_session_messages
WHERE session_id = $1
ORDER BY position ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session messages: %w", err)
	}
	defer rows.Close()

	s.History = make([]domain.Message, 0)
	for rows.Next() {
		var role string
		var msg domain.Message
		if err := rows.Scan(&role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan session message: %w", err)
		}
		msg.Role = domain.Role(role)
		s.History = append(s.History, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session messages: %w", err)
	}
	return &s, nil
}

// AppendTurn stores the messages and counts one completed query, all in one
// transaction.
func (r *SessionRepository) AppendTurn(ctx context.Context, sessionID string, messages []domain.Message) error {
	now := r.now()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
INSERT INTO chat_sessions (session_id, query_count, message_count, created_at, updated_at)
VALUES ($1, 1, $2, $3, $3)
ON CONFLICT (session_id) DO UPDATE
SET query_count = chat_sessions.query_count + 1,
	message_count = chat_sessions.message_count + EXCLUDED.message_count,
	updated_at = EXCLUDED.updated_at
RETURNING message_count
`, sessionID, len(messages), now)
	var total int
	if err := row.Scan(&total); err != nil {
		return fmt.Errorf("bump session counters: %w", err)
	}

	start := total - len(messages)
	for i, m := range messages {
		_, err := tx.ExecContext(ctx, `
INSERT INTO chat_session_messages (id, session_id, position, role, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, uuid.NewString(), sessionID, start+i, string(m.Role), m.Content, now)
		if err != nil {
			return fmt.Errorf("append session message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append tx: %w", err)
	}
	return nil
}

// Delete is idempotent; removing an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
