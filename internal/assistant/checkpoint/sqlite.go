package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voice-assistant/server/internal/assistant/model"
	errx "github.com/voice-assistant/server/internal/core/error"
	logx "github.com/voice-assistant/server/pkg/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	thread_id   TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	history_len INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`

// SQLiteStore persists one JSON row per thread in a local database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. Use ":memory:" in tests.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errx.WrapStorage(fmt.Errorf("open sqlite %q: %w", path, err))
	}
	// one connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errx.WrapStorage(fmt.Errorf("create sessions table: %w", err))
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*model.SessionState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM sessions WHERE thread_id = ?`, threadID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewSession(threadID), nil
	}
	if err != nil {
		logx.Error().Err(err).Str("thread_id", threadID).Msg("failed to load session from sqlite")
		return nil, errx.WrapStorage(err)
	}

	session := model.NewSession(threadID)
	if err := json.Unmarshal([]byte(raw), session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	session.Mode = model.ParseMode(string(session.Mode))
	return session, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session *model.SessionState) error {
	if session == nil || session.ThreadID == "" {
		return errx.Invalid(errx.ErrInvalidSession, "session has no thread id")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	// The WHERE clause refuses to overwrite a longer stored history.
	res, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (thread_id, state, history_len, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(thread_id) DO UPDATE SET
	state = excluded.state,
	history_len = excluded.history_len,
	updated_at = excluded.updated_at
WHERE excluded.history_len >= sessions.history_len`,
		session.ThreadID, string(raw), len(session.History), time.Now().Unix())
	if err != nil {
		logx.Error().Err(err).Str("thread_id", session.ThreadID).Msg("failed to save session to sqlite")
		return errx.WrapStorage(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errx.Invalid(errx.ErrInvalidSession, "history shrank")
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE thread_id = ?`, threadID); err != nil {
		return errx.WrapStorage(err)
	}
	return nil
}

var _ model.CheckpointStore = (*SQLiteStore)(nil)
