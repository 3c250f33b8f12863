// Package postgres provides a PostgreSQL-backed implementation of the
// session history store.
//
// All operations share a single [pgxpool.Pool]. [Migrate] creates the two
// tables on first use via CREATE TABLE IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveSession(ctx, rec)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT         PRIMARY KEY,
    source_language  TEXT         NOT NULL,
    target_language  TEXT         NOT NULL,
    voice            TEXT         NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ  NOT NULL,
    ended_at         TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at DESC);
`

const ddlUtterances = `
CREATE TABLE IF NOT EXISTS utterances (
    session_id   TEXT    NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    seq          BIGINT  NOT NULL,
    source_text  TEXT    NOT NULL DEFAULT '',
    translation  TEXT    NOT NULL DEFAULT '',
    audio_ref    TEXT    NOT NULL DEFAULT '',
    status       TEXT    NOT NULL,
    err_kind     TEXT    NOT NULL DEFAULT '',
    retries      INT     NOT NULL DEFAULT 0,
    PRIMARY KEY (session_id, seq)
);
`

// Migrate ensures all required tables and indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlSessions,
		ddlUtterances,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
