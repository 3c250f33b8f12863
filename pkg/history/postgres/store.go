package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/canning1295/RealTimeTranslate/pkg/history"
)

// Compile-time interface check.
var _ history.Store = (*Store)(nil)

// Store is the PostgreSQL-backed session history store. It holds a single
// [pgxpool.Pool] and is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store, establishes a connection pool to the
// PostgreSQL database at dsn, and runs [Migrate] to ensure the schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveSession implements [history.Store]. The session row and all utterance
// rows are written in a single transaction; a pre-existing session with the
// same ID is replaced wholesale.
func (s *Store) SaveSession(ctx context.Context, rec history.SessionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const upsertSession = `
		INSERT INTO sessions (id, source_language, target_language, voice, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    source_language = EXCLUDED.source_language,
		    target_language = EXCLUDED.target_language,
		    voice           = EXCLUDED.voice,
		    started_at      = EXCLUDED.started_at,
		    ended_at        = EXCLUDED.ended_at`

	if _, err := tx.Exec(ctx, upsertSession,
		rec.ID,
		rec.SourceLanguage,
		rec.TargetLanguage,
		rec.Voice,
		rec.StartedAt,
		rec.EndedAt,
	); err != nil {
		return fmt.Errorf("history store: upsert session: %w", err)
	}

	// Replace-wholesale keeps re-saves idempotent.
	if _, err := tx.Exec(ctx, `DELETE FROM utterances WHERE session_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("history store: clear utterances: %w", err)
	}

	const insertUtterance = `
		INSERT INTO utterances
		    (session_id, seq, source_text, translation, audio_ref, status, err_kind, retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	for _, u := range rec.Utterances {
		if _, err := tx.Exec(ctx, insertUtterance,
			rec.ID,
			int64(u.Seq),
			u.SourceText,
			u.Translation,
			u.AudioRef,
			u.Status,
			u.ErrKind,
			u.Retries,
		); err != nil {
			return fmt.Errorf("history store: insert utterance %d: %w", u.Seq, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("history store: commit: %w", err)
	}
	return nil
}

// GetSession implements [history.Store].
func (s *Store) GetSession(ctx context.Context, id string) (history.SessionRecord, error) {
	const q = `
		SELECT id, source_language, target_language, voice, started_at, ended_at
		FROM   sessions
		WHERE  id = $1`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return history.SessionRecord{}, fmt.Errorf("history store: get session: %w", err)
	}
	rec, err := pgx.CollectOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return history.SessionRecord{}, history.ErrSessionNotFound
	}
	if err != nil {
		return history.SessionRecord{}, fmt.Errorf("history store: get session: %w", err)
	}

	const qu = `
		SELECT seq, source_text, translation, audio_ref, status, err_kind, retries
		FROM   utterances
		WHERE  session_id = $1
		ORDER  BY seq`

	urows, err := s.pool.Query(ctx, qu, id)
	if err != nil {
		return history.SessionRecord{}, fmt.Errorf("history store: get utterances: %w", err)
	}
	rec.Utterances, err = pgx.CollectRows(urows, scanUtterance)
	if err != nil {
		return history.SessionRecord{}, fmt.Errorf("history store: get utterances: %w", err)
	}
	return rec, nil
}

// ListSessions implements [history.Store]. Utterances are not loaded.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]history.SessionRecord, error) {
	q := `
		SELECT id, source_language, target_language, voice, started_at, ended_at
		FROM   sessions
		ORDER  BY started_at DESC`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT $1"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history store: list sessions: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("history store: list sessions: %w", err)
	}
	return recs, nil
}

// scanSession scans one sessions row.
func scanSession(row pgx.CollectableRow) (history.SessionRecord, error) {
	var rec history.SessionRecord
	err := row.Scan(
		&rec.ID,
		&rec.SourceLanguage,
		&rec.TargetLanguage,
		&rec.Voice,
		&rec.StartedAt,
		&rec.EndedAt,
	)
	return rec, err
}

// scanUtterance scans one utterances row.
func scanUtterance(row pgx.CollectableRow) (history.UtteranceRecord, error) {
	var (
		u   history.UtteranceRecord
		seq int64
	)
	err := row.Scan(
		&seq,
		&u.SourceText,
		&u.Translation,
		&u.AudioRef,
		&u.Status,
		&u.ErrKind,
		&u.Retries,
	)
	u.Seq = uint64(seq)
	return u, err
}
