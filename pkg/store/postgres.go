package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresLogStore persists spam log rows in postgres via the pgx stdlib
// driver.
type PostgresLogStore struct {
	db *sql.DB
}

func NewPostgresLogStore(dsn string) (*PostgresLogStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresLogStore{db: db}, nil
}

// Init creates the log table if needed. Call once at startup.
func (s *PostgresLogStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spam_log (
			id UUID PRIMARY KEY,
			form_id TEXT NOT NULL,
			submitter_key TEXT NOT NULL,
			payload_hash TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			method TEXT NOT NULL,
			details JSONB,
			action TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spam_log_lookup
			ON spam_log(form_id, submitter_key, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_spam_log_created ON spam_log(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresLogStore) Insert(ctx context.Context, e LogEntry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	details := e.Details
	if details == "" {
		details = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spam_log (id, form_id, submitter_key, payload_hash, score, method, details, action, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.FormID, e.SubmitterKey, e.PayloadHash, e.Score, e.Method, details, e.Action, e.CreatedAt.UTC(),
	)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *PostgresLogStore) FindRecentHashes(ctx context.Context, formID, submitterKey string, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload_hash FROM spam_log
		 WHERE form_id = $1 AND submitter_key = $2 AND created_at >= $3`,
		formID, submitterKey, since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (s *PostgresLogStore) CleanOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM spam_log WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresLogStore) Close() error { return s.db.Close() }
