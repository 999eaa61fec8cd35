package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const schema = `CREATE TABLE IF NOT EXISTS execution_hooks (
	execution_id TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	db  Querier
	ttl time.Duration
}

func NewPostgresStore(db Querier, ttl time.Duration) *PostgresStore {
	return &PostgresStore{db: db, ttl: ttl}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create execution_hooks table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Register(ctx context.Context, executionID, callbackURL string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO execution_hooks (execution_id, url, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (execution_id) DO UPDATE SET url = EXCLUDED.url, created_at = EXCLUDED.created_at`,
		executionID, callbackURL)
	if err != nil {
		return fmt.Errorf("register hook: %w", err)
	}
	return nil
}

func (s *PostgresStore) Contains(ctx context.Context, executionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM execution_hooks WHERE execution_id = $1 AND created_at > $2)`,
		executionID, s.cutoff()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup hook: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Get(ctx context.Context, executionID string) (string, error) {
	var url string
	err := s.db.QueryRow(ctx,
		`SELECT url FROM execution_hooks WHERE execution_id = $1 AND created_at > $2`,
		executionID, s.cutoff()).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", notFound(executionID)
	}
	if err != nil {
		return "", fmt.Errorf("get hook: %w", err)
	}
	return url, nil
}

func (s *PostgresStore) Remove(ctx context.Context, executionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM execution_hooks WHERE execution_id = $1`, executionID); err != nil {
		return fmt.Errorf("remove hook: %w", err)
	}
	return nil
}

// DeleteExpired removes registrations older than the store's TTL.
func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM execution_hooks WHERE created_at <= $1`, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("delete expired hooks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) cutoff() time.Time {
	if s.ttl <= 0 {
		return time.Unix(0, 0)
	}
	return time.Now().Add(-s.ttl)
}
