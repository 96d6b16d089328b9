package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/indexerhq/controlplane/internal/domain"
)

// PostgresStore is the pgx-backed implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pgx pool against dsn, pings it, and ensures the
// indexers table/index exist.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS indexers (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			type TEXT NOT NULL,
			process_id BIGINT,
			target_url TEXT,
			table_name TEXT,
			status_server_port INTEGER NOT NULL,
			custom_connection_string TEXT,
			starting_block BIGINT,
			indexer_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS indexers_table_name_key
			ON indexers (table_name) WHERE table_name IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS indexers_status_idx ON indexers (status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, i *domain.Indexer) error {
	if err := i.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	i.CreatedAt = now
	i.UpdatedAt = now

	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexers (
			id, status, type, process_id, target_url, table_name,
			status_server_port, custom_connection_string, starting_block,
			indexer_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		i.ID, i.Status, i.Type, i.ProcessID, i.TargetURL, i.TableName,
		i.StatusServerPort, i.CustomConnectionString, i.StartingBlock,
		i.IndexerID, i.CreatedAt, i.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert indexer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*domain.Indexer, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id)
	return scanIndexer(row)
}

func (s *PostgresStore) GetByTableName(ctx context.Context, tableName string) (*domain.Indexer, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE table_name = $1`, tableName)
	return scanIndexer(row)
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*domain.Indexer, error) {
	query := selectColumns
	var args []any
	if filter.Status != nil {
		query += ` WHERE status = $1`
		args = append(args, *filter.Status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	defer rows.Close()

	var out []*domain.Indexer
	for rows.Next() {
		i, err := scanIndexerRows(rows)
		if err != nil {
			return nil, fmt.Errorf("list indexers scan: %w", err)
		}
		out = append(out, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list indexers rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, newStatus domain.Status, fromStatuses []domain.Status) error {
	return s.updateStatusAndPID(ctx, id, newStatus, nil, fromStatuses, false)
}

func (s *PostgresStore) UpdateStatusAndPID(ctx context.Context, id string, newStatus domain.Status, pid *int, fromStatuses []domain.Status) error {
	return s.updateStatusAndPID(ctx, id, newStatus, pid, fromStatuses, true)
}

// updateStatusAndPID issues the single linearization-point write that
// establishes a child's authority over a record. When setPID is false,
// process_id is left untouched; otherwise it's set (possibly to nil, as
// on a successful Stop).
func (s *PostgresStore) updateStatusAndPID(ctx context.Context, id string, newStatus domain.Status, pid *int, fromStatuses []domain.Status, setPID bool) error {
	fromStrs := make([]string, len(fromStatuses))
	for idx, st := range fromStatuses {
		fromStrs[idx] = string(st)
	}

	var tag pgconn.CommandTag
	var err error
	if setPID {
		tag, err = s.pool.Exec(ctx, `
			UPDATE indexers
			SET status = $1, process_id = $2, updated_at = NOW()
			WHERE id = $3 AND status = ANY($4)
		`, newStatus, pid, id, fromStrs)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE indexers
			SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = ANY($3)
		`, newStatus, id, fromStrs)
	}
	if err != nil {
		return fmt.Errorf("update indexer status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish "doesn't exist" from "lost the race": re-read the
		// record so a missing id reports ErrNotFound, not ErrConflict.
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM indexers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete indexer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `
	SELECT id, status, type, process_id, target_url, table_name,
	       status_server_port, custom_connection_string, starting_block,
	       indexer_id, created_at, updated_at
	FROM indexers`

type scanner interface {
	Scan(dest ...any) error
}

func scanIndexer(row pgx.Row) (*domain.Indexer, error) {
	i, err := scanIndexerRows(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get indexer: %w", err)
	}
	return i, nil
}

func scanIndexerRows(s scanner) (*domain.Indexer, error) {
	i := &domain.Indexer{}
	if err := s.Scan(
		&i.ID, &i.Status, &i.Type, &i.ProcessID, &i.TargetURL, &i.TableName,
		&i.StatusServerPort, &i.CustomConnectionString, &i.StartingBlock,
		&i.IndexerID, &i.CreatedAt, &i.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return i, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
