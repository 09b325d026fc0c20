package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultSnapshotName identifies the snapshot row when no name is configured.
const DefaultSnapshotName = "default"

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS vector_snapshots (
	name       TEXT PRIMARY KEY,
	records    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresSnapshot stores each named snapshot as one JSONB row.
type PostgresSnapshot struct {
	db     *pgxpool.Pool
	name   string
	logger *zap.Logger
}

// NewPostgresSnapshot opens a pool, pings it and creates the table if needed.
func NewPostgresSnapshot(ctx context.Context, dsn, name string, logger *zap.Logger) (*PostgresSnapshot, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &StorageError{Op: "connect", Location: "postgres", Err: err}
	}
	if name == "" {
		name = DefaultSnapshotName
	}
	s := &PostgresSnapshot{db: pool, name: name, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL snapshot store ready", zap.String("name", name))
	return s, nil
}

func (s *PostgresSnapshot) migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, snapshotSchema); err != nil {
		return &StorageError{Op: "migrate", Location: s.Location(), Err: err}
	}
	return nil
}

func (s *PostgresSnapshot) Location() string {
	return "postgres:vector_snapshots/" + s.name
}

func (s *PostgresSnapshot) Load(ctx context.Context) ([]Record, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT records FROM vector_snapshots WHERE name = $1`, s.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read", Location: s.Location(), Err: err}
	}
	return decodeRecords(data, s.Location())
}

func (s *PostgresSnapshot) Save(ctx context.Context, records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return &StorageError{Op: "encode", Location: s.Location(), Err: err}
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO vector_snapshots (name, records, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE SET
			records = EXCLUDED.records,
			updated_at = EXCLUDED.updated_at`,
		s.name, string(data))
	if err != nil {
		return &StorageError{Op: "write", Location: s.Location(), Err: err}
	}
	return nil
}

// Close shuts down the connection pool.
func (s *PostgresSnapshot) Close() {
	s.db.Close()
}
