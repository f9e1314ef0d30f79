package queue

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// jobsSchemaVersion is stored in SQLite's user_version header field. There
// are no migrations: a database written by another version is rejected.
const jobsSchemaVersion = 1

// ErrSchemaMismatch reports a job database created by a different release.
var ErrSchemaMismatch = errors.New("job database schema mismatch")

func (s *Store) initSchema(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	switch version {
	case jobsSchemaVersion:
		return nil
	case 0:
		return s.createSchema(ctx)
	default:
		return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove it to start with an empty queue",
			ErrSchemaMismatch, s.path, version, jobsSchemaVersion)
	}
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	// PRAGMA arguments cannot be bound.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", jobsSchemaVersion)); err != nil {
		return fmt.Errorf("stamp user_version: %w", err)
	}
	return tx.Commit()
}
