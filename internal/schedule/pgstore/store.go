// Package pgstore provides the PostgreSQL implementation of the deletion
// schedule store.
package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/resurgence-rp/radiorelay/internal/schedule"
)

// Store implements schedule.Store on a single deletion_schedule table. The
// in-flight gate is a conditional UPDATE: the affected-row count detects a
// lost race without any separate lock, so contention on one record never
// serializes unrelated records.
type Store struct {
	db *pgxpool.Pool
}

// New creates a PostgreSQL store and makes sure its table exists.
func New(ctx context.Context, db *pgxpool.Pool) (*Store, error) {
	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS deletion_schedule (
			message_id      TEXT PRIMARY KEY,
			channel_id      TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			due_at          TIMESTAMPTZ NOT NULL,
			next_attempt_at TIMESTAMPTZ NOT NULL,
			attempts        INT NOT NULL DEFAULT 0,
			status          TEXT NOT NULL DEFAULT 'pending'
		)
	`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return &schedule.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// Insert adds a new record.
func (s *Store) Insert(ctx context.Context, rec *schedule.PendingDeletion) error {
	query := `
		INSERT INTO deletion_schedule (message_id, channel_id, created_at, due_at, next_attempt_at, attempts, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.Exec(ctx, query,
		rec.MessageID,
		rec.ChannelID,
		rec.CreatedAt,
		rec.DueAt,
		rec.NextAttemptAt,
		rec.Attempts,
		rec.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return schedule.ErrDuplicate
		}
		return &schedule.StorageError{Op: "insert", Err: err}
	}
	return nil
}

// LoadDue returns pending records whose due and next-attempt times have
// passed, oldest due first.
func (s *Store) LoadDue(ctx context.Context, now time.Time) ([]*schedule.PendingDeletion, error) {
	query := `
		SELECT message_id, channel_id, created_at, due_at, next_attempt_at, attempts, status
		FROM deletion_schedule
		WHERE status = 'pending' AND due_at <= $1 AND next_attempt_at <= $1
		ORDER BY due_at ASC
	`
	rows, err := s.db.Query(ctx, query, now)
	if err != nil {
		return nil, &schedule.StorageError{Op: "load due", Err: err}
	}
	defer rows.Close()

	return scanRecords(rows)
}

// MarkInFlight claims a pending record via a conditional update.
func (s *Store) MarkInFlight(ctx context.Context, messageID string) error {
	query := `
		UPDATE deletion_schedule
		SET status = 'in_flight'
		WHERE message_id = $1 AND status = 'pending'
	`
	tag, err := s.db.Exec(ctx, query, messageID)
	if err != nil {
		return &schedule.StorageError{Op: "mark in-flight", Err: err}
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing record.
		var exists bool
		err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM deletion_schedule WHERE message_id = $1)`,
			messageID,
		).Scan(&exists)
		if err != nil {
			return &schedule.StorageError{Op: "mark in-flight", Err: err}
		}
		if !exists {
			return schedule.ErrNotFound
		}
		return schedule.ErrNotPending
	}
	return nil
}

// Release returns an in-flight record to pending for a later retry.
func (s *Store) Release(ctx context.Context, messageID string, nextAttempt time.Time) error {
	query := `
		UPDATE deletion_schedule
		SET status = 'pending', attempts = attempts + 1, next_attempt_at = $2
		WHERE message_id = $1
	`
	tag, err := s.db.Exec(ctx, query, messageID, nextAttempt)
	if err != nil {
		return &schedule.StorageError{Op: "release", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// Complete removes a finished record.
func (s *Store) Complete(ctx context.Context, messageID string) error {
	return s.remove(ctx, messageID)
}

// FailPermanent removes a record that can never be deleted.
func (s *Store) FailPermanent(ctx context.Context, messageID string) error {
	return s.remove(ctx, messageID)
}

func (s *Store) remove(ctx context.Context, messageID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM deletion_schedule WHERE message_id = $1`, messageID)
	if err != nil {
		return &schedule.StorageError{Op: "remove", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return schedule.ErrNotFound
	}
	return nil
}

// LoadAll returns every record, re-adopting in-flight leftovers from a
// previous run as pending.
func (s *Store) LoadAll(ctx context.Context) ([]*schedule.PendingDeletion, error) {
	requeue := `
		UPDATE deletion_schedule
		SET status = 'pending'
		WHERE status = 'in_flight'
	`
	if _, err := s.db.Exec(ctx, requeue); err != nil {
		return nil, &schedule.StorageError{Op: "recover in-flight", Err: err}
	}

	query := `
		SELECT message_id, channel_id, created_at, due_at, next_attempt_at, attempts, status
		FROM deletion_schedule
		ORDER BY due_at ASC
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, &schedule.StorageError{Op: "load all", Err: err}
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.db.Close()
}

func scanRecords(rows pgx.Rows) ([]*schedule.PendingDeletion, error) {
	records := make([]*schedule.PendingDeletion, 0)
	for rows.Next() {
		var rec schedule.PendingDeletion
		err := rows.Scan(
			&rec.MessageID,
			&rec.ChannelID,
			&rec.CreatedAt,
			&rec.DueAt,
			&rec.NextAttemptAt,
			&rec.Attempts,
			&rec.Status,
		)
		if err != nil {
			return nil, &schedule.StorageError{Op: "scan", Err: err}
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &schedule.StorageError{Op: "scan", Err: err}
	}
	return records, nil
}
