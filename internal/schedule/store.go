package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store errors.
var (
	// ErrDuplicate is returned by Insert when a record with the same
	// message ID already exists.
	ErrDuplicate = errors.New("deletion record already exists")

	// ErrNotFound is returned when no record exists for the given message ID.
	ErrNotFound = errors.New("deletion record not found")

	// ErrNotPending is returned by MarkInFlight when the record exists but is
	// not in the pending state, i.e. another cycle already claimed it.
	ErrNotPending = errors.New("deletion record not pending")
)

// Store is the durable set of pending deletion records. Both backends (file
// and postgres) implement the same contract with identical atomicity
// guarantees: MarkInFlight is the sole concurrency gate and succeeds exactly
// once per claim.
type Store interface {
	// Insert adds a new record. Returns ErrDuplicate if the message ID is
	// already scheduled.
	Insert(ctx context.Context, rec *PendingDeletion) error

	// LoadDue returns all pending records whose due time and next attempt
	// time have both passed, ordered by due time ascending.
	LoadDue(ctx context.Context, now time.Time) ([]*PendingDeletion, error)

	// MarkInFlight atomically transitions a record from pending to in-flight.
	// Returns ErrNotFound if the record is gone, ErrNotPending if it was
	// already claimed.
	MarkInFlight(ctx context.Context, messageID string) error

	// Release transitions an in-flight record back to pending for a later
	// retry, incrementing its attempt count and recording when the next
	// attempt may run.
	Release(ctx context.Context, messageID string, nextAttempt time.Time) error

	// Complete removes a record whose message has been deleted (or was
	// already gone). Returns ErrNotFound if already removed.
	Complete(ctx context.Context, messageID string) error

	// FailPermanent removes a record that can never be deleted. Returns
	// ErrNotFound if already removed.
	FailPermanent(ctx context.Context, messageID string) error

	// LoadAll returns every record, normalizing any in-flight leftovers from
	// a previous run back to pending. The prior attempt's outcome is unknown
	// and remote deletion is idempotent, so re-processing is safe. Called
	// once at startup.
	LoadAll(ctx context.Context) ([]*PendingDeletion, error)

	// Close releases backend resources.
	Close()
}

// StorageError marks a backend-unavailable condition (file I/O failure, lost
// database connection). The scheduler escalates these instead of retrying
// individual records.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err indicates the backend itself is
// unavailable, as opposed to a per-record condition like ErrNotFound.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
