// Package filestore persists the deletion schedule in a single JSON file.
// Every mutation rewrites the whole file to a temp path and renames it into
// place, so an unclean exit never leaves a torn file behind. A process-wide
// mutex serializes access; at this backend's expected throughput (one record
// per radio message) that is plenty.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/resurgence-rp/radiorelay/internal/schedule"
)

// DefaultPath matches the schedule file the bot has always used.
const DefaultPath = "deletion_schedule.json"

type fileRecord struct {
	MessageID     string    `json:"message_id"`
	ChannelID     string    `json:"channel_id"`
	CreatedAt     time.Time `json:"created_at"`
	DueAt         time.Time `json:"due_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	Attempts      int       `json:"attempts"`
	Status        string    `json:"status"`
}

// Store implements schedule.Store on a JSON schedule file.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]*fileRecord
}

// Open loads (or creates) the schedule file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, records: make(map[string]*fileRecord)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &schedule.StorageError{Op: "read", Err: err}
	}

	if len(data) == 0 {
		return nil
	}

	var records map[string]*fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return &schedule.StorageError{Op: "decode", Err: fmt.Errorf("%s: %w", s.path, err)}
	}
	s.records = records
	return nil
}

// persist writes the full record set to a temp file in the same directory
// and renames it over the schedule file.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return &schedule.StorageError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &schedule.StorageError{Op: "write", Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &schedule.StorageError{Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &schedule.StorageError{Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &schedule.StorageError{Op: "close", Err: err}
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &schedule.StorageError{Op: "rename", Err: err}
	}
	return nil
}

// Insert adds a new record to the schedule file.
func (s *Store) Insert(_ context.Context, rec *schedule.PendingDeletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.MessageID]; ok {
		return schedule.ErrDuplicate
	}

	s.records[rec.MessageID] = &fileRecord{
		MessageID:     rec.MessageID,
		ChannelID:     rec.ChannelID,
		CreatedAt:     rec.CreatedAt,
		DueAt:         rec.DueAt,
		NextAttemptAt: rec.NextAttemptAt,
		Attempts:      rec.Attempts,
		Status:        string(rec.Status),
	}
	if err := s.persist(); err != nil {
		delete(s.records, rec.MessageID)
		return err
	}
	return nil
}

// LoadDue returns pending records whose due and next-attempt times have
// passed, oldest due first.
func (s *Store) LoadDue(_ context.Context, now time.Time) ([]*schedule.PendingDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*schedule.PendingDeletion
	for _, rec := range s.records {
		if rec.Status != string(schedule.StatusPending) {
			continue
		}
		if rec.DueAt.After(now) || rec.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, toDomain(rec))
	}

	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	return due, nil
}

// MarkInFlight claims a pending record.
func (s *Store) MarkInFlight(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[messageID]
	if !ok {
		return schedule.ErrNotFound
	}
	if rec.Status != string(schedule.StatusPending) {
		return schedule.ErrNotPending
	}

	rec.Status = string(schedule.StatusInFlight)
	if err := s.persist(); err != nil {
		rec.Status = string(schedule.StatusPending)
		return err
	}
	return nil
}

// Release returns an in-flight record to pending for a later retry.
func (s *Store) Release(_ context.Context, messageID string, nextAttempt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[messageID]
	if !ok {
		return schedule.ErrNotFound
	}

	prev := *rec
	rec.Status = string(schedule.StatusPending)
	rec.Attempts++
	rec.NextAttemptAt = nextAttempt
	if err := s.persist(); err != nil {
		*rec = prev
		return err
	}
	return nil
}

// Complete removes a finished record.
func (s *Store) Complete(ctx context.Context, messageID string) error {
	return s.remove(messageID)
}

// FailPermanent removes a record that can never be deleted.
func (s *Store) FailPermanent(ctx context.Context, messageID string) error {
	return s.remove(messageID)
}

func (s *Store) remove(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[messageID]
	if !ok {
		return schedule.ErrNotFound
	}

	delete(s.records, messageID)
	if err := s.persist(); err != nil {
		s.records[messageID] = rec
		return err
	}
	return nil
}

// LoadAll returns every record, re-adopting in-flight leftovers from a
// previous run as pending. The normalized state is persisted before
// returning so a crash right after startup cannot resurrect the stale claim.
func (s *Store) LoadAll(_ context.Context) ([]*schedule.PendingDeletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := false
	for _, rec := range s.records {
		if rec.Status == string(schedule.StatusInFlight) {
			rec.Status = string(schedule.StatusPending)
			dirty = true
		}
	}
	if dirty {
		if err := s.persist(); err != nil {
			return nil, err
		}
	}

	all := make([]*schedule.PendingDeletion, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, toDomain(rec))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DueAt.Before(all[j].DueAt) })
	return all, nil
}

// Close is a no-op for the file backend; every mutation is already flushed.
func (s *Store) Close() {}

func toDomain(rec *fileRecord) *schedule.PendingDeletion {
	return &schedule.PendingDeletion{
		MessageID:     rec.MessageID,
		ChannelID:     rec.ChannelID,
		CreatedAt:     rec.CreatedAt,
		DueAt:         rec.DueAt,
		NextAttemptAt: rec.NextAttemptAt,
		Attempts:      rec.Attempts,
		Status:        schedule.Status(rec.Status),
	}
}
