package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier delivers escalation alerts to the staff when a record fails
// permanently for a non-benign reason or the storage backend goes away.
type Notifier interface {
	NotifyRecordFailed(ctx context.Context, rec *PendingDeletion, reason string, cause error) error
	NotifyStorageDown(ctx context.Context, cause error) error
}

// SchedulerConfig contains scheduler configuration.
type SchedulerConfig struct {
	TickInterval time.Duration
	MaxAttempts  int

	// HaltOnStorageError stops the scheduling loop for good once the backend
	// becomes unavailable, rather than hammering a store that cannot durably
	// record outcomes. The relay path keeps running either way.
	HaltOnStorageError bool
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval:       30 * time.Second,
		MaxAttempts:        5,
		HaltOnStorageError: true,
	}
}

// Scheduler is the periodic reconciliation loop. Each tick it loads due
// records oldest first, claims them one at a time through the store's
// in-flight gate and drives each claimed record to an outcome via the
// executor. A tick that arrives while the previous cycle is still running is
// skipped.
type Scheduler struct {
	config   SchedulerConfig
	store    Store
	executor *Executor
	notifier Notifier

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	cycleActive bool
	storageDown bool
}

// NewScheduler creates a reconciliation scheduler.
func NewScheduler(config SchedulerConfig, store Store, executor *Executor, notifier Notifier) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		executor: executor,
		notifier: notifier,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the ticking loop.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting deletion scheduler",
		"tick_interval", s.config.TickInterval,
		"max_attempts", s.config.MaxAttempts,
		"halt_on_storage_error", s.config.HaltOnStorageError,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-progress cycle to finish. Any
// record left in-flight by a cut-short cycle is re-adopted as pending on the
// next startup.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	slog.Info("deletion scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if halt := s.tick(ctx); halt {
				slog.Error("scheduling halted after storage failure; restart required")
				return
			}
		}
	}
}

// tick runs one cycle unless the previous one is still going. Returns true
// when the loop must halt.
func (s *Scheduler) tick(ctx context.Context) bool {
	s.mu.Lock()
	if s.cycleActive {
		s.mu.Unlock()
		slog.Warn("previous reconciliation cycle still running, skipping tick")
		return false
	}
	s.cycleActive = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cycleActive = false
		s.mu.Unlock()
	}()

	return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) bool {
	cycleID := uuid.NewString()
	start := time.Now()

	due, err := s.store.LoadDue(ctx, start)
	if err != nil {
		return s.handleStorageError(ctx, cycleID, err)
	}
	s.storageRecovered()

	recordDueRecords(len(due))
	if len(due) == 0 {
		return false
	}

	slog.Debug("reconciliation cycle started", "cycle_id", cycleID, "due", len(due))

	for _, rec := range due {
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		default:
		}

		if halt := s.processRecord(ctx, cycleID, rec); halt {
			return true
		}
	}

	recordCycleDuration(time.Since(start))
	slog.Debug("reconciliation cycle finished",
		"cycle_id", cycleID,
		"due", len(due),
		"duration", time.Since(start),
	)
	return false
}

func (s *Scheduler) processRecord(ctx context.Context, cycleID string, rec *PendingDeletion) bool {
	err := s.store.MarkInFlight(ctx, rec.MessageID)
	switch {
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrNotFound):
		// Claimed or resolved by an overlapping cycle.
		slog.Debug("record already claimed, skipping",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
		)
		return false
	case IsStorageError(err):
		return s.handleStorageError(ctx, cycleID, err)
	case err != nil:
		slog.Error("failed to claim record",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
			"error", err,
		)
		return false
	}

	result := s.executor.AttemptDelete(ctx, rec.ChannelID, rec.MessageID)

	switch result.Outcome {
	case OutcomeSuccess:
		s.complete(ctx, cycleID, rec, "deleted")
	case OutcomePermanent:
		if result.Benign {
			// Message already gone: desired end state reached.
			s.complete(ctx, cycleID, rec, result.Reason)
			return false
		}
		s.failPermanent(ctx, cycleID, rec, result.Reason, result.Err)
	case OutcomeTransient:
		if rec.Attempts+1 >= s.config.MaxAttempts {
			s.failPermanent(ctx, cycleID, rec, "attempt budget exhausted", result.Err)
			return false
		}
		s.release(ctx, cycleID, rec, result)
	}
	return false
}

func (s *Scheduler) complete(ctx context.Context, cycleID string, rec *PendingDeletion, reason string) {
	if err := s.store.Complete(ctx, rec.MessageID); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("failed to complete record",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
			"error", err,
		)
		return
	}

	recordDeletion("done")
	slog.Info("repost deletion complete",
		"cycle_id", cycleID,
		"message_id", rec.MessageID,
		"channel_id", rec.ChannelID,
		"attempts", rec.Attempts+1,
		"reason", reason,
	)
}

func (s *Scheduler) failPermanent(ctx context.Context, cycleID string, rec *PendingDeletion, reason string, cause error) {
	if err := s.store.FailPermanent(ctx, rec.MessageID); err != nil && !errors.Is(err, ErrNotFound) {
		slog.Error("failed to remove failed record",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
			"error", err,
		)
	}

	recordDeletion("failed")
	slog.Error("repost deletion failed permanently",
		"cycle_id", cycleID,
		"message_id", rec.MessageID,
		"channel_id", rec.ChannelID,
		"attempts", rec.Attempts+1,
		"reason", reason,
		"error", cause,
	)

	if err := s.notifier.NotifyRecordFailed(ctx, rec, reason, cause); err != nil {
		slog.Error("failed to send escalation alert",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
			"error", err,
		)
	}
}

func (s *Scheduler) release(ctx context.Context, cycleID string, rec *PendingDeletion, result Result) {
	delay := s.executor.NextAttemptDelay(rec.Attempts+1, result.RetryAfter)
	nextAttempt := time.Now().Add(delay)

	if err := s.store.Release(ctx, rec.MessageID, nextAttempt); err != nil {
		slog.Error("failed to release record for retry",
			"cycle_id", cycleID,
			"message_id", rec.MessageID,
			"error", err,
		)
		return
	}

	recordDeletion("retry")
	slog.Warn("repost deletion deferred",
		"cycle_id", cycleID,
		"message_id", rec.MessageID,
		"attempt", rec.Attempts+1,
		"max_attempts", s.config.MaxAttempts,
		"reason", result.Reason,
		"next_attempt", nextAttempt,
		"error", result.Err,
	)
}

// handleStorageError escalates a backend outage. With HaltOnStorageError set
// the loop stops for good; otherwise it keeps ticking and escalates again
// only after an intervening recovery.
func (s *Scheduler) handleStorageError(ctx context.Context, cycleID string, err error) bool {
	s.mu.Lock()
	firstFailure := !s.storageDown
	s.storageDown = true
	s.mu.Unlock()

	recordStorageError()
	slog.Error("storage backend unavailable", "cycle_id", cycleID, "error", err)

	if firstFailure {
		if notifyErr := s.notifier.NotifyStorageDown(ctx, err); notifyErr != nil {
			slog.Error("failed to send storage escalation alert", "error", notifyErr)
		}
	}

	return s.config.HaltOnStorageError
}

func (s *Scheduler) storageRecovered() {
	s.mu.Lock()
	if s.storageDown {
		slog.Info("storage backend recovered")
	}
	s.storageDown = false
	s.mu.Unlock()
}
