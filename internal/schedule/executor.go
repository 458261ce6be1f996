package schedule

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Deleter performs the remote message deletion. Implementations translate
// platform errors into TransientError / PermanentError; anything else is
// treated as transient.
type Deleter interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// TransientError is a delete failure worth retrying: rate limits, network
// errors, timeouts, server-side errors. RetryAfter, when non-zero, carries a
// server-specified wait that overrides the computed backoff.
type TransientError struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delete failure (%s): %v", e.Reason, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is a delete failure no retry can fix. Benign marks the
// outcomes where the desired end state is already reached (message gone), to
// be booked as success rather than escalated.
type PermanentError struct {
	Reason string
	Benign bool
	Err    error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent delete failure (%s): %v", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Outcome classifies a single delete attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Result is the classified outcome of one delete attempt.
type Result struct {
	Outcome    Outcome
	Benign     bool
	Reason     string
	RetryAfter time.Duration
	Err        error
}

// ExecutorConfig contains executor configuration.
type ExecutorConfig struct {
	RequestTimeout time.Duration
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
}

// DefaultExecutorConfig returns default executor configuration.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		RequestTimeout: 10 * time.Second,
		BaseBackoff:    1 * time.Minute,
		MaxBackoff:     15 * time.Minute,
		RatePerSecond:  5,
	}
}

// Executor wraps the remote delete call with a per-call timeout, a
// client-side rate limiter and error classification. It is stateless:
// attempt counts live on the record, so the same executor serves every
// record.
type Executor struct {
	config  ExecutorConfig
	deleter Deleter
	limiter *rate.Limiter
}

// NewExecutor creates an executor around the given deleter.
func NewExecutor(config ExecutorConfig, deleter Deleter) *Executor {
	burst := int(config.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Executor{
		config:  config,
		deleter: deleter,
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), burst),
	}
}

// AttemptDelete performs one delete attempt and classifies the result. A
// stuck remote call is cut off by the request timeout and reported as
// transient, so it can never wedge the scheduling loop.
func (e *Executor) AttemptDelete(ctx context.Context, channelID, messageID string) Result {
	if err := e.limiter.Wait(ctx); err != nil {
		return Result{Outcome: OutcomeTransient, Reason: "cancelled", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.RequestTimeout)
	defer cancel()

	err := e.deleter.DeleteMessage(callCtx, channelID, messageID)
	if err == nil {
		return Result{Outcome: OutcomeSuccess}
	}

	var perm *PermanentError
	if errors.As(err, &perm) {
		return Result{
			Outcome: OutcomePermanent,
			Benign:  perm.Benign,
			Reason:  perm.Reason,
			Err:     err,
		}
	}

	var trans *TransientError
	if errors.As(err, &trans) {
		return Result{
			Outcome:    OutcomeTransient,
			Reason:     trans.Reason,
			RetryAfter: trans.RetryAfter,
			Err:        err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Result{Outcome: OutcomeTransient, Reason: "timeout", Err: err}
	}

	// Unknown errors default to transient, same as an unclassified network
	// hiccup: the attempt budget bounds how long we keep trying.
	return Result{Outcome: OutcomeTransient, Reason: "unknown", Err: err}
}

// NextAttemptDelay computes the wait before the next retry: exponential in
// the attempt count with jitter, capped at the configured ceiling. A
// server-specified retry-after wins over the computed delay.
func (e *Executor) NextAttemptDelay(attempts int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	backoff := e.config.BaseBackoff
	for i := 0; i < attempts; i++ {
		backoff *= 2
		if backoff >= e.config.MaxBackoff {
			backoff = e.config.MaxBackoff
			break
		}
	}

	// Up to 10% jitter, keeping retries for records scheduled together from
	// landing on the same tick.
	jitter := time.Duration(rand.Int64N(int64(backoff)/10 + 1))
	return backoff + jitter
}
