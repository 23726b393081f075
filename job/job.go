package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/qulab/go-instr/internal/pool"
	"github.com/qulab/go-instr/logger"
)

// CompletionFunc is the polled predicate reporting whether the physical
// process has reached its target. It typically reads an instrument register
// over the transport and may therefore fail; such a failure is fatal for the
// current wait.
type CompletionFunc func() (bool, error)

// InterruptedFunc is queried once per poll cycle to detect a caller-requested
// stop. It must be cheap and non-blocking: a flag check, not I/O.
// (*StopToken).IsSet is the usual implementation.
type InterruptedFunc func() bool

// RecoveryFunc returns the hardware to a defined state after a cancellation
// or a timeout, e.g. by stopping a sweep or opening a switch heater.
type RecoveryFunc func() error

// Job represents one outstanding long-running hardware operation.
//
// A Job holds a reference to, but does not own, the instrument driver behind
// its callbacks. It is owned by the operation that created it and must not be
// waited on from more than one logical flow at a time.
type Job struct {
	check     CompletionFunc
	timeout   time.Duration
	onCancel  RecoveryFunc
	onTimeout RecoveryFunc
	state     atomicState
	logger    logger.Logger
}

// Option represents a functional option for configuring a Job.
type Option interface {
	apply(*Job) error
}

type optFunc func(*Job) error

func (f optFunc) apply(j *Job) error { return f(j) }

// WithCancelHandler sets the recovery callback invoked when the Job is
// cancelled, either explicitly via Cancel or cooperatively via the
// interruption predicate.
func WithCancelHandler(f RecoveryFunc) Option {
	return optFunc(func(j *Job) error {
		j.onCancel = f
		return nil
	})
}

// WithTimeoutHandler sets the recovery callback invoked when the deadline
// elapses. It is responsible for leaving the hardware in a safe state; the
// wait still fails with ErrTimeout afterwards.
func WithTimeoutHandler(f RecoveryFunc) Option {
	return optFunc(func(j *Job) error {
		j.onTimeout = f
		return nil
	})
}

// WithLogger sets the logger used by the Job.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(j *Job) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		j.logger = l

		return nil
	})
}

// New creates a Job in the pending state around the given completion
// predicate and overall deadline. The timeout applies to the whole wait and
// must be positive.
func New(check CompletionFunc, timeout time.Duration, opts ...Option) (*Job, error) {
	if check == nil {
		return nil, ErrNilCompletionCheck
	}
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}

	j := &Job{
		check:   check,
		timeout: timeout,
		logger:  logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(j); err != nil {
			return nil, err
		}
	}

	return j, nil
}

// State returns the current lifecycle state of the Job.
func (j *Job) State() State {
	return j.state.Get()
}

// WaitForCompletion polls the completion predicate until the operation
// finishes, the caller requests a stop, or the deadline elapses.
//
// The interrupted predicate may be nil if cooperative stopping is not needed.
// timeout is a per-call ceiling; the smaller of it and the Job's own timeout
// governs, and a non-positive value means the Job's timeout alone applies.
// refresh is the sleep duration between polls and must be positive.
//
// Every iteration sleeps first, so the poll rate is bounded by refresh and
// the worst-case cancellation latency equals one refresh interval.
//
// Outcomes:
//   - (true, nil): the predicate reported completion.
//   - (false, nil): the caller requested a stop; the cancel handler has run.
//   - (false, ErrTimeout): the deadline elapsed; the timeout handler has run.
//   - (false, err): the predicate itself failed; the Job stays pending so the
//     caller can still Cancel it to run recovery.
func (j *Job) WaitForCompletion(interrupted InterruptedFunc, timeout, refresh time.Duration) (bool, error) {
	if refresh <= 0 {
		return false, ErrInvalidRefresh
	}
	if !j.state.IsPending() {
		return false, fmt.Errorf("%w: state is %s", ErrFinished, j.State())
	}

	effective := j.timeout
	if timeout > 0 && timeout < effective {
		effective = timeout
	}
	deadline := time.Now().Add(effective)

	j.logger.Debug("waiting for hardware operation", "timeout", effective, "refresh", refresh)

	for {
		pool.Sleep(refresh)

		if interrupted != nil && interrupted() {
			return false, j.fireCancel()
		}

		if time.Now().After(deadline) {
			return false, j.fireTimeout(effective)
		}

		done, err := j.check()
		if err != nil {
			j.logger.Error("completion check failed", "error", err)
			return false, fmt.Errorf("completion check: %w", err)
		}
		if done {
			j.state.ToCompleted()
			j.logger.Debug("hardware operation completed")

			return true, nil
		}
	}
}

// Cancel aborts the Job explicitly and runs the cancel handler. It is
// idempotent: cancelling a Job that already reached a terminal state is a
// no-op.
func (j *Job) Cancel() error {
	return j.fireCancel()
}

// fireCancel transitions to CancelledState and invokes the cancel handler.
// The CAS guarantees the handler runs at most once per Job.
func (j *Job) fireCancel() error {
	if !j.state.ToCancelled() {
		return nil
	}

	j.logger.Info("hardware operation cancelled")
	if j.onCancel == nil {
		return nil
	}
	if err := j.onCancel(); err != nil {
		j.logger.Error("cancel recovery failed", "error", err)
		return fmt.Errorf("cancel recovery: %w", err)
	}

	return nil
}

// fireTimeout transitions to TimedOutState, runs the timeout handler, and
// reports ErrTimeout. Recovery runs before the error surfaces so the hardware
// is never left mid-sweep.
func (j *Job) fireTimeout(effective time.Duration) error {
	if !j.state.ToTimedOut() {
		return fmt.Errorf("%w: state is %s", ErrFinished, j.State())
	}

	j.logger.Error("hardware operation timed out", "timeout", effective)
	if j.onTimeout != nil {
		if err := j.onTimeout(); err != nil {
			j.logger.Error("timeout recovery failed", "error", err)
			return fmt.Errorf("%w after %s (recovery failed: %v)", ErrTimeout, effective, err)
		}
	}

	return fmt.Errorf("%w after %s", ErrTimeout, effective)
}
