package ramp

import (
	"errors"
	"time"

	"github.com/qulab/go-instr/logger"
)

// config holds the Controller parameters. All limits are expressed in the
// physical unit of the output being ramped (Volt, Ampere, Tesla).
type config struct {
	// stepLimit is the maximum magnitude of one atomic change.
	// 0 means no ramp: jump directly to the target. Defaults to 0.
	stepLimit float64

	// safetyCeiling is the largest allowed target magnitude.
	// 0 disables the check. Defaults to 0.
	safetyCeiling float64

	// maxDelta is the largest allowed distance between the present value and
	// the target. 0 disables the check. Defaults to 0.
	maxDelta float64

	// stepDelay is the pause between consecutive software steps.
	// Defaults to 10 milliseconds.
	stepDelay time.Duration

	// precision is the number of decimals intermediate values are rounded to,
	// preventing floating-point drift from accumulating over many steps.
	// Defaults to 9, appropriate for voltage sources; current sources
	// typically use 6.
	precision int

	// epsilon is the distance below which the output counts as already at the
	// target and no write is issued. Defaults to 1e-9.
	epsilon float64

	// jobTimeout bounds the wait on a hardware-native ramp started by
	// InstrSet. Defaults to 60 seconds.
	jobTimeout time.Duration

	// refresh is the poll interval used while waiting on a hardware-native
	// ramp. Defaults to 1 second.
	refresh time.Duration

	// logger provides a logger instance for ramp progress and failures.
	logger logger.Logger
}

// Option represents a functional option for configuring a Controller.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithStepLimit sets the maximum magnitude of a single step. A zero limit
// disables ramping: the target is written in one call.
func WithStepLimit(limit float64) Option {
	return optFunc(func(cfg *config) error {
		if limit < 0 {
			return errors.New("step limit must not be negative")
		}
		cfg.stepLimit = limit

		return nil
	})
}

// WithSafetyCeiling sets the largest allowed target magnitude. Targets beyond
// the ceiling are rejected before any hardware write. Zero disables the check.
func WithSafetyCeiling(ceiling float64) Option {
	return optFunc(func(cfg *config) error {
		if ceiling < 0 {
			return errors.New("safety ceiling must not be negative")
		}
		cfg.safetyCeiling = ceiling

		return nil
	})
}

// WithMaxDelta sets the largest allowed distance between the present value
// and the target. Zero disables the check.
func WithMaxDelta(delta float64) Option {
	return optFunc(func(cfg *config) error {
		if delta < 0 {
			return errors.New("max delta must not be negative")
		}
		cfg.maxDelta = delta

		return nil
	})
}

// WithStepDelay sets the wall-clock pause between consecutive software steps.
// A zero delay is allowed and steps as fast as the transport permits.
func WithStepDelay(delay time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if delay < 0 {
			return errors.New("step delay must not be negative")
		}
		cfg.stepDelay = delay

		return nil
	})
}

// WithPrecision sets the number of decimals intermediate step values are
// rounded to.
func WithPrecision(decimals int) Option {
	return optFunc(func(cfg *config) error {
		if decimals < 0 || decimals > 15 {
			return errors.New("precision is out of range [0, 15]")
		}
		cfg.precision = decimals

		return nil
	})
}

// WithEpsilon sets the distance below which the output counts as already at
// the target.
func WithEpsilon(eps float64) Option {
	return optFunc(func(cfg *config) error {
		if eps <= 0 {
			return errors.New("epsilon must be positive")
		}
		cfg.epsilon = eps

		return nil
	})
}

// WithJobTimeout sets the deadline for waits on hardware-native ramps.
func WithJobTimeout(timeout time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if timeout <= 0 {
			return errors.New("job timeout must be positive")
		}
		cfg.jobTimeout = timeout

		return nil
	})
}

// WithRefreshInterval sets the poll interval for waits on hardware-native
// ramps.
func WithRefreshInterval(refresh time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if refresh <= 0 {
			return errors.New("refresh interval must be positive")
		}
		cfg.refresh = refresh

		return nil
	})
}

// WithLogger sets the logger used by the Controller.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
