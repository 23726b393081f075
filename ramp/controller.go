package ramp

import (
	"fmt"
	"math"
	"time"

	"github.com/qulab/go-instr/internal/pool"
	"github.com/qulab/go-instr/job"
	"github.com/qulab/go-instr/logger"
)

// Setter pushes one value to an instrument register. A transport failure is
// propagated immediately, aborting the ramp at the last successfully written
// value.
type Setter func(value float64) error

// RampStarter begins a hardware-native ramp towards target and returns the
// Job tracking it. The Job's cancel and timeout handlers are expected to
// issue the instrument's stop command.
type RampStarter func(target float64) (*job.Job, error)

// Controller drives a scalar instrument output towards a target value in
// bounded steps. A zero-value Controller is not usable; construct one with
// NewController.
//
// A Controller is stateless between calls and may be shared by operations on
// different instruments, but a single instrument must not be ramped from more
// than one logical flow at a time.
type Controller struct {
	cfg    config
	logger logger.Logger
}

// NewController creates a Controller with the given options applied over the
// defaults.
func NewController(opts ...Option) (*Controller, error) {
	cfg := config{
		stepDelay:  10 * time.Millisecond,
		precision:  9,
		epsilon:    1e-9,
		jobTimeout: 60 * time.Second,
		refresh:    time.Second,
		logger:     logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	return &Controller{cfg: cfg, logger: cfg.logger}, nil
}

// SmoothSet moves the output from current to target in software steps,
// pushing each intermediate value through set and sleeping the configured
// delay between steps.
//
// It returns the last value written to the hardware and whether the target
// was reached. A false result with a nil error means the stop token was set
// mid-ramp; the output is left at the last written value and the caller
// decides whether that is an error. Validation failures reject the request
// before any write.
func (c *Controller) SmoothSet(token *job.StopToken, target float64, set Setter, current float64) (bool, float64, error) {
	if set == nil {
		return false, current, ErrNilSetter
	}
	if err := c.validate(target, current); err != nil {
		return false, current, err
	}

	// Already at the target. Skip the write entirely: a no-op write can
	// still trigger side effects on some instruments.
	if math.Abs(current-target) < c.cfg.epsilon {
		return true, target, nil
	}

	// No ramp configured: jump directly.
	if c.cfg.stepLimit == 0 {
		if err := set(target); err != nil {
			return false, current, fmt.Errorf("set value: %w", err)
		}

		return true, target, nil
	}

	step := c.cfg.stepLimit
	if target < current {
		step = -step
	}

	c.logger.Debug("ramping output", "from", current, "to", target, "step", step)

	last := current
	if math.Abs(target-current) > c.cfg.stepLimit {
		for {
			if token != nil && token.IsSet() {
				c.logger.Info("ramp interrupted", "at", last, "target", target)
				return false, last, nil
			}

			// Round each intermediate value so rounding errors don't
			// accumulate across many additions.
			next := roundTo(last+step, c.cfg.precision)
			if err := set(next); err != nil {
				return false, last, fmt.Errorf("set value: %w", err)
			}
			last = next

			if math.Abs(target-last) <= c.cfg.stepLimit {
				break
			}
			pool.Sleep(c.cfg.stepDelay)
		}
	}

	if token != nil && token.IsSet() {
		c.logger.Info("ramp interrupted", "at", last, "target", target)
		return false, last, nil
	}

	// Final step snaps exactly to the target, bypassing the rounded
	// intermediate value.
	if err := set(target); err != nil {
		return false, last, fmt.Errorf("set value: %w", err)
	}

	return true, target, nil
}

// InstrSet moves the output to target using the instrument's own ramp
// engine: it validates the request like SmoothSet, starts the onboard ramp,
// and waits on the returned Job with the controller's timeout and refresh
// interval.
//
// The reported value is target on success and current otherwise; instruments
// stopped mid-ramp hold an intermediate value that only a readback can
// recover. Cancellation and timeout behave exactly as in
// job.WaitForCompletion.
func (c *Controller) InstrSet(token *job.StopToken, target float64, start RampStarter, current float64) (bool, float64, error) {
	if start == nil {
		return false, current, ErrNilStarter
	}
	if err := c.validate(target, current); err != nil {
		return false, current, err
	}

	if math.Abs(current-target) < c.cfg.epsilon {
		return true, target, nil
	}

	j, err := start(target)
	if err != nil {
		return false, current, fmt.Errorf("start hardware ramp: %w", err)
	}

	var interrupted job.InterruptedFunc
	if token != nil {
		interrupted = token.IsSet
	}

	ok, err := j.WaitForCompletion(interrupted, c.cfg.jobTimeout, c.cfg.refresh)
	if err != nil {
		return false, current, err
	}
	if !ok {
		return false, current, nil
	}

	return true, target, nil
}

// validate applies the pre-write safety checks in order: distance from the
// present value first, then the absolute ceiling.
func (c *Controller) validate(target, current float64) error {
	if c.cfg.maxDelta > 0 && math.Abs(current-target) > c.cfg.maxDelta {
		return fmt.Errorf("%w: target %g, current %g, max delta %g",
			ErrMaxDelta, target, current, c.cfg.maxDelta)
	}
	if c.cfg.safetyCeiling > 0 && math.Abs(target) > c.cfg.safetyCeiling {
		return fmt.Errorf("%w: target %g, ceiling %g",
			ErrSafetyCeiling, target, c.cfg.safetyCeiling)
	}

	return nil
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
