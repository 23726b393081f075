// Package cryomag provides a driver for the Cryomagnetics CS4
// superconducting magnet power supply.
//
// The CS4 ramps the coil current onboard; the driver exposes each field sweep
// as a job.Job whose completion predicate polls the output field and whose
// recovery handlers stop the sweep (and on timeout also open the switch
// heater) so the magnet is never left ramping unobserved.
package cryomag

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/qulab/go-instr/internal/pool"
	"github.com/qulab/go-instr/job"
	"github.com/qulab/go-instr/logger"
	"github.com/qulab/go-instr/transport"
)

// HeaterState is the state of the persistent switch heater.
type HeaterState string

const (
	HeaterOn  HeaterState = "On"
	HeaterOff HeaterState = "Off"
)

// Activity is the sweep activity of the power supply.
type Activity string

const (
	// ActivityToSetPoint sweeps the output towards the upper limit.
	ActivityToSetPoint Activity = "To set point"
	// ActivityHold pauses the sweep at the present output.
	ActivityHold Activity = "Hold"
)

// defaultFluctuations is the typical output fluctuation of the supply in
// Tesla, used as the completion tolerance when none is configured.
const defaultFluctuations = 3e-4

const (
	// waitCeiling is the per-call ceiling used by ApplyField waits.
	waitCeiling = 60 * time.Second
	// heaterRefresh is the poll interval for heater-related sweeps.
	heaterRefresh = 3 * time.Second
	// sweepRefresh is the poll interval for the main field sweep.
	sweepRefresh = 10 * time.Second
)

// ErrHeaterFault indicates that the switch heater reported neither On nor
// Off, i.e. it is in fault or absent.
var ErrHeaterFault = errors.New("switch heater in fault or absent")

// CS4 drives a Cryomagnetics CS4 superconducting magnet power supply over a
// transport channel. Field values are in Tesla, rates in Tesla per minute.
type CS4 struct {
	ch transport.Channel

	// fieldCurrentRatio converts between the supply's Ampere units and the
	// magnet's field in Tesla (T/A).
	fieldCurrentRatio float64
	lowerFieldLimit   float64
	fluctuations      float64
	postSwitchWait    time.Duration

	// targetField mirrors the last ULIM written, used by TargetReached.
	targetField float64

	logger logger.Logger
}

// Option represents a functional option for configuring a CS4 driver.
type Option interface {
	apply(*CS4) error
}

type optFunc func(*CS4) error

func (f optFunc) apply(d *CS4) error { return f(d) }

// WithOutputFluctuations sets the completion tolerance in Tesla. The sweep
// counts as finished when the output field is within this distance of the
// target.
func WithOutputFluctuations(tol float64) Option {
	return optFunc(func(d *CS4) error {
		if tol <= 0 {
			return errors.New("output fluctuations must be positive")
		}
		d.fluctuations = tol

		return nil
	})
}

// WithPostSwitchWait sets how long to wait after toggling the switch heater
// before the coil can be considered thermalized.
func WithPostSwitchWait(wait time.Duration) Option {
	return optFunc(func(d *CS4) error {
		if wait < 0 {
			return errors.New("post switch wait must not be negative")
		}
		d.postSwitchWait = wait

		return nil
	})
}

// WithLogger sets the logger used by the driver.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(d *CS4) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		d.logger = l

		return nil
	})
}

// New creates a CS4 driver on the given channel and initializes the supply:
// Tesla units, full range, and the magnet's lower field limit.
//
// fieldCurrentRatio is the field to current ratio of the attached magnet in
// T/A; lowerFieldLimit is the lowest field the magnet may be swept to in T.
// Both depend on the installed coil, so they carry no defaults.
func New(ch transport.Channel, fieldCurrentRatio, lowerFieldLimit float64, opts ...Option) (*CS4, error) {
	if ch == nil {
		return nil, errors.New("transport channel is nil")
	}
	if fieldCurrentRatio <= 0 {
		return nil, errors.New("field to current ratio must be positive")
	}

	d := &CS4{
		ch:                ch,
		fieldCurrentRatio: fieldCurrentRatio,
		lowerFieldLimit:   lowerFieldLimit,
		fluctuations:      defaultFluctuations,
		postSwitchWait:    30 * time.Second,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(d); err != nil {
			return nil, err
		}
	}

	if err := d.ch.Write("UNITS T"); err != nil {
		return nil, err
	}
	// The trailing ; is required by the CG4 variant.
	if err := d.ch.Write("RANGE 0 50;"); err != nil {
		return nil, err
	}
	// Sweeps always go "up" to ULIM, but ULIM may not be below LLIM on some
	// supplies, so pin LLIM to the lowest reachable field.
	if err := d.ch.Write(fmt.Sprintf("LLIM %g", d.lowerFieldLimit)); err != nil {
		return nil, err
	}

	d.logger.Info("CS4 initialized",
		"field_current_ratio", fieldCurrentRatio, "lower_field_limit", lowerFieldLimit)

	return d, nil
}

// OutputField reads the present output field in Tesla.
func (d *CS4) OutputField() (float64, error) {
	return transport.QueryFloat(d.ch, "IOUT?", "T")
}

// PersistentField reads the last known field trapped in the magnet in Tesla.
func (d *CS4) PersistentField() (float64, error) {
	return transport.QueryFloat(d.ch, "IMAG?", "T")
}

// Heater reads the switch heater state.
func (d *CS4) Heater() (HeaterState, error) {
	resp, err := d.ch.Query("PSHTR?")
	if err != nil {
		return "", err
	}

	switch resp {
	case "0":
		return HeaterOff, nil
	case "1":
		return HeaterOn, nil
	default:
		return "", fmt.Errorf("%w: response %q", ErrHeaterFault, resp)
	}
}

// SetHeater switches the persistent switch heater. The supply needs a moment
// before the switch actually opens or closes.
func (d *CS4) SetHeater(state HeaterState) error {
	if state != HeaterOn && state != HeaterOff {
		return fmt.Errorf("invalid heater state %q", state)
	}

	d.logger.Debug("set switch heater", "state", state)
	if err := d.ch.Write(fmt.Sprintf("PSHTR %s", state)); err != nil {
		return err
	}
	pool.Sleep(time.Second)

	return nil
}

// SweepRate reads the sweep rate used while the heater is on, in T/min.
func (d *CS4) SweepRate() (float64, error) {
	rate, err := transport.QueryFloat(d.ch, "RATE? 0", "")
	if err != nil {
		return 0, err
	}

	// The supply works in A/s.
	return rate * 60 * d.fieldCurrentRatio, nil
}

// SetSweepRate sets the sweep rate used while the heater is on, in T/min.
func (d *CS4) SetSweepRate(rate float64) error {
	return d.ch.Write(fmt.Sprintf("RATE 0 %g", rate/(60*d.fieldCurrentRatio)))
}

// FastSweepRate reads the rate used while the heater is off, in T/min.
func (d *CS4) FastSweepRate() (float64, error) {
	rate, err := transport.QueryFloat(d.ch, "RATE? 3", "")
	if err != nil {
		return 0, err
	}

	return rate * 60 * d.fieldCurrentRatio, nil
}

// SetFastSweepRate sets the rate used while the heater is off, in T/min.
func (d *CS4) SetFastSweepRate(rate float64) error {
	return d.ch.Write(fmt.Sprintf("RATE 3 %g", rate/(60*d.fieldCurrentRatio)))
}

// TargetField reads the upper sweep limit (the sweep target) in Tesla.
func (d *CS4) TargetField() (float64, error) {
	return transport.QueryFloat(d.ch, "ULIM?", "T")
}

// SetTargetField sets the upper sweep limit in Tesla.
func (d *CS4) SetTargetField(target float64) error {
	if err := d.ch.Write(fmt.Sprintf("ULIM %g", target)); err != nil {
		return err
	}
	d.targetField = target

	return nil
}

// SetActivity starts or pauses the sweep. Sweeping selects the fast rate
// table when the heater is off and the slow one otherwise.
func (d *CS4) SetActivity(activity Activity) error {
	var par string
	switch activity {
	case ActivityHold:
		par = "PAUSE"
	case ActivityToSetPoint:
		heater, err := d.Heater()
		if err != nil {
			return err
		}
		if heater == HeaterOff {
			par = "UP FAST"
		} else {
			par = "UP SLOW"
		}
	default:
		return fmt.Errorf("invalid activity %q", activity)
	}

	d.logger.Debug("set activity", "command", "SWEEP "+par)

	return d.ch.Write("SWEEP " + par)
}

// TargetReached reports whether the output field has reached the last set
// target within the output fluctuation tolerance. It satisfies
// job.CompletionFunc.
func (d *CS4) TargetReached() (bool, error) {
	field, err := d.OutputField()
	if err != nil {
		return false, err
	}

	return math.Abs(field-d.targetField) < d.fluctuations, nil
}

// SweepToField starts a sweep of the field to target (in Tesla) and returns
// the Job tracking it. A positive rate (T/min) is written to the supply
// first; the heater state decides whether the slow or fast rate table
// actually applies.
//
// The Job's deadline is the time the sweep should take at the effective rate;
// its cancel handler pauses the sweep and its timeout handler additionally
// opens the switch heater.
func (d *CS4) SweepToField(target, rate float64) (*job.Job, error) {
	if rate > 0 {
		if err := d.SetSweepRate(rate); err != nil {
			return nil, err
		}
	}

	heater, err := d.Heater()
	if err != nil {
		return nil, err
	}

	var effRate float64
	if heater == HeaterOff {
		effRate, err = d.FastSweepRate()
	} else {
		effRate, err = d.SweepRate()
	}
	if err != nil {
		return nil, err
	}
	if effRate <= 0 {
		return nil, fmt.Errorf("supply reports a non-positive sweep rate %g T/min", effRate)
	}

	if err := d.SetTargetField(target); err != nil {
		return nil, err
	}
	// The source misbehaves when the sweep direction changes without a
	// pause, so always go through Hold before sweeping.
	pool.Sleep(time.Second)
	if err := d.SetActivity(ActivityHold); err != nil {
		return nil, err
	}
	pool.Sleep(time.Second)
	if err := d.SetActivity(ActivityToSetPoint); err != nil {
		return nil, err
	}

	output, err := d.OutputField()
	if err != nil {
		return nil, err
	}

	span := math.Abs(output - target)
	wait := time.Duration(60 * span / effRate * float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}

	d.logger.Info("field sweep started", "target", target, "rate", effRate, "expected", wait)

	return job.New(d.TargetReached, wait,
		job.WithCancelHandler(d.StopSweep),
		job.WithTimeoutHandler(d.StopSweepSafe),
		job.WithLogger(d.logger),
	)
}

// SweepToPersistentField ramps the output to the field trapped in the magnet
// so the switch heater can be closed safely.
func (d *CS4) SweepToPersistentField() (*job.Job, error) {
	field, err := d.PersistentField()
	if err != nil {
		return nil, err
	}

	return d.SweepToField(field, 0)
}

// StopSweep pauses the sweep at the present output, leaving the heater as is.
func (d *CS4) StopSweep() error {
	d.logger.Info("stopping field sweep")
	return d.SetActivity(ActivityHold)
}

// StopSweepSafe pauses the sweep and opens the switch heater, then waits for
// the switch to thermalize. Used as the timeout handler so a sweep that
// overran its deadline cannot keep ramping unobserved.
func (d *CS4) StopSweepSafe() error {
	d.logger.Warn("stopping field sweep and opening switch heater")
	if err := d.SetActivity(ActivityHold); err != nil {
		return err
	}
	if err := d.SetHeater(HeaterOff); err != nil {
		return err
	}
	pool.Sleep(d.postSwitchWait)

	return nil
}
