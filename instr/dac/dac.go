// Package dac provides a driver for a processor-based DAC/ADC board in the
// ADwin style: every output change runs as an onboard process whose
// completion is signalled through a "busy" parameter register.
//
// There is no interrupt or callback from the board; the driver polls the busy
// register through a job.Job, which also gives native output ramps the same
// cancellation and timeout semantics as every other hardware operation.
package dac

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/qulab/go-instr/instr"
	"github.com/qulab/go-instr/job"
	"github.com/qulab/go-instr/logger"
)

// Processor is the port to the board's onboard process engine, backed by the
// vendor DLL in production.
type Processor interface {
	StartProcess(num int) error
	StopProcess(num int) error
	SetPar(index, value int) error
	GetPar(index int) (int, error)
}

// Parameter registers shared with the onboard programs.
const (
	parOutputCode    = 1
	parOutputChannel = 2
	parInputChannel  = 3
	parInputCode     = 4
	// parBusy reads 1 while an onboard process is still running.
	parBusy = 5
)

// Onboard process slots.
const (
	processSet = 1
	processGet = 2
)

// DAC drives one output channel of the board. Output values are in Volt over
// a bipolar range.
type DAC struct {
	proc Processor

	outChannel int
	inChannel  int

	// outputRange is the half-range of the bipolar output, e.g. 10 for ±10 V.
	outputRange float64
	inputRange  float64

	outputBits int
	inputBits  int

	// busyPoll is the interval at which the busy register is polled while an
	// onboard process runs.
	busyPoll time.Duration

	// opTimeout bounds a single onboard set or get operation.
	opTimeout time.Duration

	logger logger.Logger
}

var _ instr.ScalarOutput = (*DAC)(nil)

// Option represents a functional option for configuring a DAC driver.
type Option interface {
	apply(*DAC) error
}

type optFunc func(*DAC) error

func (f optFunc) apply(d *DAC) error { return f(d) }

// WithChannels selects the output and input channels driven by this instance.
func WithChannels(out, in int) Option {
	return optFunc(func(d *DAC) error {
		if out < 1 || in < 1 {
			return errors.New("channel numbers start at 1")
		}
		d.outChannel = out
		d.inChannel = in

		return nil
	})
}

// WithOutputRange sets the half-range of the bipolar output in Volt.
func WithOutputRange(rng float64) Option {
	return optFunc(func(d *DAC) error {
		if rng <= 0 {
			return errors.New("output range must be positive")
		}
		d.outputRange = rng

		return nil
	})
}

// WithOperationTimeout bounds a single onboard set or get operation.
func WithOperationTimeout(timeout time.Duration) Option {
	return optFunc(func(d *DAC) error {
		if timeout <= 0 {
			return errors.New("operation timeout must be positive")
		}
		d.opTimeout = timeout

		return nil
	})
}

// WithBusyPollInterval sets the busy-register poll interval.
func WithBusyPollInterval(interval time.Duration) Option {
	return optFunc(func(d *DAC) error {
		if interval <= 0 {
			return errors.New("busy poll interval must be positive")
		}
		d.busyPoll = interval

		return nil
	})
}

// WithLogger sets the logger used by the driver.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(d *DAC) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		d.logger = l

		return nil
	})
}

// New creates a DAC driver for channel 1 in/out over a ±10 V range with a
// 16-bit output and an 18-bit input converter, matching the stock onboard
// programs.
func New(proc Processor, opts ...Option) (*DAC, error) {
	if proc == nil {
		return nil, errors.New("processor is nil")
	}

	d := &DAC{
		proc:        proc,
		outChannel:  1,
		inChannel:   1,
		outputRange: 10.0,
		inputRange:  10.0,
		outputBits:  16,
		inputBits:   18,
		busyPoll:    10 * time.Millisecond,
		opTimeout:   5 * time.Second,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// StartSet loads the target voltage into the parameter registers, starts the
// onboard set process, and returns the Job tracking it. The completion
// predicate polls the busy register and stops the process once it clears; the
// recovery handlers stop the process outright.
//
// StartSet satisfies ramp.RampStarter, so an onboard ramp can be driven
// through ramp.InstrSet.
func (d *DAC) StartSet(value float64) (*job.Job, error) {
	code, err := d.voltsToCode(value)
	if err != nil {
		return nil, err
	}

	if err := d.proc.SetPar(parOutputCode, code); err != nil {
		return nil, err
	}
	if err := d.proc.SetPar(parOutputChannel, d.outChannel); err != nil {
		return nil, err
	}
	if err := d.proc.SetPar(parBusy, 1); err != nil {
		return nil, err
	}
	if err := d.proc.StartProcess(processSet); err != nil {
		return nil, err
	}

	d.logger.Debug("onboard set started", "value", value, "code", code, "channel", d.outChannel)

	stop := func() error { return d.proc.StopProcess(processSet) }

	return job.New(d.setDone, d.opTimeout,
		job.WithCancelHandler(stop),
		job.WithTimeoutHandler(stop),
		job.WithLogger(d.logger),
	)
}

// SetValue writes one voltage and blocks until the onboard process finishes.
func (d *DAC) SetValue(value float64) error {
	j, err := d.StartSet(value)
	if err != nil {
		return err
	}

	if _, err := j.WaitForCompletion(nil, 0, d.busyPoll); err != nil {
		return fmt.Errorf("set %g V: %w", value, err)
	}

	return nil
}

// GetValue reads the present voltage on the input channel.
func (d *DAC) GetValue() (float64, error) {
	if err := d.proc.SetPar(parInputChannel, d.inChannel); err != nil {
		return 0, err
	}
	if err := d.proc.SetPar(parBusy, 1); err != nil {
		return 0, err
	}
	if err := d.proc.StartProcess(processGet); err != nil {
		return 0, err
	}

	stop := func() error { return d.proc.StopProcess(processGet) }

	j, err := job.New(d.getDone, d.opTimeout,
		job.WithCancelHandler(stop),
		job.WithTimeoutHandler(stop),
		job.WithLogger(d.logger),
	)
	if err != nil {
		return 0, err
	}

	if _, err := j.WaitForCompletion(nil, 0, d.busyPoll); err != nil {
		return 0, fmt.Errorf("read input: %w", err)
	}

	code, err := d.proc.GetPar(parInputCode)
	if err != nil {
		return 0, err
	}

	return codeToVolts(code, d.inputRange, d.inputBits), nil
}

// setDone polls the busy register for the set process. Once the register
// clears, the process is stopped and the operation counts as complete.
func (d *DAC) setDone() (bool, error) {
	return d.processDone(processSet)
}

// getDone polls the busy register for the get process.
func (d *DAC) getDone() (bool, error) {
	return d.processDone(processGet)
}

func (d *DAC) processDone(num int) (bool, error) {
	busy, err := d.proc.GetPar(parBusy)
	if err != nil {
		return false, err
	}
	if busy == 1 {
		return false, nil
	}

	if err := d.proc.StopProcess(num); err != nil {
		return false, err
	}

	return true, nil
}

// voltsToCode converts a voltage to the output converter code, rejecting
// values outside the bipolar range.
func (d *DAC) voltsToCode(v float64) (int, error) {
	if math.Abs(v) > d.outputRange {
		return 0, fmt.Errorf("value %g V outside ±%g V output range", v, d.outputRange)
	}

	maxCode := float64(uint(1)<<d.outputBits - 1)
	code := math.Round((v + d.outputRange) / (2 * d.outputRange) * maxCode)

	return int(code), nil
}

func codeToVolts(code int, rng float64, bits int) float64 {
	maxCode := float64(uint(1)<<bits - 1)
	return float64(code)/maxCode*2*rng - rng
}
