package cryomag

import (
	"errors"
	"fmt"
	"math"

	"github.com/qulab/go-instr/internal/pool"
	"github.com/qulab/go-instr/job"
)

// ApplyField runs the complete field-setting sequence: close the switch
// heater if needed (ramping the output to the persistent field first), sweep
// to the target, and optionally reopen the heater and ramp the supply back to
// zero, leaving the magnet in persistent mode at the target field.
//
// target is in Tesla, rate in T/min; a non-positive rate keeps the rate
// already programmed. The returned field is the value to record for the
// measurement: the target on success, or the last known field otherwise.
//
// A false result with a nil error means the stop token was set and the
// sequence halted cooperatively. A timeout of the main sweep is fatal: the
// sweep has been stopped and the heater opened by the Job's recovery, the
// stop token is set so the surrounding measurement fails too, and the last
// known field is still reported so it can be recorded before the error
// propagates.
func (d *CS4) ApplyField(token *job.StopToken, target, rate float64, autoStopHeater bool) (bool, float64, error) {
	var interrupted job.InterruptedFunc
	if token != nil {
		interrupted = token.IsSet
	}

	heater, err := d.Heater()
	if err != nil {
		return false, 0, err
	}

	// The heater may only be closed when the supply output matches the
	// persistent field, otherwise the flux jump would quench the magnet.
	if heater == HeaterOff {
		j, err := d.SweepToPersistentField()
		if err != nil {
			return false, 0, err
		}

		ok, err := j.WaitForCompletion(interrupted, waitCeiling, heaterRefresh)
		if err != nil {
			return false, d.lastKnownField(), err
		}
		if !ok {
			return false, d.lastKnownField(), nil
		}

		if err := d.SetHeater(HeaterOn); err != nil {
			return false, d.lastKnownField(), err
		}
		pool.Sleep(d.postSwitchWait)
	}

	field, err := d.PersistentField()
	if err != nil {
		return false, 0, err
	}

	if math.Abs(field-target) > d.fluctuations {
		j, err := d.SweepToField(target, rate)
		if err != nil {
			return false, field, err
		}

		ok, err := j.WaitForCompletion(interrupted, waitCeiling, sweepRefresh)
		if err != nil {
			if errors.Is(err, job.ErrTimeout) {
				// The sweep is stopped and the heater open. Record the
				// last known field, fail the whole measurement, then
				// surface the timeout.
				if token != nil {
					token.Set()
				}

				return false, d.lastKnownField(),
					fmt.Errorf("field source did not reach %g T: %w", target, err)
			}

			return false, field, err
		}
		if !ok {
			// Stop requested; the cancel handler already paused the sweep.
			return false, d.lastKnownField(), nil
		}
	}

	if autoStopHeater {
		if err := d.SetHeater(HeaterOff); err != nil {
			return false, target, err
		}
		pool.Sleep(d.postSwitchWait)

		// Bring the supply back to zero at the fast rate; the field stays
		// trapped in the magnet.
		j, err := d.SweepToField(0, 0)
		if err != nil {
			return false, target, err
		}
		if _, err := j.WaitForCompletion(interrupted, waitCeiling, heaterRefresh); err != nil {
			return false, target, err
		}
	}

	return true, target, nil
}

// lastKnownField reads the persistent field for reporting on failure paths.
// The read itself is best effort; a broken transport yields zero.
func (d *CS4) lastKnownField() float64 {
	field, err := d.PersistentField()
	if err != nil {
		d.logger.Error("reading last known field failed", "error", err)
		return 0
	}

	return field
}
