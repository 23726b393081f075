// Package job provides a cooperative handle for long-running hardware
// operations such as magnet field sweeps and onboard voltage ramps.
//
// Instruments that perform a physical action over seconds to minutes expose an
// "operation in progress" register that must be polled; there is no hardware
// interrupt or asynchronous notification. A Job wraps such an operation behind
// a completion predicate, a deadline, and two recovery callbacks, and turns it
// into something a task runner can wait on without a dedicated goroutine:
//
//	j, _ := job.New(driver.TargetReached, time.Minute,
//	    job.WithCancelHandler(driver.StopSweep),
//	    job.WithTimeoutHandler(driver.StopSweepSafe),
//	)
//	ok, err := j.WaitForCompletion(token.IsSet, 0, 3*time.Second)
//
// The wait loop sleeps before every poll, so CPU usage stays near zero while
// the hardware works. Cancellation is a normal outcome reported as a false
// result; a timeout is a hard failure that runs the timeout handler to bring
// the hardware back to a safe state and then surfaces ErrTimeout.
//
// A Job is single-use: it starts Pending and ends in exactly one of the
// Completed, Cancelled or TimedOut states. Recovery callbacks fire at most
// once per Job, no matter how the wait ends.
package job
