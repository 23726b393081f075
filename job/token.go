package job

import "sync/atomic"

// StopToken is an explicit cooperative stop signal shared between a task
// runner and the jobs and ramps it drives. The runner sets the token when the
// user aborts a measurement; every polling loop holding a reference observes
// it on its next cycle.
//
// A token is safe for concurrent use. Passing the same token to several jobs
// on different instruments stops them all with one Set.
type StopToken struct {
	flag atomic.Bool
}

// NewStopToken creates a token in the unset state.
func NewStopToken() *StopToken {
	return &StopToken{}
}

// Set requests a cooperative stop.
func (t *StopToken) Set() {
	t.flag.Store(true)
}

// IsSet reports whether a stop has been requested. The method value t.IsSet
// satisfies InterruptedFunc.
func (t *StopToken) IsSet() bool {
	return t.flag.Load()
}

// Clear resets the token so it can be reused for the next run.
func (t *StopToken) Clear() {
	t.flag.Store(false)
}
