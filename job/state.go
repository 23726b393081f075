package job

import "sync/atomic"

// State represents the lifecycle stage of a Job.
type State uint32

const (
	// PendingState indicates that the hardware operation is still in progress.
	PendingState State = iota
	// CompletedState indicates that the completion predicate reported success.
	CompletedState
	// CancelledState indicates that the caller requested a cooperative stop.
	CancelledState
	// TimedOutState indicates that the deadline elapsed before completion.
	TimedOutState
)

// IsTerminal returns whether the state is one of the final states.
// A Job is single-use; terminal states are never left.
func (s State) IsTerminal() bool { return s != PendingState }

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case PendingState:
		return "pending"
	case CompletedState:
		return "completed"
	case CancelledState:
		return "cancelled"
	case TimedOutState:
		return "timed-out"
	default:
		return "unknown"
	}
}

// atomicState holds the Job state with CAS-guarded transitions out of
// PendingState. The CAS is what makes the recovery callbacks at-most-once:
// whichever path wins the transition is the only one allowed to fire them.
type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) IsPending() bool {
	return st.Get() == PendingState
}

func (st *atomicState) ToCompleted() bool {
	return st.state.CompareAndSwap(uint32(PendingState), uint32(CompletedState))
}

func (st *atomicState) ToCancelled() bool {
	return st.state.CompareAndSwap(uint32(PendingState), uint32(CancelledState))
}

func (st *atomicState) ToTimedOut() bool {
	return st.state.CompareAndSwap(uint32(PendingState), uint32(TimedOutState))
}
