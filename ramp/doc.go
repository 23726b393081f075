// Package ramp moves a scalar instrument output (voltage, current, field)
// from its present value to a target in bounded steps.
//
// A Controller enforces a per-step magnitude limit, an absolute safety
// ceiling, and a maximum allowed distance from the present value, and stays
// abortable between steps through a job.StopToken. Validation failures reject
// the whole request before any hardware write, so a rejected request can
// never leave the instrument in a partial state.
//
// Two strategies share the same semantics from the caller's perspective:
//
//   - SmoothSet steps the value in software, pushing each intermediate value
//     through a Setter and sleeping between steps.
//   - InstrSet hands the ramp to the instrument itself and waits on the
//     job.Job returned by the starter, for sources whose onboard ramping is
//     faster or finer than software stepping.
//
// Either way the controller never overshoots: the final write always lands
// exactly on the target, even when the step limit does not divide the
// distance evenly.
package ramp
