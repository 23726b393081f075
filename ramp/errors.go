package ramp

import "errors"

var (
	// ErrSafetyCeiling indicates that the requested target magnitude exceeds
	// the configured safety ceiling. Raised before any hardware write.
	ErrSafetyCeiling = errors.New("target exceeds safety ceiling")

	// ErrMaxDelta indicates that the requested target is too far from the
	// present value, guarding against fat-finger targets. Raised before any
	// hardware write.
	ErrMaxDelta = errors.New("target too far from current value")

	// ErrNilSetter indicates that a nil setter was passed to SmoothSet.
	ErrNilSetter = errors.New("setter is nil")

	// ErrNilStarter indicates that a nil ramp starter was passed to InstrSet.
	ErrNilStarter = errors.New("ramp starter is nil")
)
