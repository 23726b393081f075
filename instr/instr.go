// Package instr defines the capability interfaces instrument drivers expose
// to the job and ramp layers, and the owner registry that serializes access
// to a physical device.
//
// The ramp controller depends only on narrow capabilities (a value setter, a
// completion predicate), never on a concrete driver type. Drivers under
// instr/ implement these capabilities on top of a transport.Channel.
package instr

// ScalarOutput is implemented by instruments exposing a single settable
// scalar output such as a voltage, current or field.
//
// GetValue reads the present output back from the hardware; SetValue pushes
// one value. Both may fail with a transport error.
type ScalarOutput interface {
	GetValue() (float64, error)
	SetValue(value float64) error
}

// MultiOutput is implemented by sources with several independent outputs.
// Channel returns the ScalarOutput for one of them.
type MultiOutput interface {
	Channel(id int) (ScalarOutput, error)
	DefinedChannels() []int
}
