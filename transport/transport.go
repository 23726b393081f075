// Package transport defines the byte-level request/response channel used to
// reach an instrument, typically a VISA, GPIB or serial link.
//
// The channel is assumed reliable but slow: a write or query blocks for the
// round-trip time of one command, which is short compared to the physical
// processes (sweeps, ramps) the higher layers wait on. The job and ramp layers
// consume only this interface and never retry on their own; retry policy, if
// any, belongs to the implementation behind the channel.
package transport

import (
	"strconv"
	"strings"
)

// Channel is a request/response command channel to a single instrument.
//
// Implementations are not required to be safe for concurrent use; the owner
// token in the instr package serializes access per instrument.
type Channel interface {
	// Write sends a command that expects no response.
	Write(cmd string) error

	// Query sends a command and returns the instrument's response with the
	// line termination stripped.
	Query(cmd string) (string, error)

	// Close releases the underlying connection.
	Close() error
}

// QueryFloat sends a query and parses the response as a float64, after
// trimming whitespace and the given unit suffix (e.g. " T" on field readings).
func QueryFloat(ch Channel, cmd string, unit string) (float64, error) {
	resp, err := ch.Query(cmd)
	if err != nil {
		return 0, err
	}

	resp = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(resp), unit))
	val, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, &ParseError{Cmd: cmd, Response: resp, Err: err}
	}

	return val, nil
}

// QueryFloats sends a query and parses a comma-separated response into floats.
func QueryFloats(ch Channel, cmd string) ([]float64, error) {
	resp, err := ch.Query(cmd)
	if err != nil {
		return nil, err
	}

	fields := strings.Split(resp, ",")
	vals := make([]float64, 0, len(fields))
	for _, field := range fields {
		val, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, &ParseError{Cmd: cmd, Response: resp, Err: err}
		}
		vals = append(vals, val)
	}

	return vals, nil
}
