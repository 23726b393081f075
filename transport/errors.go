package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed indicates that the channel has been closed.
	ErrClosed = errors.New("transport channel closed")

	// ErrReadTimeout indicates that the instrument did not answer a query
	// within the configured read timeout.
	ErrReadTimeout = errors.New("transport read timeout")

	// ErrEmptyCommand indicates that an empty command string was provided.
	ErrEmptyCommand = errors.New("empty command")
)

// ParseError indicates that an instrument response could not be parsed.
type ParseError struct {
	Cmd      string
	Response string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed response %q to command %q: %v", e.Response, e.Cmd, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
