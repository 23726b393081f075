// Package serial implements the transport.Channel interface over a serial
// line, the common physical link for bench instruments without LAN or GPIB.
package serial

import (
	"fmt"
	"sync/atomic"

	"github.com/avast/retry-go"
	"github.com/tarm/serial"

	"github.com/qulab/go-instr/transport"
)

// Channel is a serial implementation of transport.Channel.
//
// Commands are framed with the configured termination characters. Responses
// are read byte-wise until the read terminator or the read timeout.
type Channel struct {
	cfg    *Config
	port   *serial.Port
	closed atomic.Bool
}

var _ transport.Channel = (*Channel)(nil)

// Open opens the serial port described by cfg and returns a ready channel.
//
// Opening is retried per the config's open retry settings; USB serial
// adapters commonly need a moment to enumerate after plug-in.
func Open(cfg *Config) (*Channel, error) {
	if cfg == nil {
		return nil, fmt.Errorf("serial config is nil")
	}

	var port *serial.Port
	err := retry.Do(
		func() error {
			p, err := serial.OpenPort(&serial.Config{
				Name:        cfg.port,
				Baud:        cfg.baudRate,
				ReadTimeout: cfg.readTimeout,
			})
			if err != nil {
				return err
			}
			port = p

			return nil
		},
		retry.Attempts(cfg.openRetries),
		retry.Delay(cfg.openRetryDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.port, err)
	}

	cfg.logger.Debug("serial port opened", "port", cfg.port, "baud", cfg.baudRate)

	return &Channel{cfg: cfg, port: port}, nil
}

// Write sends a command that expects no response.
func (c *Channel) Write(cmd string) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if cmd == "" {
		return transport.ErrEmptyCommand
	}

	if _, err := c.port.Write([]byte(cmd + c.cfg.txTerm)); err != nil {
		return fmt.Errorf("write %q: %w", cmd, err)
	}

	return nil
}

// Query sends a command and reads the response up to the read terminator.
func (c *Channel) Query(cmd string) (string, error) {
	if err := c.Write(cmd); err != nil {
		return "", err
	}

	resp, err := c.readLine()
	if err != nil {
		return "", fmt.Errorf("query %q: %w", cmd, err)
	}

	return resp, nil
}

// Close releases the serial port. Subsequent operations return ErrClosed.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.cfg.logger.Debug("serial port closed", "port", c.cfg.port)

	return c.port.Close()
}

// readLine reads byte-wise until the read terminator. The tarm/serial package
// signals a read timeout as a zero-length read with a nil error.
func (c *Channel) readLine() (string, error) {
	buf := make([]byte, 0, 64)
	one := make([]byte, 1)

	for {
		n, err := c.port.Read(one)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", transport.ErrReadTimeout
		}
		if one[0] == c.cfg.rxTerm {
			return string(buf), nil
		}
		buf = append(buf, one[0])
	}
}
