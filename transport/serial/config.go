package serial

import (
	"errors"
	"time"

	"github.com/qulab/go-instr/logger"
)

// Config represents the configuration parameters for a serial instrument channel.
type Config struct {
	// port specifies the serial device, e.g. /dev/ttyUSB0 or COM3.
	port string

	// baudRate specifies the line speed. Defaults to 9600.
	baudRate int

	// readTimeout defines how long a single read may block before the query
	// is considered unanswered. Defaults to 3 seconds.
	readTimeout time.Duration

	// txTerm is appended to every outgoing command. Defaults to "\n".
	txTerm string

	// rxTerm marks the end of an instrument response. Defaults to '\n'.
	rxTerm byte

	// openRetries defines how many times opening the port is attempted
	// before giving up. Defaults to 3.
	openRetries uint

	// openRetryDelay defines the pause between open attempts.
	// Defaults to 500 milliseconds.
	openRetryDelay time.Duration

	// logger provides a logger instance for channel events and errors.
	logger logger.Logger
}

// NewConfig creates a serial channel configuration for the given device port
// with optional functional options applied over the defaults.
func NewConfig(port string, opts ...Option) (*Config, error) {
	cfg := &Config{
		baudRate:       9600,
		readTimeout:    3 * time.Second,
		txTerm:         "\n",
		rxTerm:         '\n',
		openRetries:    3,
		openRetryDelay: 500 * time.Millisecond,
		logger:         logger.GetLogger(),
	}

	if port == "" {
		return nil, errors.New("serial port name is empty")
	}
	cfg.port = port

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option represents a functional option for configuring a serial Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithBaudRate sets the line speed of the serial channel.
// An error is returned if the rate is not positive.
func WithBaudRate(rate int) Option {
	return newOptFunc("WithBaudRate", func(cfg *Config) error {
		if rate <= 0 {
			return errors.New("baud rate must be positive")
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithReadTimeout sets the timeout for a single response read.
// An error is returned if the timeout is not positive.
func WithReadTimeout(timeout time.Duration) Option {
	return newOptFunc("WithReadTimeout", func(cfg *Config) error {
		if timeout <= 0 {
			return errors.New("read timeout must be positive")
		}
		cfg.readTimeout = timeout

		return nil
	})
}

// WithTermination sets the write and read termination characters.
// The write termination may be empty for instruments that frame by timeout.
func WithTermination(tx string, rx byte) Option {
	return newOptFunc("WithTermination", func(cfg *Config) error {
		cfg.txTerm = tx
		cfg.rxTerm = rx

		return nil
	})
}

// WithOpenRetry sets the number of attempts and the delay between attempts
// when opening the serial port.
func WithOpenRetry(attempts uint, delay time.Duration) Option {
	return newOptFunc("WithOpenRetry", func(cfg *Config) error {
		if attempts == 0 {
			return errors.New("open retry attempts must be at least 1")
		}
		if delay < 0 {
			return errors.New("open retry delay must not be negative")
		}
		cfg.openRetries = attempts
		cfg.openRetryDelay = delay

		return nil
	})
}

// WithLogger sets the logger used by the channel.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
