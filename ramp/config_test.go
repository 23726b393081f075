package ramp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qulab/go-instr/logger"
)

func TestControllerOptions(t *testing.T) {
	require := require.New(t)

	t.Run("defaults", func(t *testing.T) {
		c, err := NewController()
		require.NoError(err)
		require.Equal(0.0, c.cfg.stepLimit)
		require.Equal(0.0, c.cfg.safetyCeiling)
		require.Equal(0.0, c.cfg.maxDelta)
		require.Equal(10*time.Millisecond, c.cfg.stepDelay)
		require.Equal(9, c.cfg.precision)
		require.Equal(1e-9, c.cfg.epsilon)
		require.Equal(60*time.Second, c.cfg.jobTimeout)
		require.Equal(time.Second, c.cfg.refresh)
		require.NotNil(c.cfg.logger)
	})

	t.Run("valid options", func(t *testing.T) {
		c, err := NewController(
			WithStepLimit(0.5),
			WithSafetyCeiling(10),
			WithMaxDelta(2),
			WithStepDelay(0),
			WithPrecision(6),
			WithEpsilon(1e-12),
			WithJobTimeout(time.Minute),
			WithRefreshInterval(100*time.Millisecond),
			WithLogger(logger.GetLogger()),
		)
		require.NoError(err)
		require.Equal(0.5, c.cfg.stepLimit)
		require.Equal(10.0, c.cfg.safetyCeiling)
		require.Equal(2.0, c.cfg.maxDelta)
		require.Equal(time.Duration(0), c.cfg.stepDelay)
		require.Equal(6, c.cfg.precision)
		require.Equal(1e-12, c.cfg.epsilon)
	})

	t.Run("invalid options", func(t *testing.T) {
		cases := []struct {
			name string
			opt  Option
		}{
			{"negative step limit", WithStepLimit(-1)},
			{"negative ceiling", WithSafetyCeiling(-1)},
			{"negative max delta", WithMaxDelta(-1)},
			{"negative delay", WithStepDelay(-time.Second)},
			{"precision too small", WithPrecision(-1)},
			{"precision too large", WithPrecision(16)},
			{"zero epsilon", WithEpsilon(0)},
			{"zero job timeout", WithJobTimeout(0)},
			{"zero refresh", WithRefreshInterval(0)},
			{"nil logger", WithLogger(nil)},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewController(tc.opt)
				require.Error(err)
			})
		}
	})
}

func TestRoundTo(t *testing.T) {
	require := require.New(t)

	require.Equal(0.3, roundTo(0.1+0.2, 9))
	require.Equal(1.234568, roundTo(1.23456789, 6))
	require.Equal(-0.3, roundTo(-(0.1 + 0.2), 9))
}
