package ramp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qulab/go-instr/job"
)

// recordingSetter collects every value pushed to the fake hardware.
type recordingSetter struct {
	values []float64
	failAt int // 1-based call index to fail on, 0 disables
	err    error
}

func (s *recordingSetter) set(v float64) error {
	if s.failAt > 0 && len(s.values)+1 == s.failAt {
		return s.err
	}
	s.values = append(s.values, v)

	return nil
}

func newController(t *testing.T, opts ...Option) *Controller {
	t.Helper()

	c, err := NewController(opts...)
	require.NoError(t, err)

	return c
}

func TestSmoothSetStepping(t *testing.T) {
	require := require.New(t)

	t.Run("steps in order and lands exactly", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 5.0, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(5.0, final)
		require.Equal([]float64{1.0, 2.0, 3.0, 4.0, 5.0}, setter.values)
	})

	t.Run("downward ramp", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, -2.0, setter.set, 1.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(-2.0, final)
		require.Equal([]float64{0.0, -1.0, -2.0}, setter.values)
	})

	t.Run("non-divisible distance snaps to target", func(t *testing.T) {
		c := newController(t, WithStepLimit(0.3), WithStepDelay(0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 1.0, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(1.0, final)

		// Last write is exactly the target, no residual rounding error.
		require.Equal(1.0, setter.values[len(setter.values)-1])

		// Every step is bounded by the limit.
		prev := 0.0
		for _, v := range setter.values {
			require.LessOrEqual(math.Abs(v-prev), 0.3+1e-12)
			prev = v
		}
	})

	t.Run("rounding does not accumulate drift", func(t *testing.T) {
		c := newController(t, WithStepLimit(0.1), WithStepDelay(0), WithPrecision(9))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 1.0, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(1.0, final)

		// 0.1 is not exactly representable; each intermediate value must
		// still be the rounded multiple, not the drifting float sum.
		for i, v := range setter.values[:len(setter.values)-1] {
			require.Equal(roundTo(0.1*float64(i+1), 9), v)
		}
	})

	t.Run("distance within one step writes only the target", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 0.5, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(0.5, final)
		require.Equal([]float64{0.5}, setter.values)
	})

	t.Run("zero step limit jumps directly", func(t *testing.T) {
		c := newController(t, WithStepDelay(0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 7.5, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(7.5, final)
		require.Equal([]float64{7.5}, setter.values)
	})

	t.Run("step delay paces the ramp", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(10*time.Millisecond))
		setter := &recordingSetter{}

		start := time.Now()
		ok, _, err := c.SmoothSet(nil, 3.0, setter.set, 0.0)
		require.NoError(err)
		require.True(ok)
		// Two inter-step pauses: after 1.0 and after 2.0.
		require.GreaterOrEqual(time.Since(start), 20*time.Millisecond)
	})
}

func TestSmoothSetNoOp(t *testing.T) {
	require := require.New(t)

	c := newController(t, WithStepLimit(1.0))
	setter := &recordingSetter{}

	ok, final, err := c.SmoothSet(nil, 2.0, setter.set, 2.0)
	require.NoError(err)
	require.True(ok)
	require.Equal(2.0, final)
	require.Empty(setter.values)

	// Within epsilon also counts as already at the target.
	ok, final, err = c.SmoothSet(nil, 2.0, setter.set, 2.0+1e-12)
	require.NoError(err)
	require.True(ok)
	require.Equal(2.0, final)
	require.Empty(setter.values)
}

func TestSmoothSetValidation(t *testing.T) {
	require := require.New(t)

	t.Run("nil setter", func(t *testing.T) {
		c := newController(t)

		ok, final, err := c.SmoothSet(nil, 1.0, nil, 0.0)
		require.ErrorIs(err, ErrNilSetter)
		require.False(ok)
		require.Equal(0.0, final)
	})

	t.Run("safety ceiling rejects before any write", func(t *testing.T) {
		c := newController(t, WithSafetyCeiling(5.0), WithStepLimit(1.0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 6.0, setter.set, 0.0)
		require.ErrorIs(err, ErrSafetyCeiling)
		require.False(ok)
		require.Equal(0.0, final)
		require.Empty(setter.values)

		// Negative targets count by magnitude.
		_, _, err = c.SmoothSet(nil, -6.0, setter.set, 0.0)
		require.ErrorIs(err, ErrSafetyCeiling)
		require.Empty(setter.values)

		// At the ceiling is allowed.
		ok, _, err = c.SmoothSet(nil, 5.0, setter.set, 4.5)
		require.NoError(err)
		require.True(ok)
	})

	t.Run("max delta rejects before any write", func(t *testing.T) {
		c := newController(t, WithMaxDelta(1.0))
		setter := &recordingSetter{}

		ok, final, err := c.SmoothSet(nil, 3.0, setter.set, 0.0)
		require.ErrorIs(err, ErrMaxDelta)
		require.False(ok)
		require.Equal(0.0, final)
		require.Empty(setter.values)
	})

	t.Run("max delta checked before ceiling", func(t *testing.T) {
		c := newController(t, WithMaxDelta(1.0), WithSafetyCeiling(5.0))
		setter := &recordingSetter{}

		// Violates both; the delta error wins.
		_, _, err := c.SmoothSet(nil, 10.0, setter.set, 0.0)
		require.ErrorIs(err, ErrMaxDelta)
		require.Empty(setter.values)
	})
}

func TestSmoothSetInterruption(t *testing.T) {
	require := require.New(t)

	t.Run("stop before first step writes nothing", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		setter := &recordingSetter{}
		token := job.NewStopToken()
		token.Set()

		ok, final, err := c.SmoothSet(token, 5.0, setter.set, 0.0)
		require.NoError(err)
		require.False(ok)
		require.Equal(0.0, final)
		require.Empty(setter.values)
	})

	t.Run("stop mid-ramp leaves last written value", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		token := job.NewStopToken()

		var values []float64
		setter := func(v float64) error {
			values = append(values, v)
			if v == 2.0 {
				token.Set()
			}
			return nil
		}

		ok, final, err := c.SmoothSet(token, 5.0, setter, 0.0)
		require.NoError(err)
		require.False(ok)
		require.Equal([]float64{1.0, 2.0}, values)
		require.Equal(2.0, final)
	})
}

func TestSmoothSetTransportError(t *testing.T) {
	require := require.New(t)

	boom := errors.New("instrument disconnected")

	t.Run("error on intermediate step aborts at last good value", func(t *testing.T) {
		c := newController(t, WithStepLimit(1.0), WithStepDelay(0))
		setter := &recordingSetter{failAt: 3, err: boom}

		ok, final, err := c.SmoothSet(nil, 5.0, setter.set, 0.0)
		require.ErrorIs(err, boom)
		require.False(ok)
		require.Equal([]float64{1.0, 2.0}, setter.values)
		require.Equal(2.0, final)
	})

	t.Run("error on direct jump keeps starting value", func(t *testing.T) {
		c := newController(t, WithStepDelay(0))
		setter := &recordingSetter{failAt: 1, err: boom}

		ok, final, err := c.SmoothSet(nil, 5.0, setter.set, 1.0)
		require.ErrorIs(err, boom)
		require.False(ok)
		require.Equal(1.0, final)
	})
}

func TestInstrSet(t *testing.T) {
	require := require.New(t)

	fastOpts := []Option{
		WithJobTimeout(50 * time.Millisecond),
		WithRefreshInterval(time.Millisecond),
	}

	t.Run("waits on the hardware ramp job", func(t *testing.T) {
		c := newController(t, fastOpts...)

		polls := 0
		startCount := 0
		starter := func(target float64) (*job.Job, error) {
			startCount++
			require.Equal(3.0, target)
			return job.New(func() (bool, error) {
				polls++
				return polls >= 2, nil
			}, time.Minute)
		}

		ok, final, err := c.InstrSet(nil, 3.0, starter, 0.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(3.0, final)
		require.Equal(1, startCount)
		require.Equal(2, polls)
	})

	t.Run("validation rejects before starting the ramp", func(t *testing.T) {
		c := newController(t, append([]Option{WithSafetyCeiling(1.0)}, fastOpts...)...)

		startCount := 0
		starter := func(target float64) (*job.Job, error) {
			startCount++
			return nil, nil
		}

		ok, final, err := c.InstrSet(nil, 2.0, starter, 0.0)
		require.ErrorIs(err, ErrSafetyCeiling)
		require.False(ok)
		require.Equal(0.0, final)
		require.Equal(0, startCount)
	})

	t.Run("nil starter", func(t *testing.T) {
		c := newController(t, fastOpts...)

		_, _, err := c.InstrSet(nil, 1.0, nil, 0.0)
		require.ErrorIs(err, ErrNilStarter)
	})

	t.Run("already at target skips the hardware entirely", func(t *testing.T) {
		c := newController(t, fastOpts...)

		startCount := 0
		starter := func(target float64) (*job.Job, error) {
			startCount++
			return nil, nil
		}

		ok, final, err := c.InstrSet(nil, 1.0, starter, 1.0)
		require.NoError(err)
		require.True(ok)
		require.Equal(1.0, final)
		require.Equal(0, startCount)
	})

	t.Run("timeout runs hardware recovery and fails", func(t *testing.T) {
		c := newController(t, fastOpts...)

		stopCount := 0
		starter := func(target float64) (*job.Job, error) {
			return job.New(
				func() (bool, error) { return false, nil },
				time.Minute,
				job.WithTimeoutHandler(func() error { stopCount++; return nil }),
			)
		}

		ok, final, err := c.InstrSet(nil, 3.0, starter, 0.0)
		require.ErrorIs(err, job.ErrTimeout)
		require.False(ok)
		require.Equal(0.0, final)
		require.Equal(1, stopCount)
	})

	t.Run("cooperative stop cancels the hardware ramp", func(t *testing.T) {
		c := newController(t, fastOpts...)
		token := job.NewStopToken()
		token.Set()

		stopCount := 0
		starter := func(target float64) (*job.Job, error) {
			return job.New(
				func() (bool, error) { return false, nil },
				time.Minute,
				job.WithCancelHandler(func() error { stopCount++; return nil }),
			)
		}

		ok, final, err := c.InstrSet(token, 3.0, starter, 0.0)
		require.NoError(err)
		require.False(ok)
		require.Equal(0.0, final)
		require.Equal(1, stopCount)
	})

	t.Run("starter failure propagates", func(t *testing.T) {
		c := newController(t, fastOpts...)
		boom := errors.New("sweep command rejected")

		starter := func(target float64) (*job.Job, error) { return nil, boom }

		ok, final, err := c.InstrSet(nil, 3.0, starter, 0.0)
		require.ErrorIs(err, boom)
		require.False(ok)
		require.Equal(0.0, final)
	})
}
